// Package node holds the per-node state of the DNS monitor and the pure
// functions that fold status payloads into it.
//
// The main components are:
//
//   - [Record]: everything the monitor knows about one node address
//   - [Payload]: the JSON status document a node publishes
//   - [Registry]: insertion-ordered mapping from address to record
//
// Nothing in this package performs I/O or reads the wall clock; every
// operation that depends on time takes it as a parameter. Records are not
// safe for concurrent use: the poller engine owns them from a single
// goroutine.
package node
