// Package poller is the node monitoring engine of dnsmonitor.
//
// An [Engine] owns the node registry and runs every state change on a single
// event loop goroutine. Status queries, push channel reads and resolver
// lookups run on worker goroutines that post typed events back to the loop,
// so the registry is never locked.
//
// The main components are:
//
//   - [Engine]: event loop, lifecycle and discovery entry points
//   - [Client]: TXT status query transport over DNS
//   - [WSDialer]: push channel transport over websocket
//   - [DNSResolver]: NS, TXT and A lookups for discovery
//   - [BuildSnapshot]: aggregate view of the registry
//
// Users of the dnsmonitor library should not need to interact with this
// package directly. Configuration is done through the main dnsmonitor package.
package poller
