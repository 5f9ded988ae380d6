// Package store holds the latest monitor snapshot and fans it out to
// subscribers.
//
// The main components are:
//
//   - [Snapshot]: the JSON wire form of the aggregate node view
//   - [Store]: interface for storing and subscribing to snapshots
//   - [MemoryStore]: in-memory implementation of Store with pub/sub
//
// Subscribers receive snapshots via channels with non-blocking sends (slow
// subscribers miss snapshots rather than block the publish loop).
package store
