// Package server provides the HTTP API for dnsmonitor snapshots.
//
// Routes:
//
//   - "/api/status": the latest snapshot as JSON, cacheable for one second
//   - "/api/status/{address}": a single node, 404 when the address is not monitored
//   - "/api/sse": Server-Sent Events, one complete snapshot per event
//   - "/metrics": Prometheus exposition of the monitor's own registry
//   - "/healthz": liveness
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled, with a 5-second timeout for in-flight
// requests. It is started by [dnsmonitor.Monitor.Start].
package server
