// Package pairing maintains a validated session between exactly two peers on
// top of a fire-and-forget message transport.
//
// One side (the observer) initiates with Connect, which scans the directory's
// reachable peers and drives a request/response handshake against each until
// a peer accepts or rejects. The other side (the observable) answers inbound
// requests through an acknowledge callback. Once connected, an optional
// liveness monitor watches the session using either active validation probes
// or passive traffic recency.
//
// Key concepts:
// - Engine: owns the single session; all host-facing operations hang off it
// - handshake: three reserved path tags (request, validate, response) carry
//   the control exchange; a single correlation slot matches responses to the
//   in-flight attempt by sender id
// - monitor: at most one background task, cancelled and restarted on every
//   status or strategy change
//
// The transport below guarantees nothing: no ordering, no delivery, no
// acknowledgements. Every outcome the protocol can reach is expressed as one
// of six Status values; no error escapes to the host.
package pairing
