// Package transport defines the message-oriented adapter interfaces the
// pairing protocol is built on and provides basic implementations (udp, mem).
//
// Key concepts:
// - Conn: fire-and-forget send-by-node-id plus an inbound subscription
// - Directory: enumerates reachable peers and the local display name
// - Message: (source, path, payload); paths classify messages, payloads are opaque
//
// Delivery is strictly best-effort: the protocol layer above supplies its own
// request/response correlation and retries.
package transport
