package transport

import "context"

// NodeID is an opaque stable peer identity (e.g., device serial or address hash).
type NodeID string

// Peer bundles a reachable node's identity and human-readable label.
type Peer struct {
	ID   NodeID
	Name string
}

// Message is one inbound datagram: an opaque payload classified by a path tag.
type Message struct {
	Source  NodeID
	Path    string
	Payload []byte
}

// Handler consumes inbound messages. Implementations must not block the
// delivery goroutine for long; hand off heavy work to the caller's own
// goroutine if needed.
type Handler func(Message)

// Conn is a best-effort, point-to-point message sender with an inbound
// subscription. There is no delivery guarantee, no ordering across paths,
// and no acknowledgement below the protocol layer.
type Conn interface {
	// Send transmits one message to the given node. A nil error means the
	// message was handed to the underlying link, not that it arrived.
	Send(ctx context.Context, to NodeID, path string, payload []byte) error

	// Subscribe registers a handler for inbound messages and returns a
	// function that removes it. Multiple handlers may be active at once.
	Subscribe(h Handler) (cancel func())

	Close() error
}

// Directory enumerates currently reachable peers and names the local node.
type Directory interface {
	// LocalName returns the display name this node advertises to peers.
	LocalName() string

	// Peers lists reachable nodes in the order candidates should be tried.
	Peers() []Peer
}
