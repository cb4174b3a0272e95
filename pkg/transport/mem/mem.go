package mem

import (
	"context"
	"errors"
	"sync"

	"github.com/aghajari/opwear/pkg/transport"
)

// Hub is an in-process message switch connecting nodes by id. Useful for
// tests and as a stand-in for a real device link: delivery is asynchronous,
// unordered across paths, and silently lossy when a drop rule is installed.
type Hub struct {
	mu    sync.Mutex
	nodes map[transport.NodeID]*Node
	drops map[link]bool
	fails map[link]bool
}

type link struct{ from, to transport.NodeID }

func NewHub() *Hub {
	return &Hub{
		nodes: make(map[transport.NodeID]*Node),
		drops: make(map[link]bool),
		fails: make(map[link]bool),
	}
}

// Join registers a node on the hub and returns its endpoint. Joining an id
// twice replaces the previous endpoint.
func (h *Hub) Join(id transport.NodeID, name string) *Node {
	n := &Node{hub: h, id: id, name: name, handlers: make(map[int]transport.Handler)}
	h.mu.Lock()
	h.nodes[id] = n
	h.mu.Unlock()
	return n
}

// SetDrop makes messages from -> to vanish after a successful send call.
func (h *Hub) SetDrop(from, to transport.NodeID, drop bool) {
	h.mu.Lock()
	h.drops[link{from, to}] = drop
	h.mu.Unlock()
}

// SetFail makes send calls from -> to return a transport error.
func (h *Hub) SetFail(from, to transport.NodeID, fail bool) {
	h.mu.Lock()
	h.fails[link{from, to}] = fail
	h.mu.Unlock()
}

// Node is one hub endpoint. It implements transport.Conn and, viewing every
// other joined node as a reachable peer, transport.Directory.
type Node struct {
	hub  *Hub
	id   transport.NodeID
	name string

	mu       sync.Mutex
	handlers map[int]transport.Handler
	nextSub  int
	closed   bool
}

func (n *Node) ID() transport.NodeID { return n.id }

func (n *Node) LocalName() string { return n.name }

func (n *Node) Peers() []transport.Peer {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	var out []transport.Peer
	for id, p := range n.hub.nodes {
		if id == n.id {
			continue
		}
		out = append(out, transport.Peer{ID: id, Name: p.name})
	}
	return out
}

func (n *Node) Send(_ context.Context, to transport.NodeID, path string, payload []byte) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return errors.New("mem: node closed")
	}
	n.mu.Unlock()

	n.hub.mu.Lock()
	if n.hub.fails[link{n.id, to}] {
		n.hub.mu.Unlock()
		return errors.New("mem: link down")
	}
	dropped := n.hub.drops[link{n.id, to}]
	target := n.hub.nodes[to]
	n.hub.mu.Unlock()

	if target == nil {
		return errors.New("mem: no such node")
	}
	if dropped {
		// Fire-and-forget semantics: the send succeeded, the message is lost.
		return nil
	}
	msg := transport.Message{Source: n.id, Path: path, Payload: append([]byte(nil), payload...)}
	go target.deliver(msg)
	return nil
}

func (n *Node) Subscribe(h transport.Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextSub
	n.nextSub++
	n.handlers[id] = h
	return func() {
		n.mu.Lock()
		delete(n.handlers, id)
		n.mu.Unlock()
	}
}

func (n *Node) Close() error {
	n.mu.Lock()
	n.closed = true
	n.handlers = make(map[int]transport.Handler)
	n.mu.Unlock()
	n.hub.mu.Lock()
	if n.hub.nodes[n.id] == n {
		delete(n.hub.nodes, n.id)
	}
	n.hub.mu.Unlock()
	return nil
}

func (n *Node) deliver(msg transport.Message) {
	n.mu.Lock()
	hs := make([]transport.Handler, 0, len(n.handlers))
	for _, h := range n.handlers {
		hs = append(hs, h)
	}
	n.mu.Unlock()
	for _, h := range hs {
		h(msg)
	}
}
