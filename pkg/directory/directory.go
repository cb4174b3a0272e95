// Package directory provides node directory implementations for the pairing
// protocol. The protocol only needs the local display name and an ordered
// list of reachable peers; how that list is obtained is deployment-specific.
package directory

import (
	"sync"

	"github.com/aghajari/opwear/pkg/transport"
)

// Static is a transport.Directory backed by a fixed peer list, typically
// loaded from configuration. The list order is the order connect() tries
// candidates in.
type Static struct {
	localName string

	mu    sync.RWMutex
	peers []transport.Peer
}

func NewStatic(localName string, peers []transport.Peer) *Static {
	return &Static{localName: localName, peers: append([]transport.Peer(nil), peers...)}
}

func (s *Static) LocalName() string { return s.localName }

func (s *Static) Peers() []transport.Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]transport.Peer(nil), s.peers...)
}

// SetPeers replaces the peer list; takes effect on the next connect cycle.
func (s *Static) SetPeers(peers []transport.Peer) {
	s.mu.Lock()
	s.peers = append([]transport.Peer(nil), peers...)
	s.mu.Unlock()
}
