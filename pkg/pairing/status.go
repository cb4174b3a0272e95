package pairing

import (
	"fmt"
	"strings"

	"github.com/aghajari/opwear/pkg/transport"
)

// Status is the session state visible to the host.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusFailedToConnect
	StatusRejected
	StatusNoResponse
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailedToConnect:
		return "failed-to-connect"
	case StatusRejected:
		return "rejected"
	case StatusNoResponse:
		return "no-response"
	default:
		return "unknown"
	}
}

// Strategy selects the liveness validation mode.
type Strategy int

const (
	// StrategyNone disables liveness monitoring.
	StrategyNone Strategy = iota
	// StrategyAcknowledge actively probes the peer with validation handshakes.
	StrategyAcknowledge
	// StrategyResponse passively watches for recent traffic from the peer.
	StrategyResponse
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyAcknowledge:
		return "acknowledge"
	case StrategyResponse:
		return "response"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return StrategyNone, nil
	case "acknowledge":
		return StrategyAcknowledge, nil
	case "response":
		return StrategyResponse, nil
	default:
		return StrategyNone, fmt.Errorf("unknown validation strategy: %q", s)
	}
}

// Session is a snapshot of the current session. Peer and PeerName are set
// only once a peer has been identified; Peer is always set while Connected.
type Session struct {
	Status   Status
	Peer     transport.NodeID
	PeerName string
}
