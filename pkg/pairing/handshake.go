package pairing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aghajari/opwear/pkg/transport"
)

// roundFloor is the fixed minimum wait per polling round.
const roundFloor = 100 * time.Millisecond

// backoffSchedule returns the per-round waits for one handshake attempt.
// Every round waits the floor plus an arithmetically growing step so the
// waits sum to roughly the acknowledgement budget: early rounds check fast,
// later rounds wait longer. The step is clamped at zero when the budget is
// smaller than floor*tries.
func backoffSchedule(tries int, budget, floor time.Duration) []time.Duration {
	if tries <= 0 {
		return nil
	}
	var step time.Duration
	if tries > 1 {
		step = 2 * (budget - floor*time.Duration(tries)) / time.Duration(tries*(tries-1))
		if step < 0 {
			step = 0
		}
	}
	waits := make([]time.Duration, tries)
	for i := range waits {
		waits[i] = floor + step*time.Duration(i)
	}
	return waits
}

// attemptHandshake drives one request/response exchange against target:
// arm the correlation slot, send the control message, then poll for an
// outcome across the backoff schedule. A failed send is fatal for the
// attempt; anything else resolves to Connected, Rejected, or NoResponse.
func (e *Engine) attemptHandshake(ctx context.Context, path string, target transport.NodeID, payload []byte) Status {
	attempt := e.pending.arm(target)
	defer e.pending.disarm(attempt)

	if err := e.conn.Send(ctx, target, path, payload); err != nil {
		zap.L().Warn("handshake send failed", zap.String("peer", string(target)), zap.Error(err))
		return StatusFailedToConnect
	}

	tries, budget := e.handshakeParams()
	for _, wait := range backoffSchedule(tries, budget, roundFloor) {
		select {
		case <-ctx.Done():
			return StatusNoResponse
		case <-e.clock.After(wait):
		}
		if out, ok := e.pending.poll(attempt); ok {
			switch out {
			case outcomeAccepted:
				return StatusConnected
			case outcomeRejected:
				return StatusRejected
			}
		}
	}
	return StatusNoResponse
}
