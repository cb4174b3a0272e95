package pairing

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aghajari/opwear/pkg/transport"
)

type outcome int

const (
	outcomePending outcome = iota
	outcomeAccepted
	outcomeRejected
)

// pendingSlot is the single correlation slot for an in-flight handshake
// exchange. Arming the slot returns a fresh attempt id; a response is
// consumed only while the slot is still armed for that attempt and the
// response's source matches the expected responder. Late or duplicate
// responses fail the compare and are inert, giving at-most-once effect per
// exchange even under at-least-once delivery.
type pendingSlot struct {
	mu      sync.Mutex
	attempt uuid.UUID
	target  transport.NodeID
	armed   bool
	result  outcome
}

// arm claims the slot for a new exchange against target, discarding any
// prior outcome.
func (p *pendingSlot) arm(target transport.NodeID) uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempt = uuid.New()
	p.target = target
	p.armed = true
	p.result = outcomePending
	return p.attempt
}

// resolve applies a response from src. Returns true when the slot consumed it.
func (p *pendingSlot) resolve(src transport.NodeID, accepted bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.armed || src != p.target || p.result != outcomePending {
		return false
	}
	if accepted {
		p.result = outcomeAccepted
	} else {
		p.result = outcomeRejected
	}
	return true
}

// poll reads the outcome for the given attempt. ok is false when the slot
// has been re-armed by a newer attempt.
func (p *pendingSlot) poll(attempt uuid.UUID) (out outcome, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.armed || p.attempt != attempt {
		return outcomePending, false
	}
	return p.result, true
}

// disarm releases the slot if it still belongs to the given attempt.
func (p *pendingSlot) disarm(attempt uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.armed && p.attempt == attempt {
		p.armed = false
	}
}
