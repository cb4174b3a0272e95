package pairing

import (
	"context"

	"go.uber.org/zap"

	"github.com/aghajari/opwear/pkg/transport"
)

// refreshMonitorLocked enforces the at-most-one-monitor rule: unconditionally
// cancel any running task, then start a fresh one only when the session is
// Connected, a strategy is selected, and a monitoring context is bound.
// Callers must hold e.mu.
func (e *Engine) refreshMonitorLocked() {
	e.stopMonitorLocked()
	if e.session.Status != StatusConnected || e.strategy == StrategyNone || e.monitorCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(e.monitorCtx)
	e.monitorCancel = cancel
	e.monitorGen++
	gen := e.monitorGen
	peer, name := e.session.Peer, e.session.PeerName

	switch e.strategy {
	case StrategyAcknowledge:
		go e.runAcknowledgeMonitor(ctx, gen, peer, name)
	case StrategyResponse:
		e.lastHeard = e.clock.Now()
		go e.runResponseMonitor(ctx, gen, peer, name)
	}
	zap.L().Debug("monitor started", zap.String("strategy", e.strategy.String()), zap.Int("gen", gen))
}

func (e *Engine) stopMonitorLocked() {
	if e.monitorCancel != nil {
		e.monitorCancel()
		e.monitorCancel = nil
	}
}

// monitorCurrent reports whether the task with the given generation is still
// the active monitor. Superseded tasks exit instead of acting.
func (e *Engine) monitorCurrent(gen int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitorGen == gen && e.monitorCancel != nil
}

// runAcknowledgeMonitor actively probes the peer every interval. The first
// probe that does not come back Connected demotes the session to the probe's
// outcome and ends the task; a new monitor starts only after reconnecting.
func (e *Engine) runAcknowledgeMonitor(ctx context.Context, gen int, peer transport.NodeID, name string) {
	for {
		e.mu.Lock()
		every := e.validateEvery
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(every):
		}
		if !e.monitorCurrent(gen) {
			return
		}
		st := e.attemptHandshake(ctx, PathValidate, peer, []byte(e.dir.LocalName()))
		if ctx.Err() != nil {
			return
		}
		if st != StatusConnected {
			zap.L().Warn("liveness probe failed", zap.String("peer", string(peer)), zap.String("result", st.String()))
			e.monitorTransition(gen, st, peer, name)
			return
		}
	}
}

// runResponseMonitor passively watches traffic recency: if the peer has been
// silent for more than 1.5x the check interval, the session is demoted to
// NoResponse. Any message from the peer resets the silence window.
func (e *Engine) runResponseMonitor(ctx context.Context, gen int, peer transport.NodeID, name string) {
	for {
		e.mu.Lock()
		every := e.validateEvery
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(every):
		}
		if !e.monitorCurrent(gen) {
			return
		}
		e.mu.Lock()
		silent := e.clock.Now().Sub(e.lastHeard)
		e.mu.Unlock()
		if silent > every*3/2 {
			zap.L().Warn("peer silent past threshold",
				zap.String("peer", string(peer)), zap.Duration("silent", silent))
			e.monitorTransition(gen, StatusNoResponse, peer, name)
			return
		}
	}
}
