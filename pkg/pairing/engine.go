package pairing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aghajari/opwear/pkg/transport"
)

// Defaults for the handshake/liveness tuning knobs.
const (
	DefaultMaxConnectionTry        = 5
	DefaultAcknowledgementDuration = time.Second
	DefaultAutoValidationInterval  = time.Second
)

// Options configures a new Engine. Every callback is optional and can also
// be set later through the corresponding setter.
type Options struct {
	// StatusFunc is invoked after every session transition.
	StatusFunc func(Session)
	// AcknowledgeFunc decides whether to accept an incoming peer. Unset
	// means accept everyone.
	AcknowledgeFunc func(transport.Peer) bool
	// MessageFunc receives application messages from the current peer.
	MessageFunc func(transport.Message)

	MaxConnectionTry        int
	AcknowledgementDuration time.Duration
	AutoValidation          Strategy
	AutoValidationInterval  time.Duration

	// Clock overrides the wall clock; tests use this.
	Clock Clock
}

// Engine owns the single pairing session and exposes all host-facing
// operations. The session is the only shared mutable state; every status
// change goes through one transition path under the engine mutex.
type Engine struct {
	conn  transport.Conn
	dir   transport.Directory
	clock Clock

	pending pendingSlot

	mu            sync.Mutex
	session       Session
	statusFn      func(Session)
	ackFn         func(transport.Peer) bool
	msgFn         func(transport.Message)
	tries         int
	ackBudget     time.Duration
	strategy      Strategy
	validateEvery time.Duration
	unsubscribe   func()
	monitorCtx    context.Context
	monitorCancel context.CancelFunc
	monitorGen    int
	lastHeard     time.Time
}

// New builds an Engine on top of a message transport and a node directory.
func New(conn transport.Conn, dir transport.Directory, opts Options) *Engine {
	e := &Engine{
		conn:          conn,
		dir:           dir,
		clock:         opts.Clock,
		session:       Session{Status: StatusDisconnected},
		statusFn:      opts.StatusFunc,
		ackFn:         opts.AcknowledgeFunc,
		msgFn:         opts.MessageFunc,
		tries:         opts.MaxConnectionTry,
		ackBudget:     opts.AcknowledgementDuration,
		strategy:      opts.AutoValidation,
		validateEvery: opts.AutoValidationInterval,
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.tries <= 0 {
		e.tries = DefaultMaxConnectionTry
	}
	if e.ackBudget <= 0 {
		e.ackBudget = DefaultAcknowledgementDuration
	}
	if e.validateEvery <= 0 {
		e.validateEvery = DefaultAutoValidationInterval
	}
	return e
}

// Session returns a snapshot of the current session.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Register attaches the inbound-message subscription. Idempotent.
func (e *Engine) Register() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		return
	}
	e.unsubscribe = e.conn.Subscribe(e.handleMessage)
}

// Unregister detaches the subscription and cancels any active monitor task.
// Idempotent.
func (e *Engine) Unregister() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.stopMonitorLocked()
}

// Connect runs the observer-side candidate scan: try each directory peer in
// order, stop at the first Connected or Rejected, and fall back to the first
// NoResponse peer when nothing better turned up. It blocks until a final
// status is reached and returns it. A concurrent call while already
// Connecting is a no-op.
func (e *Engine) Connect(ctx context.Context) Status {
	if !e.beginConnect() {
		return StatusConnecting
	}

	localName := e.dir.LocalName()
	peers := e.dir.Peers()
	zap.L().Info("connecting", zap.Int("candidates", len(peers)), zap.String("local", localName))

	var fallback *transport.Peer
	for i := range peers {
		p := peers[i]
		switch e.attemptHandshake(ctx, PathRequest, p.ID, []byte(localName)) {
		case StatusConnected:
			e.transition(StatusConnected, p.ID, p.Name)
			return StatusConnected
		case StatusRejected:
			e.transition(StatusRejected, "", "")
			return StatusRejected
		case StatusNoResponse:
			if fallback == nil {
				fallback = &p
			}
		}
		// FailedToConnect for this candidate only: move on to the next.
	}

	if fallback != nil {
		// A live-but-slow peer is a better default guess than total failure.
		e.transition(StatusNoResponse, fallback.ID, fallback.Name)
		return StatusNoResponse
	}
	e.transition(StatusFailedToConnect, "", "")
	return StatusFailedToConnect
}

// SendMessage sends an application message to the current peer. It returns
// false without touching the transport when no session is connected or the
// path is a reserved control tag; a transport error demotes the session to
// FailedToConnect.
func (e *Engine) SendMessage(ctx context.Context, path string, payload []byte) bool {
	if isControlPath(path) {
		return false
	}
	e.mu.Lock()
	st, peer, name := e.session.Status, e.session.Peer, e.session.PeerName
	e.mu.Unlock()
	if st != StatusConnected || peer == "" {
		return false
	}
	if err := e.conn.Send(ctx, peer, path, payload); err != nil {
		zap.L().Warn("send message failed", zap.String("peer", string(peer)), zap.Error(err))
		e.transition(StatusFailedToConnect, peer, name)
		return false
	}
	return true
}

// ValidateConnection runs a one-shot validation probe against the current
// peer and reports whether it answered accept. It does not change session
// state; the host decides what to do with a false result.
func (e *Engine) ValidateConnection(ctx context.Context) bool {
	e.mu.Lock()
	st, peer := e.session.Status, e.session.Peer
	e.mu.Unlock()
	if st != StatusConnected || peer == "" {
		return false
	}
	return e.attemptHandshake(ctx, PathValidate, peer, []byte(e.dir.LocalName())) == StatusConnected
}

// Disconnect tears down the current session and stops the monitor.
func (e *Engine) Disconnect() {
	e.transition(StatusDisconnected, "", "")
}

// BindMonitorContext supplies the monitoring context the liveness monitor
// runs under. Cancelling it stops any active monitor task; rebinding while
// Connected restarts monitoring under the new context.
func (e *Engine) BindMonitorContext(ctx context.Context) {
	e.mu.Lock()
	e.monitorCtx = ctx
	e.refreshMonitorLocked()
	e.mu.Unlock()
}

// SetMaxConnectionTry sets the polling rounds per handshake attempt,
// effective on the next attempt.
func (e *Engine) SetMaxConnectionTry(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	e.tries = n
	e.mu.Unlock()
}

// SetAcknowledgementDuration sets the total wait budget per handshake
// attempt, effective on the next attempt.
func (e *Engine) SetAcknowledgementDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.ackBudget = d
	e.mu.Unlock()
}

// SetAutoValidation switches the liveness strategy. Any running monitor is
// cancelled first; a new one starts only if the session is still Connected
// and a monitoring context is bound.
func (e *Engine) SetAutoValidation(s Strategy) {
	e.mu.Lock()
	e.strategy = s
	e.refreshMonitorLocked()
	e.mu.Unlock()
}

// SetAutoValidationInterval sets the monitor check interval, effective on
// the monitor's next cycle.
func (e *Engine) SetAutoValidationInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.validateEvery = d
	e.mu.Unlock()
}

// SetStatusFunc replaces the status-changed callback.
func (e *Engine) SetStatusFunc(fn func(Session)) {
	e.mu.Lock()
	e.statusFn = fn
	e.mu.Unlock()
}

// SetAcknowledgeFunc replaces the accept/reject decision callback. A nil
// callback means accept everyone.
func (e *Engine) SetAcknowledgeFunc(fn func(transport.Peer) bool) {
	e.mu.Lock()
	e.ackFn = fn
	e.mu.Unlock()
}

// SetMessageFunc replaces the application-message callback.
func (e *Engine) SetMessageFunc(fn func(transport.Message)) {
	e.mu.Lock()
	e.msgFn = fn
	e.mu.Unlock()
}

// ---- internal ----

func (e *Engine) handshakeParams() (tries int, budget time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tries, e.ackBudget
}

// transition is the single entry point for session status changes. It
// updates the session, re-evaluates the monitor, and notifies the host.
func (e *Engine) transition(st Status, peer transport.NodeID, name string) {
	e.mu.Lock()
	snap, fn := e.transitionLocked(st, peer, name)
	e.mu.Unlock()
	e.announce(snap, fn)
}

// monitorTransition applies a demotion on behalf of a monitor task, but only
// while that task is still the active monitor: the generation compare and the
// session overwrite happen under the same lock, so a superseded task can
// never apply a stale demotion. Returns false when the task lost the slot.
func (e *Engine) monitorTransition(gen int, st Status, peer transport.NodeID, name string) bool {
	e.mu.Lock()
	if e.monitorGen != gen || e.monitorCancel == nil {
		e.mu.Unlock()
		return false
	}
	snap, fn := e.transitionLocked(st, peer, name)
	e.mu.Unlock()
	e.announce(snap, fn)
	return true
}

// transitionLocked performs the actual state change. Callers must hold e.mu
// and pass the returned snapshot/callback to announce after unlocking.
func (e *Engine) transitionLocked(st Status, peer transport.NodeID, name string) (Session, func(Session)) {
	e.session = Session{Status: st, Peer: peer, PeerName: name}
	if st == StatusConnected {
		e.lastHeard = e.clock.Now()
	}
	snap := e.session
	fn := e.statusFn
	e.refreshMonitorLocked()
	return snap, fn
}

func (e *Engine) announce(snap Session, fn func(Session)) {
	zap.L().Info("session status",
		zap.String("status", snap.Status.String()),
		zap.String("peer", string(snap.Peer)),
		zap.String("peer_name", snap.PeerName))
	if fn != nil {
		fn(snap)
	}
}

// beginConnect atomically claims the Connecting state. Returns false when a
// connect cycle is already running.
func (e *Engine) beginConnect() bool {
	e.mu.Lock()
	if e.session.Status == StatusConnecting {
		e.mu.Unlock()
		return false
	}
	snap, fn := e.transitionLocked(StatusConnecting, "", "")
	e.mu.Unlock()
	e.announce(snap, fn)
	return true
}

// handleMessage classifies one inbound message by path: control tags are
// consumed internally, everything else goes through the application dispatch
// contract.
func (e *Engine) handleMessage(m transport.Message) {
	e.mu.Lock()
	if e.session.Peer != "" && m.Source == e.session.Peer {
		e.lastHeard = e.clock.Now()
	}
	e.mu.Unlock()

	switch m.Path {
	case PathRequest:
		e.handleRequest(m)
	case PathValidate:
		e.handleValidate(m)
	case PathResponse:
		e.handleResponse(m)
	default:
		e.handleApplication(m)
	}
}

// handleRequest answers an incoming connection request: ask the acknowledge
// callback, adopt the sender on acceptance, and always send the one-byte
// response so the requester's poll resolves either way.
func (e *Engine) handleRequest(m transport.Message) {
	peer := transport.Peer{ID: m.Source, Name: string(m.Payload)}
	accepted := e.acknowledge(peer)
	if accepted {
		e.transition(StatusConnected, peer.ID, peer.Name)
	}
	e.sendResponse(m.Source, accepted)
}

/// handleValidate answers a liveness probe: accept iff the prober is the
// currently recorded peer. Session state never changes here.
func (e *Engine) handleValidate(m transport.Message) {
	e.mu.Lock()
	ok := e.session.Peer != "" && m.Source == e.session.Peer
	e.mu.Unlock()
	e.sendResponse(m.Source, ok)
}

// handleResponse resolves the pending handshake slot. A payload that is not
// exactly one accept byte counts as a reject; a response from the wrong
// source, or after the slot resolved, is dropped.
func (e *Engine) handleResponse(m transport.Message) {
	accepted := len(m.Payload) == 1 && m.Payload[0] == responseAccept
	if !e.pending.resolve(m.Source, accepted) {
		zap.L().Debug("stale handshake response", zap.String("from", string(m.Source)))
	}
}

// handleApplication applies the dispatch contract for non-control messages:
// forward when the sender is the connected peer; adopt the sender through
// the implicit-acceptance path when no session is connected; drop messages
// from strangers while connected to someone else.
func (e *Engine) handleApplication(m transport.Message) {
	e.mu.Lock()
	st, peer := e.session.Status, e.session.Peer
	fn := e.msgFn
	e.mu.Unlock()

	switch {
	case st == StatusConnected && m.Source == peer:
		if fn != nil {
			fn(m)
		}
	case st != StatusConnected:
		p := e.lookupPeer(m.Source)
		if e.acknowledge(p) {
			e.transition(StatusConnected, p.ID, p.Name)
			if fn != nil {
				fn(m)
			}
		}
	default:
		zap.L().Debug("dropping message from non-peer",
			zap.String("from", string(m.Source)), zap.String("path", m.Path))
	}
}

func (e *Engine) acknowledge(p transport.Peer) bool {
	e.mu.Lock()
	fn := e.ackFn
	e.mu.Unlock()
	if fn == nil {
		return true
	}
	return fn(p)
}

// lookupPeer resolves a display name for an implicitly adopted sender; the
// node id doubles as the name when the directory doesn't know it.
func (e *Engine) lookupPeer(id transport.NodeID) transport.Peer {
	for _, p := range e.dir.Peers() {
		if p.ID == id {
			return p
		}
	}
	return transport.Peer{ID: id, Name: string(id)}
}

func (e *Engine) sendResponse(to transport.NodeID, accepted bool) {
	b := []byte{responseReject}
	if accepted {
		b[0] = responseAccept
	}
	if err := e.conn.Send(context.Background(), to, PathResponse, b); err != nil {
		zap.L().Warn("send handshake response failed", zap.String("peer", string(to)), zap.Error(err))
	}
}
