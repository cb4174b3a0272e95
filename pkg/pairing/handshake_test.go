package pairing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aghajari/opwear/pkg/directory"
	"github.com/aghajari/opwear/pkg/transport"
)

func TestBackoffScheduleSumsToBudget(t *testing.T) {
	budget := time.Second
	waits := backoffSchedule(5, budget, roundFloor)
	if len(waits) != 5 {
		t.Fatalf("expected 5 rounds, got %d", len(waits))
	}
	var sum time.Duration
	for i, w := range waits {
		if w < roundFloor {
			t.Fatalf("round %d wait %v below floor", i, w)
		}
		if i > 0 && w < waits[i-1] {
			t.Fatalf("waits must be non-decreasing: %v", waits)
		}
		sum += w
	}
	if diff := sum - budget; diff < -roundFloor || diff > roundFloor {
		t.Fatalf("schedule sum %v not within one floor of budget %v", sum, budget)
	}
}

func TestBackoffScheduleClampsNegativeStep(t *testing.T) {
	// Budget smaller than floor*tries would make the arithmetic step
	// negative; it must clamp to zero, never shrink below the floor.
	waits := backoffSchedule(5, 200*time.Millisecond, roundFloor)
	for i, w := range waits {
		if w != roundFloor {
			t.Fatalf("round %d: expected clamped floor wait, got %v", i, w)
		}
	}
}

func TestBackoffScheduleSingleRound(t *testing.T) {
	waits := backoffSchedule(1, time.Second, roundFloor)
	if len(waits) != 1 || waits[0] != roundFloor {
		t.Fatalf("single round must wait exactly the floor, got %v", waits)
	}
}

func TestBackoffScheduleNoRounds(t *testing.T) {
	if waits := backoffSchedule(0, time.Second, roundFloor); waits != nil {
		t.Fatalf("expected nil schedule for zero tries, got %v", waits)
	}
}

func TestAttemptHandshakeSendFailureIsFatal(t *testing.T) {
	conn := &scriptConn{sendErr: errors.New("radio off")}
	clk := newFakeClock()
	e := New(conn, directory.NewStatic("local", nil), Options{Clock: clk})

	if st := e.attemptHandshake(context.Background(), PathRequest, "watch", []byte("local")); st != StatusFailedToConnect {
		t.Fatalf("expected FailedToConnect on send error, got %v", st)
	}
	if clk.waited() != 0 {
		t.Fatalf("send failure must not poll, waited %v", clk.waited())
	}
}

func TestAttemptHandshakeAcceptStopsPolling(t *testing.T) {
	clk := newFakeClock()
	conn := &scriptConn{}
	var e *Engine
	conn.onSend = func(to transport.NodeID, path string, _ []byte) {
		if path == PathRequest {
			e.handleMessage(transport.Message{Source: to, Path: PathResponse, Payload: []byte{responseAccept}})
		}
	}
	e = New(conn, directory.NewStatic("local", nil), Options{Clock: clk})

	if st := e.attemptHandshake(context.Background(), PathRequest, "watch", []byte("local")); st != StatusConnected {
		t.Fatalf("expected Connected, got %v", st)
	}
	// Outcome arrived before the first poll, so exactly one round ran.
	if got := clk.waited(); got != roundFloor {
		t.Fatalf("expected a single floor wait, waited %v", got)
	}
}

func TestAttemptHandshakeRejectStopsPolling(t *testing.T) {
	clk := newFakeClock()
	conn := &scriptConn{}
	var e *Engine
	conn.onSend = func(to transport.NodeID, path string, _ []byte) {
		if path == PathRequest {
			e.handleMessage(transport.Message{Source: to, Path: PathResponse, Payload: []byte{responseReject}})
		}
	}
	e = New(conn, directory.NewStatic("local", nil), Options{Clock: clk})

	if st := e.attemptHandshake(context.Background(), PathRequest, "watch", nil); st != StatusRejected {
		t.Fatalf("expected Rejected, got %v", st)
	}
}

func TestAttemptHandshakeTimesOutWithinBudget(t *testing.T) {
	clk := newFakeClock()
	conn := &scriptConn{}
	e := New(conn, directory.NewStatic("local", nil), Options{Clock: clk})

	st := e.attemptHandshake(context.Background(), PathRequest, "watch", nil)
	if st != StatusNoResponse {
		t.Fatalf("expected NoResponse, got %v", st)
	}
	budget := DefaultAcknowledgementDuration
	if got := clk.waited(); got < budget-roundFloor || got > budget+roundFloor {
		t.Fatalf("total wait %v not within one floor of budget %v", got, budget)
	}
}

func TestAttemptHandshakeMalformedResponseIsReject(t *testing.T) {
	clk := newFakeClock()
	conn := &scriptConn{}
	var e *Engine
	conn.onSend = func(to transport.NodeID, path string, _ []byte) {
		if path == PathRequest {
			// Two bytes: wrong length counts as an explicit reject.
			e.handleMessage(transport.Message{Source: to, Path: PathResponse, Payload: []byte{responseAccept, responseAccept}})
		}
	}
	e = New(conn, directory.NewStatic("local", nil), Options{Clock: clk})

	if st := e.attemptHandshake(context.Background(), PathRequest, "watch", nil); st != StatusRejected {
		t.Fatalf("expected malformed payload to reject, got %v", st)
	}
}

func TestAttemptHandshakeIgnoresWrongSource(t *testing.T) {
	clk := newFakeClock()
	conn := &scriptConn{}
	var e *Engine
	conn.onSend = func(to transport.NodeID, path string, _ []byte) {
		if path == PathRequest {
			e.handleMessage(transport.Message{Source: "intruder", Path: PathResponse, Payload: []byte{responseAccept}})
		}
	}
	e = New(conn, directory.NewStatic("local", nil), Options{Clock: clk})

	if st := e.attemptHandshake(context.Background(), PathRequest, "watch", nil); st != StatusNoResponse {
		t.Fatalf("accept from wrong source must be ignored, got %v", st)
	}
	if s := e.Session(); s.Status != StatusDisconnected {
		t.Fatalf("session must be unaffected by mismatched response: %+v", s)
	}
}

func TestAttemptHandshakeHonorsUpdatedConfig(t *testing.T) {
	clk := newFakeClock()
	conn := &scriptConn{}
	e := New(conn, directory.NewStatic("local", nil), Options{Clock: clk})
	e.SetMaxConnectionTry(3)
	e.SetAcknowledgementDuration(600 * time.Millisecond)

	if st := e.attemptHandshake(context.Background(), PathRequest, "watch", nil); st != StatusNoResponse {
		t.Fatalf("expected NoResponse, got %v", st)
	}
	// floor*3 = 300ms, step = 2*(600-300)/6 = 100ms -> 100+200+300 = 600ms.
	if got := clk.waited(); got != 600*time.Millisecond {
		t.Fatalf("expected 600ms total wait for updated config, got %v", got)
	}
}
