package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	cbor "github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/aghajari/opwear/pkg/transport"
)

// frame is the on-wire shape of one datagram: sender id, path tag, payload.
// Encoded with deterministic CBOR (RFC 8949 core profile).
type frame struct {
	Source  string `cbor:"src"`
	Path    string `cbor:"path"`
	Payload []byte `cbor:"body,omitempty"`
}

const maxDatagram = 64 * 1024

// Conn implements transport.Conn over UDP datagrams. Peers are resolved
// through a static address book; there is no connection state, retransmit,
// or ordering, matching the best-effort contract the protocol expects.
type Conn struct {
	localID transport.NodeID
	pc      *net.UDPConn
	enc     cbor.EncMode
	dec     cbor.DecMode

	mu       sync.Mutex
	book     map[transport.NodeID]*net.UDPAddr
	handlers map[int]transport.Handler
	nextSub  int

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Listen binds a UDP socket and starts the read loop. book maps peer node
// ids to "host:port" addresses.
func Listen(address string, localID transport.NodeID, book map[transport.NodeID]string) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr: %w", err)
	}
	pc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	c := &Conn{
		localID:  localID,
		pc:       pc,
		enc:      em,
		dec:      dm,
		book:     make(map[transport.NodeID]*net.UDPAddr),
		handlers: make(map[int]transport.Handler),
		closeCh:  make(chan struct{}),
	}
	for id, addr := range book {
		ra, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("resolve peer %s: %w", id, err)
		}
		c.book[id] = ra
	}
	go c.readLoop()
	return c, nil
}

// LocalAddr returns the bound socket address (useful with ":0" listens).
func (c *Conn) LocalAddr() net.Addr { return c.pc.LocalAddr() }

// SetPeerAddr adds or replaces a peer's address in the book.
func (c *Conn) SetPeerAddr(id transport.NodeID, addr string) error {
	ra, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.book[id] = ra
	c.mu.Unlock()
	return nil
}

func (c *Conn) Send(_ context.Context, to transport.NodeID, path string, payload []byte) error {
	c.mu.Lock()
	raddr := c.book[to]
	c.mu.Unlock()
	if raddr == nil {
		return fmt.Errorf("udp: unknown peer %s", to)
	}
	b, err := c.enc.Marshal(frame{Source: string(c.localID), Path: path, Payload: payload})
	if err != nil {
		return err
	}
	if len(b) > maxDatagram {
		return errors.New("udp: frame exceeds datagram limit")
	}
	_, err = c.pc.WriteToUDP(b, raddr)
	return err
}

func (c *Conn) Subscribe(h transport.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.pc.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := c.pc.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				zap.L().Warn("udp read", zap.Error(err))
			}
			return
		}
		var f frame
		if err := c.dec.Unmarshal(buf[:n], &f); err != nil {
			zap.L().Debug("udp: bad frame", zap.Int("bytes", n), zap.Error(err))
			continue
		}
		if f.Source == "" || f.Path == "" {
			continue
		}
		msg := transport.Message{
			Source:  transport.NodeID(f.Source),
			Path:    f.Path,
			Payload: append([]byte(nil), f.Payload...),
		}
		c.mu.Lock()
		hs := make([]transport.Handler, 0, len(c.handlers))
		for _, h := range c.handlers {
			hs = append(hs, h)
		}
		c.mu.Unlock()
		for _, h := range hs {
			h(msg)
		}
	}
}
