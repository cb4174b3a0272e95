package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aghajari/opwear/pkg/config"
	"github.com/aghajari/opwear/pkg/directory"
	"github.com/aghajari/opwear/pkg/observability"
	"github.com/aghajari/opwear/pkg/pairing"
	"github.com/aghajari/opwear/pkg/transport"
	"github.com/aghajari/opwear/pkg/transport/udp"
)

// heartbeat is the application path the demo observer publishes on.
const heartbeatPath = "/opwear/app/heartbeat"

// run is the main entry point after CLI parsing.
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("opwear-node started",
		zap.String("app", cfg.AppName),
		zap.String("node", cfg.NodeID),
		zap.String("role", cfg.Role))

	book := make(map[transport.NodeID]string, len(cfg.Transport.Peers))
	peers := make([]transport.Peer, 0, len(cfg.Transport.Peers))
	for _, p := range cfg.Transport.Peers {
		book[transport.NodeID(p.ID)] = p.Addr
		peers = append(peers, transport.Peer{ID: transport.NodeID(p.ID), Name: p.Name})
	}

	conn, err := udp.Listen(cfg.Transport.Listen, transport.NodeID(cfg.NodeID), book)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer conn.Close()
	zap.L().Info("transport listening", zap.String("addr", conn.LocalAddr().String()))

	strategy, err := pairing.ParseStrategy(cfg.Protocol.AutoValidation)
	if err != nil {
		return err
	}

	dir := directory.NewStatic(cfg.NodeName, peers)
	engine := pairing.New(conn, dir, pairing.Options{
		MaxConnectionTry:        cfg.Protocol.MaxConnectionTry,
		AcknowledgementDuration: cfg.Protocol.AcknowledgementDuration(),
		AutoValidation:          strategy,
		AutoValidationInterval:  cfg.Protocol.AutoValidationDuration(),
		StatusFunc: func(s pairing.Session) {
			zap.L().Info("status changed",
				zap.String("status", s.Status.String()),
				zap.String("peer", string(s.Peer)),
				zap.String("peer_name", s.PeerName))
		},
		MessageFunc: func(m transport.Message) {
			zap.L().Info("app message",
				zap.String("from", string(m.Source)),
				zap.String("path", m.Path),
				zap.ByteString("payload", m.Payload))
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.BindMonitorContext(ctx)
	engine.Register()
	defer engine.Unregister()

	if cfg.Role == "observer" {
		go observe(ctx, engine)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	zap.L().Info("shutting down")
	engine.Disconnect()
	return nil
}

// observe drives the observer role: connect, then publish heartbeats while
// the session holds. Reconnecting after a lost session is left to the
// operator restarting the process; the protocol itself never retries a
// finished connect cycle.
func observe(ctx context.Context, engine *pairing.Engine) {
	st := engine.Connect(ctx)
	if st != pairing.StatusConnected {
		zap.L().Warn("connect did not reach a peer", zap.String("status", st.String()))
		if st != pairing.StatusNoResponse {
			return
		}
		// Fallback peer adopted: keep heartbeating, the peer may wake up.
	}

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-tick.C:
			engine.SendMessage(ctx, heartbeatPath, []byte(t.Format(time.RFC3339)))
		}
	}
}
