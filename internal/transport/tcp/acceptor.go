package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/lobby"
)

// Acceptor listens for game connections and hands each one to the Hub as a
// create-session intent.
type Acceptor struct {
	addr     string
	hub      core.Submitter
	lobby    lobby.Reporter
	serverID string
	roomName string
	log      *zerolog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewAcceptor builds an acceptor for addr ("host:port").
func NewAcceptor(addr string, hub core.Submitter, reporter lobby.Reporter, serverID, roomName string, logger *zerolog.Logger) *Acceptor {
	if reporter == nil {
		reporter = lobby.Nop{}
	}
	return &Acceptor{
		addr:     addr,
		hub:      hub,
		lobby:    reporter,
		serverID: serverID,
		roomName: roomName,
		log:      logger,
	}
}

// Listen binds the socket and tells the lobby the server is initializing.
// A bind failure is fatal for the caller.
func (a *Acceptor) Listen() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.addr, err)
	}
	a.mu.Lock()
	a.ln = ln
	a.mu.Unlock()

	a.log.Info().Str("addr", ln.Addr().String()).Msg("game listener bound")
	a.lobby.ReportRoomState(lobby.RoomStatus{
		ServerID: a.serverID,
		Name:     a.roomName,
		State:    lobby.StateInitializing,
	})
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Serve accepts connections until ctx is cancelled. Per-connection accept
// errors are logged and retried with backoff.
func (a *Acceptor) Serve(ctx context.Context) error {
	a.mu.Lock()
	ln := a.ln
	a.mu.Unlock()
	if ln == nil {
		return errors.New("acceptor: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				a.log.Info().Msg("game listener closed")
				return nil
			}
			backoff = nextBackoff(backoff)
			a.log.Error().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		if err := a.hub.Submit(core.CreateSession{Conn: conn}); err != nil {
			a.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("session rejected")
			conn.Close()
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
