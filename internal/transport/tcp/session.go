// Package tcp carries the game protocol over raw stream connections: the
// accept loop, one Session per connection, and the message to intent mapping.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrOutboundFull  = errors.New("outbound queue full")
)

// Options tune every Session built by a factory.
type Options struct {
	LivenessInterval time.Duration
	LivenessTimeout  time.Duration
	WriteTimeout     time.Duration
	OutboundQueue    int
	MaxFrameSize     int
	// InboundRate is the sustained messages per second allowed; 0 disables.
	InboundRate  float64
	InboundBurst int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		LivenessInterval: 5 * time.Second,
		LivenessTimeout:  30 * time.Second,
		WriteTimeout:     5 * time.Second,
		OutboundQueue:    256,
		MaxFrameSize:     proto.DefaultMaxFrameSize,
		InboundRate:      60,
		InboundBurst:     120,
	}
}

type state int32

const (
	stateCreated state = iota
	stateActive
	stateDisconnecting
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateActive:
		return "active"
	case stateDisconnecting:
		return "disconnecting"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session owns one connection. Its goroutines read and decode inbound
// frames, watch for silence, and write queued outbound messages. It never
// tears itself down: it asks the Hub to, and the Hub calls Disconnect.
type Session struct {
	id     uint64
	conn   net.Conn
	remote string
	submit core.Submitter
	opts   Options
	log    zerolog.Logger

	state        atomic.Int32
	lastActivity atomic.Int64
	name         atomic.Pointer[string]
	limiter      *rate.Limiter
	observe      func(from, to state)

	out       chan proto.Message
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
	wg        conc.WaitGroup
}

// NewSession wraps conn. Call Start to begin I/O.
func NewSession(id uint64, conn net.Conn, submit core.Submitter, opts Options, logger *zerolog.Logger) *Session {
	def := DefaultOptions()
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = def.LivenessInterval
	}
	if opts.LivenessTimeout <= 0 {
		opts.LivenessTimeout = def.LivenessTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = def.OutboundQueue
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = def.MaxFrameSize
	}

	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	s := &Session{
		id:      id,
		conn:    conn,
		remote:  remote,
		submit:  submit,
		opts:    opts,
		out:     make(chan proto.Message, opts.OutboundQueue),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if logger != nil {
		s.log = logger.With().Uint64("session_id", id).Str("remote", remote).Logger()
	} else {
		s.log = zerolog.Nop()
	}
	if opts.InboundRate > 0 {
		burst := opts.InboundBurst
		if burst <= 0 {
			burst = int(opts.InboundRate)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.InboundRate), max(burst, 1))
	}
	return s
}

// NewSessionFactory adapts NewSession to core.SessionFactory.
func NewSessionFactory(opts Options, logger *zerolog.Logger) core.SessionFactory {
	return func(id uint64, conn net.Conn, submit core.Submitter) core.Peer {
		return NewSession(id, conn, submit, opts, logger)
	}
}

func (s *Session) ID() uint64         { return s.id }
func (s *Session) RemoteAddr() string { return s.remote }

func (s *Session) SetName(name string) {
	s.name.Store(&name)
}

// Name returns the display name set at join, or "".
func (s *Session) Name() string {
	if n := s.name.Load(); n != nil {
		return *n
	}
	return ""
}

func (s *Session) current() state {
	return state(s.state.Load())
}

// Live reports whether the session is still active.
func (s *Session) Live() bool {
	return s.current() == stateActive
}

// Start launches the read, liveness and write loops.
func (s *Session) Start(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(stateCreated), int32(stateActive)) {
		return
	}
	s.moved(stateCreated, stateActive)
	s.touch()
	s.wg.Go(func() { s.readLoop(ctx) })
	s.wg.Go(func() { s.livenessLoop(ctx) })
	s.wg.Go(func() { s.writeLoop(ctx) })
}

// Wait blocks until all session goroutines have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Send queues msg for the write loop. A full queue means the peer cannot keep
// up; the session asks to be removed rather than silently losing state.
func (s *Session) Send(msg proto.Message) error {
	if s.current() == stateClosed {
		return ErrSessionClosed
	}
	select {
	case s.out <- msg:
		return nil
	default:
		s.requestRemoval(false, true, "outbound queue full")
		return ErrOutboundFull
	}
}

// Disconnect stops the session and closes the connection after flushing
// whatever was already queued. Idempotent.
func (s *Session) Disconnect() {
	s.doneOnce.Do(func() {
		// Active sessions pass through Disconnecting on the way to Closed.
		s.beginDisconnecting()
		prev := state(s.state.Swap(int32(stateClosed)))
		s.moved(prev, stateClosed)
		s.closeOnce.Do(func() { close(s.closing) })
		close(s.done)

		if prev == stateCreated {
			s.conn.Close()
			return
		}
		// Unblock the read loop; the write loop closes the connection.
		_ = s.conn.SetReadDeadline(time.Now())
		s.log.Debug().Stringer("from", prev).Str("name", s.Name()).Msg("session disconnected")
	})
}

// requestRemoval moves Active to Disconnecting and submits the matching
// remove-session intent. Only the first request wins.
func (s *Session) requestRemoval(normal, report bool, reason string) {
	if !s.beginDisconnecting() {
		return
	}
	s.log.Info().Bool("normal", normal).Bool("report", report).Str("reason", reason).Msg("requesting session removal")
	err := s.submit.Submit(core.RemoveSession{
		SessionID:          s.id,
		Client:             s,
		IsNormalDisconnect: normal,
		ReportToLobby:      report,
		Reason:             reason,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("submit session removal")
	}
}

func (s *Session) beginDisconnecting() bool {
	if !s.state.CompareAndSwap(int32(stateActive), int32(stateDisconnecting)) {
		return false
	}
	s.moved(stateActive, stateDisconnecting)
	s.closeOnce.Do(func() { close(s.closing) })
	return true
}

func (s *Session) moved(from, to state) {
	if s.observe != nil {
		s.observe(from, to)
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) readLoop(ctx context.Context) {
	dec := proto.NewDecoder(s.conn, s.opts.MaxFrameSize)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if s.Live() {
				s.requestRemoval(false, true, readFailureReason(err))
			}
			return
		}
		if !s.Live() {
			return
		}
		s.touch()

		if _, leaving := msg.(*proto.Leave); !leaving && s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn().Stringer("type", msg.Type()).Msg("inbound rate exceeded, message dropped")
			continue
		}

		in := Dispatch(s, msg)
		if in == nil {
			s.log.Warn().Stringer("type", msg.Type()).Msg("unroutable message dropped")
			continue
		}

		if leave, ok := in.(core.PlayerLeave); ok {
			if !s.beginDisconnecting() {
				return
			}
			if err := s.submit.Submit(leave); err != nil {
				s.log.Warn().Err(err).Msg("submit leave")
			}
			return
		}

		if err := s.submit.Submit(in); err != nil {
			if errors.Is(err, core.ErrHubStopped) || ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Str("intent", core.IntentName(in)).Msg("intent rejected")
		}
	}
}

func readFailureReason(err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, proto.ErrMalformed), errors.Is(err, proto.ErrTruncated), errors.Is(err, proto.ErrFrameTooLarge):
		return "protocol error: " + err.Error()
	case errors.Is(err, net.ErrClosed):
		return "connection closed"
	default:
		return "read error: " + err.Error()
	}
}

func (s *Session) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closing:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			idle := now.Sub(time.Unix(0, s.lastActivity.Load()))
			if idle > s.opts.LivenessTimeout {
				s.log.Info().Dur("idle", idle).Msg("liveness timeout")
				s.requestRemoval(false, false, "timeout")
				return
			}
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	defer s.conn.Close()
	enc := proto.NewEncoder(s.conn)

	for {
		select {
		case msg := <-s.out:
			if err := s.write(enc, msg); err != nil {
				s.log.Warn().Err(err).Stringer("type", msg.Type()).Msg("write failed")
				s.requestRemoval(false, true, "write failed")
				s.awaitTeardown(ctx)
				return
			}
		case <-s.done:
			s.flush(enc)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) write(enc *proto.Encoder, msg proto.Message) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	return enc.Encode(msg)
}

// flush writes what was queued before Disconnect, stopping at the first error.
func (s *Session) flush(enc *proto.Encoder) {
	for {
		select {
		case msg := <-s.out:
			if err := s.write(enc, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) awaitTeardown(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}

var _ core.Peer = (*Session)(nil)
