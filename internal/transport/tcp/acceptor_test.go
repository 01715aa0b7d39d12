package tcp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/lobby"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

type stateLog struct {
	mu     sync.Mutex
	states []lobby.RoomStatus
	deps   []lobby.Departure
}

func (l *stateLog) ReportRoomState(s lobby.RoomStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) ReportDeparture(d lobby.Departure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deps = append(l.deps, d)
}

func (l *stateLog) departures() []lobby.Departure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lobby.Departure(nil), l.deps...)
}

func TestAcceptorSubmitsCreateSession(t *testing.T) {
	logger := zerolog.Nop()
	rec := newRecorder()
	reports := &stateLog{}
	a := NewAcceptor("127.0.0.1:0", rec, reports, "srv-1", "arena", &logger)

	if err := a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if len(reports.states) != 1 || reports.states[0].State != lobby.StateInitializing || reports.states[0].ServerID != "srv-1" {
		t.Fatalf("expected initializing report, got %+v", reports.states)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx) }()

	conn, err := net.Dial("tcp", a.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	create, ok := rec.next(t).(core.CreateSession)
	if !ok || create.Conn == nil {
		t.Fatalf("expected create session, got %+v", create)
	}
	create.Conn.Close()

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestAcceptorBindFailure(t *testing.T) {
	logger := zerolog.Nop()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	a := NewAcceptor(ln.Addr().String(), newRecorder(), nil, "srv", "arena", &logger)
	if err := a.Listen(); err == nil {
		t.Fatal("expected bind failure on an address in use")
	}
	if err := a.Serve(context.Background()); err == nil {
		t.Fatal("Serve without a listener should fail")
	}
}

func TestEndToEndOverTCP(t *testing.T) {
	logger := zerolog.Nop()
	reports := &stateLog{}
	opts := DefaultOptions()
	opts.LivenessInterval = 20 * time.Millisecond
	opts.LivenessTimeout = 300 * time.Millisecond

	hub := core.NewHub(core.Rules{}, core.Deps{
		ServerID: "srv-e2e",
		Sessions: NewSessionFactory(opts, &logger),
		Lobby:    reports,
		Logger:   &logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := NewAcceptor("127.0.0.1:0", hub, reports, "srv-e2e", "arena", &logger)
	if err := a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go a.Serve(ctx)

	conn, err := net.Dial("tcp", a.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	dec := proto.NewDecoder(conn, 0)
	enc := proto.NewEncoder(conn)

	msg, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	welcome, ok := msg.(*proto.Welcome)
	if !ok || welcome.ClientID != 1 || welcome.ServerID != "srv-e2e" {
		t.Fatalf("unexpected welcome: %+v", msg)
	}

	if err := enc.Encode(&proto.Join{SessionToken: "anything"}); err != nil {
		t.Fatalf("encode join: %v", err)
	}
	msg, err = dec.Decode()
	if err != nil {
		t.Fatalf("decode join accepted: %v", err)
	}
	if ja, ok := msg.(*proto.JoinAccepted); !ok || ja.ClientID != 1 || ja.RoomName != "arena" {
		t.Fatalf("unexpected join reply: %+v", msg)
	}

	// Go silent: the liveness loop removes the session and the server closes
	// the connection without telling the lobby.
	for {
		if _, err := dec.Decode(); err != nil {
			break
		}
	}
	if deps := reports.departures(); len(deps) != 0 {
		t.Fatalf("silent timeout must not report a departure, got %+v", deps)
	}
}
