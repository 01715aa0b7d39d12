package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/wirearena-server/internal/lobby"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

type fakePeer struct {
	id  uint64
	out chan proto.Message

	mu          sync.Mutex
	name        string
	starts      int
	disconnects int

	panicOnSend atomic.Bool
}

func newFakePeer(id uint64) *fakePeer {
	return &fakePeer{id: id, out: make(chan proto.Message, 1024)}
}

func (p *fakePeer) ID() uint64         { return p.id }
func (p *fakePeer) RemoteAddr() string { return "pipe" }

func (p *fakePeer) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *fakePeer) Start(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
}

func (p *fakePeer) Send(msg proto.Message) error {
	if p.panicOnSend.Load() {
		panic("send exploded")
	}
	select {
	case p.out <- msg:
		return nil
	default:
		return errors.New("outbound full")
	}
}

func (p *fakePeer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
}

func (p *fakePeer) counts() (starts, disconnects int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.disconnects
}

type fakeSessions struct {
	created chan *fakePeer
}

func (f *fakeSessions) factory(id uint64, conn net.Conn, _ Submitter) Peer {
	conn.Close()
	p := newFakePeer(id)
	f.created <- p
	return p
}

type fakeLobby struct {
	mu         sync.Mutex
	states     []lobby.RoomStatus
	departures []lobby.Departure
}

func (l *fakeLobby) ReportRoomState(s lobby.RoomStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *fakeLobby) ReportDeparture(d lobby.Departure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.departures = append(l.departures, d)
}

func (l *fakeLobby) snapshot() ([]lobby.RoomStatus, []lobby.Departure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lobby.RoomStatus(nil), l.states...), append([]lobby.Departure(nil), l.departures...)
}

type validatorFunc func(ctx context.Context, token string) (lobby.Identity, error)

func (f validatorFunc) ValidateSession(ctx context.Context, token string) (lobby.Identity, error) {
	return f(ctx, token)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testHub struct {
	*Hub
	sessions *fakeSessions
	lobby    *fakeLobby
	cancel   context.CancelFunc
	done     chan struct{}
}

func newTestHub(t testing.TB, rules Rules, configure func(*Deps)) *testHub {
	t.Helper()

	sessions := &fakeSessions{created: make(chan *fakePeer, 256)}
	lob := &fakeLobby{}
	deps := Deps{
		ServerID: "test-server",
		Sessions: sessions.factory,
		Lobby:    lob,
		Seed:     42,
	}
	if configure != nil {
		configure(&deps)
	}

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHub{
		Hub:      NewHub(rules, deps),
		sessions: sessions,
		lobby:    lob,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(th.done)
		th.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-th.done
	})
	return th
}

// connect registers a new session and waits for its welcome.
func (th *testHub) connect(t testing.TB) *fakePeer {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	if err := th.Submit(CreateSession{Conn: server}); err != nil {
		t.Fatalf("submit create session: %v", err)
	}

	select {
	case p := <-th.sessions.created:
		mustRecv[*proto.Welcome](t, p)
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("session was not created")
		return nil
	}
}

// join connects a session and admits it as a player.
func (th *testHub) join(t testing.TB, spectator bool) *fakePeer {
	t.Helper()
	p := th.connect(t)
	mustSubmit(t, th.Hub, PlayerJoin{SessionID: p.id, SessionToken: "token", AsSpectator: spectator, Client: p})
	mustRecv[*proto.JoinAccepted](t, p)
	return p
}

// state doubles as a barrier: every intent submitted before it has been
// applied once it returns.
func (th *testHub) state(t testing.TB) StateSnapshot {
	t.Helper()
	reply := make(chan StateSnapshot, 1)
	mustSubmit(t, th.Hub, Snapshot{Reply: reply})
	select {
	case snap := <-reply:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot not received")
		return StateSnapshot{}
	}
}

func mustSubmit(t testing.TB, h *Hub, in Intent) {
	t.Helper()
	if err := h.Submit(in); err != nil {
		t.Fatalf("submit %s: %v", IntentName(in), err)
	}
}

// mustRecv skips messages of other types until one of type T arrives.
func mustRecv[T proto.Message](t testing.TB, p *fakePeer) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-p.out:
			if m, ok := msg.(T); ok {
				return m
			}
		case <-deadline:
			var zero T
			t.Fatalf("session %d: expected %T not received", p.id, zero)
			return zero
		}
	}
}

func mustError(t testing.TB, p *fakePeer, code string) {
	t.Helper()
	ev := mustRecv[*proto.Error](t, p)
	if ev.Code != code {
		t.Fatalf("expected %s error, got %+v", code, ev)
	}
}

func waitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sessionByID(snap StateSnapshot, id uint64) (SessionSnapshot, bool) {
	for _, s := range snap.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return SessionSnapshot{}, false
}
