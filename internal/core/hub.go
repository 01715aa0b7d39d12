package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/vovakirdan/wirearena-server/internal/lobby"
	"github.com/vovakirdan/wirearena-server/internal/proto"
	"github.com/vovakirdan/wirearena-server/internal/store"
)

// Deps are the Hub's collaborators. Nil fields fall back to no-ops.
type Deps struct {
	ServerID  string
	Sessions  SessionFactory
	Lobby     lobby.Reporter
	Validator lobby.Validator // nil admits joins anonymously
	Journal   store.Recorder
	Logger    *zerolog.Logger
	Now       func() time.Time
	Seed      uint64
}

// Hub is the only writer of game state. Intents from every session and the
// admin surface are queued in order and applied by the goroutine in Run.
type Hub struct {
	queue   *intentQueue
	metrics Metrics
	rules   Rules

	serverID  string
	newPeer   SessionFactory
	lobby     lobby.Reporter
	validator lobby.Validator
	journal   store.Recorder
	log       zerolog.Logger
	now       func() time.Time
	rng       *rand.Rand

	// Join validations in flight; shutdown waits for them.
	validations conc.WaitGroup

	// Owned by the Run goroutine.
	ctx      context.Context
	nextID   uint64
	sessions map[uint64]*sessionEntry
	room     *Room
}

type sessionEntry struct {
	peer     Peer
	openedAt time.Time
	pending  bool
}

// NewHub creates a hub. Call Run to start applying intents.
func NewHub(rules Rules, deps Deps) *Hub {
	rules = rules.withDefaults()
	h := &Hub{
		queue:     newIntentQueue(rules.MaxQueuedIntents),
		rules:     rules,
		serverID:  deps.ServerID,
		newPeer:   deps.Sessions,
		lobby:     deps.Lobby,
		validator: deps.Validator,
		journal:   deps.Journal,
		now:       deps.Now,
		sessions:  make(map[uint64]*sessionEntry),
		room:      NewRoom(rules.RoomName),
		ctx:       context.Background(),
	}
	if deps.Logger != nil {
		h.log = deps.Logger.With().Str("component", "hub").Logger()
	} else {
		h.log = zerolog.Nop()
	}
	if h.lobby == nil {
		h.lobby = lobby.Nop{}
	}
	if h.journal == nil {
		h.journal = store.NopRecorder{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	seed := deps.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	h.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return h
}

// Submit queues in for application and returns immediately. It is safe to
// call from any goroutine.
func (h *Hub) Submit(in Intent) error {
	if in == nil {
		return errNilIntent
	}
	if err := h.queue.push(in, isLifecycle(in)); err != nil {
		h.metrics.IncRejected()
		return err
	}
	h.metrics.IncSubmitted()
	return nil
}

// Metrics returns a snapshot of the hub counters.
func (h *Hub) Metrics() map[string]any {
	snap := h.metrics.Snapshot()
	snap["queue_depth"] = h.queue.len()
	return snap
}

// Run applies intents until ctx is cancelled, then disconnects every session.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	h.log.Info().Str("room", h.room.Name).Int("max_players", h.rules.MaxPlayers).Msg("hub started")

	for {
		for ctx.Err() == nil {
			in, ok := h.queue.pop()
			if !ok {
				break
			}
			h.apply(in)
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.queue.ready:
		}
	}
}

// apply runs one intent. Errors and panics stop at this boundary.
func (h *Hub) apply(in Intent) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.metrics.IncFailed()
			h.log.Error().
				Str("intent", in.intentName()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("intent handler panicked")
		}
		h.metrics.AddApply(time.Since(start))
	}()

	if err := h.handle(in); err != nil {
		h.metrics.IncFailed()
		h.reportFailure(in, err)
	}
}

func (h *Hub) handle(in Intent) error {
	switch in := in.(type) {
	case CreateSession:
		return h.createSession(in)
	case RemoveSession:
		return h.removeSession(in)
	case PlayerJoin:
		return h.playerJoin(in)
	case admitPlayer:
		return h.admitPlayer(in)
	case PlayerMovement:
		return h.playerMovement(in)
	case PlayerShoot:
		return h.playerShoot(in)
	case PlayerLeave:
		return h.playerLeave(in)
	case PlayerTargeting:
		return h.playerTargeting(in)
	case StartGame:
		return h.startGame(in)
	case Ping:
		return h.ping(in)
	case SetAccuracy:
		return h.setAccuracy(in)
	case Chat:
		return h.chat(in)
	case InitialRouletteDone:
		return h.initialRouletteDone(in)
	case PurchaseItem:
		return h.purchaseItem(in)
	case ShopRoulette:
		return h.shopRoulette(in)
	case SetMining:
		return h.setMining(in)
	case UpdateRoomName:
		return h.updateRoomName(in)
	case KickSession:
		return h.kickSession(in)
	case Announce:
		return h.announce(in)
	case Snapshot:
		return h.snapshot(in)
	default:
		return fmt.Errorf("unhandled intent %T", in)
	}
}

// reportFailure logs err and, for domain errors, tells the issuing session.
func (h *Hub) reportFailure(in Intent, err error) {
	sessionID, hasSession := sessionOf(in)

	var ce *CoreError
	if !errors.As(err, &ce) {
		h.log.Error().Err(err).Str("intent", in.intentName()).Uint64("session_id", sessionID).Msg("intent failed")
		return
	}

	h.log.Debug().Str("code", ce.Code).Str("intent", in.intentName()).Uint64("session_id", sessionID).Msg(ce.Message)
	if !hasSession {
		return
	}
	if entry, ok := h.sessions[sessionID]; ok {
		h.send(entry.peer, &proto.Error{Code: ce.Code, Text: ce.Message})
	}
}

func (h *Hub) send(p Peer, msg proto.Message) {
	if err := p.Send(msg); err != nil {
		h.log.Debug().Err(err).Uint64("session_id", p.ID()).Stringer("type", msg.Type()).Msg("send dropped")
	}
}

func (h *Hub) createSession(in CreateSession) error {
	if in.Conn == nil {
		return errors.New("create session: nil connection")
	}
	if h.newPeer == nil {
		in.Conn.Close()
		return errors.New("create session: no session factory")
	}

	h.nextID++
	id := h.nextID
	peer := h.newPeer(id, in.Conn, h)
	now := h.now()
	h.sessions[id] = &sessionEntry{peer: peer, openedAt: now}
	h.metrics.IncSessionsOpened()

	peer.Start(h.ctx)
	h.journal.RecordOpened(store.SessionRecord{
		ServerID:   h.serverID,
		SessionID:  id,
		RemoteAddr: peer.RemoteAddr(),
		OpenedAt:   now,
	})
	h.log.Info().Uint64("session_id", id).Str("remote", peer.RemoteAddr()).Msg("session created")

	h.send(peer, &proto.Welcome{ClientID: id, ServerID: h.serverID, ProtocolVersion: proto.ProtocolVersion})
	return nil
}

func (h *Hub) removeSession(in RemoveSession) error {
	entry, ok := h.sessions[in.SessionID]
	if !ok {
		h.log.Debug().Uint64("session_id", in.SessionID).Msg("session already removed")
		return nil
	}
	if in.Client != nil && in.Client != entry.peer {
		return fmt.Errorf("remove session %d: peer mismatch", in.SessionID)
	}

	delete(h.sessions, in.SessionID)
	var name string
	if p := h.room.Player(in.SessionID); p != nil {
		name = p.Name
		h.dropPlayer(p)
	}
	entry.peer.Disconnect()
	h.metrics.IncSessionsClosed()

	reason := in.Reason
	if reason == "" {
		reason = "disconnect"
	}
	h.journal.RecordClosed(store.SessionRecord{
		ServerID:  h.serverID,
		SessionID: in.SessionID,
		Name:      name,
		ClosedAt:  h.now(),
		Normal:    in.IsNormalDisconnect,
		Reason:    reason,
	})
	if in.ReportToLobby {
		h.lobby.ReportDeparture(lobby.Departure{
			ServerID: h.serverID,
			ClientID: in.SessionID,
			Name:     name,
			Normal:   in.IsNormalDisconnect,
			Reason:   reason,
		})
	}

	h.log.Info().
		Uint64("session_id", in.SessionID).
		Bool("normal", in.IsNormalDisconnect).
		Bool("reported", in.ReportToLobby).
		Str("reason", reason).
		Msg("session removed")
	return nil
}

func (h *Hub) kickSession(in KickSession) error {
	entry, ok := h.sessions[in.SessionID]
	if !ok {
		return fmt.Errorf("kick %d: %w", in.SessionID, ErrUnknownSession)
	}
	reason := in.Reason
	if reason == "" {
		reason = "kicked by operator"
	}
	h.send(entry.peer, &proto.Error{Code: ErrCodeKicked, Text: reason})
	return h.removeSession(RemoveSession{
		SessionID:          in.SessionID,
		IsNormalDisconnect: true,
		ReportToLobby:      true,
		Reason:             "kicked",
	})
}

func (h *Hub) announce(in Announce) error {
	if in.Text == "" {
		return errors.New("announce: empty text")
	}
	msg := &proto.ChatBroadcast{ClientID: 0, Text: in.Text}
	for _, entry := range h.sessions {
		h.send(entry.peer, msg)
	}
	return nil
}

func (h *Hub) shutdown() {
	dropped := h.queue.close()
	for _, in := range dropped {
		if cs, ok := in.(CreateSession); ok && cs.Conn != nil {
			cs.Conn.Close()
		}
	}
	h.validations.Wait()
	for id, entry := range h.sessions {
		entry.peer.Disconnect()
		h.metrics.IncSessionsClosed()
		h.journal.RecordClosed(store.SessionRecord{
			ServerID:  h.serverID,
			SessionID: id,
			ClosedAt:  h.now(),
			Normal:    true,
			Reason:    "shutdown",
		})
		delete(h.sessions, id)
	}
	h.log.Info().Int("dropped_intents", len(dropped)).Msg("hub stopped")
}
