package core

import (
	"net"

	"github.com/vovakirdan/wirearena-server/internal/lobby"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

// Intent is a request to change shared state. Intents are only applied by the
// Hub worker, one at a time, in submission order.
type Intent interface {
	intentName() string
}

// CreateSession asks the Hub to register a freshly accepted connection.
type CreateSession struct {
	Conn net.Conn
}

// RemoveSession tears a session down. ReportToLobby is false for silent
// liveness timeouts.
type RemoveSession struct {
	SessionID          uint64
	Client             Peer
	IsNormalDisconnect bool
	ReportToLobby      bool
	Reason             string
}

type PlayerJoin struct {
	SessionID    uint64
	SessionToken string
	AsSpectator  bool
	Client       Peer
}

type PlayerMovement struct {
	SessionID uint64
	Movement  proto.MovementData
}

type PlayerShoot struct {
	SessionID uint64
	TargetID  uint64
}

type PlayerLeave struct {
	SessionID uint64
	Client    Peer
}

type PlayerTargeting struct {
	SessionID uint64
	TargetID  uint64
}

type StartGame struct {
	SessionID uint64
}

type Ping struct {
	Client     Peer
	ClientTime int64
}

type SetAccuracy struct {
	SessionID uint64
	State     uint32
}

type Chat struct {
	SessionID uint64
	Text      string
}

type InitialRouletteDone struct {
	SessionID uint64
}

type PurchaseItem struct {
	SessionID uint64
	ItemID    uint32
}

type ShopRoulette struct {
	SessionID uint64
}

type SetMining struct {
	SessionID uint64
	IsMining  bool
}

type UpdateRoomName struct {
	SessionID uint64
	Name      string
}

// KickSession removes a session on behalf of an operator.
type KickSession struct {
	SessionID uint64
	Reason    string
}

// Announce broadcasts a system chat line to every session.
type Announce struct {
	Text string
}

// Snapshot asks the Hub for a copy of its state. Reply must be buffered; the
// Hub never blocks on it.
type Snapshot struct {
	Reply chan<- StateSnapshot
}

// admitPlayer carries the result of an asynchronous join validation back
// into the Hub.
type admitPlayer struct {
	SessionID   uint64
	AsSpectator bool
	Identity    lobby.Identity
	Err         error
}

func (CreateSession) intentName() string       { return "create_session" }
func (RemoveSession) intentName() string       { return "remove_session" }
func (PlayerJoin) intentName() string          { return "player_join" }
func (PlayerMovement) intentName() string      { return "player_movement" }
func (PlayerShoot) intentName() string         { return "player_shoot" }
func (PlayerLeave) intentName() string         { return "player_leave" }
func (PlayerTargeting) intentName() string     { return "player_targeting" }
func (StartGame) intentName() string           { return "start_game" }
func (Ping) intentName() string                { return "ping" }
func (SetAccuracy) intentName() string         { return "set_accuracy" }
func (Chat) intentName() string                { return "chat" }
func (InitialRouletteDone) intentName() string { return "initial_roulette_done" }
func (PurchaseItem) intentName() string        { return "purchase_item" }
func (ShopRoulette) intentName() string        { return "shop_roulette" }
func (SetMining) intentName() string           { return "set_mining" }
func (UpdateRoomName) intentName() string      { return "update_room_name" }
func (KickSession) intentName() string         { return "kick_session" }
func (Announce) intentName() string            { return "announce" }
func (Snapshot) intentName() string            { return "snapshot" }
func (admitPlayer) intentName() string         { return "admit_player" }

// IntentName returns the stable name used in logs.
func IntentName(in Intent) string {
	if in == nil {
		return "<nil>"
	}
	return in.intentName()
}

// lifecycle intents bypass the queue cap so disconnects are never lost.
func isLifecycle(in Intent) bool {
	switch in.(type) {
	case CreateSession, RemoveSession, PlayerLeave, KickSession, admitPlayer:
		return true
	default:
		return false
	}
}

// sessionOf reports which session an intent was issued for, if any.
func sessionOf(in Intent) (uint64, bool) {
	switch in := in.(type) {
	case RemoveSession:
		return in.SessionID, true
	case PlayerJoin:
		return in.SessionID, true
	case PlayerMovement:
		return in.SessionID, true
	case PlayerShoot:
		return in.SessionID, true
	case PlayerLeave:
		return in.SessionID, true
	case PlayerTargeting:
		return in.SessionID, true
	case StartGame:
		return in.SessionID, true
	case Ping:
		if in.Client != nil {
			return in.Client.ID(), true
		}
	case SetAccuracy:
		return in.SessionID, true
	case Chat:
		return in.SessionID, true
	case InitialRouletteDone:
		return in.SessionID, true
	case PurchaseItem:
		return in.SessionID, true
	case ShopRoulette:
		return in.SessionID, true
	case SetMining:
		return in.SessionID, true
	case UpdateRoomName:
		return in.SessionID, true
	case admitPlayer:
		return in.SessionID, true
	}
	return 0, false
}
