package proto

import "fmt"

// ProtocolVersion is announced to every client in Welcome.
const ProtocolVersion = 1

// Type tags a frame with the message variant it carries.
type Type uint32

// Client → server.
const (
	TypeJoin Type = iota + 1
	TypeMovement
	TypeShoot
	TypeLeave
	TypeTargeting
	TypeStartGame
	TypePing
	TypeAccuracyState
	TypeChat
	TypeRouletteDone
	TypePurchase
	TypeShopRoulette
	TypeSetMining
	TypeRoomName
)

// Server → client.
const (
	TypeWelcome Type = iota + 64
	TypePong
	TypeJoinAccepted
	TypePlayerJoined
	TypePlayerLeft
	TypePlayerMoved
	TypePlayerShot
	TypeTargetChanged
	TypeAccuracyChanged
	TypeChatBroadcast
	TypePhaseChanged
	TypeRoundEnded
	TypeRouletteResult
	TypeItemPurchased
	TypeShopRouletteResult
	TypeMiningChanged
	TypeRoomRenamed
	TypeError
)

var typeNames = map[Type]string{
	TypeJoin:               "join",
	TypeMovement:           "movement",
	TypeShoot:              "shoot",
	TypeLeave:              "leave",
	TypeTargeting:          "targeting",
	TypeStartGame:          "start_game",
	TypePing:               "ping",
	TypeAccuracyState:      "accuracy_state",
	TypeChat:               "chat",
	TypeRouletteDone:       "roulette_done",
	TypePurchase:           "purchase",
	TypeShopRoulette:       "shop_roulette",
	TypeSetMining:          "set_mining",
	TypeRoomName:           "room_name",
	TypeWelcome:            "welcome",
	TypePong:               "pong",
	TypeJoinAccepted:       "join_accepted",
	TypePlayerJoined:       "player_joined",
	TypePlayerLeft:         "player_left",
	TypePlayerMoved:        "player_moved",
	TypePlayerShot:         "player_shot",
	TypeTargetChanged:      "target_changed",
	TypeAccuracyChanged:    "accuracy_changed",
	TypeChatBroadcast:      "chat_broadcast",
	TypePhaseChanged:       "phase_changed",
	TypeRoundEnded:         "round_ended",
	TypeRouletteResult:     "roulette_result",
	TypeItemPurchased:      "item_purchased",
	TypeShopRouletteResult: "shop_roulette_result",
	TypeMiningChanged:      "mining_changed",
	TypeRoomRenamed:        "room_renamed",
	TypeError:              "error",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Message is one decoded frame. The set of implementations is closed to this
// package; Unknown stands in for tags this build does not recognise.
type Message interface {
	Type() Type
	appendPayload(w *payloadWriter)
	readPayload(r *payloadReader)
}

// newMessage returns an empty value for a known tag, or nil.
func newMessage(t Type) Message {
	switch t {
	case TypeJoin:
		return &Join{}
	case TypeMovement:
		return &Movement{}
	case TypeShoot:
		return &Shoot{}
	case TypeLeave:
		return &Leave{}
	case TypeTargeting:
		return &Targeting{}
	case TypeStartGame:
		return &StartGame{}
	case TypePing:
		return &Ping{}
	case TypeAccuracyState:
		return &AccuracyState{}
	case TypeChat:
		return &Chat{}
	case TypeRouletteDone:
		return &RouletteDone{}
	case TypePurchase:
		return &Purchase{}
	case TypeShopRoulette:
		return &ShopRoulette{}
	case TypeSetMining:
		return &SetMining{}
	case TypeRoomName:
		return &RoomName{}
	case TypeWelcome:
		return &Welcome{}
	case TypePong:
		return &Pong{}
	case TypeJoinAccepted:
		return &JoinAccepted{}
	case TypePlayerJoined:
		return &PlayerJoined{}
	case TypePlayerLeft:
		return &PlayerLeft{}
	case TypePlayerMoved:
		return &PlayerMoved{}
	case TypePlayerShot:
		return &PlayerShot{}
	case TypeTargetChanged:
		return &TargetChanged{}
	case TypeAccuracyChanged:
		return &AccuracyChanged{}
	case TypeChatBroadcast:
		return &ChatBroadcast{}
	case TypePhaseChanged:
		return &PhaseChanged{}
	case TypeRoundEnded:
		return &RoundEnded{}
	case TypeRouletteResult:
		return &RouletteResult{}
	case TypeItemPurchased:
		return &ItemPurchased{}
	case TypeShopRouletteResult:
		return &ShopRouletteResult{}
	case TypeMiningChanged:
		return &MiningChanged{}
	case TypeRoomRenamed:
		return &RoomRenamed{}
	case TypeError:
		return &Error{}
	default:
		return nil
	}
}

// MovementData is a player's kinematic state as reported by the client.
type MovementData struct {
	X         float32
	Y         float32
	VelocityX float32
	VelocityY float32
	Rotation  float32
	Seq       uint32
}

func (d *MovementData) append(w *payloadWriter, first int) {
	n := fieldNum(first)
	w.float(n, d.X)
	w.float(n+1, d.Y)
	w.float(n+2, d.VelocityX)
	w.float(n+3, d.VelocityY)
	w.float(n+4, d.Rotation)
	w.uint(n+5, uint64(d.Seq))
}

func (d *MovementData) read(r *payloadReader, first int) {
	n := fieldNum(first)
	d.X = r.float(n)
	d.Y = r.float(n + 1)
	d.VelocityX = r.float(n + 2)
	d.VelocityY = r.float(n + 3)
	d.Rotation = r.float(n + 4)
	d.Seq = r.uint32(n + 5)
}

// ==== client → server ====

// Join asks to enter the room, authorised by a lobby session token.
type Join struct {
	SessionToken string
	AsSpectator  bool
}

func (*Join) Type() Type { return TypeJoin }
func (m *Join) appendPayload(w *payloadWriter) {
	w.string(1, m.SessionToken)
	w.bool(2, m.AsSpectator)
}
func (m *Join) readPayload(r *payloadReader) {
	m.SessionToken = r.string(1)
	m.AsSpectator = r.bool(2)
}

// Movement reports the sender's position and velocity.
type Movement struct {
	Data MovementData
}

func (*Movement) Type() Type                       { return TypeMovement }
func (m *Movement) appendPayload(w *payloadWriter) { m.Data.append(w, 1) }
func (m *Movement) readPayload(r *payloadReader)   { m.Data.read(r, 1) }

// Shoot fires at another player.
type Shoot struct {
	TargetID uint64
}

func (*Shoot) Type() Type                       { return TypeShoot }
func (m *Shoot) appendPayload(w *payloadWriter) { w.uint(1, m.TargetID) }
func (m *Shoot) readPayload(r *payloadReader)   { m.TargetID = r.uint(1) }

// Leave is a graceful goodbye.
type Leave struct{}

func (*Leave) Type() Type                   { return TypeLeave }
func (*Leave) appendPayload(*payloadWriter) {}
func (*Leave) readPayload(*payloadReader)   {}

// Targeting changes the sender's locked target; zero clears it.
type Targeting struct {
	TargetID uint64
}

func (*Targeting) Type() Type                       { return TypeTargeting }
func (m *Targeting) appendPayload(w *payloadWriter) { w.uint(1, m.TargetID) }
func (m *Targeting) readPayload(r *payloadReader)   { m.TargetID = r.uint(1) }

// StartGame is sent by the host to leave the waiting phase.
type StartGame struct{}

func (*StartGame) Type() Type                   { return TypeStartGame }
func (*StartGame) appendPayload(*payloadWriter) {}
func (*StartGame) readPayload(*payloadReader)   {}

// Ping carries the client's clock in unix milliseconds.
type Ping struct {
	ClientTime int64
}

func (*Ping) Type() Type                       { return TypePing }
func (m *Ping) appendPayload(w *payloadWriter) { w.sint(1, m.ClientTime) }
func (m *Ping) readPayload(r *payloadReader)   { m.ClientTime = r.sint(1) }

// AccuracyState reports how steady the sender's aim is.
type AccuracyState struct {
	State uint32
}

func (*AccuracyState) Type() Type                       { return TypeAccuracyState }
func (m *AccuracyState) appendPayload(w *payloadWriter) { w.uint(1, uint64(m.State)) }
func (m *AccuracyState) readPayload(r *payloadReader)   { m.State = r.uint32(1) }

// Chat is a room chat line.
type Chat struct {
	Text string
}

func (*Chat) Type() Type                       { return TypeChat }
func (m *Chat) appendPayload(w *payloadWriter) { w.string(1, m.Text) }
func (m *Chat) readPayload(r *payloadReader)   { m.Text = r.string(1) }

// RouletteDone acknowledges the initial roulette animation.
type RouletteDone struct{}

func (*RouletteDone) Type() Type                   { return TypeRouletteDone }
func (*RouletteDone) appendPayload(*payloadWriter) {}
func (*RouletteDone) readPayload(*payloadReader)   {}

// Purchase buys one catalog item.
type Purchase struct {
	ItemID uint32
}

func (*Purchase) Type() Type                       { return TypePurchase }
func (m *Purchase) appendPayload(w *payloadWriter) { w.uint(1, uint64(m.ItemID)) }
func (m *Purchase) readPayload(r *payloadReader)   { m.ItemID = r.uint32(1) }

// ShopRoulette spends coins on a random catalog item.
type ShopRoulette struct{}

func (*ShopRoulette) Type() Type                   { return TypeShopRoulette }
func (*ShopRoulette) appendPayload(*payloadWriter) {}
func (*ShopRoulette) readPayload(*payloadReader)   {}

// SetMining toggles coin mining.
type SetMining struct {
	Mining bool
}

func (*SetMining) Type() Type                       { return TypeSetMining }
func (m *SetMining) appendPayload(w *payloadWriter) { w.bool(1, m.Mining) }
func (m *SetMining) readPayload(r *payloadReader)   { m.Mining = r.bool(1) }

// RoomName renames the room (host only).
type RoomName struct {
	Name string
}

func (*RoomName) Type() Type                       { return TypeRoomName }
func (m *RoomName) appendPayload(w *payloadWriter) { w.string(1, m.Name) }
func (m *RoomName) readPayload(r *payloadReader)   { m.Name = r.string(1) }

// ==== server → client ====

// Welcome is the first frame on every connection.
type Welcome struct {
	ClientID        uint64
	ServerID        string
	ProtocolVersion uint32
}

func (*Welcome) Type() Type { return TypeWelcome }
func (m *Welcome) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.string(2, m.ServerID)
	w.uint(3, uint64(m.ProtocolVersion))
}
func (m *Welcome) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.ServerID = r.string(2)
	m.ProtocolVersion = r.uint32(3)
}

// Pong answers Ping; both times are unix milliseconds.
type Pong struct {
	ClientTime int64
	ServerTime int64
}

func (*Pong) Type() Type { return TypePong }
func (m *Pong) appendPayload(w *payloadWriter) {
	w.sint(1, m.ClientTime)
	w.sint(2, m.ServerTime)
}
func (m *Pong) readPayload(r *payloadReader) {
	m.ClientTime = r.sint(1)
	m.ServerTime = r.sint(2)
}

// JoinAccepted confirms admission to the room.
type JoinAccepted struct {
	ClientID  uint64
	RoomName  string
	Phase     uint32
	Round     uint32
	Spectator bool
}

func (*JoinAccepted) Type() Type { return TypeJoinAccepted }
func (m *JoinAccepted) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.string(2, m.RoomName)
	w.uint(3, uint64(m.Phase))
	w.uint(4, uint64(m.Round))
	w.bool(5, m.Spectator)
}
func (m *JoinAccepted) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.RoomName = r.string(2)
	m.Phase = r.uint32(3)
	m.Round = r.uint32(4)
	m.Spectator = r.bool(5)
}

// PlayerJoined announces a roster addition.
type PlayerJoined struct {
	ClientID  uint64
	Name      string
	Spectator bool
}

func (*PlayerJoined) Type() Type { return TypePlayerJoined }
func (m *PlayerJoined) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.string(2, m.Name)
	w.bool(3, m.Spectator)
}
func (m *PlayerJoined) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.Name = r.string(2)
	m.Spectator = r.bool(3)
}

// PlayerLeft announces a roster removal.
type PlayerLeft struct {
	ClientID uint64
}

func (*PlayerLeft) Type() Type                       { return TypePlayerLeft }
func (m *PlayerLeft) appendPayload(w *payloadWriter) { w.uint(1, m.ClientID) }
func (m *PlayerLeft) readPayload(r *payloadReader)   { m.ClientID = r.uint(1) }

// PlayerMoved relays another player's movement.
type PlayerMoved struct {
	ClientID uint64
	Data     MovementData
}

func (*PlayerMoved) Type() Type { return TypePlayerMoved }
func (m *PlayerMoved) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	m.Data.append(w, 2)
}
func (m *PlayerMoved) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.Data.read(r, 2)
}

// PlayerShot reports a resolved shot.
type PlayerShot struct {
	ShooterID    uint64
	TargetID     uint64
	Damage       uint32
	TargetHealth uint32
	Killed       bool
}

func (*PlayerShot) Type() Type { return TypePlayerShot }
func (m *PlayerShot) appendPayload(w *payloadWriter) {
	w.uint(1, m.ShooterID)
	w.uint(2, m.TargetID)
	w.uint(3, uint64(m.Damage))
	w.uint(4, uint64(m.TargetHealth))
	w.bool(5, m.Killed)
}
func (m *PlayerShot) readPayload(r *payloadReader) {
	m.ShooterID = r.uint(1)
	m.TargetID = r.uint(2)
	m.Damage = r.uint32(3)
	m.TargetHealth = r.uint32(4)
	m.Killed = r.bool(5)
}

// TargetChanged relays a player's new target.
type TargetChanged struct {
	ClientID uint64
	TargetID uint64
}

func (*TargetChanged) Type() Type { return TypeTargetChanged }
func (m *TargetChanged) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.uint(2, m.TargetID)
}
func (m *TargetChanged) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.TargetID = r.uint(2)
}

// AccuracyChanged relays a player's accuracy state.
type AccuracyChanged struct {
	ClientID uint64
	State    uint32
}

func (*AccuracyChanged) Type() Type { return TypeAccuracyChanged }
func (m *AccuracyChanged) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.uint(2, uint64(m.State))
}
func (m *AccuracyChanged) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.State = r.uint32(2)
}

// ChatBroadcast is a chat line fanned out to the room. ClientID zero marks a
// system announcement.
type ChatBroadcast struct {
	ClientID uint64
	Text     string
}

func (*ChatBroadcast) Type() Type { return TypeChatBroadcast }
func (m *ChatBroadcast) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.string(2, m.Text)
}
func (m *ChatBroadcast) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.Text = r.string(2)
}

// PhaseChanged announces a room phase transition.
type PhaseChanged struct {
	Phase uint32
	Round uint32
}

func (*PhaseChanged) Type() Type { return TypePhaseChanged }
func (m *PhaseChanged) appendPayload(w *payloadWriter) {
	w.uint(1, uint64(m.Phase))
	w.uint(2, uint64(m.Round))
}
func (m *PhaseChanged) readPayload(r *payloadReader) {
	m.Phase = r.uint32(1)
	m.Round = r.uint32(2)
}

// RoundEnded names the last player standing.
type RoundEnded struct {
	WinnerID uint64
	Round    uint32
}

func (*RoundEnded) Type() Type { return TypeRoundEnded }
func (m *RoundEnded) appendPayload(w *payloadWriter) {
	w.uint(1, m.WinnerID)
	w.uint(2, uint64(m.Round))
}
func (m *RoundEnded) readPayload(r *payloadReader) {
	m.WinnerID = r.uint(1)
	m.Round = r.uint32(2)
}

// RouletteResult reports the initial roulette reward.
type RouletteResult struct {
	ClientID uint64
	Reward   uint32
	Balance  uint32
}

func (*RouletteResult) Type() Type { return TypeRouletteResult }
func (m *RouletteResult) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.uint(2, uint64(m.Reward))
	w.uint(3, uint64(m.Balance))
}
func (m *RouletteResult) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.Reward = r.uint32(2)
	m.Balance = r.uint32(3)
}

// ItemPurchased confirms a purchase.
type ItemPurchased struct {
	ItemID  uint32
	Balance uint32
}

func (*ItemPurchased) Type() Type { return TypeItemPurchased }
func (m *ItemPurchased) appendPayload(w *payloadWriter) {
	w.uint(1, uint64(m.ItemID))
	w.uint(2, uint64(m.Balance))
}
func (m *ItemPurchased) readPayload(r *payloadReader) {
	m.ItemID = r.uint32(1)
	m.Balance = r.uint32(2)
}

// ShopRouletteResult reports the item won from the shop roulette.
type ShopRouletteResult struct {
	ItemID  uint32
	Balance uint32
}

func (*ShopRouletteResult) Type() Type { return TypeShopRouletteResult }
func (m *ShopRouletteResult) appendPayload(w *payloadWriter) {
	w.uint(1, uint64(m.ItemID))
	w.uint(2, uint64(m.Balance))
}
func (m *ShopRouletteResult) readPayload(r *payloadReader) {
	m.ItemID = r.uint32(1)
	m.Balance = r.uint32(2)
}

// MiningChanged relays a mining toggle with the player's settled balance.
type MiningChanged struct {
	ClientID uint64
	Mining   bool
	Balance  uint32
}

func (*MiningChanged) Type() Type { return TypeMiningChanged }
func (m *MiningChanged) appendPayload(w *payloadWriter) {
	w.uint(1, m.ClientID)
	w.bool(2, m.Mining)
	w.uint(3, uint64(m.Balance))
}
func (m *MiningChanged) readPayload(r *payloadReader) {
	m.ClientID = r.uint(1)
	m.Mining = r.bool(2)
	m.Balance = r.uint32(3)
}

// RoomRenamed announces the room's new name.
type RoomRenamed struct {
	Name string
}

func (*RoomRenamed) Type() Type                       { return TypeRoomRenamed }
func (m *RoomRenamed) appendPayload(w *payloadWriter) { w.string(1, m.Name) }
func (m *RoomRenamed) readPayload(r *payloadReader)   { m.Name = r.string(1) }

// Error describes a rejected request.
type Error struct {
	Code string
	Text string
}

func (*Error) Type() Type { return TypeError }
func (m *Error) appendPayload(w *payloadWriter) {
	w.string(1, m.Code)
	w.string(2, m.Text)
}
func (m *Error) readPayload(r *payloadReader) {
	m.Code = r.string(1)
	m.Text = r.string(2)
}

// Unknown is a well-framed message whose tag this build does not know. Its
// payload is kept verbatim so it re-encodes byte for byte.
type Unknown struct {
	Tag     Type
	Payload []byte
}

func (m *Unknown) Type() Type { return m.Tag }

func (m *Unknown) appendPayload(w *payloadWriter) {
	w.b = append(w.b, m.Payload...)
}

func (m *Unknown) readPayload(r *payloadReader) {
	m.Payload = append([]byte(nil), r.b...)
	r.b = nil
}
