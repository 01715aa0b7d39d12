package tcp

import (
	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

// Dispatch maps a decoded client message to the intent it requests. It
// returns nil for messages no intent exists for: unknown tags and
// server-bound message types sent by a client.
func Dispatch(client core.Peer, msg proto.Message) core.Intent {
	id := client.ID()
	switch m := msg.(type) {
	case *proto.Join:
		return core.PlayerJoin{SessionID: id, SessionToken: m.SessionToken, AsSpectator: m.AsSpectator, Client: client}
	case *proto.Movement:
		return core.PlayerMovement{SessionID: id, Movement: m.Data}
	case *proto.Shoot:
		return core.PlayerShoot{SessionID: id, TargetID: m.TargetID}
	case *proto.Leave:
		return core.PlayerLeave{SessionID: id, Client: client}
	case *proto.Targeting:
		return core.PlayerTargeting{SessionID: id, TargetID: m.TargetID}
	case *proto.StartGame:
		return core.StartGame{SessionID: id}
	case *proto.Ping:
		return core.Ping{Client: client, ClientTime: m.ClientTime}
	case *proto.AccuracyState:
		return core.SetAccuracy{SessionID: id, State: m.State}
	case *proto.Chat:
		return core.Chat{SessionID: id, Text: m.Text}
	case *proto.RouletteDone:
		return core.InitialRouletteDone{SessionID: id}
	case *proto.Purchase:
		return core.PurchaseItem{SessionID: id, ItemID: m.ItemID}
	case *proto.ShopRoulette:
		return core.ShopRoulette{SessionID: id}
	case *proto.SetMining:
		return core.SetMining{SessionID: id, IsMining: m.Mining}
	case *proto.RoomName:
		return core.UpdateRoomName{SessionID: id, Name: m.Name}
	default:
		return nil
	}
}
