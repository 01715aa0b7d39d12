package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/wirearena-server/internal/lobby"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

// Every handler below checks all of its preconditions before the first
// write to Room or Player.

func (h *Hub) player(id uint64) (*Player, error) {
	p := h.room.Player(id)
	if p == nil {
		return nil, coreError(ErrCodeNotJoined, "join the room first")
	}
	return p, nil
}

func (h *Hub) contestant(id uint64) (*Player, error) {
	p, err := h.player(id)
	if err != nil {
		return nil, err
	}
	if p.Spectator {
		return nil, coreError(ErrCodeSpectator, "spectators cannot do that")
	}
	return p, nil
}

func (h *Hub) canSeat(asSpectator bool) error {
	if asSpectator {
		return nil
	}
	if contestants, _ := h.room.Counts(); contestants >= h.rules.MaxPlayers {
		return coreError(ErrCodeRoomFull, "room is full")
	}
	if h.room.Phase != PhaseWaiting && h.room.Phase != PhaseFinished {
		return coreError(ErrCodeWrongPhase, "game in progress, join as spectator")
	}
	return nil
}

func (h *Hub) playerJoin(in PlayerJoin) error {
	entry, ok := h.sessions[in.SessionID]
	if !ok {
		return fmt.Errorf("join %d: %w", in.SessionID, ErrUnknownSession)
	}
	if entry.pending || h.room.Player(in.SessionID) != nil {
		return coreError(ErrCodeAlreadyJoined, "already joined")
	}
	if err := h.canSeat(in.AsSpectator); err != nil {
		return err
	}

	if h.validator == nil {
		return h.admitPlayer(admitPlayer{SessionID: in.SessionID, AsSpectator: in.AsSpectator})
	}

	entry.pending = true
	ctx, validator, timeout := h.ctx, h.validator, h.rules.ValidateTimeout
	h.validations.Go(func() {
		vctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ident, err := validator.ValidateSession(vctx, in.SessionToken)
		if err := h.Submit(admitPlayer{
			SessionID:   in.SessionID,
			AsSpectator: in.AsSpectator,
			Identity:    ident,
			Err:         err,
		}); err != nil {
			h.log.Debug().Err(err).Uint64("session_id", in.SessionID).Msg("admission dropped")
		}
	})
	return nil
}

func (h *Hub) admitPlayer(in admitPlayer) error {
	entry, ok := h.sessions[in.SessionID]
	if !ok {
		h.log.Debug().Uint64("session_id", in.SessionID).Msg("session gone before admission")
		return nil
	}
	entry.pending = false

	if in.Err != nil {
		if errors.Is(in.Err, lobby.ErrRejected) {
			return coreError(ErrCodeUnauthorized, "session token rejected")
		}
		h.log.Warn().Err(in.Err).Uint64("session_id", in.SessionID).Msg("session validation failed")
		return coreError(ErrCodeUnauthorized, "session validation unavailable")
	}
	if h.room.Player(in.SessionID) != nil {
		return coreError(ErrCodeAlreadyJoined, "already joined")
	}
	if err := h.canSeat(in.AsSpectator); err != nil {
		return err
	}

	name := strings.TrimSpace(in.Identity.Name)
	if name == "" {
		name = fmt.Sprintf("player-%d", in.SessionID)
	}
	p := &Player{
		ID:        in.SessionID,
		Name:      name,
		Spectator: in.AsSpectator,
		Health:    startingHealth,
		Items:     make(map[uint32]int),
		peer:      entry.peer,
	}
	h.room.AddPlayer(p)
	if !p.Spectator && h.room.HostID == 0 {
		h.room.HostID = p.ID
	}
	entry.peer.SetName(name)

	h.send(p.peer, &proto.JoinAccepted{
		ClientID:  p.ID,
		RoomName:  h.room.Name,
		Phase:     uint32(h.room.Phase),
		Round:     uint32(h.room.Round),
		Spectator: p.Spectator,
	})
	for _, other := range h.room.Players() {
		if other.ID != p.ID {
			h.send(p.peer, &proto.PlayerJoined{ClientID: other.ID, Name: other.Name, Spectator: other.Spectator})
		}
	}
	h.room.Broadcast(&proto.PlayerJoined{ClientID: p.ID, Name: p.Name, Spectator: p.Spectator}, p.ID)
	h.reportRoomState()

	h.log.Info().Uint64("session_id", p.ID).Str("name", name).Bool("spectator", p.Spectator).Msg("player joined")
	return nil
}

func (h *Hub) playerLeave(in PlayerLeave) error {
	return h.removeSession(RemoveSession{
		SessionID:          in.SessionID,
		Client:             in.Client,
		IsNormalDisconnect: true,
		ReportToLobby:      true,
		Reason:             "leave",
	})
}

// dropPlayer removes p from the room and settles whatever depended on it.
func (h *Hub) dropPlayer(p *Player) {
	h.room.RemovePlayer(p.ID)
	h.room.Broadcast(&proto.PlayerLeft{ClientID: p.ID}, 0)

	for _, other := range h.room.Players() {
		if other.TargetID == p.ID {
			other.TargetID = 0
		}
	}

	if p.ID == h.room.HostID {
		h.room.HostID = 0
		if rest := h.room.Contestants(); len(rest) > 0 {
			h.room.HostID = rest[0].ID
		}
	}

	if !p.Spectator {
		h.settleAfterContestantLoss()
	}
	h.reportRoomState()
}

func (h *Hub) settleAfterContestantLoss() {
	contestants := h.room.Contestants()
	if len(contestants) == 0 && h.room.Phase != PhaseWaiting {
		h.room.Round = 0
		h.setPhase(PhaseWaiting)
		return
	}

	inGame := h.room.Phase == PhaseRoulette || h.room.Phase == PhasePlaying
	if inGame && len(contestants) < 2 {
		var winner *Player
		if len(contestants) == 1 {
			winner = contestants[0]
		}
		h.endRound(winner, true)
		return
	}

	switch h.room.Phase {
	case PhaseRoulette:
		if allRouletteDone(contestants) {
			h.beginPlaying()
		}
	case PhasePlaying:
		if alive := h.room.Alive(); len(alive) <= 1 {
			var winner *Player
			if len(alive) == 1 {
				winner = alive[0]
			}
			h.endRound(winner, false)
		}
	}
}

func (h *Hub) playerMovement(in PlayerMovement) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	if h.room.Phase == PhasePlaying && !p.Alive() {
		return coreError(ErrCodeWrongPhase, "eliminated players cannot move")
	}
	if in.Movement.Seq != 0 && in.Movement.Seq <= p.Movement.Seq {
		// Stale or duplicated update.
		return nil
	}

	p.Movement = in.Movement
	h.room.Broadcast(&proto.PlayerMoved{ClientID: p.ID, Data: in.Movement}, p.ID)
	return nil
}

func (h *Hub) playerTargeting(in PlayerTargeting) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	if in.TargetID != 0 {
		t := h.room.Player(in.TargetID)
		if t == nil || t.Spectator || t.ID == p.ID {
			return coreError(ErrCodeInvalidTarget, "invalid target")
		}
	}

	p.TargetID = in.TargetID
	h.room.Broadcast(&proto.TargetChanged{ClientID: p.ID, TargetID: in.TargetID}, p.ID)
	return nil
}

func (h *Hub) playerShoot(in PlayerShoot) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	if h.room.Phase != PhasePlaying {
		return coreError(ErrCodeWrongPhase, "round not in progress")
	}
	if !p.Alive() {
		return coreError(ErrCodeWrongPhase, "eliminated players cannot shoot")
	}
	target := h.room.Player(in.TargetID)
	if target == nil || target.ID == p.ID || !target.Alive() {
		return coreError(ErrCodeInvalidTarget, "invalid target")
	}

	damage := baseDamage + accuracyBonus*int(p.Accuracy)
	target.Health = max(0, target.Health-damage)
	killed := target.Health == 0
	if killed {
		p.Coins += killReward
		target.TargetID = 0
		target.MiningSince = time.Time{}
	}
	h.room.Broadcast(&proto.PlayerShot{
		ShooterID:    p.ID,
		TargetID:     target.ID,
		Damage:       uint32(damage),
		TargetHealth: uint32(target.Health),
		Killed:       killed,
	}, 0)

	if killed {
		if alive := h.room.Alive(); len(alive) == 1 {
			h.endRound(alive[0], false)
		}
	}
	return nil
}

func (h *Hub) startGame(in StartGame) error {
	p, err := h.player(in.SessionID)
	if err != nil {
		return err
	}
	if p.ID != h.room.HostID {
		return coreError(ErrCodeNotHost, "only the host can start the game")
	}
	if h.room.Phase != PhaseWaiting && h.room.Phase != PhaseFinished {
		return coreError(ErrCodeWrongPhase, "game already started")
	}
	if contestants, _ := h.room.Counts(); contestants < h.rules.MinPlayers {
		return coreError(ErrCodeBadRequest, fmt.Sprintf("need at least %d players", h.rules.MinPlayers))
	}

	h.room.Round = 1
	h.beginRoulette()
	h.log.Info().Uint64("host", p.ID).Msg("game started")
	return nil
}

func (h *Hub) ping(in Ping) error {
	if in.Client == nil {
		return errors.New("ping: nil client")
	}
	h.send(in.Client, &proto.Pong{ClientTime: in.ClientTime, ServerTime: h.now().UnixMilli()})
	return nil
}

func (h *Hub) setAccuracy(in SetAccuracy) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	if in.State > maxAccuracy {
		return coreError(ErrCodeBadRequest, fmt.Sprintf("accuracy must be 0..%d", maxAccuracy))
	}

	p.Accuracy = in.State
	h.room.Broadcast(&proto.AccuracyChanged{ClientID: p.ID, State: in.State}, p.ID)
	return nil
}

func (h *Hub) chat(in Chat) error {
	p, err := h.player(in.SessionID)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return coreError(ErrCodeBadRequest, "empty message")
	}
	if utf8.RuneCountInString(text) > maxChatRunes {
		return coreError(ErrCodeBadRequest, "message too long")
	}

	h.room.Broadcast(&proto.ChatBroadcast{ClientID: p.ID, Text: text}, 0)
	return nil
}

func (h *Hub) initialRouletteDone(in InitialRouletteDone) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	if h.room.Phase != PhaseRoulette {
		return coreError(ErrCodeWrongPhase, "no roulette in progress")
	}
	if p.RouletteDone {
		return coreError(ErrCodeBadRequest, "roulette already done")
	}

	p.RouletteDone = true
	p.Coins += rouletteReward
	h.room.Broadcast(&proto.RouletteResult{ClientID: p.ID, Reward: rouletteReward, Balance: coins(p.Coins)}, 0)

	if allRouletteDone(h.room.Contestants()) {
		h.beginPlaying()
	}
	return nil
}

func (h *Hub) purchaseItem(in PurchaseItem) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	item, ok := catalog[in.ItemID]
	if !ok {
		return coreError(ErrCodeUnknownItem, fmt.Sprintf("unknown item %d", in.ItemID))
	}
	if p.Coins < item.Price {
		return coreError(ErrCodeInsufficientFunds, fmt.Sprintf("%s costs %d", item.Name, item.Price))
	}

	p.Coins -= item.Price
	p.Items[in.ItemID]++
	h.send(p.peer, &proto.ItemPurchased{ItemID: in.ItemID, Balance: coins(p.Coins)})
	return nil
}

func (h *Hub) shopRoulette(in ShopRoulette) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	if p.Coins < shopRouletteCost {
		return coreError(ErrCodeInsufficientFunds, fmt.Sprintf("shop roulette costs %d", shopRouletteCost))
	}

	itemID := catalogIDs[h.rng.IntN(len(catalogIDs))]
	p.Coins -= shopRouletteCost
	p.Items[itemID]++
	h.send(p.peer, &proto.ShopRouletteResult{ItemID: itemID, Balance: coins(p.Coins)})
	return nil
}

func (h *Hub) setMining(in SetMining) error {
	p, err := h.contestant(in.SessionID)
	if err != nil {
		return err
	}
	if in.IsMining == p.Mining() {
		return nil
	}

	now := h.now()
	if in.IsMining {
		p.MiningSince = now
	} else {
		p.Coins += int(now.Sub(p.MiningSince)/time.Second) * miningPerSecond
		p.MiningSince = time.Time{}
	}
	h.room.Broadcast(&proto.MiningChanged{ClientID: p.ID, Mining: in.IsMining, Balance: coins(p.Coins)}, 0)
	return nil
}

func (h *Hub) updateRoomName(in UpdateRoomName) error {
	p, err := h.player(in.SessionID)
	if err != nil {
		return err
	}
	if p.ID != h.room.HostID {
		return coreError(ErrCodeNotHost, "only the host can rename the room")
	}
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxRoomNameRunes {
		return coreError(ErrCodeBadRequest, fmt.Sprintf("room name must be 1..%d characters", maxRoomNameRunes))
	}

	h.room.Name = name
	h.room.Broadcast(&proto.RoomRenamed{Name: name}, 0)
	h.reportRoomState()
	return nil
}

func (h *Hub) beginRoulette() {
	for _, p := range h.room.Contestants() {
		p.RouletteDone = false
	}
	h.setPhase(PhaseRoulette)
}

func (h *Hub) beginPlaying() {
	for _, p := range h.room.Contestants() {
		p.Health = startingHealth
		p.TargetID = 0
	}
	h.setPhase(PhasePlaying)
}

// endRound pays the winner (nil for no winner) and advances the cycle. last
// finishes the game regardless of the round count.
func (h *Hub) endRound(winner *Player, last bool) {
	var winnerID uint64
	if winner != nil {
		winner.Coins += roundWinReward
		winnerID = winner.ID
	}
	h.room.Broadcast(&proto.RoundEnded{WinnerID: winnerID, Round: uint32(h.room.Round)}, 0)
	h.log.Info().Int("round", h.room.Round).Uint64("winner", winnerID).Msg("round ended")

	if last || h.room.Round >= h.rules.MaxRounds {
		h.setPhase(PhaseFinished)
		return
	}
	h.room.Round++
	h.beginRoulette()
}

func (h *Hub) setPhase(phase Phase) {
	h.room.Phase = phase
	h.room.Broadcast(&proto.PhaseChanged{Phase: uint32(phase), Round: uint32(h.room.Round)}, 0)
	h.reportRoomState()
}

func (h *Hub) reportRoomState() {
	contestants, spectators := h.room.Counts()
	h.lobby.ReportRoomState(lobby.RoomStatus{
		ServerID:   h.serverID,
		Name:       h.room.Name,
		State:      lobbyState(h.room.Phase),
		Players:    contestants,
		Spectators: spectators,
		Round:      h.room.Round,
	})
}

func lobbyState(p Phase) string {
	switch p {
	case PhaseRoulette, PhasePlaying:
		return lobby.StatePlaying
	case PhaseFinished:
		return lobby.StateFinished
	default:
		return lobby.StateWaiting
	}
}

func allRouletteDone(players []*Player) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if !p.RouletteDone {
			return false
		}
	}
	return true
}

func coins(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
