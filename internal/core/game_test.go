package core

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

func TestGameRoundFlow(t *testing.T) {
	th := newTestHub(t, Rules{MinPlayers: 2, MaxRounds: 1}, nil)
	a := th.join(t, false)
	b := th.join(t, false)

	mustSubmit(t, th.Hub, StartGame{SessionID: b.id})
	mustError(t, b, ErrCodeNotHost)

	mustSubmit(t, th.Hub, StartGame{SessionID: a.id})
	for _, p := range []*fakePeer{a, b} {
		if ev := mustRecv[*proto.PhaseChanged](t, p); ev.Phase != uint32(PhaseRoulette) || ev.Round != 1 {
			t.Fatalf("unexpected phase change: %+v", ev)
		}
	}

	mustSubmit(t, th.Hub, PlayerShoot{SessionID: a.id, TargetID: b.id})
	mustError(t, a, ErrCodeWrongPhase)

	mustSubmit(t, th.Hub, InitialRouletteDone{SessionID: a.id})
	if ev := mustRecv[*proto.RouletteResult](t, b); ev.ClientID != a.id || ev.Reward != rouletteReward || ev.Balance != rouletteReward {
		t.Fatalf("unexpected roulette result: %+v", ev)
	}
	mustSubmit(t, th.Hub, InitialRouletteDone{SessionID: a.id})
	mustError(t, a, ErrCodeBadRequest)

	mustSubmit(t, th.Hub, InitialRouletteDone{SessionID: b.id})
	if ev := mustRecv[*proto.PhaseChanged](t, b); ev.Phase != uint32(PhasePlaying) {
		t.Fatalf("expected playing phase, got %+v", ev)
	}

	mustSubmit(t, th.Hub, SetAccuracy{SessionID: a.id, State: 2})
	if ev := mustRecv[*proto.AccuracyChanged](t, b); ev.ClientID != a.id || ev.State != 2 {
		t.Fatalf("unexpected accuracy change: %+v", ev)
	}

	const damage = baseDamage + 2*accuracyBonus
	shots := startingHealth / damage
	for range shots {
		mustSubmit(t, th.Hub, PlayerShoot{SessionID: a.id, TargetID: b.id})
	}
	var last *proto.PlayerShot
	for i := range shots {
		last = mustRecv[*proto.PlayerShot](t, b)
		if last.Damage != damage || last.TargetHealth != uint32(startingHealth-(i+1)*damage) {
			t.Fatalf("unexpected shot %d: %+v", i, last)
		}
	}
	if !last.Killed {
		t.Fatalf("final shot should kill: %+v", last)
	}

	if ev := mustRecv[*proto.RoundEnded](t, b); ev.WinnerID != a.id || ev.Round != 1 {
		t.Fatalf("unexpected round end: %+v", ev)
	}
	if ev := mustRecv[*proto.PhaseChanged](t, b); ev.Phase != uint32(PhaseFinished) {
		t.Fatalf("expected finished phase, got %+v", ev)
	}

	snap := th.state(t)
	sa, _ := sessionByID(snap, a.id)
	sb, _ := sessionByID(snap, b.id)
	if sa.Coins != rouletteReward+killReward+roundWinReward || sb.Coins != rouletteReward || sb.Health != 0 {
		t.Fatalf("unexpected balances: a=%+v b=%+v", sa, sb)
	}

	states, _ := th.lobby.snapshot()
	if got := states[len(states)-1].State; got != "finished" {
		t.Fatalf("expected finished room state, got %q", got)
	}
}

func TestEconomyValidatesBeforeMutating(t *testing.T) {
	clock := newFakeClock()
	th := newTestHub(t, Rules{}, func(d *Deps) { d.Now = clock.Now })
	p := th.join(t, false)

	mustSubmit(t, th.Hub, SetMining{SessionID: p.id, IsMining: true})
	if ev := mustRecv[*proto.MiningChanged](t, p); !ev.Mining || ev.Balance != 0 {
		t.Fatalf("unexpected mining start: %+v", ev)
	}
	th.state(t)
	clock.Advance(45*time.Second + 500*time.Millisecond)

	mustSubmit(t, th.Hub, SetMining{SessionID: p.id, IsMining: false})
	if ev := mustRecv[*proto.MiningChanged](t, p); ev.Mining || ev.Balance != 45 {
		t.Fatalf("unexpected mining stop: %+v", ev)
	}

	mustSubmit(t, th.Hub, PurchaseItem{SessionID: p.id, ItemID: 2})
	mustError(t, p, ErrCodeInsufficientFunds)
	mustSubmit(t, th.Hub, PurchaseItem{SessionID: p.id, ItemID: 9})
	mustError(t, p, ErrCodeUnknownItem)

	if s, _ := sessionByID(th.state(t), p.id); s.Coins != 45 || s.Mining {
		t.Fatalf("failed purchases must not touch state: %+v", s)
	}

	mustSubmit(t, th.Hub, PurchaseItem{SessionID: p.id, ItemID: 1})
	if ev := mustRecv[*proto.ItemPurchased](t, p); ev.ItemID != 1 || ev.Balance != 5 {
		t.Fatalf("unexpected purchase: %+v", ev)
	}
}

func TestShopRouletteIsSeeded(t *testing.T) {
	spin := func(seed uint64) []uint32 {
		clock := newFakeClock()
		th := newTestHub(t, Rules{}, func(d *Deps) {
			d.Now = clock.Now
			d.Seed = seed
		})
		p := th.join(t, false)

		mustSubmit(t, th.Hub, SetMining{SessionID: p.id, IsMining: true})
		th.state(t)
		clock.Advance(100 * time.Second)
		mustSubmit(t, th.Hub, SetMining{SessionID: p.id, IsMining: false})

		var items []uint32
		for range 4 {
			mustSubmit(t, th.Hub, ShopRoulette{SessionID: p.id})
			ev := mustRecv[*proto.ShopRouletteResult](t, p)
			if _, ok := catalog[ev.ItemID]; !ok {
				t.Fatalf("roulette granted unknown item %d", ev.ItemID)
			}
			items = append(items, ev.ItemID)
		}
		mustSubmit(t, th.Hub, ShopRoulette{SessionID: p.id})
		mustError(t, p, ErrCodeInsufficientFunds)
		return items
	}

	first, second := spin(7), spin(7)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same seed produced different items (-first +second):\n%s", diff)
	}
}

func TestLeaveHandsOffHost(t *testing.T) {
	th := newTestHub(t, Rules{}, nil)
	a := th.join(t, false)
	b := th.join(t, false)
	th.join(t, false)

	mustSubmit(t, th.Hub, PlayerLeave{SessionID: a.id, Client: a})
	if ev := mustRecv[*proto.PlayerLeft](t, b); ev.ClientID != a.id {
		t.Fatalf("unexpected player left: %+v", ev)
	}

	snap := th.state(t)
	if snap.Room.HostID != b.id {
		t.Fatalf("expected host %d, got %d", b.id, snap.Room.HostID)
	}
	if _, disconnects := a.counts(); disconnects != 1 {
		t.Fatalf("leave should disconnect once, got %d", disconnects)
	}
	_, departures := th.lobby.snapshot()
	if len(departures) != 1 || !departures[0].Normal || departures[0].Reason != "leave" || departures[0].Name == "" {
		t.Fatalf("unexpected departures: %+v", departures)
	}
}

func TestLastContestantLeavingFinishesGame(t *testing.T) {
	th := newTestHub(t, Rules{MinPlayers: 2, MaxRounds: 5}, nil)
	a := th.join(t, false)
	b := th.join(t, false)

	mustSubmit(t, th.Hub, StartGame{SessionID: a.id})
	mustRecv[*proto.PhaseChanged](t, a)

	mustSubmit(t, th.Hub, PlayerLeave{SessionID: b.id, Client: b})
	if ev := mustRecv[*proto.RoundEnded](t, a); ev.WinnerID != a.id {
		t.Fatalf("remaining player should win: %+v", ev)
	}
	if ev := mustRecv[*proto.PhaseChanged](t, a); ev.Phase != uint32(PhaseFinished) {
		t.Fatalf("expected finished phase, got %+v", ev)
	}
	if s, _ := sessionByID(th.state(t), a.id); s.Coins != roundWinReward {
		t.Fatalf("unexpected winner balance: %+v", s)
	}
}

func TestSpectatorsAndCapacity(t *testing.T) {
	th := newTestHub(t, Rules{MaxPlayers: 1}, nil)
	a := th.join(t, false)

	watcher := th.connect(t)
	mustSubmit(t, th.Hub, PlayerJoin{SessionID: watcher.id, AsSpectator: true, Client: watcher})
	if ev := mustRecv[*proto.JoinAccepted](t, watcher); !ev.Spectator {
		t.Fatalf("expected spectator admission: %+v", ev)
	}
	if ev := mustRecv[*proto.PlayerJoined](t, watcher); ev.ClientID != a.id {
		t.Fatalf("spectator should learn about existing players: %+v", ev)
	}

	late := th.connect(t)
	mustSubmit(t, th.Hub, PlayerJoin{SessionID: late.id, Client: late})
	mustError(t, late, ErrCodeRoomFull)

	mustSubmit(t, th.Hub, PlayerShoot{SessionID: watcher.id, TargetID: a.id})
	mustError(t, watcher, ErrCodeSpectator)

	mustSubmit(t, th.Hub, PlayerJoin{SessionID: a.id, Client: a})
	mustError(t, a, ErrCodeAlreadyJoined)

	if snap := th.state(t); snap.Room.HostID != a.id {
		t.Fatalf("spectators never host, got %d", snap.Room.HostID)
	}
}

func TestRoomRename(t *testing.T) {
	th := newTestHub(t, Rules{}, nil)
	a := th.join(t, false)
	b := th.join(t, false)

	mustSubmit(t, th.Hub, UpdateRoomName{SessionID: b.id, Name: "mine"})
	mustError(t, b, ErrCodeNotHost)

	mustSubmit(t, th.Hub, UpdateRoomName{SessionID: a.id, Name: strings.Repeat("x", maxRoomNameRunes+1)})
	mustError(t, a, ErrCodeBadRequest)

	mustSubmit(t, th.Hub, UpdateRoomName{SessionID: a.id, Name: "  Den  "})
	if ev := mustRecv[*proto.RoomRenamed](t, b); ev.Name != "Den" {
		t.Fatalf("unexpected rename: %+v", ev)
	}
	th.state(t)
	states, _ := th.lobby.snapshot()
	if got := states[len(states)-1].Name; got != "Den" {
		t.Fatalf("lobby should see new name, got %q", got)
	}
}

func TestPingEchoesClientTime(t *testing.T) {
	clock := newFakeClock()
	th := newTestHub(t, Rules{}, func(d *Deps) { d.Now = clock.Now })
	p := th.connect(t)

	mustSubmit(t, th.Hub, Ping{Client: p, ClientTime: 77})
	ev := mustRecv[*proto.Pong](t, p)
	if ev.ClientTime != 77 || ev.ServerTime != clock.Now().UnixMilli() {
		t.Fatalf("unexpected pong: %+v", ev)
	}
}

func TestMovementAndTargeting(t *testing.T) {
	th := newTestHub(t, Rules{}, nil)
	a := th.join(t, false)
	b := th.join(t, false)

	mustSubmit(t, th.Hub, PlayerMovement{SessionID: a.id, Movement: proto.MovementData{X: 1, Seq: 2}})
	mustSubmit(t, th.Hub, PlayerMovement{SessionID: a.id, Movement: proto.MovementData{X: 9, Seq: 1}})
	mustSubmit(t, th.Hub, PlayerMovement{SessionID: a.id, Movement: proto.MovementData{X: 3, Seq: 3}})

	for _, want := range []float32{1, 3} {
		if ev := mustRecv[*proto.PlayerMoved](t, b); ev.ClientID != a.id || ev.Data.X != want {
			t.Fatalf("expected move to %v, got %+v", want, ev)
		}
	}

	mustSubmit(t, th.Hub, PlayerTargeting{SessionID: a.id, TargetID: a.id})
	mustError(t, a, ErrCodeInvalidTarget)
	mustSubmit(t, th.Hub, PlayerTargeting{SessionID: a.id, TargetID: b.id})
	if ev := mustRecv[*proto.TargetChanged](t, b); ev.ClientID != a.id || ev.TargetID != b.id {
		t.Fatalf("unexpected target change: %+v", ev)
	}

	th.state(t)
	for {
		select {
		case msg := <-a.out:
			if _, ok := msg.(*proto.PlayerMoved); ok {
				t.Fatal("sender should not receive its own movement")
			}
		default:
			return
		}
	}
}

func TestChatValidation(t *testing.T) {
	th := newTestHub(t, Rules{}, nil)
	p := th.join(t, false)

	mustSubmit(t, th.Hub, Chat{SessionID: p.id, Text: "   "})
	mustError(t, p, ErrCodeBadRequest)
	mustSubmit(t, th.Hub, Chat{SessionID: p.id, Text: strings.Repeat("é", maxChatRunes+1)})
	mustError(t, p, ErrCodeBadRequest)
}
