package core

import (
	"slices"
	"time"

	"github.com/vovakirdan/wirearena-server/internal/proto"
)

// Phase is the room's position in the round cycle.
type Phase uint32

const (
	PhaseWaiting Phase = iota
	PhaseRoulette
	PhasePlaying
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseRoulette:
		return "roulette"
	case PhasePlaying:
		return "playing"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Player is a session that has been admitted into the room.
type Player struct {
	ID           uint64
	Name         string
	Spectator    bool
	Movement     proto.MovementData
	TargetID     uint64
	Accuracy     uint32
	Health       int
	Coins        int
	Items        map[uint32]int
	RouletteDone bool
	MiningSince  time.Time

	peer Peer
}

// Alive reports whether the player is a contestant with health left.
func (p *Player) Alive() bool {
	return !p.Spectator && p.Health > 0
}

// Mining reports whether coins are currently accruing.
func (p *Player) Mining() bool {
	return !p.MiningSince.IsZero()
}

// Room is the single game room a server hosts.
type Room struct {
	Name   string
	Phase  Phase
	Round  int
	HostID uint64

	players map[uint64]*Player
}

// NewRoom constructs an empty room in the waiting phase.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		players: make(map[uint64]*Player),
	}
}

// AddPlayer inserts p. Returns true if newly added.
func (r *Room) AddPlayer(p *Player) bool {
	if _, exists := r.players[p.ID]; exists {
		return false
	}
	r.players[p.ID] = p
	return true
}

// RemovePlayer deletes a player. Returns true if removed.
func (r *Room) RemovePlayer(id uint64) bool {
	if _, exists := r.players[id]; !exists {
		return false
	}
	delete(r.players, id)
	return true
}

// Player returns the player with id, or nil.
func (r *Room) Player(id uint64) *Player {
	return r.players[id]
}

// Players returns every player ordered by id.
func (r *Room) Players() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Player) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Contestants returns the non-spectators ordered by id.
func (r *Room) Contestants() []*Player {
	return slices.DeleteFunc(r.Players(), func(p *Player) bool { return p.Spectator })
}

// Alive returns contestants with health left, ordered by id.
func (r *Room) Alive() []*Player {
	return slices.DeleteFunc(r.Players(), func(p *Player) bool { return !p.Alive() })
}

// Counts returns the number of contestants and spectators.
func (r *Room) Counts() (contestants, spectators int) {
	for _, p := range r.players {
		if p.Spectator {
			spectators++
		} else {
			contestants++
		}
	}
	return contestants, spectators
}

// Broadcast sends msg to every player except the one with id except (0 sends
// to all). Delivery failures are left to the session to report.
func (r *Room) Broadcast(msg proto.Message, except uint64) {
	for id, p := range r.players {
		if id == except || p.peer == nil {
			continue
		}
		_ = p.peer.Send(msg)
	}
}
