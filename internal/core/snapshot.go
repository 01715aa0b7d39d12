package core

import (
	"errors"
	"slices"
	"time"
)

// StateSnapshot is a copy of the Hub's state for operators.
type StateSnapshot struct {
	Room     RoomSnapshot      `json:"room"`
	Sessions []SessionSnapshot `json:"sessions"`
}

type RoomSnapshot struct {
	Name   string `json:"name"`
	Phase  string `json:"phase"`
	Round  int    `json:"round"`
	HostID uint64 `json:"host_id"`
}

type SessionSnapshot struct {
	ID         uint64    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	OpenedAt   time.Time `json:"opened_at"`
	Pending    bool      `json:"pending,omitempty"`
	Joined     bool      `json:"joined"`
	Name       string    `json:"name,omitempty"`
	Spectator  bool      `json:"spectator,omitempty"`
	Health     int       `json:"health,omitempty"`
	Coins      int       `json:"coins,omitempty"`
	Mining     bool      `json:"mining,omitempty"`
}

func (h *Hub) snapshot(in Snapshot) error {
	if in.Reply == nil {
		return errors.New("snapshot: nil reply channel")
	}

	snap := StateSnapshot{
		Room: RoomSnapshot{
			Name:   h.room.Name,
			Phase:  h.room.Phase.String(),
			Round:  h.room.Round,
			HostID: h.room.HostID,
		},
		Sessions: make([]SessionSnapshot, 0, len(h.sessions)),
	}
	for id, entry := range h.sessions {
		s := SessionSnapshot{
			ID:         id,
			RemoteAddr: entry.peer.RemoteAddr(),
			OpenedAt:   entry.openedAt,
			Pending:    entry.pending,
		}
		if p := h.room.Player(id); p != nil {
			s.Joined = true
			s.Name = p.Name
			s.Spectator = p.Spectator
			s.Health = p.Health
			s.Coins = p.Coins
			s.Mining = p.Mining()
		}
		snap.Sessions = append(snap.Sessions, s)
	}
	slices.SortFunc(snap.Sessions, func(a, b SessionSnapshot) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	select {
	case in.Reply <- snap:
	default:
		return errors.New("snapshot: reply channel not ready")
	}
	return nil
}
