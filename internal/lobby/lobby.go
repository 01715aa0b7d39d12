// Package lobby talks to the external lobby service that tracks rooms across
// the deployment and issues session tokens.
package lobby

import (
	"context"
	"errors"
)

// Room states understood by the lobby.
const (
	StateInitializing = "initializing"
	StateWaiting      = "waiting"
	StatePlaying      = "playing"
	StateFinished     = "finished"
)

// ErrRejected is returned when the lobby refuses a session token.
var ErrRejected = errors.New("session token rejected")

// RoomStatus is a point-in-time description of this server's room.
type RoomStatus struct {
	ServerID   string `json:"server_id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Players    int    `json:"players"`
	Spectators int    `json:"spectators"`
	Round      int    `json:"round"`
}

// Departure describes a session leaving the room.
type Departure struct {
	ServerID string `json:"server_id"`
	ClientID uint64 `json:"client_id"`
	Name     string `json:"name,omitempty"`
	Normal   bool   `json:"normal"`
	Reason   string `json:"reason,omitempty"`
}

// Identity is what a validated session token resolves to.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Reporter delivers fire-and-forget notifications. Implementations must not
// block the caller.
type Reporter interface {
	ReportRoomState(status RoomStatus)
	ReportDeparture(dep Departure)
}

// Validator resolves a session token to an identity.
type Validator interface {
	ValidateSession(ctx context.Context, token string) (Identity, error)
}

// Nop is a Reporter that drops everything. Used when no lobby is configured.
type Nop struct{}

func (Nop) ReportRoomState(RoomStatus) {}
func (Nop) ReportDeparture(Departure)  {}
