package core

import (
	"context"
	"net"

	"github.com/vovakirdan/wirearena-server/internal/proto"
)

// Peer is a connected session as seen by the Hub. All methods must be safe to
// call from the Hub goroutine without blocking on the network.
type Peer interface {
	ID() uint64
	RemoteAddr() string
	// SetName records the display name once the player is admitted.
	SetName(name string)
	// Start launches the session's goroutines. Called exactly once.
	Start(ctx context.Context)
	// Send queues msg for delivery. It fails once the session is closing or
	// its outbound queue is full.
	Send(msg proto.Message) error
	// Disconnect tears the session down. Idempotent.
	Disconnect()
}

// Submitter accepts intents for serialized application.
type Submitter interface {
	Submit(in Intent) error
}

// SessionFactory builds the Peer for a freshly accepted connection.
type SessionFactory func(id uint64, conn net.Conn, submit Submitter) Peer
