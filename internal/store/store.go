// Package store persists the session journal: one row per session with its
// open and close times and how it ended.
package store

import (
	"context"
	"time"
)

// SessionRecord describes one session as seen by the journal.
type SessionRecord struct {
	ServerID   string    `json:"server_id"`
	SessionID  uint64    `json:"session_id"`
	RemoteAddr string    `json:"remote_addr"`
	Name       string    `json:"name,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at,omitzero"`
	Normal     bool      `json:"normal"`
	Reason     string    `json:"reason,omitempty"`
}

// Journal is the durable session log.
type Journal interface {
	OpenSession(ctx context.Context, rec SessionRecord) error
	CloseSession(ctx context.Context, rec SessionRecord) error
	RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}

// Recorder accepts journal writes without blocking the caller.
type Recorder interface {
	RecordOpened(rec SessionRecord)
	RecordClosed(rec SessionRecord)
}

// NopRecorder discards every record.
type NopRecorder struct{}

func (NopRecorder) RecordOpened(SessionRecord) {}
func (NopRecorder) RecordClosed(SessionRecord) {}
