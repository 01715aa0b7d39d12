package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirearena-server/internal/store"
)

// Schema is applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	server_id   TEXT     NOT NULL,
	session_id  INTEGER  NOT NULL,
	remote_addr TEXT     NOT NULL DEFAULT '',
	name        TEXT     NOT NULL DEFAULT '',
	opened_at   DATETIME NOT NULL,
	closed_at   DATETIME,
	normal      BOOLEAN  NOT NULL DEFAULT 0,
	reason      TEXT     NOT NULL DEFAULT '',
	PRIMARY KEY (server_id, session_id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_opened_at ON sessions (opened_at);
`

// SQLiteStore implements store.Journal for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup opens the database and runs setup instead of the default schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// OpenSession inserts a row for a newly accepted session.
func (s *SQLiteStore) OpenSession(ctx context.Context, rec store.SessionRecord) error {
	query := `
		INSERT INTO sessions (server_id, session_id, remote_addr, name, opened_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, rec.ServerID, int64(rec.SessionID), rec.RemoteAddr, rec.Name, rec.OpenedAt.UTC()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CloseSession stamps the close time and outcome. Closing an unknown session
// is an error.
func (s *SQLiteStore) CloseSession(ctx context.Context, rec store.SessionRecord) error {
	query := `
		UPDATE sessions
		SET closed_at = ?, normal = ?, reason = ?, name = CASE WHEN ? <> '' THEN ? ELSE name END
		WHERE server_id = ? AND session_id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.ClosedAt.UTC(), rec.Normal, rec.Reason, rec.Name, rec.Name,
		rec.ServerID, int64(rec.SessionID))
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("close session %d: not found", rec.SessionID)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *SQLiteStore) RecentSessions(ctx context.Context, limit int) ([]store.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT server_id, session_id, remote_addr, name, opened_at, closed_at, normal, reason
		FROM sessions
		ORDER BY opened_at DESC, session_id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []store.SessionRecord
	for rows.Next() {
		var (
			rec      store.SessionRecord
			id       int64
			openedAt time.Time
			closedAt sql.NullTime
		)
		if err := rows.Scan(&rec.ServerID, &id, &rec.RemoteAddr, &rec.Name, &openedAt, &closedAt, &rec.Normal, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.SessionID = uint64(id)
		rec.OpenedAt = openedAt
		if closedAt.Valid {
			rec.ClosedAt = closedAt.Time
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

var _ store.Journal = (*SQLiteStore)(nil)
