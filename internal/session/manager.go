package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Session binds a channel to a conversational-engine conversation.
// A channel has at most one active session at any time.
type Session struct {
	ID           string
	ChannelID    string
	EngineHandle string // opaque handle into the conversational engine
	Status       string
	CreatedAt    time.Time
	LastActivity time.Time
}

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Opener mints conversation handles in the underlying conversational engine.
type Opener interface {
	OpenConversation(ctx context.Context) (string, error)
}

// Manager owns the session lifecycle: creation, reuse, activity tracking and
// archival. Archival is append-only — an archived session is never
// reactivated; a fresh active session is created for the channel instead.
type Manager struct {
	db     *sql.DB
	opener Opener
	now    func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	channel_id    TEXT NOT NULL,
	engine_handle TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_channel
	ON sessions(channel_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_sessions_status_activity
	ON sessions(status, last_activity);
`

// Open opens (creating if needed) the session database at path.
func Open(path string, opener Opener) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate session db: %w", err)
	}

	return &Manager{db: db, opener: opener, now: time.Now}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

// GetOrCreate returns the channel's active session, creating one if absent.
// This is the only creation path.
func (m *Manager) GetOrCreate(ctx context.Context, channelID string) (*Session, error) {
	if s, err := m.activeForChannel(ctx, channelID); err == nil {
		return s, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	handle, err := m.opener.OpenConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine conversation: %w", err)
	}

	now := m.now().UTC()
	s := &Session{
		ID:           uuid.NewString(),
		ChannelID:    channelID,
		EngineHandle: handle,
		Status:       StatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO sessions(id, channel_id, engine_handle, status, created_at, last_activity)
		 VALUES(?,?,?,?,?,?)`,
		s.ID, s.ChannelID, s.EngineHandle, s.Status, s.CreatedAt.Unix(), s.LastActivity.Unix(),
	)
	if err != nil {
		// A concurrent creator won the unique active-per-channel index; use theirs.
		if existing, selErr := m.activeForChannel(ctx, channelID); selErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	return s, nil
}

// Touch updates the session's last-activity time. Called on every successful
// interaction, scheduled or live.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	res, err := m.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE id = ?`,
		m.now().UTC().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

// ArchiveOlderThan archives every active session idle for more than
// thresholdDays and returns the number archived. The underlying engine
// conversation state is left untouched.
func (m *Manager) ArchiveOlderThan(ctx context.Context, thresholdDays int) (int, error) {
	cutoff := m.now().UTC().AddDate(0, 0, -thresholdDays).Unix()
	res, err := m.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE status = ? AND last_activity < ?`,
		StatusArchived, StatusActive, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to archive sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ActiveCount returns the number of active sessions, for startup diagnostics.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE status = ?`, StatusActive,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.scanOne(m.db.QueryRowContext(ctx,
		`SELECT id, channel_id, engine_handle, status, created_at, last_activity
		 FROM sessions WHERE id = ?`, sessionID))
}

func (m *Manager) activeForChannel(ctx context.Context, channelID string) (*Session, error) {
	return m.scanOne(m.db.QueryRowContext(ctx,
		`SELECT id, channel_id, engine_handle, status, created_at, last_activity
		 FROM sessions WHERE channel_id = ? AND status = ?`, channelID, StatusActive))
}

func (m *Manager) scanOne(row *sql.Row) (*Session, error) {
	var s Session
	var created, activity int64
	err := row.Scan(&s.ID, &s.ChannelID, &s.EngineHandle, &s.Status, &created, &activity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	s.LastActivity = time.Unix(activity, 0).UTC()
	return &s, nil
}
