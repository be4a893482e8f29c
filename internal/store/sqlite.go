// ABOUTME: SQLite implementation of the SessionStore interface using modernc.org/sqlite
// ABOUTME: Keeps one JSON session record per channel with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the SessionStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ SessionStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			channel TEXT PRIMARY KEY,
			record BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveSession saves or updates the session record for a channel.
// Uses INSERT OR REPLACE to handle both insert and update cases.
func (s *SQLiteStore) SaveSession(ctx context.Context, channel string, session *Session) error {
	if channel == "" {
		return ErrInvalidChannel
	}

	data, err := encodeRecord(session)
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO sessions (channel, record, updated_at)
		VALUES (?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		channel,
		data,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	s.logger.Debug("saved session", "channel", channel, "count", session.UserMessageCount)
	return nil
}

// GetSession retrieves the session record for a channel.
// Returns ErrNotFound if the channel has no saved record.
func (s *SQLiteStore) GetSession(ctx context.Context, channel string) (*Session, error) {
	query := `SELECT record FROM sessions WHERE channel = ?`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, channel).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	return decodeRecord(data)
}

// DeleteSession removes the record for a channel. Deleting a missing record is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, channel string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE channel = ?`, channel); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListSessions returns every stored record ordered by channel.
// Corrupt rows are skipped and logged.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*ChannelSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, record, updated_at FROM sessions ORDER BY channel`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []*ChannelSession
	for rows.Next() {
		var (
			channel   string
			data      []byte
			updatedAt string
		)
		if err := rows.Scan(&channel, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		sess, err := decodeRecord(data)
		if err != nil {
			s.logger.Warn("skipping unreadable session", "channel", channel, "error", err)
			continue
		}

		cs := &ChannelSession{Channel: channel, Session: sess}
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			cs.UpdatedAt = ts
		}
		result = append(result, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	return result, nil
}
