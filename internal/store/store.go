// Package store persists attachment metadata in SQLite. The payload
// bytes live on disk in the attachment directory; this database only
// records what was posted, by whom, and when.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrAttachmentNotFound is returned when no metadata exists for a name.
var ErrAttachmentNotFound = errors.New("attachment metadata not found")

// Attachment is one posted file's metadata row.
type Attachment struct {
	Name      string
	Sender    string
	SizeBytes int64
	CreatedAt time.Time
}

// Store persists attachment metadata in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS attachments (
	name TEXT PRIMARY KEY,
	sender TEXT NOT NULL,
	size_bytes INTEGER NOT NULL CHECK(size_bytes >= 0),
	created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attachments_created_at ON attachments(created_at_unix_ms);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// PutAttachment records one attachment row. Posting a file with a name
// that already exists replaces the previous row, matching the on-disk
// overwrite.
func (s *Store) PutAttachment(ctx context.Context, a Attachment) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("attachment name is required")
	}
	if a.SizeBytes < 0 {
		return fmt.Errorf("attachment size must be non-negative")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO attachments (name, sender, size_bytes, created_at_unix_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	sender = excluded.sender,
	size_bytes = excluded.size_bytes,
	created_at_unix_ms = excluded.created_at_unix_ms
`
	_, err := s.db.ExecContext(ctx, q, a.Name, a.Sender, a.SizeBytes, a.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert attachment metadata: %w", err)
	}
	slog.Debug("attachment metadata stored", "name", a.Name, "size", a.SizeBytes)
	return nil
}

// AttachmentByName returns one attachment's metadata.
func (s *Store) AttachmentByName(ctx context.Context, name string) (Attachment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Attachment{}, fmt.Errorf("attachment name is required")
	}

	const q = `
SELECT name, sender, size_bytes, created_at_unix_ms
FROM attachments
WHERE name = ?
`
	var (
		a         Attachment
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, q, name).Scan(&a.Name, &a.Sender, &a.SizeBytes, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attachment{}, ErrAttachmentNotFound
		}
		return Attachment{}, fmt.Errorf("query attachment metadata: %w", err)
	}
	a.CreatedAt = time.UnixMilli(createdMs).UTC()
	return a, nil
}

// ListAttachments returns every attachment row, newest first.
func (s *Store) ListAttachments(ctx context.Context) ([]Attachment, error) {
	const q = `
SELECT name, sender, size_bytes, created_at_unix_ms
FROM attachments
ORDER BY created_at_unix_ms DESC, name
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var (
			a         Attachment
			createdMs int64
		)
		if err := rows.Scan(&a.Name, &a.Sender, &a.SizeBytes, &createdMs); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
