// Package filestore keeps posted attachments on disk, one file per
// attachment, with metadata rows in the sqlite store.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatty/server/internal/store"
)

// ErrNoSuchFile is returned when a requested attachment does not exist
// in the attachment directory or is not a regular file.
var ErrNoSuchFile = errors.New("no such attachment")

// Store writes attachment bytes under a root directory and records
// metadata in sqlite. The sqlite store is optional; without it only
// the on-disk side is kept.
type Store struct {
	rootDir string
	meta    *store.Store
}

// New creates an attachment store rooted at rootDir.
func New(rootDir string, meta *store.Store) (*Store, error) {
	rootDir = strings.TrimSpace(rootDir)
	if rootDir == "" {
		return nil, fmt.Errorf("attachment directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment directory: %w", err)
	}
	slog.Debug("attachment store initialized", "dir", rootDir)
	return &Store{rootDir: rootDir, meta: meta}, nil
}

// Save stores one attachment. Any directory components in name are
// stripped, so every attachment lands directly in the root directory
// under its base name; posting the same name again overwrites. The
// bytes go through a temp file and a rename, so a reader never sees a
// half-written attachment. A metadata write failure does not undo the
// stored file.
func (s *Store) Save(ctx context.Context, name, sender string, data []byte) error {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return fmt.Errorf("attachment name %q is empty after stripping directories", name)
	}

	tempFile, err := os.CreateTemp(s.rootDir, ".attach-write-*")
	if err != nil {
		return fmt.Errorf("create temp attachment file: %w", err)
	}
	tempPath := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()
	if writeErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("write attachment bytes: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close attachment file: %w", closeErr)
	}

	finalPath := filepath.Join(s.rootDir, base)
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("move attachment into place: %w", err)
	}

	if s.meta != nil {
		err := s.meta.PutAttachment(ctx, store.Attachment{
			Name:      base,
			Sender:    sender,
			SizeBytes: int64(len(data)),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			slog.Warn("attachment metadata write failed", "name", base, "err", err)
		}
	}

	slog.Info("attachment stored", "name", base, "sender", sender, "size", len(data))
	return nil
}

// Read returns the bytes of the attachment at the requested path,
// resolved inside the root directory. The path is used as sent, so a
// request must name the attachment the way it was stored. A missing
// entry or a non-regular file yields ErrNoSuchFile.
func (s *Store) Read(name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNoSuchFile
	}
	path := filepath.Join(s.rootDir, name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSuchFile
		}
		return nil, fmt.Errorf("stat attachment: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNoSuchFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, nil
}

// Dir returns the attachment root directory.
func (s *Store) Dir() string { return s.rootDir }
