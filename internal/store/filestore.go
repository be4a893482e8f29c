// ABOUTME: Flat-file implementation of SessionStore, one JSON document per channel
// ABOUTME: Writes go through a sidecar flock and temp-file rename so records are never torn

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	recordExt = ".json"
	lockExt   = ".lock"
)

// ErrLockTimeout is returned when a record lock cannot be acquired in time
var ErrLockTimeout = errors.New("timeout acquiring record lock")

// FileStore implements SessionStore on a directory of JSON files.
type FileStore struct {
	dir         string
	lockTimeout time.Duration
	logger      *slog.Logger
}

var _ SessionStore = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. The directory is created on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:         dir,
		lockTimeout: 5 * time.Second,
		logger:      slog.Default().With("component", "store", "backend", "file"),
	}
}

// recordPath maps a channel to its file. Channels are path-escaped so any
// client-chosen identifier stays inside dir.
func (f *FileStore) recordPath(channel string) (string, error) {
	if channel == "" {
		return "", ErrInvalidChannel
	}
	name := url.PathEscape(channel)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return filepath.Join(f.dir, name+recordExt), nil
}

func (f *FileStore) lock(ctx context.Context, path string, shared bool) (*flock.Flock, error) {
	lock := flock.New(path + lockExt)

	lockCtx, cancel := context.WithTimeout(ctx, f.lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = lock.TryRLockContext(lockCtx, 50*time.Millisecond)
	} else {
		locked, err = lock.TryLockContext(lockCtx, 50*time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring record lock: %w", err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	return lock, nil
}

// GetSession reads the record for channel. Returns ErrNotFound if no file exists.
func (f *FileStore) GetSession(ctx context.Context, channel string) (*Session, error) {
	path, err := f.recordPath(channel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat session file: %w", err)
	}

	lock, err := f.lock(ctx, path, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return decodeRecord(data)
}

// SaveSession atomically replaces the record for channel.
func (f *FileStore) SaveSession(ctx context.Context, channel string, session *Session) error {
	path, err := f.recordPath(channel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := encodeRecord(session)
	if err != nil {
		return err
	}

	lock, err := f.lock(ctx, path, false)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(f.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming session file: %w", err)
	}

	f.logger.Debug("saved session", "channel", channel, "count", session.UserMessageCount)
	return nil
}

// DeleteSession removes the record for channel. Deleting a missing record is not an error.
func (f *FileStore) DeleteSession(ctx context.Context, channel string) error {
	path, err := f.recordPath(channel)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	lock, err := f.lock(ctx, path, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(path + lockExt)
	}()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// ListSessions reads every record in the directory, skipping unreadable ones.
func (f *FileStore) ListSessions(ctx context.Context) ([]*ChannelSession, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var result []*ChannelSession
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		channel, err := url.PathUnescape(strings.TrimSuffix(name, recordExt))
		if err != nil {
			continue
		}

		sess, err := f.GetSession(ctx, channel)
		if err != nil {
			f.logger.Warn("skipping unreadable session", "channel", channel, "error", err)
			continue
		}

		cs := &ChannelSession{Channel: channel, Session: sess}
		if info, err := entry.Info(); err == nil {
			cs.UpdatedAt = info.ModTime()
		}
		result = append(result, cs)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Channel < result[j].Channel })
	return result, nil
}

// Close is a no-op; the file store holds no open handles between calls.
func (f *FileStore) Close() error {
	return nil
}
