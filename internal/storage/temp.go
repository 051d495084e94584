package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidUser is returned when a non-positive user identifier is used.
var ErrInvalidUser = errors.New("storage: invalid user id")

// Compile-time check that TempManager implements Tracker.
var _ Tracker = (*TempManager)(nil)

type entry struct {
	dir  string
	path string
}

// TempManager hands out per-user work directories under a root directory and
// tracks the one live asset of each user.
type TempManager struct {
	root   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[int64]*entry
}

// NewTempManager creates a TempManager rooted at root.
// If root is empty, a "tiktokbot" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewTempManager(root string, logger *slog.Logger) (*TempManager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "tiktokbot")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &TempManager{
		root:    root,
		logger:  logger,
		entries: make(map[int64]*entry),
	}, nil
}

// Root returns the root directory.
func (m *TempManager) Root() string {
	return m.root
}

// Acquire creates a fresh work directory for userID. Anything still held for
// the user is released first.
func (m *TempManager) Acquire(userID int64) (string, error) {
	if userID <= 0 {
		return "", ErrInvalidUser
	}

	dir := filepath.Join(m.root, fmt.Sprintf("%d-%s", userID, uuid.NewString()))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}

	m.mu.Lock()
	prev := m.entries[userID]
	m.entries[userID] = &entry{dir: dir}
	m.mu.Unlock()

	if prev != nil {
		m.remove(userID, prev)
	}
	return dir, nil
}

// Register makes path the live asset of userID, deleting the previously
// registered file if it differs.
func (m *TempManager) Register(userID int64, path string) {
	m.mu.Lock()
	e, ok := m.entries[userID]
	if !ok {
		e = &entry{dir: filepath.Dir(path)}
		m.entries[userID] = e
	}
	prev := e.path
	e.path = path
	m.mu.Unlock()

	if prev != "" && prev != path {
		m.removeFile(userID, prev)
	}
}

// Path returns the live asset of userID.
func (m *TempManager) Path(userID int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok || e.path == "" {
		return "", false
	}
	return e.path, true
}

// Active returns the number of users holding a work directory or asset.
func (m *TempManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Release deletes the live asset of userID and its directory when empty,
// then forgets the user. Releasing an unknown user is a no-op.
func (m *TempManager) Release(userID int64) {
	m.mu.Lock()
	e, ok := m.entries[userID]
	delete(m.entries, userID)
	m.mu.Unlock()

	if ok {
		m.remove(userID, e)
	}
}

// ReleaseAll releases every tracked user.
func (m *TempManager) ReleaseAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[int64]*entry)
	m.mu.Unlock()

	for userID, e := range entries {
		m.remove(userID, e)
	}
}

func (m *TempManager) remove(userID int64, e *entry) {
	if e.path != "" {
		m.removeFile(userID, e.path)
	}
	dir := e.dir
	if dir == "" && e.path != "" {
		dir = filepath.Dir(e.path)
	}
	m.removeDir(userID, dir)
}

func (m *TempManager) removeFile(userID int64, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove temp file",
			slog.Int64("user_id", userID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// removeDir deletes dir when it is an empty directory strictly below root.
func (m *TempManager) removeDir(userID int64, dir string) {
	if dir == "" || !m.within(dir) {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to read work directory",
				slog.Int64("user_id", userID),
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if len(entries) > 0 {
		m.logger.Warn("work directory not empty, leaving in place",
			slog.Int64("user_id", userID),
			slog.String("dir", dir),
			slog.Int("entries", len(entries)),
		)
		return
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove work directory",
			slog.Int64("user_id", userID),
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

func (m *TempManager) within(dir string) bool {
	rel, err := filepath.Rel(m.root, dir)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// CleanStale removes work directories under root older than maxAge that are
// not held by a live user. It returns the removed directories.
func (m *TempManager) CleanStale(ctx context.Context, maxAge time.Duration) []string {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		m.logger.Warn("failed to read temp root",
			slog.String("root", m.root),
			slog.String("error", err.Error()),
		)
		return nil
	}

	m.mu.Lock()
	held := make(map[string]bool, len(m.entries))
	for _, e := range m.entries {
		held[e.dir] = true
	}
	m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, de := range entries {
		if ctx.Err() != nil {
			break
		}
		if !de.IsDir() || !looksLikeWorkDir(de.Name()) {
			continue
		}
		dir := filepath.Join(m.root, de.Name())
		if held[dir] {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove stale work directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.logger.Info("removed stale work directory",
			slog.String("dir", dir),
			slog.Duration("age", time.Since(info.ModTime())),
		)
		removed = append(removed, dir)
	}
	return removed
}

// looksLikeWorkDir matches names produced by Acquire: "<userID>-<uuid>".
func looksLikeWorkDir(name string) bool {
	user, id, ok := strings.Cut(name, "-")
	if !ok {
		return false
	}
	if _, err := strconv.ParseInt(user, 10, 64); err != nil {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
