// Package filelock serializes read-modify-write cycles on shared files with
// an advisory lock held on a sibling "<path>.lock" file.
//
// Writers take the exclusive lock for the whole cycle; readers take the shared
// lock. Files are replaced through a temp file and rename so a reader never
// observes a half-written document.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/ctagard/testops-mcp/internal/errors"
)

const retryInterval = 50 * time.Millisecond

// DefaultTimeout bounds how long a caller waits for the lock
const DefaultTimeout = 5 * time.Second

// WithLock runs fn while holding the exclusive lock for path
func WithLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	return withLock(ctx, path, timeout, false, fn)
}

// WithReadLock runs fn while holding the shared lock for path
func WithReadLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	return withLock(ctx, path, timeout, true, fn)
}

func withLock(ctx context.Context, path string, timeout time.Duration, shared bool, fn func() error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.StorageFailed("create directory for", path, err)
	}

	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var locked bool
	var err error
	if shared {
		locked, err = fileLock.TryRLockContext(lockCtx, retryInterval)
	} else {
		locked, err = fileLock.TryLockContext(lockCtx, retryInterval)
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || !locked {
		return errors.LockTimeout(path, timeout).WithCause(err)
	}
	defer fileLock.Unlock()

	return fn()
}

// WriteFile atomically replaces path with data
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename has succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
