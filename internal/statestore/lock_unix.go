//go:build !windows

package statestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// WithLock runs fn while holding an exclusive flock on the store's lock
// file, retrying until the lock is acquired or ctx expires.
func (s *Store) WithLock(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	lockPath := s.Path("store.lck")
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("open lock %s: %w", lockPath, err)
	}
	defer file.Close()

	fd := int(file.Fd())
	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			if waitErr := waitForLockRetry(ctx, lockPath); waitErr != nil {
				return waitErr
			}
			continue
		}
		return fmt.Errorf("flock %s: %w", lockPath, err)
	}
	defer func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
	}()

	return fn()
}

func waitForLockRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("lock %s: %w", lockPath, ctx.Err())
	case <-timer.C:
		return nil
	}
}
