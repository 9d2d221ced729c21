//go:build windows

package statestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// WithLock runs fn while holding an exclusive create-lock on the store's
// lock file, retrying until the lock is acquired or ctx expires.
func (s *Store) WithLock(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	lockPath := s.Path("store.lck")
	for {
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
		if err == nil {
			defer func() {
				_ = file.Close()
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("open lock %s: %w", lockPath, err)
		}
		timer := time.NewTimer(lockRetryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("lock %s: %w", lockPath, ctx.Err())
		case <-timer.C:
		}
	}
}
