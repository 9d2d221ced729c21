// Package statestore keeps the bot's on-disk state (session credentials,
// sync token) as JSON files under one directory, written atomically and
// guarded by a file lock so two bot processes cannot clobber each other.
package statestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultDirPerm  = os.FileMode(0o700)
	defaultFilePerm = os.FileMode(0o600)
	lockRetryWait   = 25 * time.Millisecond
)

// Store is a directory of JSON state files.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(root, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("ensure store dir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// ReadJSON loads name into out. The boolean reports whether the file
// existed with content.
func (s *Store) ReadJSON(name string, out any) (bool, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// WriteJSON writes v to name atomically: temp file, fsync, rename.
func (s *Store) WriteJSON(name string, v any) error {
	path := s.Path(name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.root, name+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	defer cleanup()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}

	// Best effort directory sync for durability; ignore failures.
	if dirFD, err := os.Open(s.root); err == nil {
		_ = dirFD.Sync()
		_ = dirFD.Close()
	}
	return nil
}
