package statestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type sessionFile struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

func TestWriteThenReadJSON(t *testing.T) {
	t.Parallel()

	s, err := New(filepath.Join(t.TempDir(), "matrix_store"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	in := sessionFile{UserID: "@askaosus:aosus.org", AccessToken: "tok", DeviceID: "DEV"}
	if err := s.WriteJSON("session.json", in); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var out sessionFile
	ok, err := s.ReadJSON("session.json", &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !ok {
		t.Fatalf("ReadJSON() ok = false after write")
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var out sessionFile
	ok, err := s.ReadJSON("session.json", &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ok {
		t.Fatalf("ReadJSON() ok = true for missing file")
	}
}

func TestReadJSONEmptyFile(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.WriteFile(s.Path("session.json"), []byte("  \n"), 0o600); err != nil {
		t.Fatalf("seed empty file: %v", err)
	}
	var out sessionFile
	ok, err := s.ReadJSON("session.json", &out)
	if err != nil || ok {
		t.Fatalf("ReadJSON(empty) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestWriteJSONLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.WriteJSON("session.json", sessionFile{UserID: "u"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "session.json" {
			t.Fatalf("leftover file %q in store dir", e.Name())
		}
	}
}

func TestWithLockRuns(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ran := false
	if err := s.WithLock(context.Background(), func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !ran {
		t.Fatalf("WithLock() did not run fn")
	}
}

func TestNewRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := New("  "); err == nil {
		t.Fatalf("New() error = nil, want store path is required")
	}
}
