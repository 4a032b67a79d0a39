package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "maquette/internal/errors"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	dir := t.TempDir()

	handle, err := AcquireLock(dir, "sess-1")
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if handle.Info().PID != os.Getpid() {
		t.Errorf("lock PID = %d, want %d", handle.Info().PID, os.Getpid())
	}

	// A second acquisition by this live process is refused.
	if _, err := AcquireLock(dir, "sess-1"); !apperrors.Is(err, apperrors.ErrSessionLocked) {
		t.Errorf("second AcquireLock() error = %v, want ErrSessionLocked", err)
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	// Release is idempotent.
	if err := handle.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	// The lock can be taken again after release.
	handle2, err := AcquireLock(dir, "sess-1")
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	handle2.Release()
}

func TestStaleLockReclaimed(t *testing.T) {
	dir := t.TempDir()

	// A lock left behind by a process that no longer exists.
	stale := Lock{SessionID: "sess-1", PID: -1, Hostname: "gone", AcquiredAt: time.Now().Add(-time.Hour)}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal stale lock: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, LockFileName), data, 0644); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}

	handle, err := AcquireLock(dir, "sess-1")
	if err != nil {
		t.Fatalf("AcquireLock() over stale lock error = %v", err)
	}
	defer handle.Release()

	if handle.Info().PID != os.Getpid() {
		t.Errorf("reclaimed lock PID = %d, want %d", handle.Info().PID, os.Getpid())
	}
}

func TestIsLocked(t *testing.T) {
	dir := t.TempDir()

	if _, locked := IsLocked(dir); locked {
		t.Fatal("empty directory should not be locked")
	}

	handle, err := AcquireLock(dir, "sess-1")
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	lock, locked := IsLocked(dir)
	if !locked {
		t.Fatal("IsLocked() = false while lock is held")
	}
	if lock.SessionID != "sess-1" {
		t.Errorf("lock session = %q, want %q", lock.SessionID, "sess-1")
	}

	handle.Release()
	if _, locked := IsLocked(dir); locked {
		t.Error("IsLocked() = true after release")
	}
}
