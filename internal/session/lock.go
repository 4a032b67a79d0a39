package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	apperrors "maquette/internal/errors"
)

// LockFileName is the name of the lock file within a session directory.
const LockFileName = "session.lock"

// Lock records which process is driving a session. Only one process may
// drive a session at a time; a lock whose process is gone is stale and may
// be reclaimed.
type Lock struct {
	SessionID  string    `json:"session_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockHandle represents an acquired session lock.
type LockHandle struct {
	lock     *Lock
	lockPath string
	released bool
}

// AcquireLock attempts to take the session's process lock. A live lock held
// by another process yields ErrSessionLocked; a stale lock is reclaimed.
func AcquireLock(sessionDir, sessionID string) (*LockHandle, error) {
	lockPath := filepath.Join(sessionDir, LockFileName)

	if existing, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, fmt.Errorf("%w: held by PID %d on %s",
				apperrors.ErrSessionLocked, existing.PID, existing.Hostname)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		SessionID:  sessionID,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL guards the window between the staleness check and the create.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, apperrors.ErrSessionLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close lock file: %w", err)
	}

	return &LockHandle{lock: lock, lockPath: lockPath}, nil
}

// Release removes the lock file. Safe to call multiple times.
func (h *LockHandle) Release() error {
	if h.released {
		return nil
	}

	existing, err := ReadLock(h.lockPath)
	if err != nil {
		h.released = true
		return nil
	}
	if existing.PID != h.lock.PID {
		// Another process reclaimed the lock; nothing of ours to remove.
		h.released = true
		return nil
	}

	if err := os.Remove(h.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	h.released = true
	return nil
}

// Info returns the lock's metadata.
func (h *LockHandle) Info() *Lock {
	return h.lock
}

// ReadLock reads and parses a lock file.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("invalid lock file: %w", err)
	}
	return &lock, nil
}

// IsLocked reports whether a live process currently holds the session lock.
func IsLocked(sessionDir string) (*Lock, bool) {
	lock, err := ReadLock(filepath.Join(sessionDir, LockFileName))
	if err != nil {
		return nil, false
	}
	if !isProcessAlive(lock.PID) {
		return lock, false
	}
	return lock, true
}

// isProcessAlive checks whether a process with the given PID exists.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
