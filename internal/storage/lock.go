// Package storage holds what the exclusion backends share: the project
// lock that keeps two ftaudit processes from writing exclusions at once.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// LockFile is the lock's name inside the project state directory
const LockFile = ".lock"

// ErrLocked is returned when another live process holds the lock
var ErrLocked = errors.New("exclusions are locked by another ftaudit process")

// Lock is the lock file format
type Lock struct {
	Holder    string    `json:"holder"` // Command that took the lock
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// AcquireLock creates the lock file in dir. A lock left by a process that
// no longer exists is taken over. Returns the lock file path for release.
func AcquireLock(dir, holder string) (lockPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	lockPath = filepath.Join(dir, LockFile)

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing Lock
		if json.Unmarshal(data, &existing) == nil && isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w (%s, PID %d on %s, started %s)", ErrLocked,
				existing.Holder, existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		// Stale or unreadable, overwrite
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	data, err := json.MarshalIndent(Lock{
		Holder:    holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseLock removes the lock file. Releasing twice is not an error.
func ReleaseLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether pid exists on hostname. A process on
// another host cannot be checked and counts as alive.
func isProcessAlive(pid int, hostname string) bool {
	if pid <= 0 {
		return false
	}
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks the pid without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means it exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
