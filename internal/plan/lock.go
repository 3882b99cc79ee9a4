package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFileName = "mission.lock"

// ErrLocked is returned when another live process holds the data directory.
var ErrLocked = errors.New("mission is already running")

// Lock guards a data directory against concurrent missions from different
// processes. The in-process guard is the state machine; this one covers two
// nodes pointed at the same directory. A lock file holding this process's own
// PID is therefore stale: it was left by an earlier process that had the same
// PID, as PID 1 does in a restarted container.
type Lock struct {
	path string
}

// NewLock creates a lock for the given data directory.
func NewLock(dataDir string) *Lock {
	return &Lock{
		path: filepath.Join(dataDir, lockFileName),
	}
}

// Acquire attempts to take the lock.
// Stale locks (own or dead PID, unreadable content) are removed and retried once.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	err := l.create()
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	data, readErr := os.ReadFile(l.path)
	if readErr != nil {
		return fmt.Errorf("failed to read existing lock file: %w", readErr)
	}

	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if parseErr == nil && processExists(pid) {
		return fmt.Errorf("%w (PID %d)", ErrLocked, pid)
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("failed to remove stale lock file: %w", removeErr)
	}

	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: lock taken by another process during retry", ErrLocked)
		}
		return fmt.Errorf("failed to create lock file on retry: %w", err)
	}
	return nil
}

// create publishes a fully written lock file with a hard link, so no reader
// ever observes an empty lock.
func (l *Lock) create() error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), "."+lockFileName+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, writeErr := fmt.Fprintf(tmp, "%d", os.Getpid())
	closeErr := tmp.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write lock file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to write lock file: %w", closeErr)
	}
	return os.Link(tmpPath, l.path)
}

// Release removes the lock file. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// processExists checks if another process with the given PID is running.
// Signal 0 checks for existence without delivering anything.
func processExists(pid int) bool {
	if pid == os.Getpid() || pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// EPERM: the process exists but belongs to another user
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
