// Package testutil provides testing utilities for the missionctl project.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

// CommandFunc matches exec.CommandContext.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// MockCommandFunc creates a mock command that outputs the given response.
// Usage: planner.CommandContext = testutil.MockCommandFunc(solverOutput)
func MockCommandFunc(output string) CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "echo", "-n", output)
	}
}

// MissingCommandFunc creates commands that fail to start.
func MissingCommandFunc() CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "missionctl-test-no-such-binary")
	}
}

// CommandRecorder wraps a CommandFunc and records the arguments of every call.
type CommandRecorder struct {
	mu    sync.Mutex
	calls [][]string
	next  CommandFunc
}

// NewCommandRecorder records calls and delegates to next (exec.CommandContext
// when nil).
func NewCommandRecorder(next CommandFunc) *CommandRecorder {
	if next == nil {
		next = exec.CommandContext
	}
	return &CommandRecorder{next: next}
}

// Func returns the recording CommandFunc.
func (r *CommandRecorder) Func() CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		r.mu.Lock()
		r.calls = append(r.calls, append([]string{name}, args...))
		r.mu.Unlock()
		return r.next(ctx, name, args...)
	}
}

// Calls returns the recorded command lines.
func (r *CommandRecorder) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// WriteFile writes content under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// SetupTestDir creates a temp directory, resolves symlinks (for macOS),
// changes to it, and registers cleanup to restore the original working directory.
// Returns the resolved temp directory path.
func SetupTestDir(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	// Resolve symlinks for macOS (/var -> /private/var)
	if resolved, err := filepath.EvalSymlinks(tmpDir); err != nil {
		t.Logf("warning: could not resolve symlinks for temp dir: %v", err)
	} else {
		tmpDir = resolved
	}

	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change to temp dir: %v", err)
	}

	t.Cleanup(func() {
		os.Chdir(originalWd)
	})

	return tmpDir
}
