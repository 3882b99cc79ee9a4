// Package problem provides problem generators that refresh the problem file
// before each planning attempt.
package problem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Placeholder is replaced with the problem path in command templates.
const Placeholder = "PROBLEM"

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// Noop leaves the existing problem file untouched. It only checks that the
// file exists so a missing problem shows up in the logs.
type Noop struct{}

// Generate implements mission.ProblemGenerator.
func (Noop) Generate(ctx context.Context, problemPath string) error {
	if _, err := os.Stat(problemPath); err != nil {
		return fmt.Errorf("problem file unavailable: %w", err)
	}
	return nil
}

// CommandGenerator runs a shell command that writes the problem file. The
// first PROBLEM in the command is replaced with the problem path.
type CommandGenerator struct {
	Command string
	Timeout time.Duration
}

// NewCommandGenerator validates the command template.
func NewCommandGenerator(command string, timeout time.Duration) (*CommandGenerator, error) {
	if !strings.Contains(command, Placeholder) {
		return nil, fmt.Errorf("problem command %q has no %s placeholder", command, Placeholder)
	}
	return &CommandGenerator{Command: command, Timeout: timeout}, nil
}

// Generate implements mission.ProblemGenerator.
func (g *CommandGenerator) Generate(ctx context.Context, problemPath string) error {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	command := strings.Replace(g.Command, Placeholder, problemPath, 1)
	var stderr bytes.Buffer
	cmd := CommandContext(ctx, "sh", "-c", command)
	cmd.Stderr = &stderr
	// don't wait on grandchildren still holding stderr after a kill
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("problem generation timed out")
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("problem generation failed: %w: %s", err, msg)
		}
		return fmt.Errorf("problem generation failed: %w", err)
	}
	return nil
}
