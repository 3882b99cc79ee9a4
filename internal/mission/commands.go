package mission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pablasso/missionctl/internal/control"
)

// ErrUnknownCommand is returned for unrecognized textual commands.
var ErrUnknownCommand = errors.New("unknown command")

// RequestStart starts a mission with the default parameters. While a mission
// is active it only stashes hint for the next parsed plan and returns
// control.ErrBusy.
func (c *Controller) RequestStart(ctx context.Context, hint *int) (Report, error) {
	return c.Start(ctx, Params{}, hint)
}

// RequestStartWith starts a mission with explicit parameters.
func (c *Controller) RequestStartWith(ctx context.Context, params Params, hint *int) (Report, error) {
	return c.Start(ctx, params, hint)
}

// RequestPause pauses dispatch.
func (c *Controller) RequestPause() error {
	return c.deps.Machine.Pause()
}

// RequestResume resumes a paused dispatch.
func (c *Controller) RequestResume() error {
	return c.deps.Machine.Resume()
}

// RequestCancel cancels the active mission at its next checkpoint.
func (c *Controller) RequestCancel() error {
	return c.deps.Machine.Cancel()
}

// OnReplanNotification asks the current dispatch pass to stop and replan.
func (c *Controller) OnReplanNotification() {
	c.deps.Machine.RequestReplan()
	c.logger.Info("replan requested")
}

// Command is a parsed textual command.
type Command struct {
	Name string
	Hint *int
}

// ParseCommand parses "plan [actionID]", "pause", "resume", "cancel" and
// "replan".
func ParseCommand(text string) (Command, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty", ErrUnknownCommand)
	}
	cmd := Command{Name: fields[0]}
	switch cmd.Name {
	case "plan":
		if len(fields) > 2 {
			return Command{}, fmt.Errorf("%w: %q takes at most one action id", ErrUnknownCommand, text)
		}
		if len(fields) == 2 {
			id, err := strconv.Atoi(fields[1])
			if err != nil || id < 0 {
				return Command{}, fmt.Errorf("%w: bad action id %q", ErrUnknownCommand, fields[1])
			}
			cmd.Hint = &id
		}
	case "pause", "resume", "cancel", "replan":
		if len(fields) > 1 {
			return Command{}, fmt.Errorf("%w: %q takes no arguments", ErrUnknownCommand, text)
		}
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, text)
	}
	return cmd, nil
}

// HandleCommand executes a textual command. "plan" starts the mission in its
// own goroutine and returns at once; "pause" toggles between pausing and
// resuming.
func (c *Controller) HandleCommand(ctx context.Context, text string) error {
	cmd, err := ParseCommand(text)
	if err != nil {
		return err
	}
	logger := c.logger.With("command", cmd.Name)

	switch cmd.Name {
	case "plan":
		m := c.deps.Machine
		if s := m.State(); s != control.Ready {
			if cmd.Hint != nil {
				m.StashTarget(*cmd.Hint)
			}
			return fmt.Errorf("%w (state %s)", control.ErrBusy, s)
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.Start(ctx, Params{}, cmd.Hint); err != nil {
				logger.Warn("mission not started", "error", err)
			}
		}()
		return nil
	case "pause":
		if c.deps.Machine.State() == control.Paused {
			return c.RequestResume()
		}
		return c.RequestPause()
	case "resume":
		return c.RequestResume()
	case "cancel":
		return c.RequestCancel()
	case "replan":
		c.OnReplanNotification()
		return nil
	}
	return nil
}
