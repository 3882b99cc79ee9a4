package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/mission"
)

var commandCmd = &cobra.Command{
	Use:   "command <plan [id]|pause|resume|cancel|replan>",
	Short: "Send a command to a running node",
	Long:  `Publish a textual command on the Redis command channel of a running node.`,
	Example: `  missionctl command plan
  missionctl command plan 12
  missionctl command pause`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

var notifyCmd = &cobra.Command{
	Use:   "notify [message]",
	Short: "Signal a knowledge-base change",
	Long:  `Publish a notification that makes the running mission stop dispatching and replan.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNotify,
}

func runCommand(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if _, err := mission.ParseCommand(text); err != nil {
		return err
	}
	return withBus(cmd, func(ctx context.Context, b *bus.Bus) error {
		if err := b.SendCommand(ctx, text); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %q\n", text)
		return nil
	})
}

func runNotify(cmd *cobra.Command, args []string) error {
	message := "knowledge updated"
	if len(args) == 1 {
		message = args[0]
	}
	return withBus(cmd, func(ctx context.Context, b *bus.Bus) error {
		return b.Notify(ctx, message)
	})
}

func withBus(cmd *cobra.Command, fn func(ctx context.Context, b *bus.Bus) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	b, err := bus.New(bus.Options{URL: cfg.Redis.URL, Prefix: cfg.Redis.Prefix}, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	return fn(ctx, b)
}
