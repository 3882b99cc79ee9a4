package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running node",
	Long:  `Show the state, attempts and dispatch progress of a running node, and steer it from the keyboard.`,
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the UI owns the terminal; only errors go to stderr
	cfg.Log.Level = "error"
	logger := newLogger(cmd, cfg)

	b, err := bus.New(bus.Options{URL: cfg.Redis.URL, Prefix: cfg.Redis.Prefix}, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tui.Run(ctx, b)
}
