package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/problem"
)

func init() {
	problemsCmd.Flags().String("problem-command", "", "Command that writes the problem file (must contain PROBLEM)")
}

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "Answer problem requests from mission nodes",
	Long: `Run the problem service. Each request received on the problem channel runs
problem.command with PROBLEM replaced by the requested path, and the result is
sent back to the requesting node. Nodes use it with problem.mode=bus.`,
	Args: cobra.NoArgs,
	RunE: runProblems,
}

func runProblems(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	gen, err := problem.NewCommandGenerator(cfg.Problem.Command, cfg.Problem.Timeout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bus.New(bus.Options{URL: cfg.Redis.URL, Prefix: cfg.Redis.Prefix}, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	sub, err := b.ServeProblems(ctx, func(ctx context.Context, problemPath string) error {
		err := gen.Generate(ctx, problemPath)
		if err != nil {
			logger.Warn("problem generation failed", "problem", problemPath, "error", err)
		} else {
			logger.Info("problem generated", "problem", problemPath)
		}
		return err
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	logger.Info("serving problem requests", "command", cfg.Problem.Command)
	<-ctx.Done()
	return nil
}
