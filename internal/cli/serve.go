package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/server"
)

var (
	serveAutoStart bool
	serveNoHTTP    bool
)

func init() {
	f := serveCmd.Flags()
	f.BoolVar(&serveAutoStart, "auto-start", false, "Start a mission with the default parameters right away")
	f.BoolVar(&serveNoHTTP, "no-http", false, "Disable the HTTP API")
	f.String("http-addr", "", "HTTP listen address")
	f.String("domain", "", "Default domain file")
	f.String("problem", "", "Default problem file")
	f.String("data", "", "Default data directory")
	f.String("planner", "", "Default planner command (must contain DOMAIN and PROBLEM)")
	f.Int("max-attempts", 0, "Planning attempts per mission, 0 for unbounded")
	f.String("problem-mode", "", "Problem refresh: bus|command|none")
	f.String("engine", "", "Dispatch engine: bus|sim")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mission controller",
	Long: `Run the mission controller as a long-lived node. Missions are started and
steered with textual commands on the Redis command channel or through the
HTTP API.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.close()

	g, gctx := errgroup.WithContext(ctx)

	if err := n.serveBus(gctx); err != nil {
		return err
	}

	if cfg.HTTP.Enabled && !serveNoHTTP {
		srv := server.New(n.ctrl,
			server.WithLogger(logger),
			server.WithGatherer(n.registry),
			server.WithBaseContext(gctx),
		)
		g.Go(func() error {
			return srv.Run(gctx, cfg.HTTP.Addr)
		})
	}

	n.machine.Announce()
	logger.Info("missionctl serving",
		"redis", n.bus != nil,
		"engine", cfg.Dispatch.Engine,
		"problem_mode", cfg.Problem.Mode,
	)

	if serveAutoStart {
		g.Go(func() error {
			report, err := n.ctrl.RequestStart(gctx, nil)
			if err != nil && !errors.Is(err, control.ErrBusy) {
				return err
			}
			logger.Info("initial mission finished", "outcome", report.Outcome)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	n.ctrl.Wait()
	logger.Info("missionctl stopped")
	return err
}
