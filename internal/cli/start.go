package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var startFirstAction int

func init() {
	f := startCmd.Flags()
	f.String("domain", "", "Domain file")
	f.String("problem", "", "Problem file")
	f.String("data", "", "Data directory for plans and logs")
	f.String("planner", "", "Planner command (must contain DOMAIN and PROBLEM)")
	f.Int("max-attempts", 0, "Planning attempts before giving up, 0 for unbounded")
	f.String("problem-mode", "", "Problem refresh: bus|command|none")
	f.String("engine", "", "Dispatch engine: bus|sim")
	f.IntVar(&startFirstAction, "first-action", 0, "Id given to the first action of the first plan")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run one mission and exit",
	Long: `Run a single mission in this process and exit when it ends. The exit status
is non-zero unless the plan was dispatched to completion. While it runs, the
mission still accepts commands and notifications over Redis when a bus is
configured.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
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

	if err := n.serveBus(ctx); err != nil {
		return err
	}
	n.machine.Announce()

	var hint *int
	if cmd.Flags().Changed("first-action") {
		hint = &startFirstAction
	}

	report, err := n.ctrl.RequestStart(ctx, hint)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mission %s %s after %d attempt(s) in %s\n",
		report.MissionID, report.Outcome, report.Attempts, report.Duration.Round(time.Millisecond))
	if !report.Solved() {
		return fmt.Errorf("mission %s", report.Outcome)
	}
	return nil
}
