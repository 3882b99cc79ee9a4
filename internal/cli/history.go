package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pablasso/missionctl/internal/history"
)

func init() {
	historyCmd.Flags().String("data", "", "Data directory holding history.jsonl")
}

var historyCmd = &cobra.Command{
	Use:   "history [journal]",
	Short: "List the planning attempts of the last mission",
	Long:  `Print the plan history journal written by the last mission in the data directory.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = history.JournalPath(cfg.Mission.DataPath)
	}

	attempts, err := history.Load(path)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No attempts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPT\tRESULT\tACTIONS\tFIRST ID\tCREATED")
	for _, a := range attempts {
		result := "unsolvable"
		if a.Solved {
			result = "solved"
		}
		firstID := "-"
		if len(a.Actions) > 0 {
			firstID = fmt.Sprint(a.Actions[0].ID)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			a.Number,
			result,
			len(a.Actions),
			firstID,
			a.CreatedAt.Format(time.DateTime),
		)
	}
	return w.Flush()
}
