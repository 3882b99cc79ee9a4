// Package cli implements the missionctl command tree.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pablasso/missionctl/internal/config"
	"github.com/pablasso/missionctl/internal/observability"
	"github.com/pablasso/missionctl/internal/version"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "missionctl",
	Short: "Plan, dispatch and supervise robot missions",
	Long: `missionctl drives a PDDL solver in a loop: it refreshes the problem, solves it,
dispatches the plan action by action and replans until the mission completes.
Missions are controlled over Redis, HTTP or this command line.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: ./missionctl.yaml or ~/.config/missionctl/missionctl.yaml)")
	pf.StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading MISSIONCTL_* variables")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: text|json")
	pf.String("redis-url", "", "Redis URL")
	pf.String("redis-prefix", "", "Prefix for Redis channels and keys")

	rootCmd.AddCommand(serveCmd, startCmd, commandCmd, notifyCmd, problemsCmd, watchCmd, historyCmd, configCmd, versionCmd)
}

// flagKeys maps config keys to the flags that override them. Flags a command
// does not define are skipped.
var flagKeys = map[string]string{
	"log.level":            "log-level",
	"log.format":           "log-format",
	"redis.url":            "redis-url",
	"redis.prefix":         "redis-prefix",
	"mission.domain_path":  "domain",
	"mission.problem_path": "problem",
	"mission.data_path":    "data",
	"mission.max_attempts": "max-attempts",
	"planner.command":      "planner",
	"problem.mode":         "problem-mode",
	"problem.command":      "problem-command",
	"dispatch.engine":      "engine",
	"http.addr":            "http-addr",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := make(map[string]*pflag.Flag)
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}
	return config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      flags,
	})
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)
	return logger
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
