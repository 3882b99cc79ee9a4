// Package config loads missionctl settings from defaults, an optional YAML
// file, a .env file and MISSIONCTL_* environment variables, in increasing
// order of precedence. Command-line flags bound through LoadOptions win over
// all of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pablasso/missionctl/internal/mission"
	"github.com/pablasso/missionctl/internal/observability"
	"github.com/pablasso/missionctl/internal/planner"
	"github.com/pablasso/missionctl/internal/problem"
)

// EnvPrefix prefixes environment overrides, e.g. MISSIONCTL_PLANNER_COMMAND.
const EnvPrefix = "MISSIONCTL"

// Problem generation modes.
const (
	ProblemModeBus     = "bus"
	ProblemModeCommand = "command"
	ProblemModeNone    = "none"
)

// Dispatch engines.
const (
	EngineBus = "bus"
	EngineSim = "sim"
)

// Config is the full missionctl configuration.
type Config struct {
	Mission  MissionConfig               `mapstructure:"mission" yaml:"mission"`
	Planner  PlannerConfig               `mapstructure:"planner" yaml:"planner"`
	Problem  ProblemConfig               `mapstructure:"problem" yaml:"problem"`
	Dispatch DispatchConfig              `mapstructure:"dispatch" yaml:"dispatch"`
	Redis    RedisConfig                 `mapstructure:"redis" yaml:"redis"`
	HTTP     HTTPConfig                  `mapstructure:"http" yaml:"http"`
	Log      LogConfig                   `mapstructure:"log" yaml:"log"`
	Tracing  observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// MissionConfig holds the default mission parameters and loop policy.
type MissionConfig struct {
	DomainPath  string        `mapstructure:"domain_path" yaml:"domain_path"`
	ProblemPath string        `mapstructure:"problem_path" yaml:"problem_path"`
	DataPath    string        `mapstructure:"data_path" yaml:"data_path"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Journal     bool          `mapstructure:"journal" yaml:"journal"`
}

// PlannerConfig configures the solver invocation.
type PlannerConfig struct {
	Command string `mapstructure:"command" yaml:"command"`
	Marker  string `mapstructure:"marker" yaml:"marker"`
}

// ProblemConfig selects how the problem file is refreshed.
type ProblemConfig struct {
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Command string        `mapstructure:"command" yaml:"command"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DispatchConfig selects the dispatch engine.
type DispatchConfig struct {
	Engine        string        `mapstructure:"engine" yaml:"engine"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	Schedule      bool          `mapstructure:"schedule" yaml:"schedule"`
	SimTimeScale  float64       `mapstructure:"sim_time_scale" yaml:"sim_time_scale"`
}

// RedisConfig configures the message bus.
type RedisConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults are the built-in values.
var Defaults = map[string]any{
	"mission.domain_path":     "common/domain.pddl",
	"mission.problem_path":    "common/problem.pddl",
	"mission.data_path":       "common/",
	"mission.max_attempts":    0,
	"mission.retry_delay":     time.Duration(0),
	"mission.journal":         true,
	"planner.command":         "timeout 10 common/bin/popf -n DOMAIN PROBLEM",
	"planner.marker":          "; Time",
	"problem.mode":            ProblemModeBus,
	"problem.command":         "",
	"problem.timeout":         10 * time.Second,
	"dispatch.engine":         EngineBus,
	"dispatch.action_timeout": time.Duration(0),
	"dispatch.schedule":       false,
	"dispatch.sim_time_scale": 0.0,
	"redis.url":               "redis://localhost:6379",
	"redis.prefix":            "missionctl:",
	"http.enabled":            true,
	"http.addr":               "127.0.0.1:8080",
	"log.level":               "info",
	"log.format":              "text",
	"tracing.enabled":         false,
	"tracing.endpoint":        "",
	"tracing.insecure":        true,
	"tracing.sample_rate":     1.0,
	"tracing.service_name":    "missionctl",
}

// LoadOptions controls where configuration comes from.
type LoadOptions struct {
	// ConfigFile is an explicit YAML file. When empty, missionctl.yaml is
	// looked up in the working directory and $HOME/.config/missionctl.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the environment if it exists.
	EnvFile string
	// Flags maps config keys to command-line flags overriding them.
	Flags map[string]*pflag.Flag
}

// Load resolves the configuration.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("missionctl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/missionctl")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := planner.ParseTemplate(c.Planner.Command); err != nil {
		errs = append(errs, fmt.Errorf("planner.command: %w", err))
	}
	if c.Mission.MaxAttempts < 0 {
		errs = append(errs, errors.New("mission.max_attempts must not be negative"))
	}
	switch c.Problem.Mode {
	case ProblemModeBus, ProblemModeNone:
	case ProblemModeCommand:
		if !strings.Contains(c.Problem.Command, problem.Placeholder) {
			errs = append(errs, fmt.Errorf("problem.command must contain %s when problem.mode is command", problem.Placeholder))
		}
	default:
		errs = append(errs, fmt.Errorf("problem.mode: unknown mode %q", c.Problem.Mode))
	}
	switch c.Dispatch.Engine {
	case EngineBus, EngineSim:
	default:
		errs = append(errs, fmt.Errorf("dispatch.engine: unknown engine %q", c.Dispatch.Engine))
	}
	if c.Dispatch.SimTimeScale < 0 {
		errs = append(errs, errors.New("dispatch.sim_time_scale must not be negative"))
	}
	return errors.Join(errs...)
}

// NeedsRedis reports whether any component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Problem.Mode == ProblemModeBus || c.Dispatch.Engine == EngineBus
}

// MissionParams returns the default mission parameters.
func (c *Config) MissionParams() mission.Params {
	return mission.Params{
		DomainPath:     c.Mission.DomainPath,
		ProblemPath:    c.Mission.ProblemPath,
		DataPath:       c.Mission.DataPath,
		PlannerCommand: c.Planner.Command,
	}
}

// MissionLoop returns the mission loop configuration.
func (c *Config) MissionLoop() mission.Config {
	return mission.Config{
		Defaults:    c.MissionParams(),
		MaxAttempts: c.Mission.MaxAttempts,
		RetryDelay:  c.Mission.RetryDelay,
		Journal:     c.Mission.Journal,
	}
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
