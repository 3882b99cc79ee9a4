package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/config"
	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/mission"
	"github.com/pablasso/missionctl/internal/testutil"
)

const solvedPlan = "; Time 0.01\n" +
	"0.000: (undock kenny wp0)  [1.000]\n" +
	"1.001: (goto_waypoint kenny wp0 wp1)  [5.000]\n"

// useConfig points the package-level config flags at a temporary file.
func useConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "missionctl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	oldConfig, oldEnv := configFile, envFile
	configFile, envFile = path, ""
	t.Cleanup(func() { configFile, envFile = oldConfig, oldEnv })
}

// missionDir writes a domain and a problem whose "solution" is problemBody,
// and returns a standalone config using them.
func missionDir(t *testing.T, problemBody string, extra string) (cfgYAML string, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	domain := testutil.WriteFile(t, dir, "domain.pddl", "(define (domain d))")
	problem := testutil.WriteFile(t, dir, "problem.pddl", problemBody)
	dataDir = filepath.Join(dir, "data")
	cfgYAML = fmt.Sprintf(`mission:
  domain_path: %s
  problem_path: %s
  data_path: %s
%s
planner:
  command: "cat PROBLEM # DOMAIN"
problem:
  mode: none
dispatch:
  engine: sim
log:
  level: error
`, domain, problem, dataDir, extra)
	return cfgYAML, dataDir
}

func newTestCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd
}

func TestRunStart_Solved(t *testing.T) {
	cfg, dataDir := missionDir(t, solvedPlan, "")
	useConfig(t, cfg)

	var out bytes.Buffer
	if err := runStart(newTestCmd(&out), nil); err != nil {
		t.Fatalf("runStart failed: %v", err)
	}
	if !strings.Contains(out.String(), "solved after 1 attempt(s)") {
		t.Errorf("unexpected output: %s", out.String())
	}

	attempts, err := history.Load(history.JournalPath(dataDir))
	if err != nil {
		t.Fatalf("failed to load journal: %v", err)
	}
	if len(attempts) != 1 || !attempts[0].Solved {
		t.Errorf("expected one solved attempt in the journal, got %+v", attempts)
	}
}

func TestRunStart_Exhausted(t *testing.T) {
	cfg, _ := missionDir(t, ";; Problem unsolvable!\n", "  max_attempts: 2")
	useConfig(t, cfg)

	var out bytes.Buffer
	err := runStart(newTestCmd(&out), nil)
	if err == nil || !strings.Contains(err.Error(), "exhausted") {
		t.Fatalf("expected an exhausted mission, got %v", err)
	}
	if !strings.Contains(out.String(), "after 2 attempt(s)") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestRunHistory(t *testing.T) {
	cfg, dataDir := missionDir(t, solvedPlan, "")
	useConfig(t, cfg)
	if err := runStart(newTestCmd(io.Discard), nil); err != nil {
		t.Fatalf("runStart failed: %v", err)
	}

	var out bytes.Buffer
	if err := runHistory(newTestCmd(&out), []string{history.JournalPath(dataDir)}); err != nil {
		t.Fatalf("runHistory failed: %v", err)
	}
	if !strings.Contains(out.String(), "ATTEMPT") || !strings.Contains(out.String(), "solved") {
		t.Errorf("unexpected output: %s", out.String())
	}

	// without an argument the journal is found through the config
	out.Reset()
	if err := runHistory(newTestCmd(&out), nil); err != nil {
		t.Fatalf("runHistory failed: %v", err)
	}
	if !strings.Contains(out.String(), "solved") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestRunHistory_MissingJournal(t *testing.T) {
	useConfig(t, "")
	err := runHistory(newTestCmd(io.Discard), []string{filepath.Join(t.TempDir(), "history.jsonl")})
	if err == nil {
		t.Fatal("expected an error for a missing journal")
	}
}

func TestLoadConfig_FlagOverride(t *testing.T) {
	useConfig(t, "")

	cmd := newTestCmd(io.Discard)
	cmd.Flags().String("data", "", "")
	if err := cmd.Flags().Set("data", "/srv/mission"); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Mission.DataPath != "/srv/mission" {
		t.Errorf("data path = %q, want /srv/mission", cfg.Mission.DataPath)
	}
}

func TestLoadConfig_FindsFileInWorkingDir(t *testing.T) {
	dir := testutil.SetupTestDir(t)
	testutil.WriteFile(t, dir, "missionctl.yaml", "mission:\n  max_attempts: 5\n")

	oldConfig, oldEnv := configFile, envFile
	configFile, envFile = "", ""
	t.Cleanup(func() { configFile, envFile = oldConfig, oldEnv })

	cfg, err := loadConfig(newTestCmd(io.Discard))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Mission.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Mission.MaxAttempts)
	}
}

func TestConfigShow(t *testing.T) {
	useConfig(t, "http:\n  addr: \":9090\"\n")

	var out bytes.Buffer
	if err := configShowCmd.RunE(newTestCmd(&out), nil); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	var shown config.Config
	if err := yaml.Unmarshal(out.Bytes(), &shown); err != nil {
		t.Fatalf("config show printed invalid YAML: %v\n%s", err, out.String())
	}
	if shown.HTTP.Addr != ":9090" {
		t.Errorf("http.addr = %q, want :9090", shown.HTTP.Addr)
	}
	if shown.Planner.Marker != "; Time" {
		t.Errorf("planner.marker = %q, want \"; Time\"", shown.Planner.Marker)
	}
}

func TestRunCommand_RejectsUnknown(t *testing.T) {
	useConfig(t, "")
	err := runCommand(newTestCmd(io.Discard), []string{"dance"})
	if !errors.Is(err, mission.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestRunCommand_PublishesOnBus(t *testing.T) {
	mr := miniredis.RunT(t)
	useConfig(t, fmt.Sprintf("redis:\n  url: redis://%s\n", mr.Addr()))

	b, err := bus.New(bus.Options{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("bus.New failed: %v", err)
	}
	defer b.Close()

	received := make(chan string, 2)
	for _, ch := range []string{bus.ChannelCommands, bus.ChannelNotification} {
		sub, err := b.Subscribe(context.Background(), ch, func(ctx context.Context, payload string) {
			received <- payload
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Close()
	}

	var out bytes.Buffer
	if err := runCommand(newTestCmd(&out), []string{"plan", "4"}); err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}
	if err := runNotify(newTestCmd(io.Discard), []string{"door opened"}); err != nil {
		t.Fatalf("runNotify failed: %v", err)
	}

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case payload := <-received:
			got[payload] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %v", got)
		}
	}
	if !got["plan 4"] || !got["door opened"] {
		t.Errorf("received %v, want the command and the notification", got)
	}
}

func TestRunProblems_AnswersRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	useConfig(t, fmt.Sprintf(`redis:
  url: redis://%s
problem:
  command: "echo generated > PROBLEM"
log:
  level: error
`, mr.Addr()))

	ctx, cancel := context.WithCancel(context.Background())
	cmd := newTestCmd(io.Discard)
	cmd.SetContext(ctx)
	done := make(chan error, 1)
	go func() { done <- runProblems(cmd, nil) }()

	b, err := bus.New(bus.Options{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("bus.New failed: %v", err)
	}
	defer b.Close()

	// requests published before the service subscribes go unanswered
	path := filepath.Join(t.TempDir(), "problem.pddl")
	client := b.ProblemClient(200 * time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for {
		err = client.Generate(context.Background(), path)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("problem file not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != "generated" {
		t.Errorf("problem file = %q", data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runProblems returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runProblems did not stop")
	}
}

func TestRunProblems_RequiresPlaceholder(t *testing.T) {
	useConfig(t, "problem:\n  command: \"echo nothing\"\n")
	if err := runProblems(newTestCmd(io.Discard), nil); err == nil {
		t.Fatal("expected an error for a command without PROBLEM")
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	versionCmd.Run(newTestCmd(&out), nil)
	if !strings.HasPrefix(out.String(), "missionctl ") {
		t.Errorf("unexpected output: %s", out.String())
	}
}
