package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/plan"
	"github.com/pablasso/missionctl/internal/tui/components"
	"github.com/pablasso/missionctl/internal/tui/msgs"
	"github.com/pablasso/missionctl/internal/tui/styles"
)

// headerHeight is the number of lines above the event log.
const headerHeight = 9

// Commander sends textual commands to the mission controller.
type Commander interface {
	SendCommand(ctx context.Context, text string) error
}

var keyCommands = map[string]string{
	"s": "plan",
	"p": "pause",
	"c": "cancel",
	"r": "replan",
}

var keyHints = []components.KeyHint{
	{Key: "s", Desc: "start"},
	{Key: "p", Desc: "pause/resume"},
	{Key: "c", Desc: "cancel"},
	{Key: "r", Desc: "replan"},
	{Key: "↑↓", Desc: "scroll"},
	{Key: "q", Desc: "quit"},
}

// Model is the live mission view.
type Model struct {
	commander Commander

	state        control.State
	missionID    string
	missionStart time.Time
	attempt      int
	outcome      string
	actionsTotal int
	actionsDone  int
	current      *plan.Action
	notice       string
	noticeErr    bool

	spinner spinner.Model
	log     components.EventLog
	status  components.StatusBar

	width  int
	height int
}

// NewModel creates a watch model. commander may be nil for a read-only view.
func NewModel(commander Commander) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SelectedStyle

	return Model{
		commander: commander,
		state:     control.Ready,
		spinner:   s,
		log:       components.NewEventLog(80, 10, 0),
		status:    components.NewStatusBar(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		if command, ok := keyCommands[msg.String()]; ok {
			return m, m.send(command)
		}
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.SetSize(msg.Width-4, msg.Height-headerHeight-4)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case msgs.StateMsg:
		if msg.State != m.state {
			m.logf("state %s → %s", m.state, msg.State)
		}
		m.state = msg.State
		return m, nil

	case msgs.EventMsg:
		m.applyEvent(msg.Event)
		return m, nil

	case msgs.ActionDispatchedMsg:
		a := msg.Action
		m.current = &a
		m.logf("dispatch #%d %s", a.ID, actionLabel(a))
		return m, nil

	case msgs.FeedbackMsg:
		fb := msg.Feedback
		switch fb.Status {
		case bus.StatusAchieved:
			m.actionsDone++
			m.logf("achieved #%d", fb.ActionID)
		case bus.StatusFailed:
			m.logf("failed #%d %s", fb.ActionID, fb.Message)
		}
		return m, nil

	case msgs.CommandSentMsg:
		if msg.Err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.Command, msg.Err)
			m.noticeErr = true
		} else {
			m.notice = "sent " + msg.Command
			m.noticeErr = false
		}
		return m, nil

	case msgs.ErrMsg:
		m.notice = msg.Err.Error()
		m.noticeErr = true
		return m, nil
	}
	return m, nil
}

func (m Model) send(command string) tea.Cmd {
	if m.commander == nil {
		return nil
	}
	commander := m.commander
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return msgs.CommandSentMsg{Command: command, Err: commander.SendCommand(ctx, command)}
	}
}

func (m *Model) applyEvent(e history.Event) {
	switch e.Event {
	case history.EventMissionStarted:
		m.missionID = eventString(e, "mission_id")
		m.missionStart = e.Timestamp
		m.attempt = 0
		m.outcome = ""
		m.actionsTotal = 0
		m.actionsDone = 0
		m.current = nil
		m.logf("mission %s started", shortID(m.missionID))
	case history.EventAttemptSolved:
		m.attempt = eventInt(e, "attempt")
		m.actionsTotal = eventInt(e, "actions")
		m.actionsDone = 0
		m.current = nil
		m.logf("attempt %d solved, %d actions", m.attempt, m.actionsTotal)
	case history.EventAttemptFailed:
		m.attempt = eventInt(e, "attempt")
		m.logf("attempt %d unsolvable", m.attempt)
	case history.EventDispatchFailed:
		m.logf("attempt %d dispatch failed, replanning", eventInt(e, "attempt"))
	case history.EventMissionCompleted:
		m.outcome = "solved"
		m.logf("mission completed after %d attempts", eventInt(e, "attempts"))
	case history.EventMissionCancelled:
		m.outcome = "cancelled"
		m.logf("mission cancelled")
	case history.EventMissionExhausted:
		m.outcome = "exhausted"
		m.logf("mission gave up after %d attempts", eventInt(e, "attempts"))
	default:
		m.logf("%s", e.Event)
	}
}

func (m *Model) logf(format string, args ...any) {
	m.log.AddLine(time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...))
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleStyle.Render("missionctl"))
	b.WriteString("\n")

	state := styles.StateStyle(m.state).Render(m.state.String())
	if m.state.Active() {
		state = m.spinner.View() + state
	}
	b.WriteString(state)
	if m.outcome != "" && m.state == control.Ready {
		b.WriteString(" " + outcomeStyle(m.outcome).Render(m.outcome))
	}
	b.WriteString("\n\n")

	if m.missionID != "" {
		fmt.Fprintf(&b, "%s %s", styles.SubtleStyle.Render("mission"), shortID(m.missionID))
		if !m.missionStart.IsZero() && m.outcome == "" {
			fmt.Fprintf(&b, "  %s %s", styles.SubtleStyle.Render("elapsed"),
				time.Since(m.missionStart).Round(time.Second))
		}
		b.WriteString("\n")
	}
	if m.attempt > 0 {
		fmt.Fprintf(&b, "%s %d\n", styles.SubtleStyle.Render("attempt"), m.attempt)
	}
	if bar := components.NewProgress(m.actionsDone, m.actionsTotal, 20).View(); bar != "" {
		fmt.Fprintf(&b, "%s %s\n", styles.SubtleStyle.Render("actions"), bar)
	}
	if m.current != nil {
		fmt.Fprintf(&b, "%s %s\n", styles.SubtleStyle.Render("current"),
			styles.SelectedStyle.Render(fmt.Sprintf("#%d %s", m.current.ID, actionLabel(*m.current))))
	}
	b.WriteString("\n")

	b.WriteString(styles.BoxStyle.Render(m.log.View()))
	b.WriteString("\n")

	if m.notice != "" {
		style := styles.SuccessStyle
		if m.noticeErr {
			style = styles.ErrorStyle
		}
		b.WriteString(style.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.status.Render(m.width, keyHints))

	return lipgloss.NewStyle().MaxWidth(max(m.width, 1)).Render(b.String())
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "solved":
		return styles.SuccessStyle
	case "cancelled":
		return styles.WarnStyle
	default:
		return styles.ErrorStyle
	}
}

func actionLabel(a plan.Action) string {
	parts := []string{a.Name}
	for _, kv := range a.Parameters {
		parts = append(parts, kv.Value)
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// eventInt reads a numeric field; JSON decoding yields float64.
func eventInt(e history.Event, key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func eventString(e history.Event, key string) string {
	s, _ := e.Data[key].(string)
	return s
}
