package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const defaultMaxLines = 500

// EventLog is a scrolling, bounded log panel. It follows new lines until the
// user scrolls up, and resumes following once scrolled back to the bottom.
type EventLog struct {
	viewport   viewport.Model
	lines      []string
	maxLines   int
	autoScroll bool
}

// NewEventLog creates a log of the given size keeping at most maxLines
// lines (0 uses a default).
func NewEventLog(width, height, maxLines int) EventLog {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	vp := viewport.New(width, height)
	vp.SetContent("")
	return EventLog{
		viewport:   vp,
		maxLines:   maxLines,
		autoScroll: true,
	}
}

// AddLine appends a line, dropping the oldest once the log is full.
func (l *EventLog) AddLine(line string) {
	l.lines = append(l.lines, line)
	if over := len(l.lines) - l.maxLines; over > 0 {
		l.lines = append([]string(nil), l.lines[over:]...)
	}
	l.viewport.SetContent(strings.Join(l.lines, "\n"))
	if l.autoScroll {
		l.viewport.GotoBottom()
	}
}

// Lines returns the buffered lines.
func (l EventLog) Lines() []string {
	return l.lines
}

// SetSize resizes the panel.
func (l *EventLog) SetSize(width, height int) {
	l.viewport.Width = max(width, 0)
	l.viewport.Height = max(height, 0)
	if l.autoScroll {
		l.viewport.GotoBottom()
	}
}

// AutoScroll reports whether the log follows new lines.
func (l EventLog) AutoScroll() bool {
	return l.autoScroll
}

// Update handles scroll keys.
func (l EventLog) Update(msg tea.Msg) (EventLog, tea.Cmd) {
	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	l.autoScroll = l.viewport.AtBottom()
	return l, cmd
}

// View renders the panel.
func (l EventLog) View() string {
	return l.viewport.View()
}
