package components

import (
	"strings"

	"github.com/pablasso/missionctl/internal/tui/styles"
)

// KeyHint is one entry of the key help.
type KeyHint struct {
	Key  string
	Desc string
}

func (h KeyHint) String() string {
	if h.Desc == "" {
		return h.Key
	}
	return h.Key + " " + h.Desc
}

// StatusBar renders the bottom key help.
type StatusBar struct{}

// NewStatusBar creates a new StatusBar instance.
func NewStatusBar() StatusBar {
	return StatusBar{}
}

// Render returns the status bar for the given width. Hints are joined with
// " • ".
func (s StatusBar) Render(width int, hints []KeyHint) string {
	items := make([]string, len(hints))
	for i, h := range hints {
		items[i] = h.String()
	}
	return styles.StatusBarStyle.Width(width).Render(strings.Join(items, " • "))
}
