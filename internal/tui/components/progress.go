package components

import (
	"fmt"
	"strings"
)

const (
	filledChar = "■"
	emptyChar  = "□"
)

// Progress renders dispatch progress like: ■■■■□□□□ 3/6
type Progress struct {
	Done  int
	Total int
	Width int // character width of the bar portion
}

// NewProgress creates a new Progress instance.
func NewProgress(done, total, width int) Progress {
	return Progress{
		Done:  done,
		Total: total,
		Width: width,
	}
}

// Percent returns the completed share in whole percent.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.clamped() * 100 / p.Total
}

func (p Progress) clamped() int {
	return max(0, min(p.Done, p.Total))
}

// View returns the rendered progress bar string, or "" when there is
// nothing to show.
func (p Progress) View() string {
	if p.Total <= 0 || p.Width <= 0 {
		return ""
	}
	done := p.clamped()
	filled := done * p.Width / p.Total
	bar := strings.Repeat(filledChar, filled) + strings.Repeat(emptyChar, p.Width-filled)
	return fmt.Sprintf("%s %d/%d", bar, done, p.Total)
}
