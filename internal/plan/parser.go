package plan

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSolvedMarker is the line prefix POPF writes once a plan is found.
const DefaultSolvedMarker = "; Time"

// Parser turns a raw solver artifact into dispatch-ready actions. Action IDs
// are assigned consecutively starting at firstActionID. An artifact with no
// action lines is a valid empty plan (goals already hold).
type Parser interface {
	Parse(artifactPath string, domain *Domain, firstActionID int) ([]Action, error)
}

// actionLine matches "0.000: (goto_waypoint kenny wp0 wp1)  [10.000]".
var actionLine = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*:\s*\(([^)]*)\)\s*(?:\[\s*([0-9]+(?:\.[0-9]+)?)\s*\])?`)

// POPFParser reads the textual output of POPF-family temporal planners.
// When the artifact contains several plans, the last one wins.
type POPFParser struct {
	Marker string
}

// NewPOPFParser creates a parser using DefaultSolvedMarker.
func NewPOPFParser() *POPFParser {
	return &POPFParser{Marker: DefaultSolvedMarker}
}

// Parse implements Parser.
func (p *POPFParser) Parse(artifactPath string, domain *Domain, firstActionID int) ([]Action, error) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan: %w", err)
	}
	defer f.Close()

	marker := p.Marker
	if marker == "" {
		marker = DefaultSolvedMarker
	}

	var actions []Action
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, marker) {
			// a later plan supersedes anything read so far
			actions = actions[:0]
			continue
		}
		m := actionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		fields := strings.Fields(m[2])
		if len(fields) == 0 {
			continue
		}
		start, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad dispatch time %q: %w", m[1], err)
		}
		var duration float64
		if m[3] != "" {
			if duration, err = strconv.ParseFloat(m[3], 64); err != nil {
				return nil, fmt.Errorf("bad duration %q: %w", m[3], err)
			}
		}

		name := strings.ToLower(fields[0])
		values := fields[1:]
		keys := domain.ParamNames(name, len(values))
		params := make([]KeyValue, len(values))
		for i, v := range values {
			params[i] = KeyValue{Key: keys[i], Value: strings.ToLower(v)}
		}

		actions = append(actions, Action{
			Name:         name,
			Parameters:   params,
			DispatchTime: start,
			Duration:     duration,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	for i := range actions {
		actions[i].ID = firstActionID + i
	}
	return actions, nil
}
