package plan

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	operatorHeader = regexp.MustCompile(`(?i)\(:(?:durative-)?action\s+([^\s()]+)`)
	parametersList = regexp.MustCompile(`(?i):parameters\s*\(([^)]*)\)`)
)

// Domain holds the operator signatures of a PDDL domain: operator name to
// ordered parameter names (without the leading '?').
type Domain struct {
	Operators map[string][]string
}

// LoadDomain reads operator names and parameter lists from a PDDL domain file.
// It is a shallow reader: only what is needed to label action parameters.
func LoadDomain(path string) (*Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain: %w", err)
	}
	return ParseDomain(string(data)), nil
}

// ParseDomain extracts operator signatures from PDDL domain text.
func ParseDomain(text string) *Domain {
	d := &Domain{Operators: make(map[string][]string)}
	text = stripComments(text)

	headers := operatorHeader.FindAllStringSubmatchIndex(text, -1)
	for i, h := range headers {
		name := strings.ToLower(text[h[2]:h[3]])
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		body := text[h[1]:end]

		var params []string
		if m := parametersList.FindStringSubmatch(body); m != nil {
			for _, tok := range strings.Fields(m[1]) {
				if strings.HasPrefix(tok, "?") {
					params = append(params, strings.ToLower(strings.TrimPrefix(tok, "?")))
				}
			}
		}
		d.Operators[name] = params
	}
	return d
}

// ParamNames returns the parameter names for an operator, falling back to
// positional names when the operator or its arity is unknown.
func (d *Domain) ParamNames(operator string, arity int) []string {
	if d != nil {
		if names, ok := d.Operators[strings.ToLower(operator)]; ok && len(names) == arity {
			return names
		}
	}
	names := make([]string, arity)
	for i := range names {
		names[i] = fmt.Sprintf("arg%d", i)
	}
	return names
}

func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, ";"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}
