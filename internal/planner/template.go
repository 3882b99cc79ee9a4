package planner

import (
	"errors"
	"fmt"
	"strings"
)

// Placeholders substituted into the planner command template.
const (
	DomainPlaceholder  = "DOMAIN"
	ProblemPlaceholder = "PROBLEM"
)

// ErrInvalidTemplate is returned when a command template lacks a placeholder.
var ErrInvalidTemplate = errors.New("invalid planner template")

// Template is a validated planner command line containing both the DOMAIN
// and PROBLEM placeholders.
type Template struct {
	raw string
}

// ParseTemplate validates a command template.
func ParseTemplate(s string) (Template, error) {
	if strings.TrimSpace(s) == "" {
		return Template{}, fmt.Errorf("%w: empty command", ErrInvalidTemplate)
	}
	var missing []string
	if !strings.Contains(s, DomainPlaceholder) {
		missing = append(missing, DomainPlaceholder)
	}
	if !strings.Contains(s, ProblemPlaceholder) {
		missing = append(missing, ProblemPlaceholder)
	}
	if len(missing) > 0 {
		return Template{}, fmt.Errorf("%w: missing %s in %q", ErrInvalidTemplate, strings.Join(missing, " and "), s)
	}
	return Template{raw: s}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(s string) Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the unrendered template.
func (t Template) String() string {
	return t.raw
}

// IsZero reports whether the template was never parsed.
func (t Template) IsZero() bool {
	return t.raw == ""
}

// Render replaces the first occurrence of each placeholder. Both positions
// are located in the template before substituting, so a path that happens to
// contain a placeholder word is never rewritten.
func (t Template) Render(domainPath, problemPath string) string {
	d := strings.Index(t.raw, DomainPlaceholder)
	p := strings.Index(t.raw, ProblemPlaceholder)
	if d < 0 || p < 0 {
		return t.raw
	}

	type slot struct {
		at, width int
		value     string
	}
	first := slot{d, len(DomainPlaceholder), domainPath}
	second := slot{p, len(ProblemPlaceholder), problemPath}
	if p < d {
		first, second = second, first
	}

	var sb strings.Builder
	sb.WriteString(t.raw[:first.at])
	sb.WriteString(first.value)
	sb.WriteString(t.raw[first.at+first.width : second.at])
	sb.WriteString(second.value)
	sb.WriteString(t.raw[second.at+second.width:])
	return sb.String()
}
