// Package knowledge derives the knowledge-base filter of a plan and publishes
// it with replace semantics: the knowledge base is cleared before the new
// items are added, so it never holds the union of two plans' filters.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pablasso/missionctl/internal/plan"
)

// Item prefixes.
const (
	OperatorPrefix = "operator/"
	InstancePrefix = "instance/"
)

// Filter is a sorted, duplicate-free set of knowledge item identifiers.
type Filter []string

// Equal reports whether two filters hold the same items.
func (f Filter) Equal(other Filter) bool {
	return slices.Equal(f, other)
}

// Derive computes the filter of an attempt: every operator name and every
// parameter value used by its actions.
func Derive(attempt plan.Attempt) Filter {
	seen := make(map[string]struct{})
	for _, a := range attempt.Actions {
		seen[OperatorPrefix+a.Name] = struct{}{}
		for _, kv := range a.Parameters {
			seen[InstancePrefix+kv.Value] = struct{}{}
		}
	}
	f := make(Filter, 0, len(seen))
	for item := range seen {
		f = append(f, item)
	}
	slices.Sort(f)
	return f
}

// KnowledgeBase receives filter updates.
type KnowledgeBase interface {
	Clear(ctx context.Context) error
	Add(ctx context.Context, items []string) error
}

// Publisher pushes filters to a KnowledgeBase, skipping unchanged ones.
type Publisher struct {
	kb     KnowledgeBase
	logger *slog.Logger

	mu   sync.Mutex
	last Filter
	sent bool
}

// NewPublisher creates a publisher for kb.
func NewPublisher(kb KnowledgeBase, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{kb: kb, logger: logger}
}

// Publish replaces the knowledge-base filter with the attempt's filter.
// Publishing the same filter twice in a row does nothing the second time.
func (p *Publisher) Publish(ctx context.Context, attempt plan.Attempt) error {
	filter := Derive(attempt)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sent && p.last.Equal(filter) {
		p.logger.Debug("filter unchanged", "attempt", attempt.Number, "items", len(filter))
		return nil
	}

	// forget the previous set first: a half-applied update must be resent
	p.sent = false
	if err := p.kb.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear filter: %w", err)
	}
	if err := p.kb.Add(ctx, filter); err != nil {
		return fmt.Errorf("failed to add filter items: %w", err)
	}
	p.last = filter
	p.sent = true

	p.logger.Info("filter published", "attempt", attempt.Number, "items", len(filter))
	return nil
}

// Forget drops the remembered filter so the next Publish always sends. A new
// mission calls it since the knowledge base may have changed in between.
func (p *Publisher) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = nil
	p.sent = false
}
