package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// FilterUpdate is the message published on the filter channel.
type FilterUpdate struct {
	Function string   `json:"function"` // clear or add
	Items    []string `json:"items,omitempty"`
}

// KnowledgeBase implements knowledge.KnowledgeBase on a Redis set plus
// update messages on the filter channel.
type KnowledgeBase struct {
	bus *Bus
}

// KnowledgeBase returns the Redis-backed knowledge filter store.
func (b *Bus) KnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{bus: b}
}

// Clear empties the filter set and announces the clear.
func (kb *KnowledgeBase) Clear(ctx context.Context) error {
	msg, err := json.Marshal(FilterUpdate{Function: "clear"})
	if err != nil {
		return err
	}
	b := kb.bus
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.Name(KeyFilter))
		pipe.Publish(ctx, b.Name(ChannelFilter), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear filter: %w", err)
	}
	return nil
}

// Add inserts items into the filter set and announces them.
func (kb *KnowledgeBase) Add(ctx context.Context, items []string) error {
	msg, err := json.Marshal(FilterUpdate{Function: "add", Items: items})
	if err != nil {
		return err
	}
	b := kb.bus
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(items) > 0 {
			members := make([]any, len(items))
			for i, item := range items {
				members[i] = item
			}
			pipe.SAdd(ctx, b.Name(KeyFilter), members...)
		}
		pipe.Publish(ctx, b.Name(ChannelFilter), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add filter items: %w", err)
	}
	return nil
}

// Items returns the current filter set, sorted.
func (kb *KnowledgeBase) Items(ctx context.Context) ([]string, error) {
	items, err := kb.bus.client.SMembers(ctx, kb.bus.Name(KeyFilter)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read filter: %w", err)
	}
	slices.Sort(items)
	return items, nil
}
