package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/plan"
)

// PublishPlan implements mission.PlanArchive: the attempt is published on the
// plan channel and kept as the latest plan.
func (b *Bus) PublishPlan(ctx context.Context, attempt plan.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.Name(KeyPlan), data, 0)
		pipe.Publish(ctx, b.Name(ChannelPlan), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish plan: %w", err)
	}
	return nil
}

// LatestPlan returns the last published attempt.
func (b *Bus) LatestPlan(ctx context.Context) (plan.Attempt, error) {
	var attempt plan.Attempt
	data, err := b.client.Get(ctx, b.Name(KeyPlan)).Bytes()
	if err != nil {
		return attempt, fmt.Errorf("failed to read plan: %w", err)
	}
	if err := json.Unmarshal(data, &attempt); err != nil {
		return attempt, fmt.Errorf("failed to parse plan: %w", err)
	}
	return attempt, nil
}

// Emit implements history.Sink by publishing events on the mission events
// channel.
func (b *Bus) Emit(e history.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.Name(ChannelMissionEvents), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
