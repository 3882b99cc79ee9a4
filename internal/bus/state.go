package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pablasso/missionctl/internal/control"
)

// PublishState implements control.StatePublisher: the state name is stored
// under the state key and published on the state channel in one round trip.
// Failures are logged; a lost publication never blocks a transition.
func (b *Bus) PublishState(s control.State) {
	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.Name(KeyState), s.String(), 0)
		pipe.Publish(ctx, b.Name(ChannelState), s.String())
		return nil
	})
	if err != nil {
		b.logger.Warn("failed to publish state", "state", s, "error", err)
	}
}

// State reads the last published state.
func (b *Bus) State(ctx context.Context) (control.State, error) {
	v, err := b.client.Get(ctx, b.Name(KeyState)).Result()
	if err != nil {
		return control.Ready, fmt.Errorf("failed to read state: %w", err)
	}
	return control.ParseState(v)
}
