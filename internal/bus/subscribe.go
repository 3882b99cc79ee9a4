package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Handler processes one message payload.
type Handler func(ctx context.Context, payload string)

// Subscription is an active channel subscription delivering messages to a
// handler on its own goroutine, one message at a time.
type Subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe subscribes to a prefixed channel. It returns once Redis has
// confirmed the subscription, so messages published afterwards are delivered.
func (b *Bus) Subscribe(ctx context.Context, channel string, handle Handler) (*Subscription, error) {
	return b.subscribe(ctx, b.Name(channel), handle)
}

func (b *Bus) subscribe(ctx context.Context, channel string, handle Handler) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handle(ctx, msg.Payload)
			}
		}
	}()

	return s, nil
}

// Done is closed when the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops the subscription and waits for the handler goroutine to exit.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// CommandHandler executes textual commands.
type CommandHandler interface {
	HandleCommand(ctx context.Context, text string) error
}

// ServeCommands forwards every message on the command channel to h.
func (b *Bus) ServeCommands(ctx context.Context, h CommandHandler) (*Subscription, error) {
	return b.Subscribe(ctx, ChannelCommands, func(ctx context.Context, payload string) {
		if err := h.HandleCommand(ctx, payload); err != nil {
			b.logger.Warn("command rejected", "command", payload, "error", err)
			return
		}
		b.logger.Info("command accepted", "command", payload)
	})
}

// ReplanNotifier reacts to knowledge-base change notifications.
type ReplanNotifier interface {
	OnReplanNotification()
}

// ServeNotifications turns every message on the notification channel into a
// replan request.
func (b *Bus) ServeNotifications(ctx context.Context, n ReplanNotifier) (*Subscription, error) {
	return b.Subscribe(ctx, ChannelNotification, func(ctx context.Context, payload string) {
		b.logger.Debug("notification received", "payload", payload)
		n.OnReplanNotification()
	})
}
