// Package bus connects missionctl to the rest of the robot stack over Redis
// pub/sub. All channel and key names share a configurable prefix.
package bus

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel and key names, relative to the prefix.
const (
	ChannelState         = "system_state"
	KeyState             = "state"
	ChannelCommands      = "planning_commands"
	ChannelNotification  = "notification"
	ChannelFilter        = "planning_filter"
	KeyFilter            = "filter"
	ChannelPlan          = "plan"
	KeyPlan              = "plan"
	ChannelDispatch      = "action_dispatch"
	ChannelFeedback      = "action_feedback"
	ChannelProblem       = "generate_problem"
	ChannelProblemReply  = "generate_problem_reply:"
	ChannelMissionEvents = "mission_events"
)

// DefaultPrefix is prepended to every channel and key.
const DefaultPrefix = "missionctl:"

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL    string
	Prefix string

	// TLS configuration for secure connections
	TLS *tls.Config

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// PublishTimeout bounds publications made without a caller context,
	// such as state changes.
	PublishTimeout time.Duration
}

// Bus is a Redis connection plus the missionctl naming scheme.
type Bus struct {
	client         *redis.Client
	prefix         string
	publishTimeout time.Duration
	logger         *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(opts Options, logger *slog.Logger) (*Bus, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PublishTimeout == 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Bus{
		client:         client,
		prefix:         opts.Prefix,
		publishTimeout: opts.PublishTimeout,
		logger:         logger,
	}, nil
}

// Name returns the prefixed name of a channel or key.
func (b *Bus) Name(name string) string {
	return b.prefix + name
}

// Client exposes the underlying Redis client.
func (b *Bus) Client() *redis.Client {
	return b.client
}

// Close closes the Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// SendCommand publishes a textual command to the command channel.
func (b *Bus) SendCommand(ctx context.Context, text string) error {
	if err := b.client.Publish(ctx, b.Name(ChannelCommands), text).Err(); err != nil {
		return fmt.Errorf("failed to publish command: %w", err)
	}
	return nil
}

// Notify publishes a knowledge-base change notification.
func (b *Bus) Notify(ctx context.Context, message string) error {
	if err := b.client.Publish(ctx, b.Name(ChannelNotification), message).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
