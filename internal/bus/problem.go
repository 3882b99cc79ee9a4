package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProblemRequest asks the problem-generation service to write a problem file.
type ProblemRequest struct {
	ID          string `json:"id"`
	ProblemPath string `json:"problem_path"`
	ReplyTo     string `json:"reply_to"`
}

// ProblemReply is the service's answer.
type ProblemReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ProblemClient implements mission.ProblemGenerator as a request/reply call
// over pub/sub.
type ProblemClient struct {
	bus     *Bus
	timeout time.Duration
}

// ProblemClient returns a problem-generation client. timeout bounds each call.
func (b *Bus) ProblemClient(timeout time.Duration) *ProblemClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProblemClient{bus: b, timeout: timeout}
}

// Generate implements mission.ProblemGenerator.
func (c *ProblemClient) Generate(ctx context.Context, problemPath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b := c.bus
	req := ProblemRequest{ID: uuid.NewString(), ProblemPath: problemPath}
	req.ReplyTo = b.Name(ChannelProblemReply + req.ID)

	replies := make(chan ProblemReply, 1)
	sub, err := b.subscribe(ctx, req.ReplyTo, func(ctx context.Context, payload string) {
		var reply ProblemReply
		if err := json.Unmarshal([]byte(payload), &reply); err != nil {
			reply = ProblemReply{Error: fmt.Sprintf("malformed reply: %v", err)}
		}
		select {
		case replies <- reply:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal problem request: %w", err)
	}
	receivers, err := b.client.Publish(ctx, b.Name(ChannelProblem), data).Result()
	if err != nil {
		return fmt.Errorf("failed to request problem: %w", err)
	}
	if receivers == 0 {
		return errors.New("no problem generation service is listening")
	}

	select {
	case reply := <-replies:
		if !reply.OK {
			return fmt.Errorf("problem generation failed: %s", reply.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("problem generation: %w", ctx.Err())
	}
}

// ServeProblems answers problem requests with generate. It is the service side
// of ProblemClient.
func (b *Bus) ServeProblems(ctx context.Context, generate func(ctx context.Context, problemPath string) error) (*Subscription, error) {
	return b.Subscribe(ctx, ChannelProblem, func(ctx context.Context, payload string) {
		var req ProblemRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			b.logger.Warn("malformed problem request", "error", err)
			return
		}
		reply := ProblemReply{OK: true}
		if err := generate(ctx, req.ProblemPath); err != nil {
			reply = ProblemReply{Error: err.Error()}
		}
		data, _ := json.Marshal(reply)
		if err := b.client.Publish(ctx, req.ReplyTo, data).Err(); err != nil {
			b.logger.Warn("failed to reply to problem request", "id", req.ID, "error", err)
		}
	})
}
