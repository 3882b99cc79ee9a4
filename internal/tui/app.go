// Package tui implements the live watch view of a running missionctl node.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/plan"
	"github.com/pablasso/missionctl/internal/tui/msgs"
)

// Source is the bus surface the watch view reads from.
type Source interface {
	Commander
	State(ctx context.Context) (control.State, error)
	Subscribe(ctx context.Context, channel string, handle bus.Handler) (*bus.Subscription, error)
}

// Sender delivers messages to a running program.
type Sender interface {
	Send(msg tea.Msg)
}

// Run starts the watch view and blocks until the user quits or ctx is done.
func Run(ctx context.Context, src Source) error {
	p := tea.NewProgram(
		NewModel(src),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	subs, err := Attach(ctx, src, p)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Attach subscribes to the state, mission event, dispatch and feedback
// channels and forwards decoded messages to s. The current state is sent
// first.
func Attach(ctx context.Context, src Source, s Sender) ([]*bus.Subscription, error) {
	channels := []struct {
		name   string
		decode func(payload string) (tea.Msg, error)
	}{
		{bus.ChannelState, decodeState},
		{bus.ChannelMissionEvents, decodeEvent},
		{bus.ChannelDispatch, decodeAction},
		{bus.ChannelFeedback, decodeFeedback},
	}

	var subs []*bus.Subscription
	for _, ch := range channels {
		decode := ch.decode
		sub, err := src.Subscribe(ctx, ch.name, func(ctx context.Context, payload string) {
			msg, err := decode(payload)
			if err != nil {
				msg = msgs.ErrMsg{Err: err}
			}
			s.Send(msg)
		})
		if err != nil {
			for _, sub := range subs {
				sub.Close()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	// the state key is absent until a node has published once
	go func() {
		state, err := src.State(ctx)
		switch {
		case err == nil:
			s.Send(msgs.StateMsg{State: state})
		case !errors.Is(err, redis.Nil):
			s.Send(msgs.ErrMsg{Err: err})
		}
	}()

	return subs, nil
}

func decodeState(payload string) (tea.Msg, error) {
	state, err := control.ParseState(payload)
	if err != nil {
		return nil, err
	}
	return msgs.StateMsg{State: state}, nil
}

func decodeEvent(payload string) (tea.Msg, error) {
	var e history.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("bad mission event: %w", err)
	}
	return msgs.EventMsg{Event: e}, nil
}

func decodeAction(payload string) (tea.Msg, error) {
	var a plan.Action
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("bad dispatched action: %w", err)
	}
	return msgs.ActionDispatchedMsg{Action: a}, nil
}

func decodeFeedback(payload string) (tea.Msg, error) {
	var fb bus.Feedback
	if err := json.Unmarshal([]byte(payload), &fb); err != nil {
		return nil, fmt.Errorf("bad action feedback: %w", err)
	}
	return msgs.FeedbackMsg{Feedback: fb}, nil
}
