// Package control holds the mission state machine. Every transition is a
// single method call under one mutex, and every transition is published to
// the registered StatePublishers in the order it happened.
//
// The mission loop only observes signals at checkpoints: before planning,
// after the solver returns, and between dispatched actions. A cancel that
// arrives while the solver runs or while a single action executes takes effect
// once that operation returns.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBusy is returned when a mission is started while another is active.
	ErrBusy = errors.New("mission already active")

	// ErrInvalidTransition is returned when a command is not valid in the
	// current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// StatePublisher observes state transitions. PublishState is called with the
// machine lock held, so implementations must not call back into the Machine.
type StatePublisher interface {
	PublishState(s State)
}

// StatePublisherFunc adapts a function to StatePublisher.
type StatePublisherFunc func(State)

// PublishState implements StatePublisher.
func (f StatePublisherFunc) PublishState(s State) { f(s) }

// Machine owns the mission state and control signals.
type Machine struct {
	mu         sync.Mutex
	state      State
	signals    Signals
	changed    chan struct{}
	publishers []StatePublisher
}

// NewMachine creates a machine in the Ready state.
func NewMachine(publishers ...StatePublisher) *Machine {
	return &Machine{
		state:      Ready,
		changed:    make(chan struct{}),
		publishers: publishers,
	}
}

// AddPublisher registers another state observer.
func (m *Machine) AddPublisher(p StatePublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishers = append(m.publishers, p)
}

// Announce publishes the current state without changing it.
func (m *Machine) Announce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked()
}

// Begin is the mission exclusivity token. It fails with ErrBusy, without any
// state change or publication, unless the machine is Ready.
func (m *Machine) Begin(hint *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Ready {
		return fmt.Errorf("%w (state %s)", ErrBusy, m.state)
	}
	m.signals = Signals{TargetActionID: copyInt(hint)}
	m.transitionLocked(Planning)
	return nil
}

// EnterPlanning moves the mission into Planning and consumes any pending
// replan request. While Paused it blocks until resumed or cancelled. It
// returns false, leaving the state untouched, when the mission was cancelled
// or ctx is done.
func (m *Machine) EnterPlanning(ctx context.Context) bool {
	for {
		if err := m.WaitUnpaused(ctx); err != nil {
			return false
		}

		m.mu.Lock()
		switch {
		case m.signals.CancelRequested:
			m.mu.Unlock()
			return false
		case m.state == Paused:
			// paused again between the wait and the lock
			m.mu.Unlock()
			continue
		}
		m.signals.ReplanRequested = false
		m.transitionLocked(Planning)
		m.mu.Unlock()
		return true
	}
}

// EnterDispatching moves the mission from Planning to Dispatching. It returns
// false without a transition when the mission was cancelled.
func (m *Machine) EnterDispatching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.signals.CancelRequested || m.state != Planning {
		return false
	}
	m.transitionLocked(Dispatching)
	return true
}

// Finish returns the machine to Ready.
func (m *Machine) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signals.PauseRequested = false
	m.transitionLocked(Ready)
}

// Pause suspends dispatch. Valid only while Dispatching.
func (m *Machine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Dispatching || m.signals.PauseRequested {
		return fmt.Errorf("%w: cannot pause while %s", ErrInvalidTransition, m.state)
	}
	if m.signals.CancelRequested {
		return fmt.Errorf("%w: mission is being cancelled", ErrInvalidTransition)
	}
	m.signals.PauseRequested = true
	m.transitionLocked(Paused)
	return nil
}

// Resume continues a paused dispatch. Valid only while Paused.
func (m *Machine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Paused {
		return fmt.Errorf("%w: cannot resume while %s", ErrInvalidTransition, m.state)
	}
	m.signals.PauseRequested = false
	m.transitionLocked(Dispatching)
	return nil
}

// Cancel requests the running mission to stop at its next checkpoint.
// A paused mission is moved back to Dispatching so the loop can reach one.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Ready {
		return fmt.Errorf("%w: no mission to cancel", ErrInvalidTransition)
	}
	m.signals.CancelRequested = true
	if m.state == Paused {
		m.signals.PauseRequested = false
		m.transitionLocked(Dispatching)
		return nil
	}
	m.notifyLocked()
	return nil
}

// RequestReplan flags the current dispatch pass to stop and replan.
func (m *Machine) RequestReplan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals.ReplanRequested = true
	m.notifyLocked()
}

// StashTarget records the action id the next parsed plan should start from.
func (m *Machine) StashTarget(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals.TargetActionID = &id
}

// ConsumeTarget returns and clears the stashed action id.
func (m *Machine) ConsumeTarget() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signals.TargetActionID == nil {
		return 0, false
	}
	id := *m.signals.TargetActionID
	m.signals.TargetActionID = nil
	return id, true
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the state and a copy of the signals.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig := m.signals
	sig.TargetActionID = copyInt(m.signals.TargetActionID)
	return Snapshot{State: m.state, Signals: sig}
}

// Cancelled reports whether cancel was requested for the running mission.
func (m *Machine) Cancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals.CancelRequested
}

// ConsumeReplan returns and clears the replan flag.
func (m *Machine) ConsumeReplan() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.signals.ReplanRequested
	m.signals.ReplanRequested = false
	return r
}

// WaitUnpaused blocks while the machine is Paused.
func (m *Machine) WaitUnpaused(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.state != Paused {
			m.mu.Unlock()
			return nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Changed returns a channel that is closed on the next state or signal change.
func (m *Machine) Changed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

func (m *Machine) transitionLocked(s State) {
	m.state = s
	m.publishLocked()
	m.notifyLocked()
}

func (m *Machine) publishLocked() {
	for _, p := range m.publishers {
		p.PublishState(m.state)
	}
}

func (m *Machine) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
