package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"photobooth/internal/domain"
	"photobooth/internal/eventbus"
	"photobooth/internal/logging"
)

// Machine runs the countdown/trigger state machine against wall-clock
// timers. It publishes countdown and trigger events on the trigger bus and
// accepts Run/Stop through Control.
type Machine struct {
	cfg    domain.TriggerConfig
	depth  int
	events *eventbus.Bus[domain.TriggerEvent]
	log    logging.Logger

	mailbox  *eventbus.Mailbox[domain.ControlCommand]
	commands <-chan domain.ControlCommand

	mu    sync.RWMutex
	state domain.TriggerState
}

// NewMachine validates cfg and creates a machine in the Waiting state.
// depth is the number of countdown steps and must be at least one unless
// autonomous triggering is disabled.
func NewMachine(cfg domain.TriggerConfig, depth int, events *eventbus.Bus[domain.TriggerEvent]) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("trigger config: %w", err)
	}
	if depth < 1 && !cfg.Disabled {
		return nil, domain.ErrNoCountdownOverlays
	}
	mb := eventbus.NewMailbox[domain.ControlCommand]()
	return &Machine{
		cfg:      cfg,
		depth:    depth,
		events:   events,
		log:      logging.For("trigger"),
		mailbox:  mb,
		commands: mb.Receive(),
		state:    domain.Waiting(),
	}, nil
}

// Control hands a command to the running machine. It waits while the
// previous command is still pending and fails with
// eventbus.ErrConsumerGone once Run has returned.
func (m *Machine) Control(ctx context.Context, cmd domain.ControlCommand) error {
	return m.mailbox.Send(ctx, cmd)
}

// State returns the current state.
func (m *Machine) State() domain.TriggerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Disabled reports whether Run exits immediately.
func (m *Machine) Disabled() bool {
	return m.cfg.Disabled
}

// Run drives the machine until ctx is cancelled. A publish into a bus
// without subscribers stops it with an error.
func (m *Machine) Run(ctx context.Context) error {
	defer m.mailbox.Close()

	if m.cfg.Disabled {
		m.log.Infof("autonomous triggering disabled")
		return nil
	}
	m.log.Debugf("started: depth=%d until=%s between=%s",
		m.depth, m.cfg.TimeoutUntilCountdown, m.cfg.TimeoutBetweenSteps)

	state := m.State()
	for {
		if state.Kind == domain.StateTrigger {
			next, err := m.enter(ctx, domain.Transition(state, domain.InputFired, m.depth))
			if err != nil {
				return err
			}
			state = next
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if d, ok := domain.Timeout(state, m.cfg); ok {
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		var step domain.Step
	wait:
		for {
			select {
			case <-ctx.Done():
				stopTimer(timer)
				m.log.Debugf("shutdown in %s", state)
				return nil
			case cmd, ok := <-m.commands:
				if !ok {
					m.log.Debugf("command channel closed")
					m.commands = nil
					continue
				}
				step = domain.Transition(state, domain.InputFor(cmd), m.depth)
				if !step.Changed {
					m.log.Tracef("%s ignored in %s", cmd, state)
					continue
				}
				break wait
			case <-timerC:
				timer = nil
				step = domain.Transition(state, domain.InputTimerElapsed, m.depth)
				break wait
			}
		}
		stopTimer(timer)

		next, err := m.enter(ctx, step)
		if err != nil {
			return err
		}
		state = next
	}
}

func (m *Machine) enter(ctx context.Context, step domain.Step) (domain.TriggerState, error) {
	prev := m.State()
	m.mu.Lock()
	m.state = step.Next
	m.mu.Unlock()
	m.log.Debugf("%s -> %s", prev, step.Next)

	for _, ev := range step.Emit {
		if err := m.events.Publish(ev); err != nil {
			if ctx.Err() != nil && (errors.Is(err, eventbus.ErrNoSubscribers) || errors.Is(err, eventbus.ErrBusClosed)) {
				// Subscribers left because of the shutdown itself.
				return step.Next, nil
			}
			return step.Next, fmt.Errorf("publish %s: %w", ev, err)
		}
	}
	return step.Next, nil
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
