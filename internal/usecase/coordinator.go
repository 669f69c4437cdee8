package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"photobooth/internal/compositor"
	"photobooth/internal/domain"
	"photobooth/internal/logging"
)

// Options wires the coordinator to its collaborators.
type Options struct {
	Camera  domain.Camera
	Display domain.Display
	// Trigger may be nil when autonomous triggering is disabled.
	Trigger domain.TriggerControl
	Store   domain.SnapshotStore

	// CountdownOverlays[n-1] is shown for Countdown(n).
	CountdownOverlays []*compositor.AlphaImage
	// SnapshotOverlay is optional.
	SnapshotOverlay *compositor.AlphaImage
	// BlendOnSave composites SnapshotOverlay into the saved file.
	BlendOnSave bool
	Freeze      time.Duration

	UIEvents      <-chan domain.UIEvent
	TriggerEvents <-chan domain.TriggerEvent

	// Now is used for status timestamps; defaults to time.Now.
	Now func() time.Time
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	StartedAt   time.Time `json:"startedAt"`
	Busy        bool      `json:"busy"`
	Taken       int       `json:"taken"`
	Failed      int       `json:"failed"`
	LastFile    string    `json:"lastFile,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	LastTakenAt time.Time `json:"lastTakenAt,omitzero"`
	LastSource  string    `json:"lastSource,omitempty"`
}

// Coordinator merges UI and trigger events and runs the snapshot sequence.
// Events are handled one at a time; a trigger arriving during a sequence
// waits in its channel slot until the sequence is over.
type Coordinator struct {
	opts Options
	log  logging.Logger

	// triggerEvents is owned by the Run goroutine; pending holds a trigger
	// taken out of it while dropping stale countdown steps.
	triggerEvents <-chan domain.TriggerEvent
	pending       *domain.TriggerEvent

	mu     sync.RWMutex
	status Status
}

// NewCoordinator checks the required collaborators.
func NewCoordinator(opts Options) (*Coordinator, error) {
	switch {
	case opts.Camera == nil:
		return nil, errors.New("coordinator: camera is required")
	case opts.Display == nil:
		return nil, errors.New("coordinator: display is required")
	case opts.Store == nil:
		return nil, errors.New("coordinator: snapshot store is required")
	case opts.UIEvents == nil:
		return nil, errors.New("coordinator: ui event stream is required")
	case opts.Freeze <= 0:
		return nil, fmt.Errorf("coordinator: freeze: %w", domain.ErrInvalidDuration)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		opts:          opts,
		log:           logging.For("coordinator"),
		triggerEvents: opts.TriggerEvents,
	}, nil
}

// Status returns a copy of the current status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run services events until shutdown, Escape or the window closing. Its
// error is the process's termination value.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.status.StartedAt = c.opts.Now()
	c.mu.Unlock()
	c.log.Debugf("started")

	uiEvents := c.opts.UIEvents
	for {
		if ev := c.pending; ev != nil {
			c.pending = nil
			if err := c.handleTrigger(ctx, *ev); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.log.Debugf("shutdown")
			return nil

		case ev, ok := <-uiEvents:
			if !ok {
				c.log.Infof("display event stream closed")
				return nil
			}
			c.log.Tracef("ui event %s", ev)
			switch {
			case ev.Kind == domain.UIWindowClosed:
				c.log.Infof("window closed")
				return nil
			case ev.Key == domain.KeyEscape:
				c.log.Infof("escape pressed")
				return nil
			case ev.Key == domain.KeyEnter:
				if err := c.TakeSnapshot(ctx, "key"); err != nil {
					return err
				}
			}

		case ev, ok := <-c.triggerEvents:
			if !ok {
				c.log.Debugf("trigger event stream closed")
				c.triggerEvents = nil
				continue
			}
			if err := c.handleTrigger(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (c *Coordinator) handleTrigger(ctx context.Context, ev domain.TriggerEvent) error {
	c.log.Tracef("trigger event %s from %s", ev, ev.Source)
	switch ev.Kind {
	case domain.EventTrigger:
		return c.TakeSnapshot(ctx, ev.Source)
	case domain.EventCountdown:
		return c.display(ctx, domain.Blend(c.countdownOverlay(ev.Step)))
	}
	return nil
}

func (c *Coordinator) countdownOverlay(step int) *compositor.AlphaImage {
	if step < 1 || step > len(c.opts.CountdownOverlays) {
		return nil
	}
	return c.opts.CountdownOverlays[step-1]
}

// TakeSnapshot runs the snapshot sequence:
//
//	Stop, capture, Blend(snapshot overlay), Freeze, save, freeze delay,
//	Blend(none), Live, Run
//
// Only a lost collaborator is returned as an error. A failed capture or
// save is recorded in the status and the booth goes back to live preview.
func (c *Coordinator) TakeSnapshot(ctx context.Context, source string) error {
	seq := uuid.NewString()
	c.mu.Lock()
	c.status.Busy = true
	c.status.LastSource = source
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.status.Busy = false
		c.mu.Unlock()
	}()

	c.log.Infof("snapshot %s from %s", seq, source)
	if err := c.trigger(ctx, domain.CommandStop); err != nil {
		return err
	}

	frame, err := c.opts.Camera.TakeSnapshot(ctx)
	if err == nil && frame.Empty() {
		err = domain.ErrEmptyFrame
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.fail(seq, fmt.Errorf("capture: %w", err))
		return c.resume(ctx)
	}

	if err := c.display(ctx, domain.Blend(c.opts.SnapshotOverlay)); err != nil {
		return err
	}
	if err := c.display(ctx, domain.Freeze()); err != nil {
		return err
	}

	var still image.Image = frame.Image
	if c.opts.BlendOnSave && c.opts.SnapshotOverlay != nil {
		still = c.opts.SnapshotOverlay.Composite(frame.Image)
	}
	path, err := c.opts.Store.Save(still)
	if err != nil {
		c.fail(seq, fmt.Errorf("save: %w", err))
	} else {
		c.mu.Lock()
		c.status.Taken++
		c.status.LastFile = path
		c.status.LastError = ""
		c.status.LastTakenAt = c.opts.Now()
		c.mu.Unlock()
		c.log.Infof("snapshot %s saved to %s", seq, path)
	}

	timer := time.NewTimer(c.opts.Freeze)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case <-timer.C:
	}

	return c.resume(ctx)
}

func (c *Coordinator) resume(ctx context.Context) error {
	if err := c.display(ctx, domain.Blend(nil)); err != nil {
		return err
	}
	if err := c.display(ctx, domain.Live()); err != nil {
		return err
	}
	c.dropStaleCountdown()
	return c.trigger(ctx, domain.CommandRun)
}

// dropStaleCountdown discards a countdown step the machine published
// before it handled Stop. A trigger found in the slot is kept for Run.
func (c *Coordinator) dropStaleCountdown() {
	select {
	case ev, ok := <-c.triggerEvents:
		switch {
		case !ok:
			c.triggerEvents = nil
		case ev.Kind == domain.EventCountdown:
			c.log.Debugf("dropping stale %s", ev)
		default:
			c.pending = &ev
		}
	default:
	}
}

func (c *Coordinator) fail(seq string, err error) {
	c.log.Errorf("snapshot %s: %v", seq, err)
	c.mu.Lock()
	c.status.Failed++
	c.status.LastError = err.Error()
	c.mu.Unlock()
}

func (c *Coordinator) display(ctx context.Context, cmd domain.UIControlCommand) error {
	c.log.Tracef("display %s", cmd)
	if err := c.opts.Display.Control(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("display %s: %w", cmd, err)
	}
	return nil
}

func (c *Coordinator) trigger(ctx context.Context, cmd domain.ControlCommand) error {
	if c.opts.Trigger == nil {
		return nil
	}
	c.log.Tracef("trigger %s", cmd)
	if err := c.opts.Trigger.Control(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("trigger %s: %w", cmd, err)
	}
	return nil
}
