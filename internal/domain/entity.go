package domain

import (
	"fmt"
	"image"
	"time"

	"photobooth/internal/compositor"
)

// TriggerConfig holds the timings of the autonomous countdown.
// It is fixed once the state machine starts.
type TriggerConfig struct {
	TimeoutUntilCountdown time.Duration
	TimeoutBetweenSteps   time.Duration
	// Disabled turns autonomous triggering off entirely. Manual and remote
	// triggers still reach the coordinator.
	Disabled bool
}

// Validate checks that every enabled timeout is positive.
func (c TriggerConfig) Validate() error {
	if c.Disabled {
		if c.TimeoutBetweenSteps < 0 {
			return ErrInvalidDuration
		}
		return nil
	}
	if c.TimeoutUntilCountdown <= 0 || c.TimeoutBetweenSteps <= 0 {
		return ErrInvalidDuration
	}
	return nil
}

// StateKind tags the active variant of TriggerState.
type StateKind int

const (
	StateWaiting StateKind = iota
	StateCountdown
	StateTrigger
	StateStopped
)

func (k StateKind) String() string {
	switch k {
	case StateWaiting:
		return "waiting"
	case StateCountdown:
		return "countdown"
	case StateTrigger:
		return "trigger"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TriggerState is the tagged union {Waiting, Countdown(remaining), Trigger, Stopped}.
// Remaining is only meaningful for StateCountdown and is always > 0 there.
type TriggerState struct {
	Kind      StateKind
	Remaining int
}

func Waiting() TriggerState { return TriggerState{Kind: StateWaiting} }

func Countdown(remaining int) TriggerState {
	return TriggerState{Kind: StateCountdown, Remaining: remaining}
}

func Triggering() TriggerState { return TriggerState{Kind: StateTrigger} }

func Stopped() TriggerState { return TriggerState{Kind: StateStopped} }

func (s TriggerState) String() string {
	if s.Kind == StateCountdown {
		return fmt.Sprintf("countdown(%d)", s.Remaining)
	}
	return s.Kind.String()
}

// ControlCommand is consumed by the trigger state machine.
type ControlCommand int

const (
	CommandRun ControlCommand = iota
	CommandStop
)

func (c ControlCommand) String() string {
	switch c {
	case CommandRun:
		return "run"
	case CommandStop:
		return "stop"
	default:
		return "unknown"
	}
}

// TriggerEventKind tags TriggerEvent.
type TriggerEventKind int

const (
	EventCountdown TriggerEventKind = iota
	EventTrigger
)

// TriggerEvent is multicast by the state machine and the remote trigger endpoints.
type TriggerEvent struct {
	Kind TriggerEventKind
	// Step is the countdown step (>= 1) for EventCountdown.
	Step int
	// Source names the publisher for logging ("auto", "web", "mqtt").
	Source string
}

func CountdownEvent(step int) TriggerEvent {
	return TriggerEvent{Kind: EventCountdown, Step: step, Source: SourceAuto}
}

func TriggerNow(source string) TriggerEvent {
	return TriggerEvent{Kind: EventTrigger, Source: source}
}

func (e TriggerEvent) String() string {
	if e.Kind == EventCountdown {
		return fmt.Sprintf("countdown(%d)", e.Step)
	}
	return "trigger"
}

// Trigger sources.
const (
	SourceAuto = "auto"
	SourceWeb  = "web"
	SourceMQTT = "mqtt"
)

// Key codes reported by the display.
const (
	KeyEnter  = 13
	KeyEscape = 27
)

// UIEventKind tags UIEvent.
type UIEventKind int

const (
	UIKeyPressed UIEventKind = iota
	UIWindowClosed
)

// UIEvent is produced by the display collaborator.
type UIEvent struct {
	Kind UIEventKind
	Key  int
}

func KeyPressed(code int) UIEvent { return UIEvent{Kind: UIKeyPressed, Key: code} }

func WindowClosed() UIEvent { return UIEvent{Kind: UIWindowClosed} }

func (e UIEvent) String() string {
	if e.Kind == UIWindowClosed {
		return "window-closed"
	}
	return fmt.Sprintf("key(%d)", e.Key)
}

// UIControlKind tags UIControlCommand.
type UIControlKind int

const (
	UIBlend UIControlKind = iota
	UIFreeze
	UILive
)

// UIControlCommand is consumed by the display collaborator.
type UIControlCommand struct {
	Kind UIControlKind
	// Overlay is the Blend payload; nil clears the overlay.
	Overlay *compositor.AlphaImage
}

func Blend(overlay *compositor.AlphaImage) UIControlCommand {
	return UIControlCommand{Kind: UIBlend, Overlay: overlay}
}

func Freeze() UIControlCommand { return UIControlCommand{Kind: UIFreeze} }

func Live() UIControlCommand { return UIControlCommand{Kind: UILive} }

func (c UIControlCommand) String() string {
	switch c.Kind {
	case UIBlend:
		if c.Overlay == nil {
			return "blend(none)"
		}
		w, h := c.Overlay.Size()
		return fmt.Sprintf("blend(%dx%d)", w, h)
	case UIFreeze:
		return "freeze"
	case UILive:
		return "live"
	default:
		return "unknown"
	}
}

// Frame is one image produced by the camera.
type Frame struct {
	Image     *image.RGBA
	Seq       uint64
	Timestamp time.Time
	TraceID   string
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Image == nil || f.Image.Rect.Empty()
}
