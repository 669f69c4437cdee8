package domain

import "time"

// Input is anything that can move the trigger state machine.
type Input int

const (
	// InputTimerElapsed fires when the state's pending timer expires.
	InputTimerElapsed Input = iota
	// InputRun and InputStop mirror ControlCommand.
	InputRun
	InputStop
	// InputFired completes the transient Trigger state after its emission.
	InputFired
)

func (in Input) String() string {
	switch in {
	case InputTimerElapsed:
		return "timer"
	case InputRun:
		return "run"
	case InputStop:
		return "stop"
	case InputFired:
		return "fired"
	default:
		return "unknown"
	}
}

// InputFor maps a control command to its state machine input.
func InputFor(cmd ControlCommand) Input {
	if cmd == CommandStop {
		return InputStop
	}
	return InputRun
}

// Step is the result of one transition.
type Step struct {
	Next TriggerState
	// Changed is false when the input was absorbed as a no-op; the caller
	// must then keep its pending timer instead of re-entering the state.
	Changed bool
	// Emit holds the entry emission of Next when Changed.
	Emit []TriggerEvent
}

// Transition is the single exhaustive transition function of the trigger
// state machine. It is pure: the caller owns the timers and the emission.
func Transition(s TriggerState, in Input, depth int) Step {
	switch s.Kind {
	case StateWaiting:
		switch in {
		case InputTimerElapsed:
			return enter(Countdown(depth))
		case InputStop:
			return enter(Stopped())
		}
	case StateCountdown:
		switch in {
		case InputTimerElapsed:
			if s.Remaining-1 > 0 {
				return enter(Countdown(s.Remaining - 1))
			}
			return enter(Triggering())
		case InputStop:
			return enter(Stopped())
		}
	case StateTrigger:
		// Trigger consumes nothing from outside; it always falls back to Waiting.
		return enter(Waiting())
	case StateStopped:
		if in == InputRun {
			return enter(Waiting())
		}
	}
	return Step{Next: s}
}

func enter(next TriggerState) Step {
	return Step{Next: next, Changed: true, Emit: Emissions(next)}
}

// Emissions returns the events a state publishes on entry.
func Emissions(s TriggerState) []TriggerEvent {
	switch s.Kind {
	case StateCountdown:
		return []TriggerEvent{CountdownEvent(s.Remaining)}
	case StateTrigger:
		return []TriggerEvent{TriggerNow(SourceAuto)}
	default:
		return nil
	}
}

// Timeout returns the timer armed while s is active. Stopped and Trigger arm none.
func Timeout(s TriggerState, cfg TriggerConfig) (time.Duration, bool) {
	switch s.Kind {
	case StateWaiting:
		return cfg.TimeoutUntilCountdown, true
	case StateCountdown:
		return cfg.TimeoutBetweenSteps, true
	default:
		return 0, false
	}
}
