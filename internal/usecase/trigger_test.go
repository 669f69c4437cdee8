package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"photobooth/internal/domain"
	"photobooth/internal/eventbus"
)

func newTestMachine(t *testing.T, cfg domain.TriggerConfig, depth int) (*Machine, *eventbus.Bus[domain.TriggerEvent]) {
	t.Helper()
	bus := eventbus.New[domain.TriggerEvent]()
	m, err := NewMachine(cfg, depth, bus)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m, bus
}

func startMachine(t *testing.T, m *Machine) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Error("machine did not stop")
		}
	})
	return cancel, errCh
}

func nextEvent(t *testing.T, sub *eventbus.Subscription[domain.TriggerEvent], within time.Duration) domain.TriggerEvent {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(within):
		t.Fatalf("no event within %s", within)
		return domain.TriggerEvent{}
	}
}

func TestMachineEmitsCountdownThenTrigger(t *testing.T) {
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: 20 * time.Millisecond, TimeoutBetweenSteps: 10 * time.Millisecond}
	m, bus := newTestMachine(t, cfg, 3)
	sub := bus.Subscribe()
	defer sub.Close()
	startMachine(t, m)

	want := []domain.TriggerEvent{
		domain.CountdownEvent(3),
		domain.CountdownEvent(2),
		domain.CountdownEvent(1),
		domain.TriggerNow(domain.SourceAuto),
	}
	for i, w := range want {
		if got := nextEvent(t, sub, time.Second); got != w {
			t.Fatalf("event %d: expected %v, got %v", i, w, got)
		}
	}
	// The cycle repeats from Waiting.
	if got := nextEvent(t, sub, time.Second); got != domain.CountdownEvent(3) {
		t.Fatalf("expected a new cycle, got %v", got)
	}
}

func TestMachineEventOffsets(t *testing.T) {
	const (
		until   = 200 * time.Millisecond
		between = 100 * time.Millisecond
		depth   = 3
		slack   = 80 * time.Millisecond
	)
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: until, TimeoutBetweenSteps: between}
	m, bus := newTestMachine(t, cfg, depth)
	sub := bus.Subscribe()
	defer sub.Close()

	start := time.Now()
	startMachine(t, m)

	// countdown(k) arrives at until + (depth-k)*between, the trigger one step later.
	want := []struct {
		ev domain.TriggerEvent
		at time.Duration
	}{
		{domain.CountdownEvent(3), until},
		{domain.CountdownEvent(2), until + between},
		{domain.CountdownEvent(1), until + 2*between},
		{domain.TriggerNow(domain.SourceAuto), until + depth*between},
	}
	for _, w := range want {
		got := nextEvent(t, sub, time.Second)
		elapsed := time.Since(start)
		if got != w.ev {
			t.Fatalf("expected %v, got %v", w.ev, got)
		}
		if elapsed < w.at-5*time.Millisecond || elapsed > w.at+slack {
			t.Fatalf("%v at %s, expected about %s", got, elapsed, w.at)
		}
	}
}

func TestMachineStopPreventsTrigger(t *testing.T) {
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: 20 * time.Millisecond, TimeoutBetweenSteps: 40 * time.Millisecond}
	m, bus := newTestMachine(t, cfg, 2)
	sub := bus.Subscribe()
	defer sub.Close()
	startMachine(t, m)

	if got := nextEvent(t, sub, time.Second); got != domain.CountdownEvent(2) {
		t.Fatalf("expected countdown(2), got %v", got)
	}
	if err := m.Control(context.Background(), domain.CommandStop); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case ev := <-sub.C():
		t.Fatalf("expected silence while stopped, got %v", ev)
	case <-time.After(150 * time.Millisecond):
	}
	if s := m.State(); s != domain.Stopped() {
		t.Fatalf("expected stopped, got %s", s)
	}
}

func TestMachineRunRestartsFullTimer(t *testing.T) {
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: 80 * time.Millisecond, TimeoutBetweenSteps: 10 * time.Millisecond}
	m, bus := newTestMachine(t, cfg, 1)
	sub := bus.Subscribe()
	defer sub.Close()
	startMachine(t, m)

	ctx := context.Background()
	if err := m.Control(ctx, domain.CommandStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	select {
	case ev := <-sub.C():
		t.Fatalf("expected no event while stopped, got %v", ev)
	default:
	}

	start := time.Now()
	if err := m.Control(ctx, domain.CommandRun); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := nextEvent(t, sub, time.Second); got != domain.CountdownEvent(1) {
		t.Fatalf("expected countdown(1), got %v", got)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("countdown started after %s, expected the full waiting timeout", elapsed)
	}
}

func TestMachineIgnoresRedundantRun(t *testing.T) {
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: 60 * time.Millisecond, TimeoutBetweenSteps: 10 * time.Millisecond}
	m, bus := newTestMachine(t, cfg, 1)
	sub := bus.Subscribe()
	defer sub.Close()

	first := make(chan time.Time, 1)
	go func() {
		if _, ok := <-sub.C(); ok {
			first <- time.Now()
		}
	}()

	start := time.Now()
	startMachine(t, m)
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		if err := m.Control(context.Background(), domain.CommandRun); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	select {
	case at := <-first:
		if elapsed := at.Sub(start); elapsed > 120*time.Millisecond {
			t.Fatalf("redundant run restarted the timer: first event after %s", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestMachineDisabledExitsImmediately(t *testing.T) {
	cfg := domain.TriggerConfig{Disabled: true, TimeoutBetweenSteps: time.Second}
	m, bus := newTestMachine(t, cfg, 0)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("disabled machine kept running")
	}
	if got := bus.Stats().Published; got != 0 {
		t.Fatalf("expected no events, got %d", got)
	}
	if err := m.Control(context.Background(), domain.CommandRun); !errors.Is(err, eventbus.ErrConsumerGone) {
		t.Fatalf("expected ErrConsumerGone, got %v", err)
	}
}

func TestMachineToleratesClosedCommandChannel(t *testing.T) {
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: 20 * time.Millisecond, TimeoutBetweenSteps: 10 * time.Millisecond}
	m, bus := newTestMachine(t, cfg, 1)
	closed := make(chan domain.ControlCommand)
	close(closed)
	m.commands = closed

	sub := bus.Subscribe()
	defer sub.Close()
	startMachine(t, m)

	if got := nextEvent(t, sub, time.Second); got != domain.CountdownEvent(1) {
		t.Fatalf("expected countdown(1), got %v", got)
	}
}

func TestMachinePublishWithoutSubscribersIsFatal(t *testing.T) {
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: 5 * time.Millisecond, TimeoutBetweenSteps: 5 * time.Millisecond}
	m, _ := newTestMachine(t, cfg, 1)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, eventbus.ErrNoSubscribers) {
			t.Fatalf("expected ErrNoSubscribers, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("machine did not stop")
	}
}

func TestMachineShutdown(t *testing.T) {
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: time.Hour, TimeoutBetweenSteps: time.Hour}
	m, _ := newTestMachine(t, cfg, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown not observed")
	}
}

func TestNewMachineRejectsInvalidConfig(t *testing.T) {
	bus := eventbus.New[domain.TriggerEvent]()
	if _, err := NewMachine(domain.TriggerConfig{TimeoutBetweenSteps: time.Second}, 1, bus); !errors.Is(err, domain.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	cfg := domain.TriggerConfig{TimeoutUntilCountdown: time.Second, TimeoutBetweenSteps: time.Second}
	if _, err := NewMachine(cfg, 0, bus); !errors.Is(err, domain.ErrNoCountdownOverlays) {
		t.Fatalf("expected ErrNoCountdownOverlays, got %v", err)
	}
}
