package cli

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"photobooth/internal/adapter/primary/web"
	"photobooth/internal/config"
	"photobooth/internal/domain"
	"photobooth/internal/eventbus"
	"photobooth/internal/logging"
	"photobooth/internal/usecase"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestConfigInitGetSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booth", "config.yaml")

	if _, err := run(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := run(t, "--config", path, "config", "init"); err == nil {
		t.Fatal("second init without --force should fail")
	}
	out, err := run(t, "--config", path, "config", "get", "video.width")
	if err != nil || out != "640" {
		t.Fatalf("get video.width = %q, %v", out, err)
	}

	if _, err := run(t, "--config", path, "config", "set", "trigger.timeout", "off"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err = run(t, "--config", path, "config", "get", "trigger.timeout")
	if err != nil || out != "off" {
		t.Fatalf("get trigger.timeout = %q, %v", out, err)
	}

	if _, err := run(t, "--config", path, "config", "set", "freeze", "0"); err == nil {
		t.Fatal("expected a zero freeze to be rejected")
	}
	if _, err := run(t, "--config", path, "config", "get", "nope"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestConfigKeys(t *testing.T) {
	out, err := run(t, "--config", filepath.Join(t.TempDir(), "c.yaml"), "config", "keys")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"trigger.timeout", "output.filename", "mqtt.qos"} {
		if !strings.Contains(out, want) {
			t.Fatalf("keys missing %s:\n%s", want, out)
		}
	}
}

func TestBoothURL(t *testing.T) {
	cases := map[string]string{
		"0.0.0.0:8080":   "http://127.0.0.1:8080/api/status",
		":9000":          "http://127.0.0.1:9000/api/status",
		"booth.lan:8080": "http://booth.lan:8080/api/status",
	}
	for addr, want := range cases {
		got, err := boothURL(addr, "/api/status")
		if err != nil || got != want {
			t.Fatalf("boothURL(%q) = %q, %v", addr, got, err)
		}
	}
	if _, err := boothURL("", "/"); err == nil {
		t.Fatal("expected error for a disabled web trigger")
	}
	if _, err := boothURL("nohost", "/"); err == nil {
		t.Fatal("expected error without a port")
	}
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	var f serveFlags
	cmd := &cobra.Command{Use: "serve"}
	f.register(cmd.Flags())
	if err := cmd.ParseFlags([]string{"--timeout", "off", "--freeze", "1.5", "--no-mirror", "--width", "320", "--addr", ""}); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	f.apply(cmd, &cfg)

	if !cfg.Trigger.Timeout.Off {
		t.Fatal("timeout should be off")
	}
	if cfg.Freeze.Duration != 1500*time.Millisecond {
		t.Fatalf("freeze = %s", cfg.Freeze)
	}
	if cfg.Display.Mirror {
		t.Fatal("mirror should be off")
	}
	if cfg.Video.Width != 320 || cfg.Video.Height != 480 {
		t.Fatalf("unexpected size %dx%d", cfg.Video.Width, cfg.Video.Height)
	}
	if cfg.Web.Addr != "" {
		t.Fatalf("web trigger should be disabled, got %q", cfg.Web.Addr)
	}
	if cfg.Trigger.TimeoutBetween.Duration != time.Second {
		t.Fatal("unset flags must keep config values")
	}
}

func TestTriggerAndStatusCommands(t *testing.T) {
	bus := eventbus.New[domain.TriggerEvent]()
	sub := bus.Subscribe()
	defer sub.Close()
	st := usecase.Status{StartedAt: time.Now().Add(-time.Hour), Taken: 2, LastFile: "captures/x.jpg", LastSource: "web", LastTakenAt: time.Now()}
	srv := httptest.NewServer(web.NewServer("", bus, statusStub{st}, nil).Handler())
	defer srv.Close()
	addr := srv.Listener.Addr().String()
	cfgFile := filepath.Join(t.TempDir(), "c.yaml")

	out, err := run(t, "--config", cfgFile, "trigger", "--addr", addr)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !strings.HasPrefix(out, "triggered") {
		t.Fatalf("unexpected output %q", out)
	}
	select {
	case ev := <-sub.C():
		if ev.Kind != domain.EventTrigger {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("trigger not delivered")
	}

	out, err = run(t, "--config", cfgFile, "status", "--addr", addr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "pictures: 2 taken, 0 failed") || !strings.Contains(out, "captures/x.jpg") {
		t.Fatalf("unexpected status:\n%s", out)
	}
}

func TestTriggerRejected(t *testing.T) {
	srv := httptest.NewServer(web.NewServer("", eventbus.New[domain.TriggerEvent](), nil, nil).Handler())
	defer srv.Close()
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "c.yaml"), "trigger", "--addr", srv.Listener.Addr().String())
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestDisabledMachineIsNotExposed(t *testing.T) {
	bus := eventbus.New[domain.TriggerEvent]()
	off, err := usecase.NewMachine(domain.TriggerConfig{Disabled: true}, 0, bus)
	if err != nil {
		t.Fatal(err)
	}
	control, state := machinePorts(off)
	if control != nil || state != nil {
		t.Fatalf("disabled machine exposed: %v %v", control, state)
	}

	srv := httptest.NewServer(web.NewServer("", bus, nil, state).Handler())
	defer srv.Close()
	out, err := run(t, "--config", filepath.Join(t.TempDir(), "c.yaml"), "status", "--json", "--addr", srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, `"trigger"`) {
		t.Fatalf("status reports a trigger state for a disabled machine:\n%s", out)
	}

	on, err := usecase.NewMachine(domain.TriggerConfig{TimeoutUntilCountdown: time.Second, TimeoutBetweenSteps: time.Second}, 1, bus)
	if err != nil {
		t.Fatal(err)
	}
	if control, state := machinePorts(on); control == nil || state == nil {
		t.Fatal("running machine must be exposed")
	}
}

func TestShellLogLevelSurvivesCommands(t *testing.T) {
	t.Cleanup(func() { logging.SetVerbosity(0) })

	if err := handleShellLog([]string{"debug"}); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", filepath.Join(t.TempDir(), "c.yaml"), "config", "keys"); err != nil {
		t.Fatal(err)
	}
	if got := logging.LevelName(); got != "debug" {
		t.Fatalf("expected debug after a command, got %s", got)
	}
	if err := handleShellLog(nil); err != nil {
		t.Fatal(err)
	}
	if err := handleShellLog([]string{"loud"}); err == nil {
		t.Fatal("expected unknown level error")
	}
	if err := handleShellLog([]string{"info", "debug"}); err == nil {
		t.Fatal("expected usage error")
	}
	if got := logging.LevelName(); got != "debug" {
		t.Fatalf("rejected input changed the level to %s", got)
	}
}

type statusStub struct{ st usecase.Status }

func (s statusStub) Status() usecase.Status { return s.st }
