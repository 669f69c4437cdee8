package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetVerbosity(0)
	})
	return &buf
}

func TestVerbosityGatesLevels(t *testing.T) {
	buf := capture(t)

	SetVerbosity(0)
	Infof("hidden")
	Warnf("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatal("info must not print at verbosity 0")
	}
	if !strings.Contains(buf.String(), "[WARN] shown") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}

	SetVerbosity(9)
	if Verbosity() != 4 || LevelName() != "trace" {
		t.Fatalf("expected clamp to trace, got %d/%s", Verbosity(), LevelName())
	}
}

func TestComponentLogger(t *testing.T) {
	buf := capture(t)
	SetVerbosity(2)

	For("trigger").Debugf("state %s", "waiting")
	if !strings.Contains(buf.String(), "[DBG] trigger: state waiting") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestApply(t *testing.T) {
	capture(t)
	if err := Apply("debug"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if LevelName() != "debug" || Verbosity() != 2 {
		t.Fatalf("expected debug/2, got %s/%d", LevelName(), Verbosity())
	}
	if err := Apply("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if LevelName() != "debug" {
		t.Fatal("failed apply must keep the previous level")
	}
}
