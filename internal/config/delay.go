package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Delay is a duration that may be switched off. It is accepted as a Go
// duration ("9s", "1500ms"), a bare number of seconds or "off".
type Delay struct {
	Duration time.Duration
	Off      bool
}

var _ pflag.Value = (*Delay)(nil)

// After returns an enabled delay.
func After(d time.Duration) Delay { return Delay{Duration: d} }

// ParseDelay parses the textual form.
func ParseDelay(s string) (Delay, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "off", "disabled", "none":
		return Delay{Off: true}, nil
	case "":
		return Delay{}, fmt.Errorf("empty delay")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Delay{Duration: time.Duration(secs * float64(time.Second))}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Delay{}, fmt.Errorf("invalid delay %q: want a duration like 9s or \"off\"", s)
	}
	return Delay{Duration: d}, nil
}

func (d Delay) String() string {
	if d.Off {
		return "off"
	}
	return d.Duration.String()
}

func (d *Delay) Set(s string) error {
	v, err := ParseDelay(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d *Delay) Type() string { return "delay" }

func (d Delay) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Delay) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: delay must be a scalar", value.Line)
	}
	return d.Set(value.Value)
}
