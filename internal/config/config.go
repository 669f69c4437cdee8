package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"photobooth/internal/domain"
)

// Config is the complete booth configuration.
type Config struct {
	Trigger  TriggerConfig  `yaml:"trigger"`
	Freeze   Delay          `yaml:"freeze"`
	Output   OutputConfig   `yaml:"output"`
	Overlays OverlaysConfig `yaml:"overlays"`
	Video    VideoConfig    `yaml:"video"`
	Display  DisplayConfig  `yaml:"display"`
	Web      WebConfig      `yaml:"web"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Sounds   SoundsConfig   `yaml:"sounds"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TriggerConfig holds the autonomous countdown timings.
type TriggerConfig struct {
	Timeout        Delay `yaml:"timeout"`         // until the countdown starts, "off" disables
	TimeoutBetween Delay `yaml:"timeout_between"` // between countdown steps
}

// OutputConfig controls where snapshots go.
type OutputConfig struct {
	Directory    string `yaml:"directory"`
	Filename     string `yaml:"filename"` // strftime template, may contain $COUNTER$
	JPEGQuality  int    `yaml:"jpeg_quality"`
	BlendOverlay bool   `yaml:"blend_overlay"`
}

// OverlaysConfig lists overlay images.
type OverlaysConfig struct {
	Countdown []string `yaml:"countdown"` // entry n-1 is shown for step n
	Snapshot  string   `yaml:"snapshot"`
}

// VideoConfig contains camera settings.
type VideoConfig struct {
	Device         string `yaml:"device"` // N, /dev/videoN or "test"
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	FPS            int    `yaml:"fps"`
	SnapshotWidth  int    `yaml:"snapshot_width"`
	SnapshotHeight int    `yaml:"snapshot_height"`
}

// DisplayConfig contains window settings.
type DisplayConfig struct {
	Fullscreen bool   `yaml:"fullscreen"`
	Mirror     bool   `yaml:"mirror"`
	Title      string `yaml:"title"`
}

// WebConfig contains the HTTP trigger endpoint. Empty Addr disables it.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig contains the MQTT trigger subscriber. Empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// SoundsConfig lists optional chime files.
type SoundsConfig struct {
	Countdown string `yaml:"countdown"`
	Trigger   string `yaml:"trigger"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the initial configuration.
func DefaultConfig() Config {
	return Config{
		Trigger: TriggerConfig{
			Timeout:        After(9 * time.Second),
			TimeoutBetween: After(time.Second),
		},
		Freeze: After(3 * time.Second),
		Output: OutputConfig{
			Directory:    "captures",
			Filename:     "%Y-%m-%d_%H-%M-%S.jpg",
			JPEGQuality:  92,
			BlendOverlay: true,
		},
		Overlays: OverlaysConfig{
			Countdown: []string{"assets/1.png", "assets/2.png", "assets/3.png"},
			Snapshot:  "assets/mugshot.png",
		},
		Video: VideoConfig{
			Device:         "0",
			Width:          640,
			Height:         480,
			FPS:            30,
			SnapshotWidth:  1920,
			SnapshotHeight: 1080,
		},
		Display: DisplayConfig{Mirror: true, Title: "photobooth"},
		Web:     WebConfig{Addr: "0.0.0.0:8080"},
		MQTT:    MQTTConfig{Topic: "photobooth/trigger", ClientID: "photobooth", QoS: 1},
		Logging: LoggingConfig{Level: "warn"},
	}
}

// Domain returns the state machine configuration.
func (c Config) Domain() domain.TriggerConfig {
	return domain.TriggerConfig{
		TimeoutUntilCountdown: c.Trigger.Timeout.Duration,
		TimeoutBetweenSteps:   c.Trigger.TimeoutBetween.Duration,
		Disabled:              c.Trigger.Timeout.Off,
	}
}

// Store persists configuration to disk so the CLI and the web interface share it.
type Store interface {
	Load() (Config, error)
	Save(Config) error
}

// FileStore implements Store using a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store under the supplied path. Parent directories are created on save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the configuration file or returns defaults if it does not
// exist. Keys missing from the file keep their defaults.
func (s *FileStore) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := DefaultConfig()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to disk atomically.
func (s *FileStore) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// Get returns the YAML rendering of a dotted key such as "video.width".
// An empty key renders the whole configuration.
func Get(cfg Config, key string) (string, error) {
	node, err := lookup(cfg, key)
	if err != nil {
		return "", err
	}
	if node.Kind == yaml.ScalarNode {
		return node.Value, nil
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Set parses value as YAML and stores it under a dotted key.
func Set(cfg *Config, key, value string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if _, err := lookup(*cfg, key); err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(value), &doc); err != nil {
		return fmt.Errorf("parse value: %w", err)
	}
	leaf := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ""}
	if len(doc.Content) > 0 {
		leaf = doc.Content[0]
	}

	parts := strings.Split(key, ".")
	node := leaf
	for i := len(parts) - 1; i >= 0; i-- {
		node = &yaml.Node{
			Kind:    yaml.MappingNode,
			Content: []*yaml.Node{{Kind: yaml.ScalarNode, Value: parts[i]}, node},
		}
	}
	if err := node.Decode(cfg); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Keys lists every leaf key in dotted form.
func Keys() []string {
	var root yaml.Node
	if err := root.Encode(DefaultConfig()); err != nil {
		return nil
	}
	var keys []string
	var walk func(prefix string, n *yaml.Node)
	walk = func(prefix string, n *yaml.Node) {
		if n.Kind != yaml.MappingNode {
			keys = append(keys, prefix)
			return
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			if prefix != "" {
				k = prefix + "." + k
			}
			walk(k, n.Content[i+1])
		}
	}
	walk("", &root)
	sort.Strings(keys)
	return keys
}

func lookup(cfg Config, key string) (*yaml.Node, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	node := &root
	if key == "" {
		return node, nil
	}
	for _, part := range strings.Split(key, ".") {
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("unknown key %q", key)
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == part {
				next = node.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("unknown key %q", key)
		}
		node = next
	}
	return node, nil
}
