package config

import (
	"fmt"
	"strings"

	"photobooth/internal/logging"
)

// Normalize trims text fields, fills empty optional fields with defaults
// and rejects values the booth cannot run with.
func Normalize(cfg Config) (Config, error) {
	def := DefaultConfig()

	cfg.Output.Directory = strings.TrimSpace(cfg.Output.Directory)
	cfg.Output.Filename = strings.TrimSpace(cfg.Output.Filename)
	cfg.Video.Device = strings.TrimSpace(cfg.Video.Device)
	if cfg.Display.Title == "" {
		cfg.Display.Title = def.Display.Title
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = def.MQTT.Topic
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = def.MQTT.ClientID
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}

	if !cfg.Trigger.Timeout.Off && cfg.Trigger.Timeout.Duration <= 0 {
		return cfg, fmt.Errorf("trigger.timeout must be > 0 or off")
	}
	if cfg.Trigger.TimeoutBetween.Off || cfg.Trigger.TimeoutBetween.Duration <= 0 {
		return cfg, fmt.Errorf("trigger.timeout_between must be > 0")
	}
	if cfg.Freeze.Off || cfg.Freeze.Duration <= 0 {
		return cfg, fmt.Errorf("freeze must be > 0")
	}
	if cfg.Output.Directory == "" {
		return cfg, fmt.Errorf("output.directory is required")
	}
	if cfg.Output.Filename == "" {
		return cfg, fmt.Errorf("output.filename is required")
	}
	if cfg.Output.JPEGQuality < 1 || cfg.Output.JPEGQuality > 100 {
		return cfg, fmt.Errorf("output.jpeg_quality must be between 1 and 100")
	}
	if len(cfg.Overlays.Countdown) == 0 {
		return cfg, fmt.Errorf("overlays.countdown needs at least one image")
	}
	for i, p := range cfg.Overlays.Countdown {
		if strings.TrimSpace(p) == "" {
			return cfg, fmt.Errorf("overlays.countdown[%d] is empty", i)
		}
	}
	if cfg.Video.Device == "" {
		return cfg, fmt.Errorf("video.device is required")
	}
	if cfg.Video.Width <= 0 || cfg.Video.Height <= 0 || cfg.Video.FPS <= 0 {
		return cfg, fmt.Errorf("video.width, video.height and video.fps must be > 0")
	}
	if cfg.Video.SnapshotWidth <= 0 || cfg.Video.SnapshotHeight <= 0 {
		return cfg, fmt.Errorf("video.snapshot_width and video.snapshot_height must be > 0")
	}
	if cfg.MQTT.QoS > 2 {
		return cfg, fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if _, _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return cfg, fmt.Errorf("logging.level: %w", err)
	}
	return cfg, nil
}
