package config

import (
	"os"
	"path/filepath"
)

// DefaultPath returns ~/.config/photobooth/config.yaml (or a cwd fallback).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "photobooth", "config.yaml")
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "photobooth-config.yaml")
}
