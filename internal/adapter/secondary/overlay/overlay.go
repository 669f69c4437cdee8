// Package overlay loads overlay images from disk into blend-ready form.
package overlay

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"photobooth/internal/compositor"
	"photobooth/internal/domain"
	"photobooth/internal/logging"
)

var log = logging.For("overlay")

// Load decodes a PNG or JPEG file and precomputes its blend planes.
func Load(path string) (*compositor.AlphaImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open overlay: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode overlay %s: %w", path, err)
	}
	b := img.Bounds()
	log.Debugf("loaded %s (%s %dx%d)", path, format, b.Dx(), b.Dy())
	return compositor.NewAlphaImage(img), nil
}

// LoadCountdown loads the countdown overlays in step order: paths[n-1] is
// shown for Countdown(n). Every file must load.
func LoadCountdown(paths []string) ([]*compositor.AlphaImage, error) {
	if len(paths) == 0 {
		return nil, domain.ErrNoCountdownOverlays
	}
	out := make([]*compositor.AlphaImage, 0, len(paths))
	for _, p := range paths {
		o, err := Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// LoadOptional loads the snapshot overlay. An empty path or an unreadable
// file yields no overlay.
func LoadOptional(path string) *compositor.AlphaImage {
	if path == "" {
		return nil
	}
	o, err := Load(path)
	if err != nil {
		log.Warnf("snapshot overlay disabled: %v", err)
		return nil
	}
	return o
}
