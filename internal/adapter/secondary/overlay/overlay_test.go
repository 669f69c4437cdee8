package overlay

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"photobooth/internal/domain"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 128})
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCountdownKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writePNG(t, dir, "1.png", 1, 1),
		writePNG(t, dir, "2.png", 2, 2),
		writePNG(t, dir, "3.png", 3, 3),
	}
	overlays, err := LoadCountdown(paths)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, o := range overlays {
		if w, _ := o.Size(); w != i+1 {
			t.Fatalf("overlay %d: expected width %d, got %d", i, i+1, w)
		}
	}
}

func TestLoadCountdownRequiresEveryFile(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writePNG(t, dir, "1.png", 1, 1), filepath.Join(dir, "missing.png")}
	if _, err := LoadCountdown(paths); err == nil {
		t.Fatal("expected error for a missing overlay")
	}
	if _, err := LoadCountdown(nil); !errors.Is(err, domain.ErrNoCountdownOverlays) {
		t.Fatalf("expected ErrNoCountdownOverlays, got %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	if LoadOptional("") != nil {
		t.Fatal("expected nil for empty path")
	}
	if LoadOptional(filepath.Join(dir, "nope.png")) != nil {
		t.Fatal("expected nil for unreadable file")
	}
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if LoadOptional(bad) != nil {
		t.Fatal("expected nil for undecodable file")
	}
	if LoadOptional(writePNG(t, dir, "m.png", 4, 2)) == nil {
		t.Fatal("expected overlay for a valid file")
	}
}
