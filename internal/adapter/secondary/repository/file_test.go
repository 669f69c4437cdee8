package repository

import (
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepo(t *testing.T, dir, template string) *SnapshotRepo {
	t.Helper()
	r, err := New(dir, template, 90)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return r
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 6))
}

func TestSaveCounterSequence(t *testing.T) {
	dir := t.TempDir()
	r := newTestRepo(t, dir, "snap-$COUNTER$.jpg")

	path, err := r.Save(testImage())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "snap-0.jpg" {
		t.Fatalf("expected snap-0.jpg, got %s", path)
	}
	if r.Counter() != 1 {
		t.Fatalf("expected counter 1, got %d", r.Counter())
	}

	if err := os.WriteFile(filepath.Join(dir, "snap-1.jpg"), []byte("taken"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err = r.Save(testImage())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "snap-2.jpg" {
		t.Fatalf("expected snap-2.jpg, got %s", path)
	}
	if r.Counter() != 3 {
		t.Fatalf("expected counter 3, got %d", r.Counter())
	}

	data, err := os.ReadFile(filepath.Join(dir, "snap-1.jpg"))
	if err != nil || string(data) != "taken" {
		t.Fatal("existing file was overwritten")
	}
}

func TestSaveFormatsTime(t *testing.T) {
	dir := t.TempDir()
	r := newTestRepo(t, dir, "%Y-%m-%d_%H-%M-%S.jpg")

	path, err := r.Save(testImage())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "2024-03-09_14-05-07.jpg" {
		t.Fatalf("unexpected name %s", path)
	}

	// Same second again: the name gets a counter suffix.
	path, err = r.Save(testImage())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "2024-03-09_14-05-07_1.jpg" {
		t.Fatalf("unexpected collision name %s", path)
	}
}

func TestSaveCreatesDirectoryTree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	r := newTestRepo(t, dir, "%Y/shot-$COUNTER$.jpg")

	path, err := r.Save(testImage())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if path != filepath.Join(dir, "2024", "shot-0.jpg") {
		t.Fatalf("unexpected path %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := jpeg.Decode(f); err != nil {
		t.Fatalf("expected a readable jpeg: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temporary file left behind")
	}
}

func TestSavePNGByExtension(t *testing.T) {
	dir := t.TempDir()
	r := newTestRepo(t, dir, "shot-$COUNTER$.png")

	path, err := r.Save(testImage())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("expected a png: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}

func TestFilenameDoesNotAdvancePastFreeName(t *testing.T) {
	r := newTestRepo(t, t.TempDir(), "x-$COUNTER$.jpg")
	name, err := r.Filename()
	if err != nil {
		t.Fatal(err)
	}
	if got := filepath.Base(name); got != "x-0.jpg" {
		t.Fatalf("expected x-0.jpg, got %s", got)
	}
	if r.Counter() != 0 {
		t.Fatalf("expected counter to stay 0, got %d", r.Counter())
	}
}

func TestSaveFailsWhenNameCannotBeChecked(t *testing.T) {
	dir := t.TempDir()
	// "shots" is a file, so stat on shots/snap.jpg fails with ENOTDIR.
	if err := os.WriteFile(filepath.Join(dir, "shots"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := newTestRepo(t, dir, "shots/snap.jpg")

	if _, err := r.Filename(); err == nil {
		t.Fatal("expected Filename to report the stat error")
	}
	if _, err := r.Save(testImage()); err == nil {
		t.Fatal("expected Save to fail")
	}
	data, err := os.ReadFile(filepath.Join(dir, "shots"))
	if err != nil || string(data) != "x" {
		t.Fatalf("existing file was touched: %q, %v", data, err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New("", "a.jpg", 90); err == nil {
		t.Fatal("expected error for empty dir")
	}
	if _, err := New("out", "", 90); err == nil {
		t.Fatal("expected error for empty template")
	}
	if _, err := New("out", "a.jpg", 0); err == nil {
		t.Fatal("expected error for quality 0")
	}
}
