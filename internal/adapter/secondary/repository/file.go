package repository

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ncruces/go-strftime"

	"photobooth/internal/domain"
	"photobooth/internal/logging"
)

// CounterToken is replaced by the repository's counter in file names.
const CounterToken = "$COUNTER$"

// SnapshotRepo implements domain.SnapshotStore on a local directory.
// This is a secondary adapter.
//
// File names come from a strftime template that may contain CounterToken.
// The counter lives in memory only; it starts at zero and existing files
// are skipped by probing, so nothing is ever overwritten.
type SnapshotRepo struct {
	dir      string
	template string
	quality  int

	mu      sync.Mutex
	counter int
	now     func() time.Time
	log     logging.Logger
}

var _ domain.SnapshotStore = (*SnapshotRepo)(nil)

// New creates a repository. The directory is created on the first save.
func New(dir, template string, quality int) (*SnapshotRepo, error) {
	if dir == "" {
		return nil, errors.New("directory is required")
	}
	if template == "" {
		return nil, errors.New("filename template is required")
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range 1..100", quality)
	}
	return &SnapshotRepo{
		dir:      dir,
		template: template,
		quality:  quality,
		now:      time.Now,
		log:      logging.For("snapshots"),
	}, nil
}

// Counter returns the next counter value.
func (r *SnapshotRepo) Counter() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter
}

// Filename returns the path the next Save would write to.
func (r *SnapshotRepo) Filename() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextNameLocked()
}

// nextNameLocked advances the counter past every existing file. A name
// whose existence cannot be checked is an error, never a free slot.
func (r *SnapshotRepo) nextNameLocked() (string, error) {
	template := r.template
	if !strings.Contains(template, CounterToken) {
		// Without a counter the name can only change with the clock, so a
		// collision gets a counter suffix.
		path := filepath.Join(r.dir, strftime.Format(template, r.now()))
		taken, err := exists(path)
		if err != nil {
			return "", err
		}
		if !taken {
			return path, nil
		}
		ext := filepath.Ext(template)
		template = strings.TrimSuffix(template, ext) + "_" + CounterToken + ext
	}
	for {
		name := strftime.Format(template, r.now())
		name = strings.ReplaceAll(name, CounterToken, strconv.Itoa(r.counter))
		path := filepath.Join(r.dir, name)
		taken, err := exists(path)
		if err != nil {
			return "", err
		}
		if !taken {
			return path, nil
		}
		r.counter++
	}
}

// Save encodes img by the file extension (JPEG unless .png) and writes it
// atomically. It returns the written path.
func (r *SnapshotRepo) Save(img image.Image) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path, err := r.nextNameLocked()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("encode png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
			return "", fmt.Errorf("encode jpeg: %w", err)
		}
	}

	// Atomic write
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename tmp: %w", err)
	}

	r.counter++
	r.log.Infof("wrote %s (%s)", path, humanize.Bytes(uint64(buf.Len())))
	return path, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("check %s: %w", path, err)
	}
}
