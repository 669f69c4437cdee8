// Package chime plays short sounds on countdown steps and on the trigger.
package chime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"photobooth/internal/domain"
	"photobooth/internal/logging"
)

var log = logging.For("chime")

// SampleRate is the speaker rate; sounds are resampled to it.
const SampleRate beep.SampleRate = 44100

// Player holds the decoded sounds. A nil buffer is silent.
type Player struct {
	mu        sync.Mutex
	countdown *beep.Buffer
	trigger   *beep.Buffer
	played    int
}

// Load decodes both sounds. An empty path leaves that sound silent.
func Load(countdownPath, triggerPath string) (*Player, error) {
	p := &Player{}
	var err error
	if p.countdown, err = loadBuffer(countdownPath); err != nil {
		return nil, err
	}
	if p.trigger, err = loadBuffer(triggerPath); err != nil {
		return nil, err
	}
	return p, nil
}

// Silent reports whether there is nothing to play.
func (p *Player) Silent() bool {
	return p.countdown == nil && p.trigger == nil
}

// Open initializes the speaker. Without an audio device the booth keeps
// running silently, so callers usually log the error and carry on.
func (p *Player) Open() error {
	if err := speaker.Init(SampleRate, SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	return nil
}

// Run plays a sound for every countdown and trigger event until ctx is
// cancelled or the stream closes.
func (p *Player) Run(ctx context.Context, events <-chan domain.TriggerEvent) error {
	defer speaker.Close()
	for {
		select {
		case <-ctx.Done():
			log.Debugf("shutdown after %d sounds", p.played)
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if b := p.soundFor(ev); b != nil {
				p.play(b)
			}
		}
	}
}

func (p *Player) soundFor(ev domain.TriggerEvent) *beep.Buffer {
	if ev.Kind == domain.EventCountdown {
		return p.countdown
	}
	return p.trigger
}

func (p *Player) play(b *beep.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	speaker.Clear()
	speaker.Play(b.Streamer(0, b.Len()))
	p.played++
}

// loadBuffer decodes an ogg or wav file into memory at SampleRate.
func loadBuffer(path string) (*beep.Buffer, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sound %s: %w", path, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("sound %s: unsupported format %q", path, ext)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sound %s: %w", path, err)
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(beep.Format{SampleRate: SampleRate, NumChannels: 2, Precision: 2})
	if format.SampleRate == SampleRate {
		buffer.Append(streamer)
	} else {
		buffer.Append(beep.Resample(4, format.SampleRate, SampleRate, streamer))
	}
	log.Debugf("loaded %s (%s)", filepath.Base(path), SampleRate.D(buffer.Len()).Round(time.Millisecond))
	return buffer, nil
}
