// Package capture is the camera adapter. Live frames are multicast on the
// frame bus; a high resolution still is taken through a request/reply
// command that reconfigures the pipeline for one read and restores it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"photobooth/internal/domain"
	"photobooth/internal/eventbus"
	"photobooth/internal/logging"
)

var log = logging.For("capture")

// Config contains camera settings.
type Config struct {
	Device         string
	Width          int
	Height         int
	FPS            int
	SnapshotWidth  int
	SnapshotHeight int

	// SnapshotTimeout bounds the wait for the first high resolution frame.
	SnapshotTimeout time.Duration
}

// FramePublisher receives live frames.
type FramePublisher interface {
	Publish(domain.Frame) error
}

type snapshotResult struct {
	frame domain.Frame
	err   error
}

// Camera implements domain.Camera on a GStreamer pipeline.
type Camera struct {
	cfg      Config
	frames   FramePublisher
	elems    *pipelineElements
	requests *eventbus.Mailbox[chan snapshotResult]

	mu       sync.Mutex
	width    int
	height   int
	stillCh  chan domain.Frame // non-nil while a still is being taken
	seq      atomic.Uint64
	dropped  atomic.Uint64
	stopOnce sync.Once
}

var _ domain.Camera = (*Camera)(nil)

// Open builds and starts the pipeline. A device that cannot be opened is
// reported here, before anything else starts.
func Open(cfg Config, frames FramePublisher) (*Camera, error) {
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 5 * time.Second
	}
	elems, err := buildPipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("camera %s: %w", cfg.Device, err)
	}
	c := &Camera{
		cfg:      cfg,
		frames:   frames,
		elems:    elems,
		requests: eventbus.NewMailbox[chan snapshotResult](),
		width:    cfg.Width,
		height:   cfg.Height,
	}
	elems.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onSample,
	})

	if err := elems.pipeline.SetState(gst.StatePlaying); err != nil {
		c.Close()
		return nil, fmt.Errorf("camera %s: start pipeline: %w", cfg.Device, err)
	}
	if err := c.awaitPlaying(3 * time.Second); err != nil {
		c.Close()
		return nil, fmt.Errorf("camera %s: %w", cfg.Device, err)
	}
	log.Infof("opened %s at %dx%d@%d", cfg.Device, cfg.Width, cfg.Height, cfg.FPS)
	return c, nil
}

// awaitPlaying waits for the pipeline to report PLAYING or an error.
func (c *Camera) awaitPlaying(timeout time.Duration) error {
	bus := c.elems.pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("%s (%s)", gerr.Error(), gerr.DebugString())
		case gst.MessageStateChanged:
			if msg.Source() != c.elems.pipeline.GetName() {
				continue
			}
			if _, next := msg.ParseStateChanged(); next == gst.StatePlaying {
				return nil
			}
		}
	}
	// Live sources may stay in PAUSED until data flows; errors would have
	// shown up by now.
	log.Warnf("pipeline not PLAYING after %s, continuing", timeout)
	return nil
}

func (c *Camera) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()

	c.mu.Lock()
	w, h, stillCh := c.width, c.height, c.stillCh
	c.mu.Unlock()

	if len(data) < w*h*4 {
		buffer.Unmap()
		log.Tracef("short buffer: %d bytes for %dx%d", len(data), w, h)
		return gst.FlowOK
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, data[:w*h*4])
	buffer.Unmap()

	frame := domain.Frame{
		Image:     img,
		Seq:       c.seq.Add(1),
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
	}

	if stillCh != nil {
		select {
		case stillCh <- frame:
		default:
		}
		return gst.FlowOK
	}

	if err := c.frames.Publish(frame); err != nil {
		if errors.Is(err, eventbus.ErrBusClosed) {
			return gst.FlowEOS
		}
		c.dropped.Add(1)
		log.Tracef("frame %d dropped: %v", frame.Seq, err)
		return gst.FlowOK
	}
	log.Tracef("frame %d (%s)", frame.Seq, frame.TraceID)
	return gst.FlowOK
}

// TakeSnapshot asks the running camera for one high resolution still. It
// fails with eventbus.ErrConsumerGone once Run has returned.
func (c *Camera) TakeSnapshot(ctx context.Context) (domain.Frame, error) {
	reply := make(chan snapshotResult, 1)
	if err := c.requests.Send(ctx, reply); err != nil {
		return domain.Frame{}, err
	}
	select {
	case res := <-reply:
		return res.frame, res.err
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	}
}

// Run watches the pipeline bus and serves snapshot requests until ctx is
// cancelled. A pipeline error or end of stream stops it with an error.
func (c *Camera) Run(ctx context.Context) error {
	defer c.Close()
	defer c.requests.Close()

	bus := c.elems.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			log.Debugf("shutdown after %d frames (%d dropped)", c.seq.Load(), c.dropped.Load())
			return nil
		case reply := <-c.requests.Receive():
			frame, err := c.still(ctx)
			reply <- snapshotResult{frame: frame, err: err}
			continue
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("camera: end of stream")
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("camera: %s (%s)", gerr.Error(), gerr.DebugString())
		case gst.MessageWarning:
			log.Warnf("pipeline warning: %s", msg.ParseWarning().Error())
		}
	}
}

// still reconfigures the capsfilter to the snapshot size, reads one frame
// and restores the live size.
func (c *Camera) still(ctx context.Context) (domain.Frame, error) {
	stillCh := make(chan domain.Frame, 1)
	if err := c.reconfigure(c.cfg.SnapshotWidth, c.cfg.SnapshotHeight, 0, stillCh); err != nil {
		return domain.Frame{}, err
	}
	defer func() {
		if err := c.reconfigure(c.cfg.Width, c.cfg.Height, c.cfg.FPS, nil); err != nil {
			log.Errorf("restore live resolution: %v", err)
		}
	}()

	timer := time.NewTimer(c.cfg.SnapshotTimeout)
	defer timer.Stop()
	select {
	case frame := <-stillCh:
		log.Debugf("still %d at %dx%d", frame.Seq, frame.Image.Rect.Dx(), frame.Image.Rect.Dy())
		return frame, nil
	case <-timer.C:
		return domain.Frame{}, domain.ErrCaptureTimeout
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	}
}

func (c *Camera) reconfigure(width, height, fps int, stillCh chan domain.Frame) error {
	if err := c.elems.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stop pipeline: %w", err)
	}
	c.mu.Lock()
	c.width, c.height, c.stillCh = width, height, stillCh
	c.mu.Unlock()
	c.elems.capsfilter.SetProperty("caps", gst.NewCapsFromString(rawCaps(width, height, fps)))
	if err := c.elems.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("restart pipeline at %dx%d: %w", width, height, err)
	}
	return nil
}

// Close stops the pipeline. Run calls it on exit.
func (c *Camera) Close() {
	c.stopOnce.Do(func() {
		if err := c.elems.pipeline.SetState(gst.StateNull); err != nil {
			log.Warnf("stop pipeline: %v", err)
		}
	})
}
