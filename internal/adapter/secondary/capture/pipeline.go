package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pipelineElements keeps the elements that are touched after construction.
type pipelineElements struct {
	pipeline   *gst.Pipeline
	capsfilter *gst.Element
	sink       *app.Sink
}

// sourceSpec maps a device setting to a GStreamer source element:
// "test" is a synthetic pattern, a number N is /dev/videoN, a path is used
// as is and anything else falls back to autovideosrc.
func sourceSpec(device string) (factory string, props map[string]any) {
	device = strings.TrimSpace(device)
	switch {
	case device == "test":
		return "videotestsrc", map[string]any{"is-live": true}
	case strings.HasPrefix(device, "/"):
		return "v4l2src", map[string]any{"device": device}
	}
	if n, err := strconv.Atoi(device); err == nil && n >= 0 {
		return "v4l2src", map[string]any{"device": fmt.Sprintf("/dev/video%d", n)}
	}
	return "autovideosrc", nil
}

// rawCaps locks the appsink input to packed RGBA at the given size.
func rawCaps(width, height, fps int) string {
	if fps > 0 {
		return fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1", width, height, fps)
	}
	return fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", width, height)
}

// buildPipeline creates: source → videoconvert → videoscale → videorate →
// capsfilter(RGBA) → appsink. The caller must set it to PLAYING.
func buildPipeline(cfg Config) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	factory, props := sourceSpec(cfg.Device)
	src, err := gst.NewElement(factory)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", factory, err)
	}
	for k, v := range props {
		if err := src.SetProperty(k, v); err != nil {
			return nil, fmt.Errorf("set %s.%s: %w", factory, k, err)
		}
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("create videoscale: %w", err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("create videorate: %w", err)
	}
	rate.SetProperty("drop-only", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(rawCaps(cfg.Width, cfg.Height, cfg.FPS)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, converter, scaler, rate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, rate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("link pipeline: %w", err)
	}

	return &pipelineElements{pipeline: pipeline, capsfilter: capsfilter, sink: sink}, nil
}
