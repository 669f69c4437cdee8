package compositor

import (
	"image"
	"sync"
)

// Preview is the display-side state: the last accepted camera frame, the
// current overlay and whether the picture is frozen.
//
// Frames arriving while frozen are dropped. The overlay is applied at
// render time, so changing it while frozen is visible on the frozen frame.
type Preview struct {
	mu      sync.Mutex
	mirror  bool
	frozen  bool
	overlay *AlphaImage
	fitted  *AlphaImage
	frame   *image.RGBA
}

// NewPreview creates a live preview. With mirror set, pushed frames are
// flipped horizontally.
func NewPreview(mirror bool) *Preview {
	return &Preview{mirror: mirror}
}

// SetOverlay replaces the overlay. nil removes it.
func (p *Preview) SetOverlay(o *AlphaImage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlay = o
	p.fitted = nil
}

// Freeze keeps the current frame on screen.
func (p *Preview) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// Live resumes accepting frames.
func (p *Preview) Live() {
	p.mu.Lock()
	p.frozen = false
	p.mu.Unlock()
}

// Frozen reports whether frames are currently dropped.
func (p *Preview) Frozen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frozen
}

// Push offers a camera frame. It returns false when the frame was dropped
// because the preview is frozen.
func (p *Preview) Push(frame *image.RGBA) bool {
	if frame == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return false
	}
	if p.mirror {
		frame = FlipHorizontal(frame)
	}
	p.frame = frame
	return true
}

// Render returns the current frame with the overlay applied, or nil
// before the first frame.
func (p *Preview) Render() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return nil
	}
	if p.overlay == nil {
		return p.frame
	}
	w, h := p.frame.Rect.Dx(), p.frame.Rect.Dy()
	if p.fitted == nil {
		p.fitted = p.overlay.Resize(w, h)
	} else if fw, fh := p.fitted.Size(); fw != w || fh != h {
		p.fitted = p.overlay.Resize(w, h)
	}
	return p.fitted.Composite(p.frame)
}

// FlipHorizontal returns a mirrored copy of img.
func FlipHorizontal(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			copy(dst[(w-1-x)*4:(w-x)*4], src[x*4:x*4+4])
		}
	}
	return out
}
