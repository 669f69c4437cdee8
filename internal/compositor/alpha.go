// Package compositor precomputes static overlays for premultiplied-alpha
// blending and keeps the preview state of the display.
//
// An overlay is split once, at load time, into a premultiplied color plane
// and an inverse alpha plane, so that compositing onto a live frame costs a
// single multiply-add per channel:
//
//	blended = background * oneMinusAlpha + colorPremultiplied
package compositor

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// AlphaImage holds the two blend-ready planes of an RGBA overlay. Both
// planes always have the same size. Values are immutable after
// construction and may be shared between goroutines.
type AlphaImage struct {
	color         *Plane
	oneMinusAlpha *Plane
}

// NewAlphaImage prepares src for blending:
//
//  1. split into R, G, B and A
//  2. alpha is normalized to [0, 1]
//  3. RGB is converted to float without scaling
//  4. color = RGB * alpha
//  5. oneMinusAlpha = 1 - alpha, replicated on three channels
func NewAlphaImage(src image.Image) *AlphaImage {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	col := NewPlane(w, h, 255)
	inv := NewPlane(w, h, 1)

	nrgba, fast := src.(*image.NRGBA)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c color.NRGBA
			if fast {
				i := nrgba.PixOffset(b.Min.X+x, b.Min.Y+y)
				c = color.NRGBA{R: nrgba.Pix[i], G: nrgba.Pix[i+1], B: nrgba.Pix[i+2], A: nrgba.Pix[i+3]}
			} else {
				c = color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			}
			alpha := float32(c.A) / 255
			i := y*col.Stride + x*3
			col.Pix[i+0] = float32(c.R) * alpha
			col.Pix[i+1] = float32(c.G) * alpha
			col.Pix[i+2] = float32(c.B) * alpha
			inv.Pix[i+0] = 1 - alpha
			inv.Pix[i+1] = 1 - alpha
			inv.Pix[i+2] = 1 - alpha
		}
	}
	return &AlphaImage{color: col, oneMinusAlpha: inv}
}

// Size returns the overlay's width and height.
func (a *AlphaImage) Size() (int, int) {
	return a.color.Size()
}

// Color returns the premultiplied color plane. Callers must not modify it.
func (a *AlphaImage) Color() *Plane { return a.color }

// OneMinusAlpha returns the inverse alpha plane. Callers must not modify it.
func (a *AlphaImage) OneMinusAlpha() *Plane { return a.oneMinusAlpha }

// Resize resamples both planes to w x h with Catmull-Rom interpolation.
// When the size already matches, a itself is returned.
func (a *AlphaImage) Resize(w, h int) *AlphaImage {
	if cw, ch := a.Size(); cw == w && ch == h {
		return a
	}
	return &AlphaImage{
		color:         resample(a.color, w, h),
		oneMinusAlpha: resample(a.oneMinusAlpha, w, h),
	}
}

func resample(src *Plane, w, h int) *Plane {
	dst := NewPlane(w, h, src.Max)
	if w == 0 || h == 0 || src.Rect.Empty() {
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	return dst
}

// BlendPlane returns background * oneMinusAlpha + color. The overlay is
// resized to the background's size first.
func (a *AlphaImage) BlendPlane(background *Plane) *Plane {
	w, h := background.Size()
	fit := a.Resize(w, h)
	out := NewPlane(w, h, background.Max)
	for y := 0; y < h; y++ {
		bg := background.Pix[y*background.Stride : y*background.Stride+w*3]
		inv := fit.oneMinusAlpha.Pix[y*fit.oneMinusAlpha.Stride:]
		col := fit.color.Pix[y*fit.color.Stride:]
		dst := out.Pix[y*out.Stride:]
		for i, v := range bg {
			dst[i] = v*inv[i] + col[i]
		}
	}
	return out
}

// Composite blends the overlay onto an 8 bit frame in one pass and returns
// a new image. The overlay is resized to the frame's size first.
func (a *AlphaImage) Composite(frame *image.RGBA) *image.RGBA {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	fit := a.Resize(w, h)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := frame.Pix[frame.PixOffset(b.Min.X, b.Min.Y+y):]
		inv := fit.oneMinusAlpha.Pix[y*fit.oneMinusAlpha.Stride:]
		col := fit.color.Pix[y*fit.color.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			s, p := x*4, x*3
			dst[s+0] = clamp8(float32(src[s+0])*inv[p+0] + col[p+0])
			dst[s+1] = clamp8(float32(src[s+1])*inv[p+1] + col[p+1])
			dst[s+2] = clamp8(float32(src[s+2])*inv[p+2] + col[p+2])
			dst[s+3] = 0xff
		}
	}
	return out
}
