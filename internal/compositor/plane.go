package compositor

import (
	"image"
	"image/color"
)

// Plane is a three channel float32 image. Pixel (x, y) starts at
// Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*3].
//
// Max is the channel value that maps to full intensity when the plane is
// viewed through the image.Image interface (255 for color planes, 1 for
// the inverse alpha plane). It only matters for resampling.
type Plane struct {
	Pix    []float32
	Stride int
	Rect   image.Rectangle
	Max    float32
}

// NewPlane allocates a zeroed plane of w x h pixels.
func NewPlane(w, h int, maxValue float32) *Plane {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Plane{
		Pix:    make([]float32, w*h*3),
		Stride: w * 3,
		Rect:   image.Rect(0, 0, w, h),
		Max:    maxValue,
	}
}

// PlaneFromImage converts img's RGB channels to float without scaling.
// The result has the same size and is anchored at the origin.
func PlaneFromImage(img image.Image) *Plane {
	b := img.Bounds()
	p := NewPlane(b.Dx(), b.Dy(), 255)
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			src := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride+(b.Min.X-rgba.Rect.Min.X)*4:]
			dst := p.Pix[y*p.Stride:]
			for x := 0; x < b.Dx(); x++ {
				dst[x*3+0] = float32(src[x*4+0])
				dst[x*3+1] = float32(src[x*4+1])
				dst[x*3+2] = float32(src[x*4+2])
			}
		}
		return p
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			i := y*p.Stride + x*3
			p.Pix[i+0] = float32(c.R)
			p.Pix[i+1] = float32(c.G)
			p.Pix[i+2] = float32(c.B)
		}
	}
	return p
}

// Size returns the plane's width and height.
func (p *Plane) Size() (int, int) {
	return p.Rect.Dx(), p.Rect.Dy()
}

// PixOffset returns the index of the first channel of pixel (x, y).
func (p *Plane) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// RGBA converts the plane back to 8 bit, clamping to [0, 255].
func (p *Plane) RGBA() *image.RGBA {
	w, h := p.Size()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := p.Pix[y*p.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[x*4+0] = clamp8(src[x*3+0])
			dst[x*4+1] = clamp8(src[x*3+1])
			dst[x*4+2] = clamp8(src[x*3+2])
			dst[x*4+3] = 0xff
		}
	}
	return out
}

// ColorModel, Bounds, At, Set, RGBA64At and SetRGBA64 let x/image/draw
// resample the plane. Values are mapped linearly from [0, Max] to
// [0, 0xffff]; alpha is always opaque.

func (p *Plane) ColorModel() color.Model { return color.RGBA64Model }

func (p *Plane) Bounds() image.Rectangle { return p.Rect }

func (p *Plane) At(x, y int) color.Color { return p.RGBA64At(x, y) }

func (p *Plane) RGBA64At(x, y int) color.RGBA64 {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA64{}
	}
	i := p.PixOffset(x, y)
	return color.RGBA64{
		R: p.to16(p.Pix[i+0]),
		G: p.to16(p.Pix[i+1]),
		B: p.to16(p.Pix[i+2]),
		A: 0xffff,
	}
}

func (p *Plane) Set(x, y int, c color.Color) {
	r, g, b, _ := c.RGBA()
	p.SetRGBA64(x, y, color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: 0xffff})
}

func (p *Plane) SetRGBA64(x, y int, c color.RGBA64) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	p.Pix[i+0] = p.from16(c.R)
	p.Pix[i+1] = p.from16(c.G)
	p.Pix[i+2] = p.from16(c.B)
}

func (p *Plane) to16(v float32) uint16 {
	f := v / p.Max * 0xffff
	switch {
	case f <= 0:
		return 0
	case f >= 0xffff:
		return 0xffff
	}
	return uint16(f + 0.5)
}

func (p *Plane) from16(v uint16) float32 {
	return float32(v) / 0xffff * p.Max
}

func clamp8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
