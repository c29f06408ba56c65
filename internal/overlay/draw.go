package overlay

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"
)

// VectorColor is the overlay colour of a displacement: red follows the
// vertical component, green the horizontal one, blue is always full.
func VectorColor(dx, dy int) color.RGBA {
	return color.RGBA{
		R: clampChannel(127 + 5*dy),
		G: clampChannel(127 + 5*dx),
		B: 255,
		A: 255,
	}
}

func clampChannel(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// Painter draws thick anti-aliased segments. It keeps one rasterizer for
// reuse and is not safe for concurrent use.
type Painter struct {
	z         vector.Rasterizer
	thickness float64
}

// NewPainter returns a painter drawing lines of the given thickness in pixels.
func NewPainter(thickness float64) *Painter {
	if thickness <= 0 {
		thickness = 1
	}
	return &Painter{thickness: thickness}
}

// Line draws a segment between the centres of pixels (x1, y1) and (x2, y2)
// with square caps. Parts outside dst are clipped. A zero-length segment
// draws a square dot.
func (p *Painter) Line(dst *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	half := p.thickness / 2
	ax, ay := float64(x1)+0.5, float64(y1)+0.5
	bx, by := float64(x2)+0.5, float64(y2)+0.5

	// Unit direction and normal, each scaled to half the thickness.
	ux, uy := bx-ax, by-ay
	length := math.Hypot(ux, uy)
	if length == 0 {
		ux, uy = 1, 0
	} else {
		ux, uy = ux/length, uy/length
	}
	ux, uy = ux*half, uy*half
	nx, ny := -uy, ux

	corners := [4][2]float64{
		{ax - ux + nx, ay - uy + ny},
		{bx + ux + nx, by + uy + ny},
		{bx + ux - nx, by + uy - ny},
		{ax - ux - nx, ay - uy - ny},
	}

	box := image.Rectangle{
		Min: image.Pt(int(math.Floor(math.Min(ax, bx)-p.thickness)), int(math.Floor(math.Min(ay, by)-p.thickness))),
		Max: image.Pt(int(math.Ceil(math.Max(ax, bx)+p.thickness)), int(math.Ceil(math.Max(ay, by)+p.thickness))),
	}.Intersect(dst.Bounds())
	if box.Empty() {
		return
	}

	ox, oy := float64(box.Min.X), float64(box.Min.Y)
	p.z.Reset(box.Dx(), box.Dy())
	p.z.MoveTo(float32(corners[0][0]-ox), float32(corners[0][1]-oy))
	for _, pt := range corners[1:] {
		p.z.LineTo(float32(pt[0]-ox), float32(pt[1]-oy))
	}
	p.z.ClosePath()
	p.z.Draw(dst, box, image.NewUniform(c), image.Point{})
}
