package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

const opaque = 0xff

// minRadius keeps hairline strokes visible
const minRadius = 0.5

// hline is a horizontal bar of the given thickness centred on y.
func hline(x0, x1, y, width float64) image.Rectangle {
	return image.Rect(int(math.Floor(x0)), int(math.Floor(y-width/2)), int(math.Ceil(x1)), int(math.Ceil(y+width/2)))
}

// vline is a vertical bar of the given thickness centred on x.
func vline(x, y0, y1, width float64) image.Rectangle {
	return image.Rect(int(math.Floor(x-width/2)), int(math.Floor(y0)), int(math.Ceil(x+width/2)), int(math.Ceil(y1)))
}

func fillRect(img draw.Image, r image.Rectangle, c color.Color, alpha uint8) {
	draw.DrawMask(img, r, image.NewUniform(c), image.Point{}, image.NewUniform(color.Alpha{A: alpha}), image.Point{}, draw.Over)
}

func fillDisc(img draw.Image, cx, cy, radius float64, c color.Color) {
	strokeLine(img, cx, cy, cx, cy, 2*radius, c)
}

func strokeLine(img draw.Image, x1, y1, x2, y2, width float64, c color.Color) {
	m := capsule{x1: x1, y1: y1, x2: x2, y2: y2, r: math.Max(width/2, minRadius)}
	b := m.Bounds()
	draw.DrawMask(img, b, image.NewUniform(c), image.Point{}, m, b.Min, draw.Over)
}

// capsule is an alpha mask covering every pixel centre within r of the
// segment (x1,y1)-(x2,y2). A zero-length segment is a disc.
type capsule struct {
	x1, y1, x2, y2 float64
	r              float64
}

func (c capsule) ColorModel() color.Model {
	return color.AlphaModel
}

func (c capsule) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Floor(math.Min(c.x1, c.x2)-c.r)),
		int(math.Floor(math.Min(c.y1, c.y2)-c.r)),
		int(math.Ceil(math.Max(c.x1, c.x2)+c.r))+1,
		int(math.Ceil(math.Max(c.y1, c.y2)+c.r))+1,
	)
}

func (c capsule) At(x, y int) color.Color {
	if c.distance(float64(x)+0.5, float64(y)+0.5) <= c.r {
		return color.Alpha{A: opaque}
	}
	return color.Transparent
}

func (c capsule) distance(px, py float64) float64 {
	dx, dy := c.x2-c.x1, c.y2-c.y1
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-c.x1)*dx + (py-c.y1)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	return math.Hypot(px-(c.x1+t*dx), py-(c.y1+t*dy))
}
