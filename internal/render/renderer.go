// Package render rasterizes chart frames into images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dooshek/micscope/internal/chart"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi             = 72.0
	defaultFontSize = 10.0
	defaultWidth    = 800
	defaultHeight   = 400

	numTicks       = 20
	labelEvery     = 4
	tickLength     = 8
	labelMargin    = 10
	axisWidth      = 1.5
	referenceWidth = 5.0
	referenceAlpha = 102
	fixedStroke    = 2.0
)

var (
	backgroundColor = color.RGBA{0xff, 0xff, 0xff, 0xff}
	traceColor      = color.RGBA{0x00, 0x00, 0xff, 0xff}
	minLineColor    = color.RGBA{0xff, 0x00, 0x00, 0xff}
	maxLineColor    = color.RGBA{0x00, 0xff, 0x00, 0xff}
)

// Options configures a Renderer. Zero values get defaults.
type Options struct {
	Width     int
	Height    int
	FontSize  float64
	Stiffness float64
}

// Renderer draws frames onto an RGBA canvas. The displayed bounds are animated
// across calls, so one Renderer should serve one output.
type Renderer struct {
	opts     Options
	context  *freetype.Context
	fontFace font.Face
	smoother *BoundsSmoother
	now      func() time.Time

	mu       sync.Mutex
	lastDraw time.Time
}

// NewRenderer parses the label font and prepares the canvas geometry.
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultHeight
	}
	if opts.FontSize <= 0 {
		opts.FontSize = defaultFontSize
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(opts.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &Renderer{
		opts:    opts,
		context: ctx,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    opts.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
		smoother: NewBoundsSmoother(opts.Stiffness),
		now:      time.Now,
	}, nil
}

func (r *Renderer) Close() error {
	return r.fontFace.Close()
}

// Size returns the canvas dimensions.
func (r *Renderer) Size() (int, int) {
	return r.opts.Width, r.opts.Height
}

// Draw renders frame. With rescaling the y axis follows the animated bounds,
// otherwise it spans 0..MaxY and the bounds are drawn as reference lines.
func (r *Renderer) Draw(frame chart.Frame, rescaling bool) (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var dt time.Duration
	if !r.lastDraw.IsZero() {
		dt = now.Sub(r.lastDraw)
	}
	r.lastDraw = now
	view := r.smoother.Update(frame.Bounds, dt)

	w, h := r.opts.Width, r.opts.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	p := projection{frame: frame, view: view, rescaling: rescaling, width: float64(w), height: float64(h)}

	if !rescaling {
		fillRect(img, hline(0, float64(w), p.refY(view.MinY), referenceWidth), minLineColor, referenceAlpha)
		fillRect(img, hline(0, float64(w), p.refY(view.MaxY), referenceWidth), maxLineColor, referenceAlpha)
	}

	stroke := strokeWidth(view, frame.MaxY, rescaling)
	for _, n := range frame.Nodes {
		x, y := p.point(n)
		fillDisc(img, x, y, stroke/2, traceColor)
	}
	for i := 0; i+1 < len(frame.Nodes); i++ {
		x1, y1 := p.point(frame.Nodes[i])
		x2, y2 := p.point(frame.Nodes[i+1])
		strokeLine(img, x1, y1, x2, y2, stroke, traceColor)
	}

	if err := r.drawAxis(img, frame, view, rescaling); err != nil {
		return nil, fmt.Errorf("drawing axis: %w", err)
	}
	return img, nil
}

func (r *Renderer) drawAxis(img *image.RGBA, frame chart.Frame, view chart.Bounds, rescaling bool) error {
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	gutter := w / 10

	draw.Draw(img, image.Rect(0, 0, int(gutter), r.opts.Height), image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	fillRect(img, vline(gutter, 0, h, axisWidth), color.Black, opaque)
	for i := 0; i < numTicks; i++ {
		y := float64(i) / numTicks * h
		fillRect(img, hline(gutter-tickLength, gutter, y, 1.2), color.Black, opaque)
	}

	r.context.SetClip(img.Bounds())
	r.context.SetDst(img)
	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for i := 0; i <= numTicks; i += labelEvery {
		y := h - float64(i)/numTicks*h
		label := tickLabel(i, frame, view, rescaling)
		width := font.MeasureString(r.fontFace, label).Round()

		x := int(gutter) - width - labelMargin
		baseline := int(y) + fontHeight/2 - metrics.Descent.Round()
		if _, err := r.context.DrawString(label, freetype.Pt(x, baseline)); err != nil {
			return fmt.Errorf("drawing tick label %q: %w", label, err)
		}
	}
	return nil
}

// tickLabel is the value at tick i counted from the bottom of the canvas.
func tickLabel(i int, frame chart.Frame, view chart.Bounds, rescaling bool) string {
	if !rescaling {
		return fmt.Sprintf("%.0f", frame.MaxY/numTicks*float64(i))
	}
	v := (1-view.MaxY/frame.MaxY)*frame.MaxValue +
		(view.MaxY-view.MinY)/frame.MaxY*(frame.MaxValue/numTicks)*float64(i)
	return fmt.Sprintf("%.2f", v)
}

// strokeWidth thins the trace as the visible range grows.
func strokeWidth(view chart.Bounds, maxY float64, rescaling bool) float64 {
	if !rescaling {
		return fixedStroke
	}
	scale := 0.5
	if half := (view.MaxY - view.MinY) / 2; half > 0 {
		scale = math.Max(scale, math.Log10(half))
	}
	return maxY / (25 * scale)
}

type projection struct {
	frame     chart.Frame
	view      chart.Bounds
	rescaling bool
	width     float64
	height    float64
}

func (p projection) point(n chart.Node) (float64, float64) {
	x := n.X / p.frame.MaxX * p.width
	if p.rescaling {
		span := p.view.MaxY - p.view.MinY
		if span <= 0 {
			return x, p.height / 2
		}
		return x, (n.Y - p.view.MinY) / span * p.height
	}
	return x, n.Y / p.frame.MaxY * p.height
}

func (p projection) refY(y float64) float64 {
	return y / p.frame.MaxY * p.height
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}
