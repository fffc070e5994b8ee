// Package canvas implements the drawing surface: a fixed-size raster that
// strokes are rendered onto, a pen, and a bounded undo history.
//
// A Canvas is not safe for concurrent use; the session layer serializes
// access to it.
package canvas

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"

	"github.com/gogpu/gg"
)

// Point is a pointer position in raster coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Canvas owns the raster, the pen and the undo history.
type Canvas struct {
	dc      *gg.Context
	mask    *gg.Context
	width   int
	height  int
	pen     Pen
	history *History
	logger  *slog.Logger

	pressed bool
	last    Point
}

// Option configures a Canvas.
type Option func(*Canvas)

// WithHistoryCapacity overrides the undo history capacity.
func WithHistoryCapacity(n int) Option {
	return func(c *Canvas) {
		c.history = NewHistory(n)
	}
}

// WithLineWidth sets the initial pen width.
func WithLineWidth(w float64) Option {
	return func(c *Canvas) {
		c.pen.Width = clampWidth(w)
	}
}

// WithLogger sets the logger used to report render failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Canvas) {
		c.logger = logger
	}
}

// New creates a transparent canvas of the given size.
func New(width, height int, opts ...Option) *Canvas {
	c := &Canvas{
		dc:      gg.NewContext(width, height),
		width:   width,
		height:  height,
		pen:     DefaultPen(),
		history: NewHistory(DefaultHistoryCapacity),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applyPen(c.dc)
	return c
}

// Width returns the raster width.
func (c *Canvas) Width() int { return c.width }

// Height returns the raster height.
func (c *Canvas) Height() int { return c.height }

// Pressed reports whether a stroke is in progress.
func (c *Canvas) Pressed() bool { return c.pressed }

// History exposes the undo history.
func (c *Canvas) History() *History { return c.history }

// Pen returns the current pen.
func (c *Canvas) Pen() Pen { return c.pen }

// SetPen validates and installs a new pen.
func (c *Canvas) SetPen(p Pen) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Width = clampWidth(p.Width)
	c.pen = p
	c.applyPen(c.dc)
	return nil
}

// Press starts a stroke at p. The pre-stroke raster is pushed onto the
// history first. Pressing again while pressed starts a fresh stroke.
func (c *Canvas) Press(p Point) {
	c.push()
	c.pressed = true
	c.last = p
}

// Move extends the current stroke to p and renders the segment. It reports
// false when no stroke is in progress.
func (c *Canvas) Move(p Point) bool {
	if !c.pressed {
		return false
	}
	if err := c.segment(c.last, p); err != nil {
		c.logger.Warn("stroke segment render failed", "error", err)
	}
	c.last = p
	return true
}

// Release finishes the current stroke. It reports false when no stroke was
// in progress, in which case the caller must not re-evaluate the drawing.
func (c *Canvas) Release() bool {
	if !c.pressed {
		return false
	}
	c.pressed = false
	return true
}

// Leave ends the press without finishing the stroke.
func (c *Canvas) Leave() {
	c.pressed = false
}

// Clear snapshots the raster and clears it to transparent.
func (c *Canvas) Clear() {
	c.push()
	c.dc.Clear()
}

// Flip snapshots the raster and mirrors it horizontally.
func (c *Canvas) Flip() {
	c.push()
	mirror(c.pixels(), c.width, c.height)
}

// Undo restores the most recent snapshot. With an empty history the raster
// is cleared instead.
func (c *Canvas) Undo() {
	c.pressed = false
	frame := c.history.Pop()
	if frame == nil {
		c.dc.Clear()
		return
	}
	copy(c.pixels(), frame.Pix)
}

// Snapshot returns a deep copy of the raster.
func (c *Canvas) Snapshot() *image.RGBA {
	if err := c.dc.FlushGPU(); err != nil {
		c.logger.Warn("gpu flush failed", "error", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	copy(img.Pix, c.pixels())
	return img
}

// EncodePNG writes the raster as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	return EncodeImage(w, c.Snapshot())
}

// EncodeImage writes a raster snapshot as PNG.
func EncodeImage(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode canvas: %w", err)
	}
	return nil
}

func (c *Canvas) push() {
	if c.history.Push(c.Snapshot()) {
		c.logger.Debug("undo history full, oldest snapshot evicted", "capacity", c.history.Cap())
	}
}

func (c *Canvas) pixels() []uint8 {
	return c.dc.ResizeTarget().Data()
}

func (c *Canvas) segment(from, to Point) error {
	if !c.pen.Eraser {
		c.dc.MoveTo(from.X, from.Y)
		c.dc.LineTo(to.X, to.Y)
		return c.dc.Stroke()
	}

	// Destination-out: render the segment into a scratch mask, then scale
	// every destination pixel by the inverse of the mask coverage.
	if c.mask == nil {
		c.mask = gg.NewContext(c.width, c.height)
	}
	c.mask.Clear()
	c.applyPen(c.mask)
	c.mask.SetHexColor("#ffffff")
	c.mask.MoveTo(from.X, from.Y)
	c.mask.LineTo(to.X, to.Y)
	if err := c.mask.Stroke(); err != nil {
		return err
	}
	if err := c.mask.FlushGPU(); err != nil {
		return err
	}
	eraseUnder(c.pixels(), c.mask.ResizeTarget().Data())
	return nil
}

func (c *Canvas) applyPen(dc *gg.Context) {
	dc.SetLineWidth(c.pen.Width)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetHexColor(c.pen.Color)
}

// mirror reverses every row of a packed RGBA buffer in place.
func mirror(pix []uint8, width, height int) {
	stride := width * 4
	for y := 0; y < height; y++ {
		row := pix[y*stride : (y+1)*stride]
		for l, r := 0, width-1; l < r; l, r = l+1, r-1 {
			li, ri := l*4, r*4
			for k := 0; k < 4; k++ {
				row[li+k], row[ri+k] = row[ri+k], row[li+k]
			}
		}
	}
}

// eraseUnder scales each premultiplied destination pixel by (1 - mask alpha).
func eraseUnder(dst, mask []uint8) {
	for i := 3; i < len(dst) && i < len(mask); i += 4 {
		cover := uint32(mask[i])
		if cover == 0 {
			continue
		}
		keep := 255 - cover
		for k := i - 3; k <= i; k++ {
			dst[k] = uint8((uint32(dst[k])*keep + 127) / 255)
		}
	}
}
