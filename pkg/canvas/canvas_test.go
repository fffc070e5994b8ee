package canvas

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/finverse/finverse/pkg/domain"
)

func opaquePixels(img *image.RGBA) int {
	n := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 0 {
			n++
		}
	}
	return n
}

func drawLine(c *Canvas, from, to Point) {
	c.Press(from)
	c.Move(to)
	c.Release()
}

func TestNewCanvasIsTransparent(t *testing.T) {
	c := New(40, 30)
	snap := c.Snapshot()

	assert.Equal(t, image.Rect(0, 0, 40, 30), snap.Bounds())
	assert.Zero(t, opaquePixels(snap))
	assert.Equal(t, DefaultPen(), c.Pen())
	assert.Equal(t, DefaultHistoryCapacity, c.History().Cap())
}

func TestStrokeRendersAndPushesHistory(t *testing.T) {
	c := New(40, 30)

	drawLine(c, Point{X: 5, Y: 15}, Point{X: 35, Y: 15})

	assert.Greater(t, opaquePixels(c.Snapshot()), 0)
	assert.Equal(t, 1, c.History().Len())
	assert.False(t, c.Pressed())
}

func TestMoveAndReleaseWithoutPress(t *testing.T) {
	c := New(20, 20)

	assert.False(t, c.Move(Point{X: 10, Y: 10}))
	assert.False(t, c.Release())
	assert.Zero(t, c.History().Len())
	assert.Zero(t, opaquePixels(c.Snapshot()))
}

func TestLeaveEndsPressWithoutRelease(t *testing.T) {
	c := New(20, 20)
	c.Press(Point{X: 1, Y: 1})
	c.Leave()

	assert.False(t, c.Pressed())
	assert.False(t, c.Release())
}

func TestUndoRestoresPreStrokeRaster(t *testing.T) {
	c := New(40, 30)
	drawLine(c, Point{X: 5, Y: 5}, Point{X: 35, Y: 5})
	afterFirst := c.Snapshot()

	drawLine(c, Point{X: 5, Y: 25}, Point{X: 35, Y: 25})
	require.NotEqual(t, afterFirst.Pix, c.Snapshot().Pix)

	c.Undo()
	assert.Equal(t, afterFirst.Pix, c.Snapshot().Pix)

	c.Undo()
	assert.Zero(t, opaquePixels(c.Snapshot()))
}

func TestUndoOnEmptyHistoryClears(t *testing.T) {
	c := New(20, 20)
	c.pixels()[3] = 255

	c.Undo()

	assert.Zero(t, opaquePixels(c.Snapshot()))
	assert.Zero(t, c.History().Len(), "undo does not push")
}

func TestClearSnapshotsFirst(t *testing.T) {
	c := New(40, 30)
	drawLine(c, Point{X: 5, Y: 5}, Point{X: 35, Y: 25})
	drawn := c.Snapshot()

	c.Clear()
	assert.Zero(t, opaquePixels(c.Snapshot()))
	assert.Equal(t, 2, c.History().Len())

	c.Undo()
	assert.Equal(t, drawn.Pix, c.Snapshot().Pix)
}

func TestFlipMirrorsColumns(t *testing.T) {
	c := New(4, 2)
	pix := c.pixels()
	// Mark pixel (0,1).
	copy(pix[(1*4+0)*4:], []uint8{10, 20, 30, 255})

	c.Flip()

	snap := c.Snapshot()
	assert.Equal(t, []uint8{10, 20, 30, 255}, snap.Pix[snap.PixOffset(3, 1):snap.PixOffset(3, 1)+4])
	assert.Equal(t, uint8(0), snap.Pix[snap.PixOffset(0, 1)+3])
	assert.Equal(t, 1, c.History().Len())
}

// Property: flipping twice restores the raster bit-for-bit.
func TestFlipTwiceIdentityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 24).Draw(t, "width")
		h := rapid.IntRange(1, 24).Draw(t, "height")
		data := rapid.SliceOfN(rapid.Byte(), w*h*4, w*h*4).Draw(t, "pixels")

		c := New(w, h)
		copy(c.pixels(), data)

		c.Flip()
		c.Flip()

		assert.Equal(t, data, c.Snapshot().Pix)
		assert.Equal(t, image.Rect(0, 0, w, h), c.Snapshot().Bounds())
	})
}

func TestHistoryBoundedThroughCanvas(t *testing.T) {
	c := New(10, 10)
	for i := 0; i < 45; i++ {
		c.Flip()
	}
	assert.Equal(t, DefaultHistoryCapacity, c.History().Len())
}

func TestSetPen(t *testing.T) {
	c := New(10, 10)

	require.NoError(t, c.SetPen(Pen{Color: "#ff8800", Width: 50}))
	assert.Equal(t, float64(MaxLineWidth), c.Pen().Width)

	require.NoError(t, c.SetPen(Pen{Color: "#fff", Width: 0}))
	assert.Equal(t, float64(MinLineWidth), c.Pen().Width)

	err := c.SetPen(Pen{Color: "orange", Width: 4})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, "#fff", c.Pen().Color)
}

func TestEraserClearsUnderStroke(t *testing.T) {
	c := New(40, 30)
	require.NoError(t, c.SetPen(Pen{Color: "#000000", Width: 20}))
	drawLine(c, Point{X: 5, Y: 15}, Point{X: 35, Y: 15})
	drawn := opaquePixels(c.Snapshot())
	require.Greater(t, drawn, 0)

	require.NoError(t, c.SetPen(Pen{Color: "#000000", Width: 20, Eraser: true}))
	drawLine(c, Point{X: 5, Y: 15}, Point{X: 35, Y: 15})

	assert.Less(t, opaquePixels(c.Snapshot()), drawn)
}

func TestEraseUnder(t *testing.T) {
	dst := []uint8{100, 50, 0, 200, 10, 10, 10, 255}
	mask := []uint8{255, 255, 255, 255, 0, 0, 0, 0}

	eraseUnder(dst, mask)

	assert.Equal(t, []uint8{0, 0, 0, 0, 10, 10, 10, 255}, dst)
}

func TestEncodePNG(t *testing.T) {
	c := New(12, 8)
	drawLine(c, Point{X: 1, Y: 4}, Point{X: 11, Y: 4})

	var buf bytes.Buffer
	require.NoError(t, c.EncodePNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 8), img.Bounds())
}
