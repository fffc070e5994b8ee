package normalize

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func blank(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestIsContent(t *testing.T) {
	tests := []struct {
		name string
		c    color.NRGBA
		want bool
	}{
		{"transparent", color.NRGBA{0, 0, 0, 0}, false},
		{"faint alpha", color.NRGBA{0, 0, 0, 16}, false},
		{"black", color.NRGBA{0, 0, 0, 255}, true},
		{"white", color.NRGBA{255, 255, 255, 255}, false},
		{"near white", color.NRGBA{241, 241, 241, 255}, false},
		{"light but coloured", color.NRGBA{255, 255, 200, 255}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsContent(tt.c))
		})
	}
}

func TestContentBoundsEmpty(t *testing.T) {
	_, ok := ContentBounds(blank(30, 20))
	assert.False(t, ok)

	white := blank(10, 10)
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	_, ok = ContentBounds(white)
	assert.False(t, ok)
}

func TestCropWithoutContentIsPassThrough(t *testing.T) {
	img := blank(30, 20)
	assert.Same(t, img, Crop(img))
}

func TestContentBoundsMinimal(t *testing.T) {
	img := blank(40, 30)
	img.Set(5, 7, color.Black)
	img.Set(12, 20, color.RGBA{255, 0, 0, 255})

	r, ok := ContentBounds(img)
	require.True(t, ok)
	assert.Equal(t, image.Rect(5, 7, 13, 21), r)

	cropped := Crop(img)
	assert.Equal(t, image.Rect(0, 0, 8, 14), cropped.Bounds())
}

// Property: cropping is idempotent and the crop contains exactly the content.
func TestCropIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 32).Draw(t, "width")
		h := rapid.IntRange(1, 32).Draw(t, "height")
		n := rapid.IntRange(1, 10).Draw(t, "points")

		img := blank(w, h)
		for i := 0; i < n; i++ {
			x := rapid.IntRange(0, w-1).Draw(t, "x")
			y := rapid.IntRange(0, h-1).Draw(t, "y")
			img.Set(x, y, color.Black)
		}

		once := Crop(img)
		twice := Crop(once)
		assert.Equal(t, once.Bounds().Size(), twice.Bounds().Size())

		r, ok := ContentBounds(once)
		if assert.True(t, ok) {
			assert.Equal(t, once.Bounds(), r)
		}
	})
}

func TestLetterboxKeepsAspectAndCentres(t *testing.T) {
	src := blank(100, 50)
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255 // opaque black
	}

	out := Letterbox(src, InputSize)
	require.Equal(t, image.Rect(0, 0, InputSize, InputSize), out.Bounds())

	// 100x50 scales to 224x112, leaving 56 white rows above and below.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(112, 10))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(112, 213))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(112, 112))
}

func TestLetterboxTransparentIsWhite(t *testing.T) {
	out := Letterbox(blank(10, 10), 8)
	for i := range out.Pix {
		assert.Equal(t, uint8(255), out.Pix[i])
	}
}

func TestTensorLayout(t *testing.T) {
	img := blank(2, 1)
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 0, 255, 255})

	data := Tensor(img)
	require.Len(t, data, 6)

	// Channel-major: [R0 R1 G0 G1 B0 B1].
	assert.InDelta(t, (1-Mean[0])/Std[0], data[0], 1e-6)
	assert.InDelta(t, (0-Mean[0])/Std[0], data[1], 1e-6)
	assert.InDelta(t, (0-Mean[1])/Std[1], data[2], 1e-6)
	assert.InDelta(t, (1-Mean[2])/Std[2], data[5], 1e-6)
}

func TestNormalizeShape(t *testing.T) {
	img := blank(400, 300)
	img.Set(200, 150, color.Black)

	in := Normalize(img)
	assert.Equal(t, []int64{1, 3, InputSize, InputSize}, in.Shape)
	assert.Len(t, in.Data, 3*InputSize*InputSize)

	for _, v := range in.Data {
		assert.False(t, math.IsNaN(float64(v)))
	}
}

func TestNormalizeBlankCanvasIsAllWhite(t *testing.T) {
	in := Normalize(blank(400, 300))
	plane := InputSize * InputSize
	for c := 0; c < 3; c++ {
		want := (1 - Mean[c]) / Std[c]
		assert.InDelta(t, want, in.Data[c*plane], 1e-6)
		assert.InDelta(t, want, in.Data[(c+1)*plane-1], 1e-6)
	}
}
