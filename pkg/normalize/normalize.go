// Package normalize converts a canvas raster into the fixed-size,
// channel-major float tensor the doodle classifier was trained on.
//
// The constants in this package are a compatibility contract with the
// model weights and must not be tuned.
package normalize

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// InputSize is the square side length of the model input.
const InputSize = 224

// Content thresholds. A pixel counts as drawing content when its alpha is
// above AlphaThreshold and it is not near-white in every channel.
const (
	AlphaThreshold = 16
	WhiteThreshold = 240
)

// ImageNet channel statistics.
var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

// Shape is the tensor shape produced by Normalize.
var Shape = []int64{1, 3, InputSize, InputSize}

// Input is a normalized model input.
type Input struct {
	Data  []float32
	Shape []int64
}

// IsContent reports whether an un-premultiplied pixel is part of the drawing.
func IsContent(c color.NRGBA) bool {
	if c.A <= AlphaThreshold {
		return false
	}
	return !(c.R > WhiteThreshold && c.G > WhiteThreshold && c.B > WhiteThreshold)
}

// ContentBounds returns the smallest rectangle containing every content
// pixel, or false when the image has none.
func ContentBounds(img image.Image) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if !IsContent(c) {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// Crop returns the content region of img. An image without content is
// returned unchanged.
func Crop(img image.Image) image.Image {
	r, ok := ContentBounds(img)
	if !ok {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Letterbox scales img uniformly to fit a size×size white square, centred.
func Letterbox(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return dst
	}

	scale := min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	ox := (size - nw) / 2
	oy := (size - nh) / 2

	target := image.Rect(ox, oy, ox+nw, oy+nh)
	draw.BiLinear.Scale(dst, target, img, b, draw.Over, nil)
	return dst
}

// Tensor lays out img channel-major with per-channel mean/std normalization.
func Tensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			p := y*w + x
			for c := 0; c < 3; c++ {
				v := float32(img.Pix[i+c]) / 255
				out[c*plane+p] = (v - Mean[c]) / Std[c]
			}
		}
	}
	return out
}

// Normalize runs crop, letterbox and tensor conversion.
func Normalize(img image.Image) Input {
	boxed := Letterbox(Crop(img), InputSize)
	return Input{
		Data:  Tensor(boxed),
		Shape: append([]int64(nil), Shape...),
	}
}
