// Package raster holds the pixel-buffer primitives shared by pagination and
// annotation: decoding, row sampling, slicing and page encoding.
//
// A pixel buffer is an *image.NRGBA: contiguous, non-premultiplied RGBA
// samples, which is what row sampling expects to read.
package raster

import (
	"image"
	"image/color"
	"image/draw"
)

// White is the opaque background every output page is normalized onto.
var White = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// NewWhite returns a w x h buffer pre-filled with opaque white.
func NewWhite(w, h int) *image.NRGBA {
	b := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(b.Pix); i += 4 {
		b.Pix[i] = 0xff
		b.Pix[i+1] = 0xff
		b.Pix[i+2] = 0xff
		b.Pix[i+3] = 0xff
	}
	return b
}

// FromImage copies img into a zero-origin NRGBA buffer.
func FromImage(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && bounds.Min == (image.Point{}) {
		return Clone(n)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// Clone returns an independent copy of b, rebased to the origin.
func Clone(b *image.NRGBA) *image.NRGBA {
	w, h := b.Bounds().Dx(), b.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):]
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w*4], src[:w*4])
	}
	return dst
}

// FlattenOnWhite composites b over opaque white, dropping any transparency.
func FlattenOnWhite(b *image.NRGBA) *image.NRGBA {
	return Slice(b, 0, b.Bounds().Dy())
}
