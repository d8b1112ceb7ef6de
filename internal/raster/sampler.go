package raster

import (
	"fmt"
	"image"
)

const (
	// DefaultAlphaThreshold ignores nearly transparent padding.
	DefaultAlphaThreshold = 10

	// DefaultWhiteTolerance accepts JPEG artifacts near pure white.
	DefaultWhiteTolerance = 250
)

// Sampler classifies buffer rows as blank (safe to cut through) or not.
type Sampler struct {
	AlphaThreshold uint8
	WhiteTolerance uint8
}

// DefaultSampler returns a Sampler with the default thresholds.
func DefaultSampler() Sampler {
	return Sampler{AlphaThreshold: DefaultAlphaThreshold, WhiteTolerance: DefaultWhiteTolerance}
}

// IsRowBlank reports whether no pixel in row y is both visible
// (alpha > AlphaThreshold) and darker than WhiteTolerance in some channel.
// y must lie in [0, height); anything else is a caller bug and panics.
func (s Sampler) IsRowBlank(b *image.NRGBA, y int) bool {
	w, h := b.Bounds().Dx(), b.Bounds().Dy()
	if y < 0 || y >= h {
		panic(fmt.Sprintf("raster: row %d outside [0,%d)", y, h))
	}
	off := b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y)
	row := b.Pix[off : off+w*4]
	for i := 0; i < len(row); i += 4 {
		if row[i+3] <= s.AlphaThreshold {
			continue
		}
		if row[i] < s.WhiteTolerance || row[i+1] < s.WhiteTolerance || row[i+2] < s.WhiteTolerance {
			return false
		}
	}
	return true
}

// IsRowBlank is DefaultSampler().IsRowBlank.
func IsRowBlank(b *image.NRGBA, y int) bool {
	return DefaultSampler().IsRowBlank(b, y)
}
