package raster

import (
	"fmt"
	"image"
	"image/draw"
)

// Slice extracts rows [startY, endY) of src as a new full-width buffer. The
// result starts opaque white and the source window is composited over it, so
// transparent source pixels come out white.
func Slice(src *image.NRGBA, startY, endY int) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if startY < 0 || endY > h || endY <= startY {
		panic(fmt.Sprintf("raster: slice [%d,%d) outside [0,%d)", startY, endY, h))
	}
	dst := NewWhite(w, endY-startY)
	draw.Draw(dst, dst.Bounds(), src, image.Pt(src.Rect.Min.X, src.Rect.Min.Y+startY), draw.Over)
	return dst
}
