package assemble

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/local/pagecomposer/internal/compose"
	"github.com/local/pagecomposer/internal/pagination"
	"github.com/local/pagecomposer/internal/raster"
)

// pageCanvas lays p.Image out on an opaque white raster with the page's
// aspect ratio, at the image's own resolution. The raster lands on
// p.Placement; anything past the page edge is clipped, so every page of a
// run keeps the same pixels-per-millimetre.
func pageCanvas(p compose.Page) *image.NRGBA {
	b := p.Image.Bounds()
	place := p.Placement
	if place.Width <= 0 || place.Height <= 0 {
		place = pagination.FitRect(b.Dx(), b.Dy(), p.Width, p.Height)
		if p.Anchor == compose.AnchorTop {
			place.Y = 0
		}
	}
	ppu := float64(b.Dx()) / place.Width
	px := func(v float64) int { return int(math.Round(v * ppu)) }

	dst := raster.NewWhite(max(px(p.Width), 1), max(px(p.Height), 1))
	r := image.Rect(px(place.X), px(place.Y), px(place.X+place.Width), px(place.Y+place.Height))
	if r.Dx() == b.Dx() && r.Dy() == b.Dy() {
		xdraw.Draw(dst, r, p.Image, b.Min, xdraw.Over)
	} else {
		xdraw.ApproxBiLinear.Scale(dst, r, p.Image, b, xdraw.Over, nil)
	}
	return dst
}
