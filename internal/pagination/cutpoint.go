package pagination

import (
	"image"

	"github.com/local/pagecomposer/internal/raster"
)

// DefaultSearchRange is how far, in pixels, the resolver looks in each
// direction for a blank row.
const DefaultSearchRange = 80

// CutKind records which branch of the search produced a cut.
type CutKind string

const (
	CutExact    CutKind = "exact"
	CutForward  CutKind = "forward"
	CutBackward CutKind = "backward"
	CutForced   CutKind = "forced"
	CutEnd      CutKind = "end"
)

// Resolver moves proposed page boundaries onto blank rows.
type Resolver struct {
	Sampler     raster.Sampler
	SearchRange int
}

// NewResolver returns a Resolver with the default sampler and search range.
func NewResolver() Resolver {
	return Resolver{Sampler: raster.DefaultSampler(), SearchRange: DefaultSearchRange}
}

// ResolveCut returns the row nearest to proposedY that is safe to cut
// through. The proposed row wins if it is blank; otherwise the first blank row
// below it (up to SearchRange) wins, then the first blank row above it. If
// there is none, proposedY is returned and the cut goes through content.
func (r Resolver) ResolveCut(b *image.NRGBA, proposedY, imageHeight int) int {
	y, _ := r.resolve(b, proposedY, imageHeight, 0)
	return y
}

// ResolveCutAbove is ResolveCut with the backward search limited to rows
// strictly greater than floor, so a page starting at floor never ends up
// empty.
func (r Resolver) ResolveCutAbove(b *image.NRGBA, proposedY, imageHeight, floor int) (int, CutKind) {
	return r.resolve(b, proposedY, imageHeight, floor)
}

func (r Resolver) resolve(b *image.NRGBA, proposedY, imageHeight, floor int) (int, CutKind) {
	if h := b.Bounds().Dy(); imageHeight > h {
		imageHeight = h
	}
	if proposedY < 0 || proposedY >= imageHeight {
		panic("pagination: proposed cut outside the image")
	}
	searchRange := r.SearchRange
	if searchRange < 0 {
		searchRange = 0
	}

	if r.Sampler.IsRowBlank(b, proposedY) {
		return proposedY, CutExact
	}

	for offset := 1; offset <= searchRange; offset++ {
		y := proposedY + offset
		if y >= imageHeight {
			break
		}
		if r.Sampler.IsRowBlank(b, y) {
			return y, CutForward
		}
	}

	for offset := 1; offset <= searchRange; offset++ {
		y := proposedY - offset
		if y <= floor {
			break
		}
		if r.Sampler.IsRowBlank(b, y) {
			return y, CutBackward
		}
	}

	return proposedY, CutForced
}
