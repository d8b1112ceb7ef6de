// Package pagination decides how a raster image is laid out on physical
// pages: one fitted page, or a sequence of full-width slices whose boundaries
// are moved onto blank rows.
package pagination

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Mode is the page layout chosen for an image.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// DefaultSinglePageTolerance allows an image 20% taller (or wider) than the
// page to still be fitted onto a single page.
const DefaultSinglePageTolerance = 1.2

// PageFormat is a physical page size in length units (millimetres for the
// predefined formats).
type PageFormat struct {
	Name   string
	Width  float64
	Height float64
}

// A4 portrait, 210mm x 297mm.
var A4 = PageFormat{Name: "A4", Width: 210, Height: 297}

// Letter portrait, 8.5in x 11in in millimetres.
var Letter = PageFormat{Name: "Letter", Width: 215.9, Height: 279.4}

// FormatByName looks up a stock format, ignoring case.
func FormatByName(name string) (PageFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "a4":
		return A4, true
	case "letter":
		return Letter, true
	}
	return PageFormat{}, false
}

// PortraitRatio is height/width of the portrait page (about 1.414 for A4).
func (f PageFormat) PortraitRatio() float64 { return f.Height / f.Width }

// LandscapeRatio is width/height of the portrait page (about 0.707 for A4).
func (f PageFormat) LandscapeRatio() float64 { return f.Width / f.Height }

// Landscape returns the format rotated so that it is wider than tall.
func (f PageFormat) Landscape() PageFormat {
	if f.Width >= f.Height {
		return f
	}
	return PageFormat{Name: f.Name, Width: f.Height, Height: f.Width}
}

// IsLandscape reports whether the format is wider than tall.
func (f PageFormat) IsLandscape() bool { return f.Width > f.Height }

// Valid reports whether both dimensions are positive and finite.
func (f PageFormat) Valid() bool {
	return f.Width > 0 && f.Height > 0 && !math.IsInf(f.Width, 0) && !math.IsInf(f.Height, 0)
}

// SelectMode chooses single-page layout when the image's aspect ratio is
// within tolerance of the page's, multi-page layout otherwise. Landscape
// images are compared against the landscape page.
func SelectMode(imageWidth, imageHeight int, format PageFormat, tolerance float64) Mode {
	if tolerance <= 0 {
		tolerance = DefaultSinglePageTolerance
	}
	w, h := float64(imageWidth), float64(imageHeight)
	if imageWidth > imageHeight {
		if w/h <= (1/format.LandscapeRatio())*tolerance {
			return ModeSingle
		}
		return ModeMulti
	}
	if h/w <= format.PortraitRatio()*tolerance {
		return ModeSingle
	}
	return ModeMulti
}

// Rect is a placement rectangle in page units, origin at the top-left.
type Rect struct {
	X, Y, Width, Height float64
}

// FitRect scales an image to fit a page, preserving aspect ratio, and centers
// it along the axis it does not fill.
func FitRect(imageWidth, imageHeight int, pageWidth, pageHeight float64) Rect {
	imgAspect := float64(imageWidth) / float64(imageHeight)
	pageAspect := pageWidth / pageHeight
	if imgAspect > pageAspect {
		h := pageWidth / imgAspect
		return Rect{X: 0, Y: (pageHeight - h) / 2, Width: pageWidth, Height: h}
	}
	w := pageHeight * imgAspect
	return Rect{X: (pageWidth - w) / 2, Y: 0, Width: w, Height: pageHeight}
}

// Geometry ties a source image to a physical page for one composition run.
type Geometry struct {
	PageWidth        float64
	PageHeight       float64
	PixelsPerUnit    float64
	PageHeightPixels int
}

// NewGeometry derives the pixel scale from the image width and page width.
func NewGeometry(imageWidth int, format PageFormat) (Geometry, error) {
	if imageWidth <= 0 {
		return Geometry{}, fmt.Errorf("invalid image width %d", imageWidth)
	}
	if !format.Valid() {
		return Geometry{}, fmt.Errorf("invalid page format %gx%g", format.Width, format.Height)
	}
	ppu := float64(imageWidth) / format.Width
	php := int(math.Floor(format.Height * ppu))
	if php < 1 {
		php = 1
	}
	return Geometry{
		PageWidth:        format.Width,
		PageHeight:       format.Height,
		PixelsPerUnit:    ppu,
		PageHeightPixels: php,
	}, nil
}

// SliceHeight converts a slice height in pixels into page units.
func (g Geometry) SliceHeight(pixels int) float64 {
	return float64(pixels) / g.PixelsPerUnit
}

// EstimatePages is the page count if every cut landed on its proposal.
func (g Geometry) EstimatePages(imageHeight int) int {
	if imageHeight <= 0 {
		return 0
	}
	return (imageHeight + g.PageHeightPixels - 1) / g.PageHeightPixels
}

// Range is one page's half-open row interval [StartY, EndY).
type Range struct {
	StartY int
	EndY   int
	Kind   CutKind
}

// Height is EndY - StartY.
func (r Range) Height() int { return r.EndY - r.StartY }

// CutPlan is the ordered set of page ranges for one run.
type CutPlan []Range

// Validate checks that the plan covers [0, imageHeight) exactly once.
func (p CutPlan) Validate(imageHeight int) error {
	if imageHeight == 0 {
		if len(p) != 0 {
			return fmt.Errorf("plan has %d pages for an empty image", len(p))
		}
		return nil
	}
	if len(p) == 0 {
		return fmt.Errorf("plan is empty")
	}
	next := 0
	for i, r := range p {
		if r.StartY != next {
			return fmt.Errorf("page %d starts at %d, want %d", i+1, r.StartY, next)
		}
		if r.EndY <= r.StartY {
			return fmt.Errorf("page %d is empty: [%d,%d)", i+1, r.StartY, r.EndY)
		}
		next = r.EndY
	}
	if next != imageHeight {
		return fmt.Errorf("plan ends at %d, want %d", next, imageHeight)
	}
	return nil
}

// Cursor walks the page boundaries of a multi-page plan one page at a time,
// so that callers can do other work between boundaries.
type Cursor struct {
	buf      *image.NRGBA
	resolver Resolver
	geometry Geometry
	height   int
	currentY int
}

// NewCursor starts a walk over b from row 0.
func NewCursor(b *image.NRGBA, g Geometry, r Resolver) *Cursor {
	return &Cursor{buf: b, resolver: r, geometry: g, height: b.Bounds().Dy()}
}

// Next returns the next page range, or false once the image is covered.
func (c *Cursor) Next() (Range, bool) {
	if c.currentY >= c.height {
		return Range{}, false
	}
	start := c.currentY
	proposed := start + c.geometry.PageHeightPixels
	var end int
	kind := CutEnd
	if proposed >= c.height {
		end = c.height
	} else {
		end, kind = c.resolver.ResolveCutAbove(c.buf, proposed, c.height, start)
	}
	if end <= start {
		panic(fmt.Sprintf("pagination: non-increasing cut %d after %d", end, start))
	}
	c.currentY = end
	return Range{StartY: start, EndY: end, Kind: kind}, true
}

// Done reports whether the whole image has been covered.
func (c *Cursor) Done() bool { return c.currentY >= c.height }

// Plan is the layout decision for one image.
type Plan struct {
	Mode           Mode
	Format         PageFormat
	Geometry       Geometry
	Placement      Rect
	Pages          CutPlan
	EstimatedPages int
}

// Planner produces Plans for a fixed page format.
type Planner struct {
	Format    PageFormat
	Tolerance float64
	Resolver  Resolver
}

// NewPlanner returns a Planner with default tolerance and resolver.
func NewPlanner(format PageFormat) Planner {
	return Planner{Format: format, Tolerance: DefaultSinglePageTolerance, Resolver: NewResolver()}
}

// Layout decides the mode and the page geometry without reading any pixels.
// For single-page mode the plan already holds its one page; for multi-page
// mode Pages is empty and the caller walks a Cursor (or calls Plan).
func (p Planner) Layout(imageWidth, imageHeight int) (Plan, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return Plan{}, fmt.Errorf("invalid image size %dx%d", imageWidth, imageHeight)
	}
	if !p.Format.Valid() {
		return Plan{}, fmt.Errorf("invalid page format %gx%g", p.Format.Width, p.Format.Height)
	}
	mode := SelectMode(imageWidth, imageHeight, p.Format, p.Tolerance)
	if mode == ModeSingle {
		format := p.Format
		if imageWidth > imageHeight {
			format = format.Landscape()
		}
		return Plan{
			Mode:           ModeSingle,
			Format:         format,
			Placement:      FitRect(imageWidth, imageHeight, format.Width, format.Height),
			Pages:          CutPlan{{StartY: 0, EndY: imageHeight, Kind: CutEnd}},
			EstimatedPages: 1,
		}, nil
	}
	g, err := NewGeometry(imageWidth, p.Format)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Mode:           ModeMulti,
		Format:         p.Format,
		Geometry:       g,
		EstimatedPages: g.EstimatePages(imageHeight),
	}, nil
}

// Plan computes the full layout for b, resolving every boundary.
func (p Planner) Plan(b *image.NRGBA) (Plan, error) {
	w, h := b.Bounds().Dx(), b.Bounds().Dy()
	plan, err := p.Layout(w, h)
	if err != nil {
		return Plan{}, err
	}
	if plan.Mode == ModeSingle {
		return plan, nil
	}
	cur := NewCursor(b, plan.Geometry, p.Resolver)
	for {
		r, ok := cur.Next()
		if !ok {
			break
		}
		plan.Pages = append(plan.Pages, r)
	}
	return plan, nil
}
