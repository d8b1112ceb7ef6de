// Package compose turns a source image into a paginated document and edits
// existing documents page by page. The pixel work happens in the raster,
// pagination and annotate packages; document encoding and rasterization are
// collaborators behind the Assembler and Rasterizer interfaces.
package compose

import (
	"context"
	"image"
	"path/filepath"
	"strings"

	"github.com/local/pagecomposer/internal/pagination"
)

// Anchor is where a page raster sits on its physical page when the page has
// no explicit Placement.
type Anchor int

const (
	// AnchorTop places the raster against the top edge, horizontally centered.
	AnchorTop Anchor = iota
	// AnchorCenter centers the raster on the page.
	AnchorCenter
)

func (a Anchor) String() string {
	if a == AnchorCenter {
		return "center"
	}
	return "top"
}

// Page is one output page handed to the assembler. Width and Height are the
// physical page size in millimetres; Placement is where the raster lands, in
// the same units. Placement may extend past the page edge, in which case the
// overflow is clipped rather than the raster rescaled. A zero Placement fits
// the raster into the page at Anchor.
type Page struct {
	Image     *image.NRGBA
	Width     float64
	Height    float64
	Anchor    Anchor
	Placement pagination.Rect
}

// Assembler encodes ordered page rasters into a document.
type Assembler interface {
	Assemble(ctx context.Context, pages []Page) ([]byte, error)
}

// Rasterizer opens an existing document for rendering.
type Rasterizer interface {
	Open(data []byte) (Document, error)
}

// Document is an opened, renderable document. Pages are zero-based.
type Document interface {
	NumPages() int
	// PageSize returns the physical page size in millimetres.
	PageSize(page int) (width, height float64, err error)
	// Render rasterizes a page at the given resolution.
	Render(page int, dpi float64) (*image.NRGBA, error)
	Close() error
}

// OutputName derives the download name for a composed source file.
func OutputName(source string) string {
	base := filepath.Base(source)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "document"
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base + "-split.pdf"
}

// MillimetresToPoints converts a page length to PDF points.
func MillimetresToPoints(mm float64) float64 { return mm * 72 / 25.4 }

// PointsToMillimetres converts PDF points to a page length.
func PointsToMillimetres(pt float64) float64 { return pt * 25.4 / 72 }
