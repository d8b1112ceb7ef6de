// Package rasterize renders PDF pages to pixel buffers with go-fitz (MuPDF).
package rasterize

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pagecomposer/internal/compose"
	"github.com/local/pagecomposer/internal/raster"
)

// Fitz opens documents with the embedded MuPDF.
type Fitz struct{}

// New creates a go-fitz based rasterizer
func New() *Fitz {
	return &Fitz{}
}

// IsAvailable always returns true since go-fitz is embedded
func (f *Fitz) IsAvailable() bool {
	return true
}

// Open loads a document from memory.
func (f *Fitz) Open(data []byte) (compose.Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	log.Debug().Int("pages", doc.NumPage()).Int("bytes", len(data)).Msg("opened document with go-fitz")
	return &Doc{doc: doc}, nil
}

// PageCount returns the number of pages in data.
func (f *Fitz) PageCount(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Doc is an opened document. go-fitz uses 0-based page indexing.
type Doc struct {
	doc *fitz.Document
}

func (d *Doc) NumPages() int { return d.doc.NumPage() }

// PageSize returns the page size in millimetres.
func (d *Doc) PageSize(page int) (float64, float64, error) {
	if err := d.check(page); err != nil {
		return 0, 0, err
	}
	// Bound is measured at 72 dpi, i.e. in points.
	b, err := d.doc.Bound(page)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read page %d bounds: %w", page+1, err)
	}
	return compose.PointsToMillimetres(float64(b.Dx())), compose.PointsToMillimetres(float64(b.Dy())), nil
}

// Render rasterizes a page at dpi.
func (d *Doc) Render(page int, dpi float64) (*image.NRGBA, error) {
	if err := d.check(page); err != nil {
		return nil, err
	}
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page+1, err)
	}
	log.Debug().
		Int("page", page+1).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Float64("dpi", dpi).
		Msg("rendered page")
	return raster.FromImage(img), nil
}

func (d *Doc) Close() error { return d.doc.Close() }

func (d *Doc) check(page int) error {
	if page < 0 || page >= d.doc.NumPage() {
		return fmt.Errorf("page %d out of range (document has %d pages)", page+1, d.doc.NumPage())
	}
	return nil
}
