// Package assemble encodes page rasters into a PDF with pdfcpu.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pagecomposer/internal/compose"
	"github.com/local/pagecomposer/internal/raster"
)

// PDF assembles pages as JPEG images, one image per page.
type PDF struct {
	quality int
	color   raster.ColorMode
	conf    *model.Configuration
}

// New returns a PDF assembler. quality is the JPEG quality (1-100, 0 for the
// default 92).
func New(quality int, mode raster.ColorMode) *PDF {
	if quality <= 0 || quality > 100 {
		quality = raster.DefaultJPEGQuality
	}
	if mode == "" {
		mode = raster.ColorRGB
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDF{quality: quality, color: mode, conf: conf}
}

// group is a run of consecutive pages sharing page size and anchor, which
// pdfcpu can import in a single call.
type group struct {
	width, height float64
	anchor        compose.Anchor
	pages         []compose.Page
}

func groups(pages []compose.Page) []group {
	var out []group
	for _, p := range pages {
		if n := len(out); n > 0 {
			g := &out[n-1]
			if g.width == p.Width && g.height == p.Height && g.anchor == p.Anchor {
				g.pages = append(g.pages, p)
				continue
			}
		}
		out = append(out, group{width: p.Width, height: p.Height, anchor: p.Anchor, pages: []compose.Page{p}})
	}
	return out
}

func position(a compose.Anchor) types.Anchor {
	if a == compose.AnchorCenter {
		return types.Center
	}
	return types.TopCenter
}

// Assemble writes pages in order into a new PDF. Each raster is drawn at its
// Placement on a page-shaped canvas, which then fills the page exactly.
func (p *PDF) Assemble(ctx context.Context, pages []compose.Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.New("no pages to assemble")
	}
	var doc []byte
	for i, g := range groups(pages) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		imgs := make([]io.Reader, 0, len(g.pages))
		for _, pg := range g.pages {
			jpg, err := raster.EncodeJPEG(pageCanvas(pg), p.quality, p.color)
			if err != nil {
				return nil, err
			}
			imgs = append(imgs, bytes.NewReader(jpg))
		}

		imp := pdfcpu.DefaultImportConfig()
		imp.PageDim = &types.Dim{Width: compose.MillimetresToPoints(g.width), Height: compose.MillimetresToPoints(g.height)}
		imp.UserDim = true
		imp.Pos = position(g.anchor)
		imp.Scale = 1
		imp.ScaleAbs = false

		var rs io.ReadSeeker
		if doc != nil {
			rs = bytes.NewReader(doc)
		}
		var out bytes.Buffer
		if err := api.ImportImages(rs, &out, imgs, imp, p.conf); err != nil {
			return nil, fmt.Errorf("import page group %d (%d images): %w", i+1, len(imgs), err)
		}
		doc = out.Bytes()
	}

	log.Debug().Int("pages", len(pages)).Int("bytes", len(doc)).Int("quality", p.quality).Msg("assembled PDF")
	return doc, nil
}
