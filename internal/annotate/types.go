// Package annotate holds page annotations (white-out masks and text), their
// undo history, and the rendering that paints them onto a page raster.
package annotate

import (
	"image"
	"strings"
	"sync/atomic"
)

const (
	// DefaultHistoryCapacity is the maximum number of snapshots kept per page.
	DefaultHistoryCapacity = 20
	// MinMaskSize is the size a mask must exceed in both dimensions to be kept.
	MinMaskSize = 5
	// DefaultFontSize is used for new text when no size is configured.
	DefaultFontSize = 16
	// DefaultColor is the text color for new text.
	DefaultColor = "#000000"
	// SelectionColor is the stroke color of the editing outline.
	SelectionColor = "#1A73E8"
)

// ID identifies a text annotation. Zero means "none".
type ID uint64

var lastID atomic.Uint64

// NewID returns a fresh, process-unique annotation id.
func NewID() ID { return ID(lastID.Add(1)) }

// MaskRegion is an opaque white rectangle in page pixel coordinates.
type MaskRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RectFromPoints normalizes a drag between two corners in any direction.
func RectFromPoints(x0, y0, x1, y1 int) MaskRegion {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return MaskRegion{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Rect converts the region into an image.Rectangle.
func (m MaskRegion) Rect() image.Rectangle {
	return image.Rect(m.X, m.Y, m.X+m.Width, m.Y+m.Height)
}

// Keep reports whether the region is large enough to commit.
func (m MaskRegion) Keep(minSize int) bool {
	return m.Width > minSize && m.Height > minSize
}

// TextAnnotation is a single line of text; (X, Y) is the left end of its
// baseline.
type TextAnnotation struct {
	ID       ID      `json:"id"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Text     string  `json:"text"`
	FontSize float64 `json:"font_size"`
	Color    string  `json:"color"`
}

// Blank reports whether the text is empty after trimming whitespace.
func (t TextAnnotation) Blank() bool { return strings.TrimSpace(t.Text) == "" }

// PageAnnotations is everything drawn on one page.
type PageAnnotations struct {
	Masks []MaskRegion     `json:"masks,omitempty"`
	Texts []TextAnnotation `json:"texts,omitempty"`
}

// Empty reports whether there is nothing to draw.
func (p PageAnnotations) Empty() bool { return len(p.Masks) == 0 && len(p.Texts) == 0 }

// Clone returns a deep copy.
func (p PageAnnotations) Clone() PageAnnotations {
	var c PageAnnotations
	if len(p.Masks) > 0 {
		c.Masks = append([]MaskRegion(nil), p.Masks...)
	}
	if len(p.Texts) > 0 {
		c.Texts = append([]TextAnnotation(nil), p.Texts...)
	}
	return c
}

// Normalize drops masks that are too small and blank texts, fills style
// defaults, and assigns ids to texts that have none. It is used for
// annotations that arrive already finished, e.g. from an API request.
func (p PageAnnotations) Normalize(minMask int) PageAnnotations {
	var out PageAnnotations
	for _, m := range p.Masks {
		m = RectFromPoints(m.X, m.Y, m.X+m.Width, m.Y+m.Height)
		if m.Keep(minMask) {
			out.Masks = append(out.Masks, m)
		}
	}
	for _, t := range p.Texts {
		if t.Blank() {
			continue
		}
		if t.ID == 0 {
			t.ID = NewID()
		}
		if t.FontSize <= 0 {
			t.FontSize = DefaultFontSize
		}
		if t.Color == "" {
			t.Color = DefaultColor
		}
		out.Texts = append(out.Texts, t)
	}
	return out
}

// Snapshot is an immutable capture of a page's annotations plus the encoded
// (PNG) composited raster at that point.
type Snapshot struct {
	Annotations PageAnnotations
	Raster      []byte
}
