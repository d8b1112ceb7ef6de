package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/local/pagecomposer/internal/raster"
)

// Outline geometry around the text being edited.
const (
	outlineWidth = 2
	outlineDash  = 4
	outlineGap   = 4
	outlinePad   = 4
	outlineMinW  = 100
)

// Face sizes are clamped and rounded to half points before lookup, and the
// cache is dropped once it holds maxFaces entries.
const (
	minFaceSize = 4
	maxFaceSize = 256
	maxFaces    = 32
)

func faceSize(size float64) float64 {
	if size <= 0 || math.IsNaN(size) {
		return DefaultFontSize
	}
	return math.Round(math.Min(math.Max(size, minFaceSize), maxFaceSize)*2) / 2
}

// Renderer paints annotations with the Go Regular face. Faces are cached per
// size. A Renderer is safe for concurrent use; text drawing is serialized.
type Renderer struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

// NewRenderer parses the embedded font.
func NewRenderer() (*Renderer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Renderer{font: f, faces: make(map[float64]font.Face)}, nil
}

// face must be called with r.mu held.
func (r *Renderer) face(size float64) (font.Face, error) {
	size = faceSize(size)
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	if len(r.faces) >= maxFaces {
		for k, f := range r.faces {
			f.Close()
			delete(r.faces, k)
		}
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("face %.1f: %w", size, err)
	}
	r.faces[size] = f
	return f, nil
}

// MeasureText returns the rendered advance width of text in pixels.
func (r *Renderer) MeasureText(text string, size float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.face(size)
	if err != nil {
		return HeuristicWidth(text, size)
	}
	return font.MeasureString(f, text).Ceil()
}

// Render clears overlay to transparent and paints the page's masks, the live
// draft mask (if any), every text, and a dashed outline around the text with
// id editing. Rendering the same inputs twice gives the same pixels.
func (r *Renderer) Render(overlay *image.NRGBA, page PageAnnotations, draft *MaskRegion, editing ID) {
	draw.Draw(overlay, overlay.Bounds(), image.Transparent, image.Point{}, draw.Src)
	for _, m := range page.Masks {
		fillMask(overlay, m)
	}
	if draft != nil {
		fillMask(overlay, *draft)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range page.Texts {
		w := r.drawText(overlay, t)
		if editing != 0 && t.ID == editing {
			r.outline(overlay, t, w)
		}
	}
}

// Composite returns a copy of base with masks and texts flattened onto it.
// No selection outline is drawn.
func (r *Renderer) Composite(base *image.NRGBA, page PageAnnotations) *image.NRGBA {
	out := raster.Clone(base)
	for _, m := range page.Masks {
		fillMask(out, m)
	}
	if len(page.Texts) == 0 {
		return out
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range page.Texts {
		r.drawText(out, t)
	}
	return out
}

func fillMask(dst *image.NRGBA, m MaskRegion) {
	draw.Draw(dst, m.Rect().Intersect(dst.Bounds()), image.NewUniform(raster.White), image.Point{}, draw.Src)
}

// drawText must be called with r.mu held. It returns the advance width.
func (r *Renderer) drawText(dst *image.NRGBA, t TextAnnotation) int {
	f, err := r.face(t.FontSize)
	if err != nil {
		log.Warn().Err(err).Float64("font_size", t.FontSize).Msg("Skipping text annotation")
		return 0
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(ParseColor(t.Color)),
		Face: f,
		Dot:  fixed.P(t.X, t.Y),
	}
	d.DrawString(t.Text)
	return (d.Dot.X - fixed.I(t.X)).Ceil()
}

func (r *Renderer) outline(dst *image.NRGBA, t TextAnnotation, textWidth int) {
	size := int(t.FontSize)
	w := textWidth + 2*outlinePad
	if w < outlineMinW {
		w = outlineMinW
	}
	top := t.Y - size
	rect := image.Rect(t.X-outlinePad, top, t.X-outlinePad+w, top+size+2*outlinePad)
	strokeDashed(dst, rect, ParseColor(SelectionColor))
}

// strokeDashed walks the rectangle's perimeter clockwise, painting a square
// pen of outlineWidth pixels centred on the path during "on" intervals.
func strokeDashed(dst *image.NRGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	period := outlineDash + outlineGap
	step := 0
	pen := func(x, y int) {
		if step%period < outlineDash {
			half := outlineWidth / 2
			sq := image.Rect(x-half, y-half, x-half+outlineWidth, y-half+outlineWidth)
			draw.Draw(dst, sq.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
		}
		step++
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		pen(x, r.Min.Y)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		pen(r.Max.X, y)
	}
	for x := r.Max.X; x > r.Min.X; x-- {
		pen(x, r.Max.Y)
	}
	for y := r.Max.Y; y > r.Min.Y; y-- {
		pen(r.Min.X, y)
	}
}

// ParseColor parses a CSS hex color. Unparseable values render black.
func ParseColor(s string) color.NRGBA {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{A: 0xff}
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}
