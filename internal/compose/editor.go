package compose

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/local/pagecomposer/internal/annotate"
	"github.com/local/pagecomposer/internal/metrics"
	"github.com/local/pagecomposer/internal/pagination"
)

// DefaultEditorScale renders pages at 1.5x, i.e. 108 dpi.
const DefaultEditorScale = 1.5

// DefaultEditorFontSize is the size of new text placed in the page editor.
const DefaultEditorFontSize = 14

// EditorOptions configure a DocumentEditor.
type EditorOptions struct {
	Scale           float64
	FontSize        float64
	Color           string
	HistoryCapacity int
	MinMaskSize     int
}

// DocumentEditor edits an existing document one page at a time. Each page
// has its own annotation session and undo history. Saving rasterizes every
// page, flattens its annotations and assembles a new document whose pages
// keep their original size.
type DocumentEditor struct {
	doc       Document
	assembler Assembler
	renderer  *annotate.Renderer
	opts      EditorOptions

	store    *annotate.Store
	sessions map[int]*annotate.Session
	rasters  map[int]*image.NRGBA
	current  int
}

// OpenEditor loads data through r. Corrupt or empty documents fail with a
// DECODE_ERROR.
func OpenEditor(data []byte, r Rasterizer, a Assembler, renderer *annotate.Renderer, opts EditorOptions) (*DocumentEditor, error) {
	if opts.Scale <= 0 {
		opts.Scale = DefaultEditorScale
	}
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultEditorFontSize
	}
	doc, err := r.Open(data)
	if err != nil {
		return nil, NewDecodeError("document", err)
	}
	if doc.NumPages() < 1 {
		_ = doc.Close()
		return nil, NewDecodeError("document", fmt.Errorf("document has no pages"))
	}
	return &DocumentEditor{
		doc:       doc,
		assembler: a,
		renderer:  renderer,
		opts:      opts,
		store:     annotate.NewStore(opts.HistoryCapacity),
		sessions:  make(map[int]*annotate.Session),
		rasters:   make(map[int]*image.NRGBA),
		current:   1,
	}, nil
}

func (e *DocumentEditor) NumPages() int    { return e.doc.NumPages() }
func (e *DocumentEditor) CurrentPage() int { return e.current }

// DPI is the resolution pages are rendered at.
func (e *DocumentEditor) DPI() float64 { return 72 * e.opts.Scale }

// GoToPage moves to page n, clamped to the document. Text being edited on
// the page being left is finalized.
func (e *DocumentEditor) GoToPage(n int) (int, error) {
	if n < 1 {
		n = 1
	}
	if last := e.NumPages(); n > last {
		n = last
	}
	if s, ok := e.sessions[e.current]; ok && s.Editing() != 0 {
		if err := s.CommitText(); err != nil {
			return e.current, err
		}
	}
	e.current = n
	return n, nil
}

// Session returns the editing session of page n, opening it on first use.
func (e *DocumentEditor) Session(n int) (*annotate.Session, error) {
	if s, ok := e.sessions[n]; ok {
		return s, nil
	}
	base, err := e.RenderPage(n)
	if err != nil {
		return nil, err
	}
	s, err := annotate.NewSession(e.store, e.renderer, n, base, annotate.SessionOptions{
		FontSize:    e.opts.FontSize,
		Color:       e.opts.Color,
		MinMaskSize: e.opts.MinMaskSize,
	})
	if err != nil {
		return nil, err
	}
	e.sessions[n] = s
	return s, nil
}

// Current is the session of the current page.
func (e *DocumentEditor) Current() (*annotate.Session, error) { return e.Session(e.current) }

// RenderPage returns page n (one-based) rendered at the editor scale. The
// result is cached and must not be modified.
func (e *DocumentEditor) RenderPage(n int) (*image.NRGBA, error) {
	if n < 1 || n > e.NumPages() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", n, e.NumPages())
	}
	if img, ok := e.rasters[n]; ok {
		return img, nil
	}
	img, err := e.doc.Render(n-1, e.DPI())
	if err != nil {
		return nil, NewDecodeError(fmt.Sprintf("page %d", n), err)
	}
	e.rasters[n] = img
	return img, nil
}

// Apply adds finished annotations keyed by one-based page number. Page
// coordinates are in editor pixels, i.e. at DPI.
func (e *DocumentEditor) Apply(pages map[int]annotate.PageAnnotations) error {
	for n, ann := range pages {
		if n < 1 || n > e.NumPages() {
			return fmt.Errorf("page %d out of range [1, %d]", n, e.NumPages())
		}
		s, err := e.Session(n)
		if err != nil {
			return err
		}
		if _, err := s.Apply(ann); err != nil {
			return err
		}
	}
	return nil
}

// Save produces the edited document. Pages without annotations are
// rasterized unchanged.
func (e *DocumentEditor) Save(ctx context.Context) ([]byte, error) {
	for _, s := range e.sessions {
		if s.Editing() != 0 {
			if err := s.CommitText(); err != nil {
				return nil, err
			}
		}
	}
	n := e.NumPages()
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		base, err := e.RenderPage(i)
		if err != nil {
			return nil, err
		}
		w, h, err := e.doc.PageSize(i - 1)
		if err != nil {
			return nil, NewDecodeError(fmt.Sprintf("page %d size", i), err)
		}
		img := base
		if ann := e.store.State(i); !ann.Empty() {
			img = e.renderer.Composite(base, ann)
		}
		pages = append(pages, Page{
			Image:     img,
			Width:     w,
			Height:    h,
			Anchor:    AnchorCenter,
			Placement: pagination.Rect{Width: w, Height: h},
		})
	}
	out, err := e.assembler.Assemble(context.WithoutCancel(ctx), pages)
	if err != nil {
		return nil, NewEncodeError(err)
	}
	metrics.AddPages("editor", n)
	log.Info().Int("pages", n).Int("edited", len(e.sessions)).Int("bytes", len(out)).Msg("document saved")
	return out, nil
}

// Close releases the underlying document.
func (e *DocumentEditor) Close() error { return e.doc.Close() }
