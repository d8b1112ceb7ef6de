package annotate

import (
	"errors"
	"fmt"
	"image"

	"github.com/local/pagecomposer/internal/raster"
)

// Tool is the active pointer tool.
type Tool string

const (
	ToolSelect Tool = "select"
	ToolMask   Tool = "mask"
	ToolText   Tool = "text"
)

// Gesture is the pointer gesture in progress.
type Gesture int

const (
	GestureIdle Gesture = iota
	GestureDrawing
	GestureDragging
	GestureCommitting
)

func (g Gesture) String() string {
	switch g {
	case GestureIdle:
		return "idle"
	case GestureDrawing:
		return "drawing"
	case GestureDragging:
		return "dragging"
	case GestureCommitting:
		return "committing"
	}
	return fmt.Sprintf("gesture(%d)", int(g))
}

var (
	ErrWrongTool  = errors.New("operation not available for the active tool")
	ErrGesture    = errors.New("operation not valid in the current gesture")
	ErrNotEditing = errors.New("no text is being edited")
)

// SessionOptions are the defaults applied to new annotations.
type SessionOptions struct {
	FontSize    float64
	Color       string
	MinMaskSize int
}

// Session edits one page: it turns pointer gestures and key actions into
// Store mutations, committing a snapshot after each finished action.
type Session struct {
	page     int
	store    *Store
	renderer *Renderer
	base     *image.NRGBA
	opts     SessionOptions

	tool    Tool
	gesture Gesture

	draft     *MaskRegion
	drawStart image.Point

	selected   ID
	editing    ID
	editingNew bool
	editOrig   TextAnnotation

	dragOffset image.Point
	dragMoved  bool
}

// NewSession opens the page's thread in store (recording the unedited
// raster) and returns a session with the select tool active.
func NewSession(store *Store, r *Renderer, page int, base *image.NRGBA, opts SessionOptions) (*Session, error) {
	if r == nil {
		return nil, errors.New("session needs a renderer")
	}
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultFontSize
	}
	if opts.Color == "" {
		opts.Color = DefaultColor
	}
	if opts.MinMaskSize <= 0 {
		opts.MinMaskSize = MinMaskSize
	}
	store.SetMinMaskSize(opts.MinMaskSize)
	s := &Session{page: page, store: store, renderer: r, base: base, opts: opts, tool: ToolSelect}
	if _, opened := store.pages[page]; !opened {
		png, err := raster.EncodePNG(base)
		if err != nil {
			return nil, fmt.Errorf("encode page %d: %w", page, err)
		}
		store.Open(page, png)
	}
	return s, nil
}

func (s *Session) Page() int          { return s.page }
func (s *Session) Tool() Tool         { return s.tool }
func (s *Session) Gesture() Gesture   { return s.gesture }
func (s *Session) Editing() ID        { return s.editing }
func (s *Session) Selected() ID       { return s.selected }
func (s *Session) Draft() *MaskRegion { return s.draft }

// State is a copy of the page's live annotations.
func (s *Session) State() PageAnnotations { return s.store.State(s.page) }

// SelectTool switches tools. A gesture in progress is cancelled: a draft mask
// is dropped and a drag is committed where it stands. Editing text is
// finalized.
func (s *Session) SelectTool(t Tool) error {
	switch t {
	case ToolSelect, ToolMask, ToolText:
	default:
		return fmt.Errorf("unknown tool %q", t)
	}
	switch s.gesture {
	case GestureDrawing:
		s.draft = nil
		s.gesture = GestureIdle
	case GestureDragging:
		if err := s.EndDrag(); err != nil {
			return err
		}
	}
	if err := s.finishEdit(); err != nil {
		return err
	}
	s.tool = t
	return nil
}

// BeginMask starts drawing a mask at (x, y).
func (s *Session) BeginMask(x, y int) error {
	if s.tool != ToolMask {
		return ErrWrongTool
	}
	if s.gesture != GestureIdle {
		return ErrGesture
	}
	s.drawStart = image.Pt(x, y)
	d := MaskRegion{X: x, Y: y}
	s.draft = &d
	s.gesture = GestureDrawing
	return nil
}

// UpdateMask stretches the draft mask to (x, y).
func (s *Session) UpdateMask(x, y int) error {
	if s.gesture != GestureDrawing {
		return ErrGesture
	}
	d := RectFromPoints(s.drawStart.X, s.drawStart.Y, x, y)
	s.draft = &d
	return nil
}

// EndMask releases the mask at (x, y). It reports whether the mask was large
// enough to keep; kept masks are committed.
func (s *Session) EndMask(x, y int) (bool, error) {
	if err := s.UpdateMask(x, y); err != nil {
		return false, err
	}
	s.gesture = GestureCommitting
	d := *s.draft
	s.draft = nil
	defer func() { s.gesture = GestureIdle }()
	if !s.store.AddMask(s.page, d) {
		return false, nil
	}
	return true, s.commit()
}

// PlaceOrEditText handles a click with the text tool: clicking an existing
// text starts editing it, clicking elsewhere places a new empty text. Any
// other text being edited is finalized first.
func (s *Session) PlaceOrEditText(x, y int) (TextAnnotation, error) {
	if s.tool != ToolText {
		return TextAnnotation{}, ErrWrongTool
	}
	if s.gesture != GestureIdle {
		return TextAnnotation{}, ErrGesture
	}
	if hit, ok := HitText(s.store.State(s.page).Texts, x, y, s.renderer); ok {
		if hit.ID == s.editing {
			return hit, nil
		}
		if err := s.finishEdit(); err != nil {
			return TextAnnotation{}, err
		}
		// finishing may have committed or dropped other texts; look it up again
		if cur, ok := s.store.Text(s.page, hit.ID); ok {
			s.startEdit(cur, false)
			return cur, nil
		}
	}
	if err := s.finishEdit(); err != nil {
		return TextAnnotation{}, err
	}
	t := s.store.AddOrEditText(s.page, TextAnnotation{
		X:        x,
		Y:        y,
		FontSize: s.opts.FontSize,
		Color:    s.opts.Color,
	})
	s.startEdit(t, true)
	return t, nil
}

func (s *Session) startEdit(t TextAnnotation, isNew bool) {
	s.editing = t.ID
	s.selected = t.ID
	s.editingNew = isNew
	s.editOrig = t
}

// SetText replaces the content of the text being edited.
func (s *Session) SetText(text string) error {
	t, ok := s.store.Text(s.page, s.editing)
	if s.editing == 0 || !ok {
		return ErrNotEditing
	}
	t.Text = text
	s.store.AddOrEditText(s.page, t)
	return nil
}

// CommitText finalizes the text being edited (the Enter key). Text that is
// blank after trimming is removed.
func (s *Session) CommitText() error {
	if s.editing == 0 {
		return ErrNotEditing
	}
	return s.finishEdit()
}

func (s *Session) finishEdit() error {
	if s.editing == 0 {
		return nil
	}
	id, isNew, orig := s.editing, s.editingNew, s.editOrig
	s.editing, s.editingNew, s.editOrig = 0, false, TextAnnotation{}
	t, ok := s.store.Text(s.page, id)
	if !ok {
		return nil
	}
	if t.Blank() {
		s.store.DeleteText(s.page, id)
		if s.selected == id {
			s.selected = 0
		}
		if isNew {
			return nil
		}
		return s.commit()
	}
	if !isNew && t == orig {
		return nil
	}
	return s.commit()
}

// CancelEdit abandons the current edit (the Escape key): a new text is
// removed, an existing one gets its previous content back. Selection is
// cleared.
func (s *Session) CancelEdit() {
	if s.editing != 0 {
		if s.editingNew {
			s.store.DeleteText(s.page, s.editing)
		} else {
			s.store.AddOrEditText(s.page, s.editOrig)
		}
	}
	s.editing, s.editingNew, s.editOrig = 0, false, TextAnnotation{}
	s.selected = 0
}

// BeginDrag presses the select tool at (x, y). If it lands on a text, that
// text is selected and a drag starts; otherwise the selection is cleared.
func (s *Session) BeginDrag(x, y int) (bool, error) {
	if s.tool != ToolSelect {
		return false, ErrWrongTool
	}
	if s.gesture != GestureIdle {
		return false, ErrGesture
	}
	hit, ok := HitText(s.store.State(s.page).Texts, x, y, s.renderer)
	if !ok {
		s.selected = 0
		if err := s.finishEdit(); err != nil {
			return false, err
		}
		return false, nil
	}
	s.selected = hit.ID
	s.dragOffset = image.Pt(x-hit.X, y-hit.Y)
	s.dragMoved = false
	s.gesture = GestureDragging
	return true, nil
}

// DragTo moves the selected text with the pointer.
func (s *Session) DragTo(x, y int) error {
	if s.gesture != GestureDragging {
		return ErrGesture
	}
	if s.store.MoveText(s.page, s.selected, x-s.dragOffset.X, y-s.dragOffset.Y) {
		s.dragMoved = true
	}
	return nil
}

// EndDrag releases the drag, committing the new position if it moved.
func (s *Session) EndDrag() error {
	if s.gesture != GestureDragging {
		return ErrGesture
	}
	s.gesture = GestureCommitting
	defer func() { s.gesture = GestureIdle }()
	if !s.dragMoved {
		return nil
	}
	s.dragMoved = false
	return s.commit()
}

// DeleteSelected removes the selected text (the Delete key). It does nothing
// while that text is being edited.
func (s *Session) DeleteSelected() (bool, error) {
	if s.selected == 0 || s.editing != 0 || s.gesture != GestureIdle {
		return false, nil
	}
	if !s.store.DeleteText(s.page, s.selected) {
		s.selected = 0
		return false, nil
	}
	s.selected = 0
	return true, s.commit()
}

// Apply adds finished annotations in one history step, as when they arrive
// from a request rather than from gestures. It reports whether anything was
// added.
func (s *Session) Apply(page PageAnnotations) (bool, error) {
	s.abandon()
	page = page.Clone()
	for i := range page.Texts {
		if page.Texts[i].FontSize <= 0 {
			page.Texts[i].FontSize = s.opts.FontSize
		}
		if page.Texts[i].Color == "" {
			page.Texts[i].Color = s.opts.Color
		}
	}
	page = page.Normalize(s.opts.MinMaskSize)
	added := false
	for _, m := range page.Masks {
		if s.store.AddMask(s.page, m) {
			added = true
		}
	}
	for _, t := range page.Texts {
		s.store.AddOrEditText(s.page, t)
		added = true
	}
	if !added {
		return false, nil
	}
	return true, s.commit()
}

// Undo abandons any edit or gesture and steps the page history back.
func (s *Session) Undo() bool {
	s.abandon()
	return s.store.Undo(s.page)
}

// Redo abandons any edit or gesture and steps the page history forward.
func (s *Session) Redo() bool {
	s.abandon()
	return s.store.Redo(s.page)
}

func (s *Session) abandon() {
	s.draft = nil
	s.gesture = GestureIdle
	s.dragMoved = false
	s.CancelEdit()
}

// Reset drops every annotation and the history of this page.
func (s *Session) Reset() error {
	s.abandon()
	png, err := raster.EncodePNG(s.base)
	if err != nil {
		return fmt.Errorf("encode page %d: %w", s.page, err)
	}
	s.store.ResetPage(s.page, png)
	s.tool = ToolSelect
	return nil
}

// CanUndo and CanRedo report whether the history can move.
func (s *Session) CanUndo() bool { return s.store.CanUndo(s.page) }
func (s *Session) CanRedo() bool { return s.store.CanRedo(s.page) }

// Overlay renders the preview layer: annotations, the draft mask and the
// editing outline on a transparent image the size of the page.
func (s *Session) Overlay() *image.NRGBA {
	overlay := image.NewNRGBA(image.Rect(0, 0, s.base.Bounds().Dx(), s.base.Bounds().Dy()))
	s.renderer.Render(overlay, s.store.State(s.page), s.draft, s.editing)
	return overlay
}

// Flatten returns the page raster with the live annotations composited.
func (s *Session) Flatten() *image.NRGBA {
	return s.renderer.Composite(s.base, s.store.State(s.page))
}

func (s *Session) commit() error {
	png, err := raster.EncodePNG(s.Flatten())
	if err != nil {
		return fmt.Errorf("encode page %d: %w", s.page, err)
	}
	s.store.Commit(s.page, png)
	return nil
}
