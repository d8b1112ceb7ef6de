package annotate

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/local/pagecomposer/internal/raster"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestHistoryRoundTrip(t *testing.T) {
	s := NewStore(DefaultHistoryCapacity)
	s.Open(1, nil)
	for i := 0; i < 5; i++ {
		if !s.AddMask(1, MaskRegion{X: i * 10, Y: 0, Width: 8, Height: 8}) {
			t.Fatalf("mask %d rejected", i)
		}
		s.Commit(1, nil)
	}
	final := s.State(1)
	for i := 0; i < 5; i++ {
		if !s.Undo(1) {
			t.Fatalf("undo %d failed", i)
		}
	}
	if s.Undo(1) {
		t.Error("undo past the initial snapshot should be a no-op")
	}
	if !s.State(1).Empty() {
		t.Errorf("after undoing everything state = %+v, want empty", s.State(1))
	}
	for i := 0; i < 5; i++ {
		if !s.Redo(1) {
			t.Fatalf("redo %d failed", i)
		}
	}
	if s.Redo(1) {
		t.Error("redo past the newest snapshot should be a no-op")
	}
	if diff := cmp.Diff(final, s.State(1)); diff != "" {
		t.Errorf("state after redo mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryEviction(t *testing.T) {
	s := NewStore(DefaultHistoryCapacity)
	s.Open(1, nil)
	for i := 0; i < 25; i++ {
		s.AddMask(1, MaskRegion{X: i, Y: i, Width: 10, Height: 10})
		s.Commit(1, nil)
	}
	if got := s.Len(1); got != 20 {
		t.Errorf("Len = %d, want 20", got)
	}
	if got := s.Index(1); got != 19 {
		t.Errorf("Index = %d, want 19", got)
	}
	undos := 0
	for s.Undo(1) {
		undos++
	}
	if undos != 19 {
		t.Errorf("undid %d times, want 19", undos)
	}
	// The oldest kept snapshot is the sixth commit.
	if got := len(s.State(1).Masks); got != 6 {
		t.Errorf("oldest snapshot has %d masks, want 6", got)
	}
}

func TestHistoryPushTruncatesRedo(t *testing.T) {
	h := NewHistory(5)
	for i := 0; i < 3; i++ {
		h.Push(Snapshot{Raster: []byte{byte(i)}})
	}
	h.Undo()
	h.Undo()
	h.Push(Snapshot{Raster: []byte{9}})
	if h.Len() != 2 || h.Index() != 1 || h.CanRedo() {
		t.Errorf("len=%d index=%d canRedo=%v, want 2, 1, false", h.Len(), h.Index(), h.CanRedo())
	}
	cur, _ := h.Current()
	if !bytes.Equal(cur.Raster, []byte{9}) {
		t.Errorf("current raster = %v", cur.Raster)
	}
}

func TestHistorySnapshotsAreImmutable(t *testing.T) {
	h := NewHistory(3)
	p := PageAnnotations{Masks: []MaskRegion{{X: 1, Y: 1, Width: 9, Height: 9}}}
	h.Push(Snapshot{Annotations: p})
	p.Masks[0].X = 50
	cur, _ := h.Current()
	cur.Annotations.Masks[0].Y = 70
	again, _ := h.Current()
	if again.Annotations.Masks[0] != (MaskRegion{X: 1, Y: 1, Width: 9, Height: 9}) {
		t.Errorf("snapshot was mutated: %+v", again.Annotations.Masks[0])
	}
}

func TestAddMaskMinimumSize(t *testing.T) {
	tests := []struct {
		name string
		m    MaskRegion
		want bool
	}{
		{"4x4", MaskRegion{X: 10, Y: 10, Width: 4, Height: 4}, false},
		{"5x5", MaskRegion{X: 10, Y: 10, Width: 5, Height: 5}, false},
		{"6x6", MaskRegion{X: 10, Y: 10, Width: 6, Height: 6}, true},
		{"wide but flat", MaskRegion{X: 0, Y: 0, Width: 300, Height: 3}, false},
		{"dragged up-left", MaskRegion{X: 50, Y: 50, Width: -20, Height: -20}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(0)
			if got := s.AddMask(3, tt.m); got != tt.want {
				t.Errorf("AddMask = %v, want %v", got, tt.want)
			}
			want := 0
			if tt.want {
				want = 1
			}
			if got := len(s.State(3).Masks); got != want {
				t.Errorf("%d masks stored, want %d", got, want)
			}
		})
	}
}

func TestStoreTextOps(t *testing.T) {
	s := NewStore(0)
	a := s.AddOrEditText(1, TextAnnotation{X: 5, Y: 20, Text: "hi"})
	if a.ID == 0 || a.FontSize != DefaultFontSize || a.Color != DefaultColor {
		t.Fatalf("defaults not applied: %+v", a)
	}
	a.Text = "hello"
	s.AddOrEditText(1, a)
	if !s.MoveText(1, a.ID, 40, 60) {
		t.Fatal("MoveText failed")
	}
	got, ok := s.Text(1, a.ID)
	if !ok || got.Text != "hello" || got.X != 40 || got.Y != 60 {
		t.Errorf("text = %+v", got)
	}
	if len(s.State(1).Texts) != 1 {
		t.Errorf("edit should replace, not append")
	}
	if !s.DeleteText(1, a.ID) || s.DeleteText(1, a.ID) {
		t.Error("DeleteText should succeed once")
	}
	if s.MoveText(2, a.ID, 0, 0) {
		t.Error("unknown page should not move anything")
	}
}

func TestStorePagesAreIndependent(t *testing.T) {
	s := NewStore(0)
	s.Open(1, []byte("p1"))
	s.Open(2, []byte("p2"))
	s.AddMask(1, MaskRegion{Width: 10, Height: 10})
	s.Commit(1, []byte("p1-edited"))
	if !s.State(2).Empty() || s.CanUndo(2) {
		t.Error("page 2 should be untouched")
	}
	if !s.Undo(1) {
		t.Fatal("undo on page 1 failed")
	}
	if string(s.Raster(1)) != "p1" {
		t.Errorf("raster after undo = %q, want the unedited page", s.Raster(1))
	}
	if diff := cmp.Diff([]int{1, 2}, s.Pages()); diff != "" {
		t.Errorf("Pages mismatch (-want +got):\n%s", diff)
	}
	s.Reset()
	if len(s.Pages()) != 0 || s.Index(1) != -1 {
		t.Error("Reset should drop every thread")
	}
}

func TestNormalize(t *testing.T) {
	in := PageAnnotations{
		Masks: []MaskRegion{{X: 0, Y: 0, Width: 3, Height: 30}, {X: 20, Y: 20, Width: -10, Height: 10}},
		Texts: []TextAnnotation{{Text: "  "}, {X: 1, Y: 2, Text: "ok"}},
	}
	out := in.Normalize(MinMaskSize)
	if diff := cmp.Diff([]MaskRegion{{X: 10, Y: 20, Width: 10, Height: 10}}, out.Masks); diff != "" {
		t.Errorf("masks mismatch (-want +got):\n%s", diff)
	}
	if len(out.Texts) != 1 || out.Texts[0].ID == 0 || out.Texts[0].FontSize != DefaultFontSize {
		t.Errorf("texts = %+v", out.Texts)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	r := newRenderer(t)
	page := PageAnnotations{
		Masks: []MaskRegion{{X: 5, Y: 5, Width: 30, Height: 20}},
		Texts: []TextAnnotation{{ID: 42, X: 40, Y: 60, Text: "Invoice", FontSize: 14, Color: "#336699"}},
	}
	draft := &MaskRegion{X: 100, Y: 10, Width: 12, Height: 12}
	a := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	b := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	r.Render(a, page, draft, 42)
	r.Render(b, page, draft, 42)
	r.Render(b, page, draft, 42)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("rendering twice produced different pixels")
	}
	if got := a.NRGBAAt(10, 10); got != raster.White {
		t.Errorf("mask pixel = %v, want opaque white", got)
	}
	if got := a.NRGBAAt(105, 15); got != raster.White {
		t.Errorf("draft pixel = %v, want opaque white", got)
	}
	if got := a.NRGBAAt(190, 90); got.A != 0 {
		t.Errorf("untouched pixel = %v, want transparent", got)
	}
	if got, want := a.NRGBAAt(36, 46), ParseColor(SelectionColor); got != want {
		t.Errorf("outline corner = %v, want %v", got, want)
	}
}

func TestRenderClearsPreviousContent(t *testing.T) {
	r := newRenderer(t)
	o := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	r.Render(o, PageAnnotations{Masks: []MaskRegion{{X: 0, Y: 0, Width: 50, Height: 50}}}, nil, 0)
	r.Render(o, PageAnnotations{}, nil, 0)
	for _, p := range []image.Point{{0, 0}, {25, 25}, {49, 49}} {
		if o.NRGBAAt(p.X, p.Y).A != 0 {
			t.Errorf("pixel %v not cleared", p)
		}
	}
}

func TestCompositeDrawsTextWithoutOutline(t *testing.T) {
	r := newRenderer(t)
	base := raster.NewWhite(200, 60)
	base.SetNRGBA(150, 40, color.NRGBA{A: 0xff})
	page := PageAnnotations{
		Masks: []MaskRegion{{X: 140, Y: 30, Width: 20, Height: 20}},
		Texts: []TextAnnotation{{ID: 1, X: 10, Y: 30, Text: "WWW", FontSize: 20, Color: "#FF0000"}},
	}
	out := r.Composite(base, page)
	if base.NRGBAAt(150, 40) != (color.NRGBA{A: 0xff}) {
		t.Error("Composite modified its input")
	}
	if out.NRGBAAt(150, 40) != raster.White {
		t.Error("mask did not white out the pixel")
	}
	red := 0
	for y := 10; y <= 34; y++ {
		for x := 10; x < 60; x++ {
			c := out.NRGBAAt(x, y)
			if c.R > 200 && c.G < 100 && c.B < 100 {
				red++
			}
		}
	}
	if red == 0 {
		t.Error("no red text pixels found")
	}
	if got := out.NRGBAAt(6, 10); got != raster.White {
		t.Errorf("outline drawn in composite: %v", got)
	}
}

func TestMeasureText(t *testing.T) {
	r := newRenderer(t)
	short := r.MeasureText("ab", 16)
	long := r.MeasureText("abcdefgh", 16)
	big := r.MeasureText("abcdefgh", 32)
	if short <= 0 || long <= short || big <= long {
		t.Errorf("widths short=%d long=%d big=%d", short, long, big)
	}
	if r.MeasureText("", 16) != 0 {
		t.Error("empty text should measure 0")
	}
}

func TestFaceCacheIsBounded(t *testing.T) {
	r := newRenderer(t)
	if a, b := r.MeasureText("abcdefgh", 16.2), r.MeasureText("abcdefgh", 16); a != b {
		t.Errorf("16.2 measures %d, 16 measures %d", a, b)
	}
	for i := 0; i < 1000; i++ {
		r.MeasureText("x", 1+float64(i)*0.37)
	}
	r.MeasureText("x", 1e9)
	if n := len(r.faces); n > maxFaces {
		t.Errorf("face cache holds %d faces, want at most %d", n, maxFaces)
	}
	for _, tt := range []struct{ in, want float64 }{
		{0, DefaultFontSize},
		{-3, DefaultFontSize},
		{1, minFaceSize},
		{16.2, 16},
		{16.3, 16.5},
		{1e9, maxFaceSize},
	} {
		if got := faceSize(tt.in); got != tt.want {
			t.Errorf("faceSize(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseColor(t *testing.T) {
	tests := map[string]color.NRGBA{
		"#000000": {A: 0xff},
		"#1A73E8": {R: 0x1a, G: 0x73, B: 0xe8, A: 0xff},
		"#fff":    {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		"bogus":   {A: 0xff},
	}
	for in, want := range tests {
		if got := ParseColor(in); got != want {
			t.Errorf("ParseColor(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHitText(t *testing.T) {
	texts := []TextAnnotation{
		{ID: 1, X: 10, Y: 50, Text: "a", FontSize: 14},
		{ID: 2, X: 10, Y: 200, Text: "a much longer line of text here", FontSize: 20},
	}
	tests := []struct {
		name string
		x, y int
		want ID
	}{
		{"inside short text min width", 100, 45, 1},
		{"just below baseline", 20, 54, 1},
		{"too far below", 20, 55, 0},
		{"above the em box", 20, 35, 0},
		{"left of origin", 9, 45, 0},
		{"long text far right", 300, 190, 2},
		{"past the long text", 400, 190, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := HitText(texts, tt.x, tt.y, nil)
			if tt.want == 0 {
				if ok {
					t.Errorf("unexpected hit on %d", got.ID)
				}
				return
			}
			if !ok || got.ID != tt.want {
				t.Errorf("hit = %d/%v, want %d", got.ID, ok, tt.want)
			}
		})
	}
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(NewStore(0), newRenderer(t), 1, raster.NewWhite(300, 200), SessionOptions{FontSize: 14})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionMaskGesture(t *testing.T) {
	s := newSession(t)
	if err := s.BeginMask(0, 0); err != ErrWrongTool {
		t.Errorf("BeginMask with select tool: err = %v", err)
	}
	s.SelectTool(ToolMask)
	s.BeginMask(10, 10)
	if err := s.BeginMask(1, 1); err != ErrGesture {
		t.Errorf("nested BeginMask: err = %v", err)
	}
	s.UpdateMask(30, 30)
	if s.Gesture() != GestureDrawing || s.Draft() == nil {
		t.Fatal("expected drawing with a draft")
	}
	kept, err := s.EndMask(50, 40)
	if err != nil || !kept {
		t.Fatalf("EndMask = %v, %v", kept, err)
	}
	if s.Gesture() != GestureIdle || s.Draft() != nil {
		t.Error("gesture should return to idle")
	}
	s.BeginMask(10, 10)
	if kept, _ := s.EndMask(14, 14); kept {
		t.Error("4x4 mask should be discarded")
	}
	if diff := cmp.Diff([]MaskRegion{{X: 10, Y: 10, Width: 40, Height: 30}}, s.State().Masks); diff != "" {
		t.Errorf("masks mismatch (-want +got):\n%s", diff)
	}
	if !s.CanUndo() {
		t.Error("kept mask should be undoable")
	}
	if got := s.Flatten().NRGBAAt(20, 20); got != raster.White {
		t.Errorf("flattened pixel = %v", got)
	}
}

func TestSessionToolSwitchMidGesture(t *testing.T) {
	s := newSession(t)
	s.SelectTool(ToolMask)
	s.BeginMask(10, 10)
	s.UpdateMask(80, 80)
	if err := s.SelectTool(ToolText); err != nil {
		t.Fatal(err)
	}
	if s.Draft() != nil || s.Gesture() != GestureIdle || len(s.State().Masks) != 0 {
		t.Error("switching tools should drop the draft mask")
	}
	if s.CanUndo() {
		t.Error("a dropped draft must not be committed")
	}

	txt, _ := s.PlaceOrEditText(20, 100)
	s.SetText("drag me")
	s.SelectTool(ToolSelect)
	if ok, err := s.BeginDrag(25, 95); !ok || err != nil {
		t.Fatalf("BeginDrag = %v, %v", ok, err)
	}
	s.DragTo(55, 125)
	before := s.store.Len(1)
	if err := s.SelectTool(ToolMask); err != nil {
		t.Fatal(err)
	}
	got, _ := s.store.Text(1, txt.ID)
	if got.X != 50 || got.Y != 130 {
		t.Errorf("text at %d,%d, want 50,130", got.X, got.Y)
	}
	if s.store.Len(1) != before+1 || s.Gesture() != GestureIdle {
		t.Error("interrupted drag should be committed where it stands")
	}
}

func TestSessionTextEditing(t *testing.T) {
	s := newSession(t)
	s.SelectTool(ToolText)
	first, err := s.PlaceOrEditText(20, 50)
	if err != nil {
		t.Fatal(err)
	}
	if s.Editing() != first.ID {
		t.Fatal("new text should be editing")
	}
	s.SetText("   ")
	// Placing another text finalizes the blank one, which is discarded.
	second, _ := s.PlaceOrEditText(20, 150)
	if _, ok := s.store.Text(1, first.ID); ok {
		t.Error("blank text should be removed")
	}
	if s.CanUndo() {
		t.Error("discarding a blank new text should not commit")
	}
	s.SetText("Total: 42")
	if err := s.CommitText(); err != nil {
		t.Fatal(err)
	}
	if s.Editing() != 0 || !s.CanUndo() {
		t.Error("CommitText should end editing and commit")
	}
	if err := s.CommitText(); err != ErrNotEditing {
		t.Errorf("second CommitText err = %v", err)
	}

	// Click on the existing text edits it instead of creating a new one.
	again, _ := s.PlaceOrEditText(25, 145)
	if again.ID != second.ID {
		t.Errorf("clicked %d, want existing %d", again.ID, second.ID)
	}
	s.SetText("changed")
	s.CancelEdit()
	if got, _ := s.store.Text(1, second.ID); got.Text != "Total: 42" {
		t.Errorf("CancelEdit left %q", got.Text)
	}

	s.SelectTool(ToolSelect)
	s.BeginDrag(30, 145)
	s.EndDrag()
	n := s.store.Len(1)
	if ok, _ := s.DeleteSelected(); !ok {
		t.Fatal("DeleteSelected failed")
	}
	if len(s.State().Texts) != 0 || s.store.Len(1) != n+1 {
		t.Error("delete should remove the text and commit")
	}
	s.Undo()
	if len(s.State().Texts) != 1 {
		t.Error("undo should restore the deleted text")
	}
	s.Redo()
	if len(s.State().Texts) != 0 {
		t.Error("redo should delete it again")
	}
}

func TestSessionOverlayShowsDraft(t *testing.T) {
	s := newSession(t)
	s.SelectTool(ToolMask)
	s.BeginMask(100, 100)
	s.UpdateMask(140, 130)
	o := s.Overlay()
	if o.Bounds() != image.Rect(0, 0, 300, 200) {
		t.Fatalf("overlay bounds %v", o.Bounds())
	}
	if o.NRGBAAt(120, 110) != raster.White || o.NRGBAAt(10, 10).A != 0 {
		t.Error("overlay should contain only the draft mask")
	}
}

func TestSessionReset(t *testing.T) {
	s := newSession(t)
	s.SelectTool(ToolMask)
	s.BeginMask(0, 0)
	s.EndMask(40, 40)
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if !s.State().Empty() || s.CanUndo() || s.Tool() != ToolSelect {
		t.Error("Reset should clear annotations, history and tool")
	}
}

func TestSessionApply(t *testing.T) {
	s := newSession(t)
	added, err := s.Apply(PageAnnotations{
		Masks: []MaskRegion{{X: 10, Y: 10, Width: 40, Height: 20}, {X: 0, Y: 0, Width: 3, Height: 3}},
		Texts: []TextAnnotation{{X: 20, Y: 100, Text: "note"}, {X: 5, Y: 5, Text: "  "}},
	})
	if err != nil || !added {
		t.Fatalf("Apply = %v, %v", added, err)
	}
	st := s.State()
	if len(st.Masks) != 1 || len(st.Texts) != 1 {
		t.Fatalf("state = %+v", st)
	}
	if txt := st.Texts[0]; txt.FontSize != 14 || txt.Color != DefaultColor || txt.ID == 0 {
		t.Errorf("text defaults = %+v", txt)
	}
	if !s.CanUndo() {
		t.Error("Apply should record one history step")
	}
	s.Undo()
	if !s.State().Empty() || s.CanUndo() {
		t.Errorf("undo left %+v", s.State())
	}

	if added, _ := s.Apply(PageAnnotations{Masks: []MaskRegion{{Width: 2, Height: 2}}}); added {
		t.Error("nothing should be added for a too-small mask")
	}
}
