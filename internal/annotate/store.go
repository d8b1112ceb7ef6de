package annotate

import "sort"

// Store keeps the live annotations and the undo history of each page. Pages
// are independent threads; a thread is opened on first use and its initial
// snapshot is the unedited page. A Store belongs to one editing session and
// is not safe for concurrent use.
type Store struct {
	capacity int
	minMask  int
	pages    map[int]*thread
}

type thread struct {
	live    PageAnnotations
	history *History
}

// NewStore returns a store with the given per-page history capacity.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{capacity: capacity, minMask: MinMaskSize, pages: make(map[int]*thread)}
}

// SetMinMaskSize changes the size a mask must exceed to be accepted.
func (s *Store) SetMinMaskSize(n int) { s.minMask = n }

// Open starts the thread for page if it does not exist yet, recording raster
// (the encoded unedited page, may be nil) as the initial snapshot.
func (s *Store) Open(page int, raster []byte) {
	if _, ok := s.pages[page]; ok {
		return
	}
	s.open(page, raster)
}

func (s *Store) open(page int, raster []byte) *thread {
	t := &thread{history: NewHistory(s.capacity)}
	t.history.Push(Snapshot{Raster: raster})
	s.pages[page] = t
	return t
}

func (s *Store) thread(page int) *thread {
	if t, ok := s.pages[page]; ok {
		return t
	}
	return s.open(page, nil)
}

// AddMask appends m to the page's live state. Masks not larger than the
// minimum size in both dimensions are dropped and AddMask returns false.
func (s *Store) AddMask(page int, m MaskRegion) bool {
	m = RectFromPoints(m.X, m.Y, m.X+m.Width, m.Y+m.Height)
	if !m.Keep(s.minMask) {
		return false
	}
	t := s.thread(page)
	t.live.Masks = append(t.live.Masks, m)
	return true
}

// AddOrEditText inserts a (if its id is unknown or zero) or replaces the
// annotation with the same id. The stored value is returned.
func (s *Store) AddOrEditText(page int, a TextAnnotation) TextAnnotation {
	t := s.thread(page)
	if a.ID == 0 {
		a.ID = NewID()
	}
	if a.FontSize <= 0 {
		a.FontSize = DefaultFontSize
	}
	if a.Color == "" {
		a.Color = DefaultColor
	}
	for i := range t.live.Texts {
		if t.live.Texts[i].ID == a.ID {
			t.live.Texts[i] = a
			return a
		}
	}
	t.live.Texts = append(t.live.Texts, a)
	return a
}

// Text looks up a live text annotation.
func (s *Store) Text(page int, id ID) (TextAnnotation, bool) {
	t, ok := s.pages[page]
	if !ok {
		return TextAnnotation{}, false
	}
	for _, a := range t.live.Texts {
		if a.ID == id {
			return a, true
		}
	}
	return TextAnnotation{}, false
}

// DeleteText removes a text annotation from the live state.
func (s *Store) DeleteText(page int, id ID) bool {
	t, ok := s.pages[page]
	if !ok {
		return false
	}
	for i, a := range t.live.Texts {
		if a.ID == id {
			t.live.Texts = append(t.live.Texts[:i], t.live.Texts[i+1:]...)
			return true
		}
	}
	return false
}

// MoveText puts the baseline origin of a text annotation at (x, y).
func (s *Store) MoveText(page int, id ID, x, y int) bool {
	t, ok := s.pages[page]
	if !ok {
		return false
	}
	for i := range t.live.Texts {
		if t.live.Texts[i].ID == id {
			t.live.Texts[i].X, t.live.Texts[i].Y = x, y
			return true
		}
	}
	return false
}

// Commit pushes the live state and raster as a new snapshot, dropping any
// redo entries.
func (s *Store) Commit(page int, raster []byte) {
	t := s.thread(page)
	t.history.Push(Snapshot{Annotations: t.live, Raster: raster})
}

// Undo restores the previous snapshot. It is a no-op at the oldest entry.
func (s *Store) Undo(page int) bool {
	t, ok := s.pages[page]
	if !ok {
		return false
	}
	snap, ok := t.history.Undo()
	if ok {
		t.live = snap.Annotations
	}
	return ok
}

// Redo restores the next snapshot. It is a no-op at the newest entry.
func (s *Store) Redo(page int) bool {
	t, ok := s.pages[page]
	if !ok {
		return false
	}
	snap, ok := t.history.Redo()
	if ok {
		t.live = snap.Annotations
	}
	return ok
}

// State returns a deep copy of the page's live annotations.
func (s *Store) State(page int) PageAnnotations {
	t, ok := s.pages[page]
	if !ok {
		return PageAnnotations{}
	}
	return t.live.Clone()
}

// Raster returns the encoded raster of the snapshot under the cursor.
func (s *Store) Raster(page int) []byte {
	t, ok := s.pages[page]
	if !ok {
		return nil
	}
	snap, _ := t.history.Current()
	return snap.Raster
}

func (s *Store) CanUndo(page int) bool {
	t, ok := s.pages[page]
	return ok && t.history.CanUndo()
}

func (s *Store) CanRedo(page int) bool {
	t, ok := s.pages[page]
	return ok && t.history.CanRedo()
}

// Len is the number of snapshots held for page.
func (s *Store) Len(page int) int {
	if t, ok := s.pages[page]; ok {
		return t.history.Len()
	}
	return 0
}

// Index is the history cursor for page, or -1 if the page was never opened.
func (s *Store) Index(page int) int {
	if t, ok := s.pages[page]; ok {
		return t.history.Index()
	}
	return -1
}

// Pages lists the opened pages in ascending order.
func (s *Store) Pages() []int {
	pages := make([]int, 0, len(s.pages))
	for p := range s.pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// ResetPage discards the page's annotations and history and reopens it.
func (s *Store) ResetPage(page int, raster []byte) {
	s.open(page, raster)
}

// Reset drops every page thread.
func (s *Store) Reset() {
	s.pages = make(map[int]*thread)
}
