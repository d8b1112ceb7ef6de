package annotate

// History is a bounded list of snapshots with a cursor. Pushing truncates any
// redo entries; when full, the oldest entry is evicted.
type History struct {
	entries  []Snapshot
	index    int
	capacity int
}

// NewHistory returns an empty history holding at most capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{index: -1, capacity: capacity}
}

// Push records s as the newest entry and moves the cursor to it.
func (h *History) Push(s Snapshot) {
	s.Annotations = s.Annotations.Clone()
	h.entries = append(h.entries[:h.index+1], s)
	if over := len(h.entries) - h.capacity; over > 0 {
		copy(h.entries, h.entries[over:])
		for i := len(h.entries) - over; i < len(h.entries); i++ {
			h.entries[i] = Snapshot{}
		}
		h.entries = h.entries[:h.capacity]
	}
	h.index = len(h.entries) - 1
}

// Undo moves the cursor back one entry and returns it.
func (h *History) Undo() (Snapshot, bool) {
	if !h.CanUndo() {
		return Snapshot{}, false
	}
	h.index--
	return h.current(), true
}

// Redo moves the cursor forward one entry and returns it.
func (h *History) Redo() (Snapshot, bool) {
	if !h.CanRedo() {
		return Snapshot{}, false
	}
	h.index++
	return h.current(), true
}

// Current returns the entry under the cursor.
func (h *History) Current() (Snapshot, bool) {
	if h.index < 0 {
		return Snapshot{}, false
	}
	return h.current(), true
}

func (h *History) current() Snapshot {
	s := h.entries[h.index]
	s.Annotations = s.Annotations.Clone()
	return s
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.entries)-1 }
func (h *History) Len() int      { return len(h.entries) }
func (h *History) Index() int    { return h.index }
