package compose

import "fmt"

// State is the orchestrator's position in a composition run.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateAnalyzing
	StateSlicing
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAnalyzing:
		return "analyzing"
	case StateSlicing:
		return "slicing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// allowed lists the legal successors of each state. Slicing may follow
// itself (next page). Failed is reachable from every non-idle, non-terminal
// state.
var allowed = map[State][]State{
	StateIdle:       {StateLoading},
	StateLoading:    {StateAnalyzing, StateFailed},
	StateAnalyzing:  {StateSlicing, StateFailed},
	StateSlicing:    {StateSlicing, StateFinalizing, StateFailed},
	StateFinalizing: {StateDone, StateFailed},
	StateDone:       {StateIdle},
	StateFailed:     {StateIdle},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, n := range allowed[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Progress is published after every transition and every page.
type Progress struct {
	State       State  `json:"state"`
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
	Status      string `json:"status"`
}

// ProgressFunc receives progress updates synchronously from the run.
type ProgressFunc func(Progress)

// Status labels shown while a run progresses.
const (
	LabelLoading    = "Loading image..."
	LabelAnalyzing  = "Analyzing image..."
	LabelSingle     = "Creating single-page PDF..."
	LabelFinalizing = "Generating PDF..."
	LabelDone       = "Complete!"
)

// LabelPage is the status while page n is sliced.
func LabelPage(n int) string { return fmt.Sprintf("Processing page %d...", n) }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
