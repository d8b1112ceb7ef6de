package annotate

// Measurer reports the rendered width of text at a font size.
type Measurer interface {
	MeasureText(text string, size float64) int
}

// Hit box tuning for picking text with a pointer.
const (
	hitMinWidth  = 100
	hitBelowLine = 4
	heuristicEm  = 0.6
)

// HeuristicWidth estimates a text width without a font: 0.6 em per rune.
func HeuristicWidth(text string, size float64) int {
	return int(float64(len([]rune(text))) * size * heuristicEm)
}

// HitText returns the first text whose hit box contains (x, y). The box spans
// from the baseline origin to the measured width (at least 100 px) and from
// one font size above the baseline to 4 px below it. A nil measurer falls
// back to HeuristicWidth.
func HitText(texts []TextAnnotation, x, y int, m Measurer) (TextAnnotation, bool) {
	for _, t := range texts {
		var w int
		if m != nil {
			w = m.MeasureText(t.Text, t.FontSize)
		} else {
			w = HeuristicWidth(t.Text, t.FontSize)
		}
		if w < hitMinWidth {
			w = hitMinWidth
		}
		top := t.Y - int(t.FontSize)
		if x >= t.X && x <= t.X+w && y >= top && y <= t.Y+hitBelowLine {
			return t, true
		}
	}
	return TextAnnotation{}, false
}
