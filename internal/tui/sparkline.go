package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var sparkLevels = []string{" ", " ", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// sparkline is a one-line scrolling graph scaled to the visible window's
// maximum.
type sparkline struct {
	data  []float64
	width int
	label string
	style lipgloss.Style
}

func newSparkline(width int, label string, style lipgloss.Style) sparkline {
	return sparkline{
		width: width,
		label: label,
		style: style,
		data:  make([]float64, 0, width),
	}
}

func (s *sparkline) push(v float64) {
	s.data = append(s.data, v)
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
}

func (s sparkline) view() string {
	if s.width <= 0 {
		return ""
	}
	max := 0.0
	for _, v := range s.data {
		if v > max {
			max = v
		}
	}

	var out strings.Builder
	out.WriteString(s.style.Render(s.label))
	out.WriteString("\n")

	var graph strings.Builder
	for _, v := range s.data {
		idx := 0
		if max > 0 {
			idx = int(v / max * float64(len(sparkLevels)-1))
		}
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkLevels) {
			idx = len(sparkLevels) - 1
		}
		graph.WriteString(sparkLevels[idx])
	}
	for i := len(s.data); i < s.width; i++ {
		graph.WriteString(" ")
	}
	out.WriteString(graph.String())
	return out.String()
}
