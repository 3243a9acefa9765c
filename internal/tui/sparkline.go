package tui

import "strings"

// sparklineWidth is how many samples the request-rate sparkline shows.
const sparklineWidth = 30

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// renderSparkline maps the series onto block runes, scaled to the series
// maximum. An all-zero series renders as a flat baseline.
func renderSparkline(series []float64, width int) string {
	if len(series) == 0 {
		return strings.Repeat(" ", width)
	}
	if len(series) > width {
		series = series[len(series)-width:]
	}

	max := 0.0
	for _, v := range series {
		if v > max {
			max = v
		}
	}

	var b strings.Builder
	for i := 0; i < width-len(series); i++ {
		b.WriteByte(' ')
	}
	for _, v := range series {
		if max == 0 {
			b.WriteRune(sparkRunes[0])
			continue
		}
		idx := int(v / max * float64(len(sparkRunes)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkRunes) {
			idx = len(sparkRunes) - 1
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}
