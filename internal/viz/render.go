package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/regime/internal/grid"
)

// Glyphs keep codes distinguishable without colour.
var glyphs = map[grid.Code]string{
	grid.CodeGas:        "░",
	grid.CodeRadiation:  "▓",
	grid.CodeDegeneracy: "█",
	grid.CodeMixed:      "·",
}

func glyph(c grid.Code) string {
	if g, ok := glyphs[c]; ok {
		return g
	}
	return "?"
}

// RenderRaster draws r with the highest density row on top and the axis
// ranges from p along the edges.
func RenderRaster(r grid.Raster, p grid.Params, theme Theme) string {
	if r.Columns == 0 || r.Rows == 0 || len(r.Data) < int(r.Columns)*int(r.Rows) {
		return Subtle.Render("(no raster)")
	}

	styles := make(map[grid.Code]lipgloss.Style, len(grid.Codes))
	for _, c := range grid.Codes {
		styles[c] = lipgloss.NewStyle().Foreground(theme.Color(c))
	}

	top := fmt.Sprintf("%6.1f ", p.LogRhoMax)
	bottom := fmt.Sprintf("%6.1f ", p.LogRhoMin)
	pad := strings.Repeat(" ", len(top))

	var b strings.Builder
	for j := int(r.Rows) - 1; j >= 0; j-- {
		switch j {
		case int(r.Rows) - 1:
			b.WriteString(Subtle.Render(top))
		case 0:
			b.WriteString(Subtle.Render(bottom))
		default:
			b.WriteString(pad)
		}
		for i := 0; i < int(r.Columns); i++ {
			c := r.At(i, j)
			b.WriteString(styles[c].Render(glyph(c)))
		}
		b.WriteString("\n")
	}

	lo := fmt.Sprintf("%.1f", p.LogTMin)
	hi := fmt.Sprintf("%.1f", p.LogTMax)
	gap := max(int(r.Columns)-len(lo)-len(hi), 1)
	b.WriteString(pad + Subtle.Render(lo+strings.Repeat(" ", gap)+hi) + "\n")
	b.WriteString(pad + Subtle.Render("log T →   ↑ log ρ"))
	return b.String()
}

func Legend(theme Theme) string {
	parts := make([]string, 0, len(grid.Codes))
	for _, c := range grid.Codes {
		style := lipgloss.NewStyle().Foreground(theme.Color(c))
		parts = append(parts, style.Render(glyph(c))+" "+MetricLabel.Render(c.String()))
	}
	return strings.Join(parts, "   ")
}

// HistogramBars lists each code's share of the raster as a bar.
func HistogramBars(data []byte, theme Theme, width int) string {
	counts := grid.Histogram(data)
	total := max(len(data), 1)

	var b strings.Builder
	for _, c := range grid.Codes {
		frac := float64(counts[c]) / float64(total)
		style := lipgloss.NewStyle().Foreground(theme.Color(c))
		fmt.Fprintf(&b, "%s %s %s\n",
			MetricLabel.Render(fmt.Sprintf("%-10s", c.String())),
			Bar(frac, width, style),
			MetricValue.Render(fmt.Sprintf("%5.1f%%", 100*frac)))
	}
	return strings.TrimRight(b.String(), "\n")
}
