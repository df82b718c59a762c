// Package export writes classified rasters in formats other tools can open.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/viz"
)

const margin = 40.0

// RasterToSVG draws one rect per cell, highest density at the top, with
// the axis ranges from p written along the edges. scale is the cell size
// in pixels.
func RasterToSVG(r grid.Raster, p grid.Params, theme viz.Theme, scale float64) string {
	if r.Columns == 0 || r.Rows == 0 || len(r.Data) < int(r.Columns)*int(r.Rows) {
		return ""
	}
	if scale <= 0 {
		scale = 1
	}

	plotW := float64(r.Columns) * scale
	plotH := float64(r.Rows) * scale
	width := plotW + 2*margin
	height := plotH + 2*margin

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g shape-rendering="crispEdges">
`, width, height, width, height))

	for j := 0; j < int(r.Rows); j++ {
		y := margin + float64(int(r.Rows)-1-j)*scale
		// merge horizontal runs of one code into a single rect
		for i := 0; i < int(r.Columns); {
			c := r.At(i, j)
			run := 1
			for i+run < int(r.Columns) && r.At(i+run, j) == c {
				run++
			}
			x := margin + float64(i)*scale
			sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>
`, x, y, float64(run)*scale, scale, fill(theme, c)))
			i += run
		}
	}
	sb.WriteString("</g>\n")

	sb.WriteString(fmt.Sprintf(`<g fill="%s" font-family="monospace" font-size="11">
<text x="%.1f" y="%.1f" text-anchor="start">%.1f</text>
<text x="%.1f" y="%.1f" text-anchor="end">%.1f</text>
<text x="%.1f" y="%.1f" text-anchor="end">%.1f</text>
<text x="%.1f" y="%.1f" text-anchor="end">%.1f</text>
<text x="%.1f" y="%.1f" text-anchor="middle">log T</text>
<text x="%.1f" y="%.1f" text-anchor="middle" transform="rotate(-90 %.1f %.1f)">log rho</text>
</g>
`,
		string(theme.Muted),
		margin, margin+plotH+14, p.LogTMin,
		margin+plotW, margin+plotH+14, p.LogTMax,
		margin-4, margin+plotH, p.LogRhoMin,
		margin-4, margin+10, p.LogRhoMax,
		margin+plotW/2, height-8,
		14.0, margin+plotH/2, 14.0, margin+plotH/2,
	))

	sb.WriteString("</svg>")
	return sb.String()
}

// WriteSVG writes RasterToSVG to w.
func WriteSVG(w io.Writer, r grid.Raster, p grid.Params, theme viz.Theme, scale float64) error {
	svg := RasterToSVG(r, p, theme, scale)
	if svg == "" {
		return fmt.Errorf("export: empty raster")
	}
	_, err := io.WriteString(w, svg)
	return err
}

func fill(theme viz.Theme, c grid.Code) string {
	color := string(theme.Color(c))
	if color == "" {
		return "#ff00ff"
	}
	return color
}
