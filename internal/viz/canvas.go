package viz

import (
	"strings"

	"github.com/san-kum/regime/internal/grid"
)

const brailleBlank = 0x2800

// dot bits of a braille cell, indexed [y][x]; each rune holds 2x4 dots
var dotBits = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// Canvas is a grid of braille runes addressed in dot coordinates, which
// gives twice the horizontal and four times the vertical resolution of
// plain glyphs.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y). Out of range dots are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= dotBits[y%4][x%2]
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// OutlineRaster maps one cell to one dot and lights every cell whose code
// differs from its right or denser neighbour, leaving the regime
// boundaries. Highest density is on top, as in RenderRaster.
func OutlineRaster(r grid.Raster) *Canvas {
	cols, rows := int(r.Columns), int(r.Rows)
	if cols == 0 || rows == 0 || len(r.Data) < cols*rows {
		return NewCanvas(0, 0)
	}
	c := NewCanvas((cols+1)/2, (rows+3)/4)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			code := r.At(i, j)
			edge := (i+1 < cols && r.At(i+1, j) != code) || (j+1 < rows && r.At(i, j+1) != code)
			if edge {
				c.Set(i, rows-1-j)
			}
		}
	}
	return c
}
