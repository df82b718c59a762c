// Package viz renders classified rasters in the terminal.
//
// [RenderRaster] draws one raster as coloured glyphs, highest density at the
// top. [Explorer] is a Bubble Tea program that dispatches a new grid on every
// parameter change and shows the newest accepted result.
//
// # Key Bindings
//
//	j/k   - Select parameter
//	h/l   - Decrease/increase parameter
//	p     - Cycle presets
//	t     - Cycle colour themes
//	r     - Re-dispatch current parameters
//	q     - Quit
package viz
