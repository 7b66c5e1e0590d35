// Package preview keeps the engine's live preview surface aligned with a
// rectangle inside a host window.
package preview

import "math"

// Bounds is a rectangle in window coordinates as reported by the host,
// possibly fractional.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Geometry is the integer placement of the preview surface.
type Geometry struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Compute fits a preview of the given aspect ratio to the width of b. The
// resulting height may differ from b.Height; the host resizes its container
// to match.
func Compute(b Bounds, aspect float64) Geometry {
	width := int(math.Floor(b.Width))
	height := 0
	if aspect > 0 {
		height = int(math.Round(float64(width) / aspect))
	}
	return Geometry{
		X:      int(math.Floor(b.X)),
		Y:      int(math.Floor(b.Y)),
		Width:  width,
		Height: height,
	}
}

// Scaled multiplies a value by the display scale factor and truncates it.
func Scaled(v int, sf float64) int {
	return int(float64(v) * sf)
}
