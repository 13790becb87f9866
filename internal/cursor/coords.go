package cursor

// DefaultOffset accounts for the editor chrome above the scrollable canvas.
const DefaultOffset = 40.0

// Viewport is the bounding rectangle and scroll state of a scrollable
// content area, in screen pixels.
type Viewport struct {
	Left, Top, Width, Height  float64
	ScrollLeft, ScrollTop     float64
	ScrollWidth, ScrollHeight float64
}

func (v Viewport) Right() float64  { return v.Left + v.Width }
func (v Viewport) Bottom() float64 { return v.Top + v.Height }

func (v Viewport) Center() Point {
	return Point{X: v.Left + v.Width/2, Y: v.Top + v.Height/2}
}

// Position is a pointer location relative to the scrollable content, each
// axis in [0, 1].
type Position struct {
	RX, RY float64
}

// Point is an absolute screen location.
type Point struct {
	X, Y float64
}

// Normalize converts a raw pointer location into content-relative
// coordinates. It reports false when the pointer is outside the visible area
// (allowing offset pixels above the top edge) or the viewport has no extent.
func Normalize(v Viewport, px, py, offset float64) (Position, bool) {
	if v.ScrollWidth <= 0 || v.ScrollHeight <= 0 {
		return Position{}, false
	}
	if px < v.Left || px > v.Right() || py < v.Top-offset || py > v.Bottom() {
		return Position{}, false
	}
	return Position{
		RX: clamp((px-v.Left+v.ScrollLeft)/v.ScrollWidth, 0, 1),
		RY: clamp((py-v.Top+v.ScrollTop+offset)/v.ScrollHeight, 0, 1),
	}, true
}

// Project maps a content-relative position onto the local viewport, clamped
// to its bounds. The result is only meaningful when both viewers render the
// content at the same size.
func Project(v Viewport, p Position) Point {
	x := v.Left - v.ScrollLeft + p.RX*v.ScrollWidth
	y := v.Top - v.ScrollTop + p.RY*v.ScrollHeight
	return Point{
		X: clamp(x, v.Left, v.Right()),
		Y: clamp(y, v.Top, v.Bottom()),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
