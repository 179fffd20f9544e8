// ABOUTME: Rotation-aware rectangle math for interactive drag and resize
// ABOUTME: Pure functions; all coordinates are canvas pixels, Y grows downward
package geometry

import "math"

// MinSize is the smallest width or height a resize can produce, in
// canvas units (one pixel of the default 1920x1080 canvas, not one
// percent). Clamping absorbs the pointer delta; the anchored edge
// never moves.
const MinSize = 1.0

// Point is a 2D canvas coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle before rotation is applied. X,Y is
// the top-left corner; rotation happens about the center.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the rect's center point
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Handle names one of the eight resize grips
type Handle int

const (
	HandleN Handle = iota
	HandleS
	HandleE
	HandleW
	HandleNE
	HandleNW
	HandleSE
	HandleSW
)

// axes returns the local-axis signs the handle moves: sx for the W axis,
// sy for the H axis. Zero means the handle does not touch that axis.
func (h Handle) axes() (sx, sy float64) {
	switch h {
	case HandleE:
		return 1, 0
	case HandleW:
		return -1, 0
	case HandleS:
		return 0, 1
	case HandleN:
		return 0, -1
	case HandleSE:
		return 1, 1
	case HandleNE:
		return 1, -1
	case HandleSW:
		return -1, 1
	case HandleNW:
		return -1, -1
	}
	return 0, 0
}

func (h Handle) String() string {
	switch h {
	case HandleN:
		return "n"
	case HandleS:
		return "s"
	case HandleE:
		return "e"
	case HandleW:
		return "w"
	case HandleNE:
		return "ne"
	case HandleNW:
		return "nw"
	case HandleSE:
		return "se"
	case HandleSW:
		return "sw"
	}
	return "?"
}

// RotatePoint rotates (x, y) about the origin by rad radians
func RotatePoint(x, y, rad float64) (float64, float64) {
	cos := math.Cos(rad)
	sin := math.Sin(rad)
	return x*cos - y*sin, x*sin + y*cos
}

// Drag translates the rect by a screen-space delta. Translation is
// independent of rotation: moving the pointer right always moves the
// element right on screen.
func Drag(start Rect, dx, dy float64) Rect {
	return Rect{X: start.X + dx, Y: start.Y + dy, W: start.W, H: start.H}
}

// Resize applies a screen-space pointer delta to the named handle of a
// possibly rotated rect.
//
// The screen delta is projected into the element's local frame, the local
// delta grows or shrinks the edges the handle owns (clamped at MinSize),
// and the rect is repositioned so the point opposite the handle stays
// fixed on screen.
func Resize(start Rect, rotationDeg float64, h Handle, dx, dy float64) Rect {
	rad := rotationDeg * math.Pi / 180
	cos := math.Cos(rad)
	sin := math.Sin(rad)

	// Project the screen delta into the local frame (inverse rotation)
	localDX := dx*cos + dy*sin
	localDY := dy*cos - dx*sin

	sx, sy := h.axes()

	// The anchor is the point opposite the handle, in coordinates
	// relative to the rect center.
	anchorLX := -sx * start.W / 2
	anchorLY := -sy * start.H / 2
	arx, ary := RotatePoint(anchorLX, anchorLY, rad)
	c := start.Center()
	anchorScreenX := c.X + arx
	anchorScreenY := c.Y + ary

	newW := start.W + sx*localDX
	newH := start.H + sy*localDY
	if sx != 0 && newW < MinSize {
		newW = MinSize
	}
	if sy != 0 && newH < MinSize {
		newH = MinSize
	}
	if sx == 0 {
		newW = start.W
	}
	if sy == 0 {
		newH = start.H
	}

	// Same named anchor point in the resized rect; solve for the center
	// that keeps it at the original screen position.
	newALX := -sx * newW / 2
	newALY := -sy * newH / 2
	narx, nary := RotatePoint(newALX, newALY, rad)
	newCX := anchorScreenX - narx
	newCY := anchorScreenY - nary

	return Rect{
		X: newCX - newW/2,
		Y: newCY - newH/2,
		W: newW,
		H: newH,
	}
}
