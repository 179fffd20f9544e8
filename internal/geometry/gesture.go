// ABOUTME: Gesture session tracking for pointer-driven drag and resize
// ABOUTME: Updates compute from the gesture origin so repeated moves never drift
package geometry

// GestureKind distinguishes drag from resize sessions
type GestureKind int

const (
	GestureDrag GestureKind = iota
	GestureResize
)

// Gesture captures the state of one pointer interaction. All Updates are
// computed against the rect captured at Begin, not against the previous
// update, so intermediate rounding never accumulates.
type Gesture struct {
	kind     GestureKind
	start    Rect
	rotation float64
	handle   Handle
	active   bool
}

// BeginDrag starts a translation gesture
func BeginDrag(start Rect, rotationDeg float64) *Gesture {
	return &Gesture{
		kind:     GestureDrag,
		start:    start,
		rotation: rotationDeg,
		active:   true,
	}
}

// BeginResize starts a resize gesture on the given handle
func BeginResize(start Rect, rotationDeg float64, h Handle) *Gesture {
	return &Gesture{
		kind:     GestureResize,
		start:    start,
		rotation: rotationDeg,
		handle:   h,
		active:   true,
	}
}

// Update returns the rect for the total pointer delta since Begin
func (g *Gesture) Update(dx, dy float64) Rect {
	if !g.active {
		return g.start
	}
	switch g.kind {
	case GestureDrag:
		return Drag(g.start, dx, dy)
	case GestureResize:
		return Resize(g.start, g.rotation, g.handle, dx, dy)
	}
	return g.start
}

// End finishes the gesture and returns the final rect
func (g *Gesture) End(dx, dy float64) Rect {
	final := g.Update(dx, dy)
	g.active = false
	return final
}

// Active reports whether the gesture is still in progress
func (g *Gesture) Active() bool {
	return g.active
}

// Start returns the rect captured when the gesture began
func (g *Gesture) Start() Rect {
	return g.start
}
