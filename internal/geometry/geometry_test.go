// ABOUTME: Tests for rotation-aware drag and resize math
// ABOUTME: Covers delta projection, min-size clamping, and anchor invariance
package geometry

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// anchorScreen returns the screen position of the point opposite the
// handle, used to verify the resize invariant.
func anchorScreen(r Rect, rotationDeg float64, h Handle) (float64, float64) {
	sx, sy := h.axes()
	rad := rotationDeg * math.Pi / 180
	ax, ay := RotatePoint(-sx*r.W/2, -sy*r.H/2, rad)
	c := r.Center()
	return c.X + ax, c.Y + ay
}

func TestRotatePoint(t *testing.T) {
	x, y := RotatePoint(1, 0, math.Pi/2)
	if !almostEqual(x, 0) || !almostEqual(y, 1) {
		t.Errorf("expected (0,1), got (%f,%f)", x, y)
	}

	x, y = RotatePoint(3, 4, 0)
	if !almostEqual(x, 3) || !almostEqual(y, 4) {
		t.Errorf("rotation by zero changed the point: (%f,%f)", x, y)
	}
}

func TestDragIgnoresRotation(t *testing.T) {
	start := Rect{X: 50, Y: 60, W: 100, H: 40}

	for _, rotation := range []float64{0, 45, 90, 215} {
		_ = rotation // translation must not consult rotation at all
		r := Drag(start, 10, -5)
		if !almostEqual(r.X, 60) || !almostEqual(r.Y, 55) {
			t.Errorf("rotation %f: expected (60,55), got (%f,%f)", rotation, r.X, r.Y)
		}
		if r.W != start.W || r.H != start.H {
			t.Error("drag must not change size")
		}
	}
}

func TestResizeAxisAligned(t *testing.T) {
	start := Rect{X: 100, Y: 100, W: 80, H: 40}

	tests := []struct {
		name   string
		handle Handle
		dx, dy float64
		want   Rect
	}{
		{"east grows width", HandleE, 20, 0, Rect{100, 100, 100, 40}},
		{"west grows width and moves x", HandleW, -20, 0, Rect{80, 100, 100, 40}},
		{"south grows height", HandleS, 0, 30, Rect{100, 100, 80, 70}},
		{"north grows height and moves y", HandleN, 0, -30, Rect{100, 70, 80, 70}},
		{"southeast corner", HandleSE, 10, 20, Rect{100, 100, 90, 60}},
		{"northwest corner", HandleNW, -10, -10, Rect{90, 90, 90, 50}},
		{"east ignores vertical delta", HandleE, 20, 55, Rect{100, 100, 100, 40}},
	}

	for _, tt := range tests {
		got := Resize(start, 0, tt.handle, tt.dx, tt.dy)
		if !almostEqual(got.X, tt.want.X) || !almostEqual(got.Y, tt.want.Y) ||
			!almostEqual(got.W, tt.want.W) || !almostEqual(got.H, tt.want.H) {
			t.Errorf("%s: expected %+v, got %+v", tt.name, tt.want, got)
		}
	}
}

func TestResizeRotated90(t *testing.T) {
	start := Rect{X: 100, Y: 100, W: 80, H: 40}

	// At 90 degrees a vertical pointer move lands on the local W axis
	got := Resize(start, 90, HandleE, 0, 30)

	if !almostEqual(got.W, 110) {
		t.Errorf("expected width 110, got %f", got.W)
	}
	if !almostEqual(got.H, 40) {
		t.Errorf("expected height unchanged, got %f", got.H)
	}

	// A horizontal move must not affect the E handle at 90 degrees
	got = Resize(start, 90, HandleE, 30, 0)
	if !almostEqual(got.W, 80) {
		t.Errorf("expected width unchanged, got %f", got.W)
	}
}

func TestResizeMinSizeClamp(t *testing.T) {
	start := Rect{X: 100, Y: 100, W: 10, H: 10}

	got := Resize(start, 0, HandleE, -50, 0)
	if !almostEqual(got.W, MinSize) {
		t.Errorf("expected width clamped to %f, got %f", MinSize, got.W)
	}
	// Anchor is the west edge; it must not move even when clamped
	if !almostEqual(got.X, 100) {
		t.Errorf("expected x 100 after clamp, got %f", got.X)
	}

	got = Resize(start, 0, HandleN, 0, 50)
	if !almostEqual(got.H, MinSize) {
		t.Errorf("expected height clamped to %f, got %f", MinSize, got.H)
	}
	// Anchor is the south edge: y + h stays put
	if !almostEqual(got.Y+got.H, 110) {
		t.Errorf("expected bottom edge at 110, got %f", got.Y+got.H)
	}
}

func TestResizeAnchorInvariance(t *testing.T) {
	start := Rect{X: 240, Y: 135, W: 320, H: 180}

	rotations := []float64{0, 30, 45, 90, 137.5, 270}
	handles := []Handle{HandleN, HandleS, HandleE, HandleW, HandleNE, HandleNW, HandleSE, HandleSW}

	for _, rot := range rotations {
		for _, h := range handles {
			beforeX, beforeY := anchorScreen(start, rot, h)
			got := Resize(start, rot, h, 17, -23)
			afterX, afterY := anchorScreen(got, rot, h)

			if !almostEqual(beforeX, afterX) || !almostEqual(beforeY, afterY) {
				t.Errorf("rotation %f handle %s: anchor moved from (%f,%f) to (%f,%f)",
					rot, h, beforeX, beforeY, afterX, afterY)
			}
		}
	}
}

func TestResizeAnchorInvarianceUnderClamp(t *testing.T) {
	start := Rect{X: 10, Y: 10, W: 5, H: 5}

	for _, rot := range []float64{0, 60, 90} {
		beforeX, beforeY := anchorScreen(start, rot, HandleSE)
		got := Resize(start, rot, HandleSE, -100, -100)
		afterX, afterY := anchorScreen(got, rot, HandleSE)

		if !almostEqual(got.W, MinSize) || !almostEqual(got.H, MinSize) {
			t.Errorf("rotation %f: expected clamp to min size, got %fx%f", rot, got.W, got.H)
		}
		if !almostEqual(beforeX, afterX) || !almostEqual(beforeY, afterY) {
			t.Errorf("rotation %f: anchor moved under clamp", rot)
		}
	}
}
