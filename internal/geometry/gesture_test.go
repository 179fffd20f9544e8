// ABOUTME: Tests for gesture session tracking
// ABOUTME: Verifies origin-relative updates and session lifecycle
package geometry

import "testing"

func TestGestureUpdatesFromOrigin(t *testing.T) {
	g := BeginDrag(Rect{X: 0, Y: 0, W: 10, H: 10}, 0)

	r := g.Update(5, 0)
	if r.X != 5 {
		t.Errorf("expected x 5, got %f", r.X)
	}

	// Second update is total delta, not incremental
	r = g.Update(7, 3)
	if r.X != 7 || r.Y != 3 {
		t.Errorf("expected (7,3), got (%f,%f)", r.X, r.Y)
	}
}

func TestGestureEnd(t *testing.T) {
	g := BeginResize(Rect{X: 0, Y: 0, W: 10, H: 10}, 0, HandleE)

	final := g.End(4, 0)
	if final.W != 14 {
		t.Errorf("expected width 14, got %f", final.W)
	}
	if g.Active() {
		t.Error("expected gesture inactive after End")
	}

	// Updates after End return the start rect untouched
	r := g.Update(100, 100)
	if r != g.Start() {
		t.Errorf("expected start rect after End, got %+v", r)
	}
}
