// ABOUTME: Tests for the audio graph route lifecycle
// ABOUTME: Covers idempotent attach, change-only pushes, and fallbacks
package audiograph

import (
	"errors"
	"testing"

	"github.com/Previz-Studio/previz-go/internal/media"
)

var (
	errInvalidFilter = errors.New("invalid filter band")
	errDetachBoom    = errors.New("device detach failed")
)

// fakeRoute records every push so tests can assert what the graph sent
type fakeRoute struct {
	gains     []float64
	filters   [][2]float64
	gainErr   error
	filterErr error
	detachErr error
	detached  int
}

func (r *fakeRoute) SetGain(gain float64) error {
	if r.gainErr != nil {
		return r.gainErr
	}
	r.gains = append(r.gains, gain)
	return nil
}

func (r *fakeRoute) SetFilters(highPassHz, lowPassHz float64) error {
	if r.filterErr != nil {
		return r.filterErr
	}
	r.filters = append(r.filters, [2]float64{highPassHz, lowPassHz})
	return nil
}

func (r *fakeRoute) Detach() error {
	r.detached++
	return r.detachErr
}

// fakeHandle hands out a route and counts how often it was asked
type fakeHandle struct {
	route      *fakeRoute
	routeErr   error
	routeCalls int
}

func (h *fakeHandle) Play() error               { return nil }
func (h *fakeHandle) Pause() error              { return nil }
func (h *fakeHandle) SeekTo(sec float64) error  { return nil }
func (h *fakeHandle) SetRate(r float64) error   { return nil }
func (h *fakeHandle) SetVolume(v float64) error { return nil }
func (h *fakeHandle) CurrentTime() float64      { return 0 }
func (h *fakeHandle) Playing() bool             { return false }
func (h *fakeHandle) Duration() float64         { return 0 }
func (h *fakeHandle) Ready() bool               { return true }
func (h *fakeHandle) Close() error              { return nil }

func (h *fakeHandle) AudioRoute() (media.Route, error) {
	h.routeCalls++
	if h.routeErr != nil {
		return nil, h.routeErr
	}
	return h.route, nil
}

func TestAttachOnce(t *testing.T) {
	g := New()
	h := &fakeHandle{route: &fakeRoute{}}

	first, err := g.Attach("el-1", h)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	second, err := g.Attach("el-1", h)
	if err != nil {
		t.Fatalf("re-attach failed: %v", err)
	}

	if first != second {
		t.Error("re-attach returned a different route")
	}
	if h.routeCalls != 1 {
		t.Errorf("expected 1 AudioRoute call, got %d", h.routeCalls)
	}
	if g.Size() != 1 {
		t.Errorf("expected 1 attached route, got %d", g.Size())
	}
}

func TestAttachPropagatesHandleError(t *testing.T) {
	g := New()
	h := &fakeHandle{routeErr: media.ErrHandleClosed}

	if _, err := g.Attach("el-1", h); err == nil {
		t.Fatal("expected attach error for closed handle")
	}
	if g.Attached("el-1") {
		t.Error("failed attach left state behind")
	}
}

func TestApplyPushesParams(t *testing.T) {
	g := New()
	route := &fakeRoute{}
	g.Attach("el-1", &fakeHandle{route: route})

	if err := g.Apply("el-1", Params{Gain: 0.5, HighPassHz: 200, LowPassHz: 8000}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(route.gains) != 1 || route.gains[0] != 0.5 {
		t.Errorf("expected one gain push of 0.5, got %v", route.gains)
	}
	if len(route.filters) != 1 || route.filters[0] != [2]float64{200, 8000} {
		t.Errorf("expected one filter push of 200/8000, got %v", route.filters)
	}
}

func TestApplySkipsUnchanged(t *testing.T) {
	g := New()
	route := &fakeRoute{}
	g.Attach("el-1", &fakeHandle{route: route})

	p := Params{Gain: 0.5, HighPassHz: 200, LowPassHz: 8000}
	g.Apply("el-1", p)
	g.Apply("el-1", p)
	g.Apply("el-1", p)

	if len(route.gains) != 1 {
		t.Errorf("expected 1 gain push for unchanged params, got %d", len(route.gains))
	}
	if len(route.filters) != 1 {
		t.Errorf("expected 1 filter push for unchanged params, got %d", len(route.filters))
	}
}

func TestApplyPushesOnlyWhatChanged(t *testing.T) {
	g := New()
	route := &fakeRoute{}
	g.Attach("el-1", &fakeHandle{route: route})

	g.Apply("el-1", Params{Gain: 1.0, HighPassHz: 0, LowPassHz: 20000})
	g.Apply("el-1", Params{Gain: 0.2, HighPassHz: 0, LowPassHz: 20000})

	if len(route.gains) != 2 {
		t.Errorf("expected 2 gain pushes, got %d", len(route.gains))
	}
	if len(route.filters) != 1 {
		t.Errorf("gain-only change should not re-push filters, got %d", len(route.filters))
	}
}

func TestApplyFilterFallback(t *testing.T) {
	g := New()
	route := &fakeRoute{filterErr: media.ErrRouteDetached}
	g.Attach("el-1", &fakeHandle{route: route})

	// A detached route is a structural failure, not a fallback case
	if err := g.Apply("el-1", Params{Gain: 1, HighPassHz: 100, LowPassHz: 20000}); err == nil {
		t.Fatal("expected error for detached route")
	}
	if g.Attached("el-1") {
		t.Error("detached route should be dropped from the graph")
	}
}

func TestApplyFilterRejectionKeepsGainFlowing(t *testing.T) {
	g := New()
	route := &fakeRoute{filterErr: errInvalidFilter}
	g.Attach("el-1", &fakeHandle{route: route})

	bad := Params{Gain: 0.7, HighPassHz: 9000, LowPassHz: 100}
	if err := g.Apply("el-1", bad); err != nil {
		t.Fatalf("filter rejection must not fail the apply: %v", err)
	}
	if len(route.gains) != 1 || route.gains[0] != 0.7 {
		t.Errorf("gain should still flow after filter rejection, got %v", route.gains)
	}

	// Same refused pair again: no retry
	g.Apply("el-1", bad)
	if len(route.filters) != 0 {
		t.Errorf("refused pair should not be retried, got %v", route.filters)
	}

	// A different pair is retried and succeeds
	route.filterErr = nil
	good := Params{Gain: 0.7, HighPassHz: 100, LowPassHz: 9000}
	if err := g.Apply("el-1", good); err != nil {
		t.Fatalf("apply after recovery failed: %v", err)
	}
	if len(route.filters) != 1 || route.filters[0] != [2]float64{100, 9000} {
		t.Errorf("expected recovered filter push, got %v", route.filters)
	}
}

func TestApplyUnattached(t *testing.T) {
	g := New()
	if err := g.Apply("ghost", DefaultParams()); err == nil {
		t.Error("expected error applying to an unattached element")
	}
}

func TestApplyDetachedGainDropsRoute(t *testing.T) {
	g := New()
	route := &fakeRoute{gainErr: media.ErrRouteDetached}
	g.Attach("el-1", &fakeHandle{route: route})

	if err := g.Apply("el-1", Params{Gain: 0.5, LowPassHz: 20000}); err == nil {
		t.Fatal("expected error for detached route")
	}
	if g.Attached("el-1") {
		t.Error("detached route should be dropped from the graph")
	}
}

func TestDetachBestEffort(t *testing.T) {
	g := New()
	route := &fakeRoute{detachErr: errDetachBoom}
	g.Attach("el-1", &fakeHandle{route: route})

	g.Detach("el-1")
	if g.Attached("el-1") {
		t.Error("entry should be removed even when detach errors")
	}
	if route.detached != 1 {
		t.Errorf("expected 1 detach call, got %d", route.detached)
	}

	// Detaching an unknown element is a no-op
	g.Detach("ghost")
}

func TestDetachAll(t *testing.T) {
	g := New()
	a := &fakeRoute{}
	b := &fakeRoute{detachErr: errDetachBoom}
	g.Attach("el-a", &fakeHandle{route: a})
	g.Attach("el-b", &fakeHandle{route: b})

	g.DetachAll()
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got %d routes", g.Size())
	}
	if a.detached != 1 || b.detached != 1 {
		t.Errorf("expected both routes detached, got %d/%d", a.detached, b.detached)
	}
}
