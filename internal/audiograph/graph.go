// ABOUTME: Audio graph holding one route per active audio element
// ABOUTME: Routes attach once, take parameter pushes, and detach best-effort
package audiograph

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Previz-Studio/previz-go/internal/media"
)

// routeState remembers what the route was last told so unchanged ticks
// push nothing
type routeState struct {
	route       media.Route
	applied     Params
	hasApplied  bool
	passThrough bool   // filters refused, running gain-only
	rejected    Params // the refused pair, retried only when it changes
}

// Graph owns the per-element audio routes. Attach is idempotent: a route
// lives for as long as its element stays active, because tearing one down
// and rebuilding it mid-playback is audible.
type Graph struct {
	mu     sync.Mutex
	routes map[string]*routeState
}

func New() *Graph {
	return &Graph{routes: make(map[string]*routeState)}
}

// Attach binds an element to its handle's audio route. Attaching an
// already-attached element returns the existing route untouched.
func (g *Graph) Attach(elementID string, h media.Handle) (media.Route, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st, ok := g.routes[elementID]; ok {
		return st.route, nil
	}

	route, err := h.AudioRoute()
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", elementID, err)
	}
	g.routes[elementID] = &routeState{route: route}
	return route, nil
}

// Attached reports whether the element currently holds a route
func (g *Graph) Attached(elementID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.routes[elementID]
	return ok
}

// Size reports how many routes are attached
func (g *Graph) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.routes)
}

// Apply pushes params onto the element's route, skipping whatever already
// matches. A filter rejection downgrades the route to pass-through, gain
// still applied, rather than interrupting playback; the refused pair is
// retried only once it changes. A detached route is dropped from the
// graph so the element can re-attach with a fresh handle.
func (g *Graph) Apply(elementID string, p Params) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.routes[elementID]
	if !ok {
		return fmt.Errorf("apply %s: no route attached", elementID)
	}

	if !st.hasApplied || p.Gain != st.applied.Gain {
		if err := st.route.SetGain(p.Gain); err != nil {
			if errors.Is(err, media.ErrRouteDetached) {
				delete(g.routes, elementID)
			}
			return fmt.Errorf("apply gain %s: %w", elementID, err)
		}
		st.applied.Gain = p.Gain
	}

	wantFilters := !st.hasApplied ||
		p.HighPassHz != st.applied.HighPassHz ||
		p.LowPassHz != st.applied.LowPassHz
	if st.passThrough && p.HighPassHz == st.rejected.HighPassHz && p.LowPassHz == st.rejected.LowPassHz {
		wantFilters = false
	}

	if wantFilters {
		if err := st.route.SetFilters(p.HighPassHz, p.LowPassHz); err != nil {
			if errors.Is(err, media.ErrRouteDetached) {
				delete(g.routes, elementID)
				return fmt.Errorf("apply filters %s: %w", elementID, err)
			}
			log.Printf("Warning: filters refused for %s (high-pass %.1f, low-pass %.1f), running pass-through: %v",
				elementID, p.HighPassHz, p.LowPassHz, err)
			st.passThrough = true
			st.rejected = p
		} else {
			st.passThrough = false
			st.applied.HighPassHz = p.HighPassHz
			st.applied.LowPassHz = p.LowPassHz
		}
	}

	st.hasApplied = true
	return nil
}

// Detach releases the element's route. Detach errors are logged and
// swallowed; the graph entry is removed regardless.
func (g *Graph) Detach(elementID string) {
	g.mu.Lock()
	st, ok := g.routes[elementID]
	if ok {
		delete(g.routes, elementID)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	if err := st.route.Detach(); err != nil {
		log.Printf("Warning: detaching route for %s: %v", elementID, err)
	}
}

// DetachAll releases every route, used at teardown and on project load
func (g *Graph) DetachAll() {
	g.mu.Lock()
	routes := g.routes
	g.routes = make(map[string]*routeState)
	g.mu.Unlock()

	for id, st := range routes {
		if err := st.route.Detach(); err != nil {
			log.Printf("Warning: detaching route for %s: %v", id, err)
		}
	}
}
