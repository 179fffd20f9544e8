// ABOUTME: Audio route implementation backed by a handle's processing chain
// ABOUTME: Routes stay attached for the life of the handle; detach is terminal
package media

import "sync"

// clipRoute implements Route over a processChain
type clipRoute struct {
	mu       sync.Mutex
	chain    *processChain
	detached bool
}

func newClipRoute(chain *processChain) *clipRoute {
	return &clipRoute{chain: chain}
}

func (r *clipRoute) SetGain(gain float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return ErrRouteDetached
	}
	r.chain.setGain(gain)
	return nil
}

func (r *clipRoute) SetFilters(highPassHz, lowPassHz float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return ErrRouteDetached
	}
	return r.chain.configureFilters(highPassHz, lowPassHz)
}

// Detach releases the route. The chain reverts to pass-through so any
// remaining playback is unprocessed rather than silenced. Detaching twice
// is a no-op.
func (r *clipRoute) Detach() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return nil
	}
	r.detached = true
	r.chain.reset()
	return nil
}
