package ibc

import (
	"sync"

	"chainmesh/core/status"
)

type routerKey struct {
	port    string
	channel string
}

// Router tracks which (port, channel) pairs are bound on a chain. It is a
// flat list rather than a map: the binding set is tiny and membership is
// checked far less often than it is mutated during setup.
type Router struct {
	mu       sync.Mutex
	bindings []routerKey
}

func NewRouter() *Router {
	return &Router{}
}

// Bind registers (port, chanID) as routable. Binding an already-bound pair
// fails with InvalidState.
func (r *Router) Bind(port, chanID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.bindings {
		if k.port == port && k.channel == chanID {
			return status.New(status.InvalidState, "port/channel already bound")
		}
	}
	r.bindings = append(r.bindings, routerKey{port: port, channel: chanID})
	return nil
}

// Unbind removes a binding. Unbinding a pair that was never bound fails
// with NotFound.
func (r *Router) Unbind(port, chanID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.bindings {
		if k.port == port && k.channel == chanID {
			r.bindings = append(r.bindings[:i:i], r.bindings[i+1:]...)
			return nil
		}
	}
	return status.New(status.NotFound, "port/channel not bound")
}

// IsBound reports whether (port, chanID) is currently bound.
func (r *Router) IsBound(port, chanID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.bindings {
		if k.port == port && k.channel == chanID {
			return true
		}
	}
	return false
}
