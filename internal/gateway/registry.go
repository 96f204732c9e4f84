package gateway

import "sync"

// Subscriber is an authenticated receiver of broadcast frames.
type Subscriber interface {
	ID() string
	// Send queues a frame without blocking; false means it was dropped.
	Send(frame []byte) bool
	// Close ends the subscription from the server side.
	Close()
}

// Subscribers is the broadcast set shared by all connection handlers.
type Subscribers interface {
	Add(s Subscriber)
	Remove(s Subscriber)
	Snapshot() []Subscriber
	Len() int
}

// Registry is a mutex-guarded subscriber set that keeps insertion order.
type Registry struct {
	mu    sync.RWMutex
	order []Subscriber
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

var _ Subscribers = (*Registry)(nil)

// Add is a no-op for an already registered subscriber.
func (r *Registry) Add(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[s.ID()]; ok {
		return
	}
	r.index[s.ID()] = len(r.order)
	r.order = append(r.order, s)
}

func (r *Registry) Remove(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[s.ID()]
	if !ok {
		return
	}
	r.order = append(r.order[:i], r.order[i+1:]...)
	delete(r.index, s.ID())
	for j := i; j < len(r.order); j++ {
		r.index[r.order[j].ID()] = j
	}
}

// Snapshot returns the subscribers in registration order.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Subscriber(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
