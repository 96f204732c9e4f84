// Package apikey holds the shared API key and signals when it becomes available.
// Every check fails closed until Set has been called.
package apikey

import (
	"crypto/subtle"
	"sync"
)

type Provider struct {
	mu    sync.RWMutex
	key   string
	ready chan struct{}
	once  sync.Once
}

func NewProvider() *Provider {
	return &Provider{ready: make(chan struct{})}
}

// Set stores the key and releases everyone waiting on Ready. An empty key is
// ignored so the provider never becomes ready with nothing to compare to.
func (p *Provider) Set(key string) {
	if key == "" {
		return
	}
	p.mu.Lock()
	p.key = key
	p.mu.Unlock()
	p.once.Do(func() { close(p.ready) })
}

// Ready is closed once a key is available.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Get returns the key and whether it is loaded.
func (p *Provider) Get() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key, p.key != ""
}

// Valid compares candidate with the loaded key in constant time.
func (p *Provider) Valid(candidate string) bool {
	key, ok := p.Get()
	if !ok || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1
}
