package proxy

import (
	"sort"
	"sync"
)

// Set indexes proxies by the external authority they serve, which is the
// namespace of their schema
type Set struct {
	mu      sync.RWMutex
	proxies map[string]*Proxy
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{proxies: make(map[string]*Proxy)}
}

// Add stores p, replacing any proxy for the same authority
func (s *Set) Add(p *Proxy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxies[p.Definition().Namespace] = p
}

// Lookup returns the proxy serving authority
func (s *Set) Lookup(authority string) (*Proxy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proxies[authority]
	return p, ok
}

// Authorities lists the served authorities in order
func (s *Set) Authorities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.proxies))
	for name := range s.proxies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of proxies
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proxies)
}
