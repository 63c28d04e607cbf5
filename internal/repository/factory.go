package repository

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownHandlerType is returned by Factories.New for unregistered types
var ErrUnknownHandlerType = errors.New("unknown handler type")

// Constructor creates a fresh handler instance
type Constructor func() (Handler, error)

// Factories maps handler type identifiers to constructors
type Factories struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactories creates an empty factory registry
func NewFactories() *Factories {
	return &Factories{constructors: make(map[string]Constructor)}
}

// Register adds a constructor for typ
func (f *Factories) Register(typ string, c Constructor) error {
	if typ == "" || c == nil {
		return fmt.Errorf("handler type and constructor are required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.constructors[typ]; exists {
		return fmt.Errorf("handler type %q is already registered", typ)
	}
	f.constructors[typ] = c
	return nil
}

// MustRegister is like Register but panics on error
func (f *Factories) MustRegister(typ string, c Constructor) {
	if err := f.Register(typ, c); err != nil {
		panic(err)
	}
}

// New constructs a handler of type typ
func (f *Factories) New(typ string) (Handler, error) {
	f.mu.RLock()
	c, ok := f.constructors[typ]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandlerType, typ)
	}
	h, err := c()
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("constructor for %q returned no handler", typ)
	}
	return h, nil
}

// Types lists the registered handler types in sorted order
func (f *Factories) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
