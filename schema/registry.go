package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Migration is one reversible schema change. Up applies it, Down undoes it.
// Both return s.Err() once every call has been issued.
type Migration interface {
	Up(s *Builder) error
	Down(s *Builder) error
}

// Registry maps migration names to migrations.
type Registry struct {
	mu         sync.RWMutex
	migrations map[string]Migration
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{migrations: make(map[string]Migration)}
}

// Register adds a migration under name. It panics if name is already taken
// or m is nil, which surfaces a copy-pasted migration at startup.
func (r *Registry) Register(name string, m Migration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == nil {
		panic("schema: Register migration is nil")
	}
	if _, dup := r.migrations[name]; dup {
		panic(fmt.Sprintf("schema: Register called twice for migration %q", name))
	}
	r.migrations[name] = m
}

// Lookup returns the migration registered under name.
func (r *Registry) Lookup(name string) (Migration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.migrations[name]
	return m, ok
}

// Names returns the registered migration names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.migrations))
	for name := range r.migrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that Register fills.
func Default() *Registry { return defaultRegistry }

// Register adds a migration to the default registry. Generated migration
// files call it from init.
func Register(name string, m Migration) { defaultRegistry.Register(name, m) }

// Lookup finds a migration in the default registry.
func Lookup(name string) (Migration, bool) { return defaultRegistry.Lookup(name) }

// Registered returns the names in the default registry, sorted.
func Registered() []string { return defaultRegistry.Names() }
