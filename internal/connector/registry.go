package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a new, unconnected Adapter.
type Factory func() Adapter

// Registry maps driver names to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterDriver registers an adapter factory for a driver name. Registering
// the same name twice replaces the earlier factory.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// New returns an unconnected adapter for the driver.
func (r *Registry) New(driver string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnsupportedDriver, driver, r.drivers())
	}
	return factory(), nil
}

// Open creates an adapter for cfg.Driver and connects it. The DSN is
// sanitized before it reaches the driver.
func (r *Registry) Open(cfg ConnectionConfig) (Adapter, error) {
	a, err := r.New(cfg.Driver)
	if err != nil {
		return nil, err
	}
	cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
	if err := a.Connect(cfg); err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", cfg.Driver, err)
	}
	return a, nil
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.drivers()
}

func (r *Registry) drivers() []string {
	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}
