// Package env defines the environment contract consumed by rollout workers.
// Environments are stateful, stepped sequentially, and never shared across
// workers.
package env

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrExists   = errors.New("environment already registered")
	ErrNotFound = errors.New("environment not found")
)

// Env is one simulation instance. Reset starts a fresh episode; Step advances
// it by one action. Implementations need not be goroutine-safe: one worker
// owns one instance.
type Env interface {
	Reset() ([]float64, error)
	Step(action []float64) (obs []float64, reward float64, done bool, err error)
	ObservationSize() int
	ActionSize() int
	// MaxEpisodeSteps is the environment's own episode step limit, used for
	// evaluation rollouts.
	MaxEpisodeSteps() int
}

// Factory builds a fresh, independently seeded environment instance.
type Factory func(seed int64) (Env, error)

var registry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("env: name is required")
	}
	if factory == nil {
		return errors.New("env: factory is required")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.m[name]; exists {
		return fmt.Errorf("env: %s: %w", name, ErrExists)
	}
	registry.m[name] = factory
	return nil
}

func New(name string, seed int64) (Env, error) {
	registry.mu.RLock()
	factory, ok := registry.m[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("env: %s: %w", name, ErrNotFound)
	}
	return factory(seed)
}

func Registered() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
