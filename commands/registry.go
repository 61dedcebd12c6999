package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicate is returned when registering a name twice.
	ErrDuplicate = errors.New("already registered")
	// ErrEmptyName is returned when registering a blank name.
	ErrEmptyName = errors.New("empty command name")
)

// Registry maps names to builtins.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Builtin)}
}

// Register adds a builtin under name.
func (r *Registry) Register(name string, builtin Builtin) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("register %q: %w", name, ErrEmptyName)
	}
	if builtin == nil {
		return fmt.Errorf("register %q: nil builtin", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builtins[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicate)
	}
	r.builtins[name] = builtin
	return nil
}

// Get looks up a builtin by its exact name.
func (r *Registry) Get(name string) (Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	builtin, ok := r.builtins[name]
	return builtin, ok
}

// ListNames returns the registered names in sorted order.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins holds the shell's builtins. It's filled in during package
// initialization and only read afterwards.
var Builtins = NewRegistry()

func mustRegister(name string, builtin Builtin) {
	if err := Builtins.Register(name, builtin); err != nil {
		panic(err)
	}
}
