package backend

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framecore/engine"
)

// Registered backend names.
const (
	Vulkan = "vulkan"
	Noop   = "noop"
)

// ErrBackendNotAvailable is returned when a requested backend is not
// registered.
var ErrBackendNotAvailable = errors.New("backend: not available")

// registry holds registered factories. Priority order for Default:
// Vulkan > Noop, then any other backend.
var registry = gpucontext.NewRegistry[engine.Factory](gpucontext.WithPriority(Vulkan, Noop))

// Register registers a factory under name. A factory with the same name is
// replaced. This is typically called from init functions.
func Register(name string, factory engine.Factory) {
	registry.Register(name, func() engine.Factory { return factory })
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := registry.Available()
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns the factory registered under name.
func Get(name string) (engine.Factory, error) {
	f := registry.Get(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return f, nil
}

// Default returns the highest priority registered backend.
func Default() (string, engine.Factory, error) {
	name := registry.BestName()
	if name == "" {
		return "", nil, ErrBackendNotAvailable
	}
	f, err := Get(name)
	if err != nil {
		return "", nil, err
	}
	return name, f, nil
}

// Lookup returns the named backend, or the default one when name is empty.
func Lookup(name string) (string, engine.Factory, error) {
	if name == "" {
		return Default()
	}
	f, err := Get(name)
	return name, f, err
}
