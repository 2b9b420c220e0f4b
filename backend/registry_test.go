package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/engine"
	"github.com/gogpu/framecore/swapchain"
)

var errTest = errors.New("test factory")

func testFactory(engine.Window, framecore.Config) (device.Backend, swapchain.Surface, error) {
	return nil, nil, errTest
}

// isolate empties the registry for one test and restores it afterwards.
func isolate(t *testing.T) {
	t.Helper()
	saved := map[string]engine.Factory{}
	for _, name := range Available() {
		f, _ := Get(name)
		saved[name] = f
		Unregister(name)
	}
	t.Cleanup(func() {
		for _, name := range Available() {
			Unregister(name)
		}
		for name, f := range saved {
			Register(name, f)
		}
	})
}

func TestRegisterAndGet(t *testing.T) {
	isolate(t)

	if IsRegistered("custom") {
		t.Fatal("custom registered before Register")
	}
	Register("custom", testFactory)
	if !IsRegistered("custom") {
		t.Fatal("IsRegistered() = false after Register")
	}

	f, err := Get("custom")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, _, err := f(nil, framecore.NewConfig()); !errors.Is(err, errTest) {
		t.Errorf("factory error = %v", err)
	}

	Unregister("custom")
	if _, err := Get("custom"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Get() after Unregister error = %v", err)
	}
}

func TestDefaultPriority(t *testing.T) {
	isolate(t)

	if _, _, err := Default(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Fatalf("Default() on empty registry error = %v", err)
	}

	Register("custom", testFactory)
	if name, _, _ := Default(); name != "custom" {
		t.Errorf("Default() = %q, want custom", name)
	}

	Register(Noop, testFactory)
	if name, _, _ := Default(); name != Noop {
		t.Errorf("Default() = %q, want %q", name, Noop)
	}

	Register(Vulkan, testFactory)
	if name, _, _ := Default(); name != Vulkan {
		t.Errorf("Default() = %q, want %q", name, Vulkan)
	}

	if got, want := Available(), []string{"custom", Noop, Vulkan}; !slices.Equal(got, want) {
		t.Errorf("Available() = %v, want %v", got, want)
	}
}

func TestLookup(t *testing.T) {
	isolate(t)
	Register(Noop, testFactory)

	if name, _, err := Lookup(""); err != nil || name != Noop {
		t.Errorf("Lookup(\"\") = %q, %v", name, err)
	}
	if name, _, err := Lookup(Noop); err != nil || name != Noop {
		t.Errorf("Lookup(noop) = %q, %v", name, err)
	}
	if _, _, err := Lookup("metal"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Lookup(metal) error = %v", err)
	}
}
