// Package backend is the registry of named engine backends.
//
// Backend packages register an engine.Factory from init functions and
// applications pick one by name or by priority:
//
//	import _ "github.com/gogpu/framecore/backend/halgpu"
//
//	factory, err := backend.Get(backend.Vulkan)
//	if err != nil {
//		log.Fatal(err)
//	}
//	eng, err := engine.New(win, factory, draw)
//
// # Available Backends
//
//   - "vulkan": Vulkan through gogpu/wgpu HAL (backend/halgpu)
//   - "noop": HAL no-op device for headless runs and tests (backend/halgpu)
//
// Default prefers Vulkan over Noop.
package backend
