// Package framecore is a frame lifecycle and GPU resource ownership core.
//
// framecore sits between a graphics backend and a render loop. It owns the
// parts every renderer has to get right regardless of the API it binds to:
// CPU/GPU synchronization, resource lifetime against in-flight frames, and
// swapchain invalidation.
//
// # Architecture
//
// The core is split into small packages, leaves first:
//
//	device     Device Context: backend device, capability-tagged queues,
//	           pooled fences and semaphores, serialized submission
//	resource   Resource Registry: generation-checked handles, last-used
//	           frame markers, deferred release
//	swapchain  Swapchain Manager: Valid/Stale/Rebuilding state machine
//	frame      Frame Scheduler: acquire, record, submit, present
//	engine     rebuild-all Engine and a fixed-step render loop driver
//
// Backends implement [device.Backend] and [swapchain.Surface]. The
// backend/halgpu package binds them to github.com/gogpu/wgpu/hal; tests use a
// deterministic fake.
//
// # Frames in flight
//
// N frame slots rotate round-robin. Frame K+N cannot start recording until
// the fence of frame K has signaled, which caps how far the CPU runs ahead of
// the GPU. The same fences gate resource release: a freed resource that was
// last used by an in-flight frame is kept until that frame retires.
//
// # Errors
//
// Only [ErrDeviceLost] is fatal. Stale swapchains, timeouts, unavailable
// surfaces and allocation failures are recoverable within the same tick.
//
// # Logging
//
// framecore is silent by default. Call [SetLogger] to route diagnostics to a
// [log/slog] logger.
package framecore
