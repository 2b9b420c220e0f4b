// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/engine"
	"github.com/gogpu/framecore/swapchain"
)

// Options configures Open.
type Options struct {
	// Features requested from the adapter.
	Features gputypes.Features

	// Limits requested from the adapter. Nil means gputypes.DefaultLimits.
	Limits *gputypes.Limits

	// Validation enables HAL debug and validation layers and forwards the
	// HAL log stream to framecore.Logger.
	Validation bool

	// AlphaMode is the surface composite alpha mode. Zero means opaque.
	AlphaMode gputypes.CompositeAlphaMode
}

var forwardOnce sync.Once

// forwardLogs routes HAL logging through the framecore logger, following
// every later framecore.SetLogger call.
func forwardLogs() {
	forwardOnce.Do(func() { framecore.OnLoggerChange(hal.SetLogger) })
}

// VariantName returns the registry name of a HAL backend variant.
func VariantName(v gputypes.Backend) string {
	if v == gputypes.BackendEmpty {
		return "noop"
	}
	return strings.ToLower(v.String())
}

// Open creates an instance, a surface for the native window handles, an
// adapter and a device of the given HAL backend. Discrete and integrated
// GPUs are preferred over other adapters.
func Open(variant gputypes.Backend, display, window uintptr, opts Options) (*Device, *Surface, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, nil, fmt.Errorf("halgpu: %s: %w", VariantName(variant), hal.ErrBackendNotFound)
	}

	flags := gputypes.InstanceFlagsNone
	if opts.Validation {
		flags |= gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
		forwardLogs()
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: flags})
	if err != nil {
		return nil, nil, mapError("create instance", err)
	}

	surface, err := instance.CreateSurface(display, window)
	if err != nil {
		instance.Destroy()
		return nil, nil, mapError("create surface", err)
	}

	adapters := instance.EnumerateAdapters(surface)
	if len(adapters) == 0 {
		surface.Destroy()
		instance.Destroy()
		return nil, nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	limits := gputypes.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	open, err := selected.Adapter.Open(opts.Features, limits)
	if err != nil {
		surface.Destroy()
		selected.Adapter.Destroy()
		instance.Destroy()
		return nil, nil, mapError("open device", err)
	}

	d := newDevice(VariantName(variant), open.Device, open.Queue)
	d.info = selected.Info
	d.instance = instance
	d.adapter = selected.Adapter
	d.owned = true

	s := NewSurface(d, surface, selected.Adapter.SurfaceCapabilities(surface))
	s.owned = true
	if opts.AlphaMode != 0 {
		s.alpha = opts.AlphaMode
	}

	framecore.Logger().Info("halgpu: device opened",
		"backend", d.name,
		"adapter", selected.Info.Name,
		"driver", selected.Info.Driver)
	return d, s, nil
}

// FromProvider wraps the HAL device and queue of a host application. The
// provider must either expose HalDevice() and HalQueue() or return HAL
// types from Device() and Queue(). The device is not destroyed by
// Device.Destroy.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, ErrUnsupportedProvider
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}

	var devAny, queueAny any
	if hp, ok := provider.(halProvider); ok {
		devAny, queueAny = hp.HalDevice(), hp.HalQueue()
	} else {
		devAny, queueAny = provider.Device(), provider.Queue()
	}

	dev, ok := devAny.(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: device is %T", ErrUnsupportedProvider, devAny)
	}
	queue, ok := queueAny.(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: queue is %T", ErrUnsupportedProvider, queueAny)
	}

	d := newDevice("shared", dev, queue)
	info := provider.AdapterInfo()
	d.info = gputypes.AdapterInfo{Name: info.Name}
	return d, nil
}

// Factory returns an engine.Factory that opens variant for the engine's
// window. Config.Validation turns on Options.Validation.
func Factory(variant gputypes.Backend, opts Options) engine.Factory {
	return func(win engine.Window, cfg framecore.Config) (device.Backend, swapchain.Surface, error) {
		o := opts
		o.Validation = o.Validation || cfg.Validation
		display, window := win.SurfaceHandle()
		d, s, err := Open(variant, display, window, o)
		if err != nil {
			return nil, nil, err
		}
		return d, s, nil
	}
}
