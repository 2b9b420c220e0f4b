// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/frame"
	"github.com/gogpu/framecore/resource"
	"github.com/gogpu/framecore/swapchain"
)

// Control tells a Loop whether to keep running.
type Control uint8

const (
	// Continue keeps the loop running.
	Continue Control = iota

	// Exit stops the loop.
	Exit
)

// String returns "continue" or "exit".
func (c Control) String() string {
	switch c {
	case Continue:
		return "continue"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("Control(%d)", uint8(c))
	}
}

// TickHandler is called by a Loop once per iteration with the time elapsed
// since the previous call.
type TickHandler interface {
	OnTick(dt time.Duration) (Control, error)
}

// Factory opens a backend device and a presentation surface for win.
// It is called once by New and again by every RebuildAll.
type Factory func(win Window, cfg framecore.Config) (device.Backend, swapchain.Surface, error)

// Stats counts engine level events.
type Stats struct {
	Ticks        uint64
	SkippedTicks uint64 // zero-area surface, no frame attempted
	Rebuilds     uint64 // successful swapchain rebuilds
	Recoveries   uint64 // successful RebuildAll calls
}

// Engine owns the device context, registry, swapchain manager and frame
// scheduler of one window. It implements TickHandler.
//
// Engine is driven from a single goroutine.
type Engine struct {
	win     Window
	factory Factory
	record  frame.RecordFunc
	cfg     framecore.Config

	ctx       *device.Context
	registry  *resource.Registry
	swapchain *swapchain.Manager
	scheduler *frame.Scheduler

	onRecreate []func(*Engine) error
	recoveries int
	stats      Stats
	closed     bool
}

var _ TickHandler = (*Engine)(nil)

// New builds an Engine for win. record is called for every frame.
func New(win Window, factory Factory, record frame.RecordFunc, opts ...framecore.Option) (*Engine, error) {
	if win == nil || factory == nil || record == nil {
		return nil, errors.New("engine: window, factory and record are required")
	}
	e := &Engine{
		win:     win,
		factory: factory,
		record:  record,
		cfg:     framecore.NewConfig(opts...),
	}
	if err := e.build(); err != nil {
		return nil, err
	}
	framecore.Logger().Info("engine: started",
		"backend", e.ctx.Backend().Name(),
		"extent", e.swapchain.Extent().String(),
		"frames_in_flight", e.cfg.FramesInFlight)
	return e, nil
}

// build creates the component chain. On failure everything created so far
// is released.
func (e *Engine) build() error {
	backend, surface, err := e.factory(e.win, e.cfg)
	if err != nil {
		return fmt.Errorf("engine: open backend: %w", err)
	}

	ctx, err := device.New(backend, e.cfg)
	if err != nil {
		surface.Destroy()
		backend.Destroy()
		return fmt.Errorf("engine: %w", err)
	}

	reg := resource.NewRegistry(ctx)

	sc, err := swapchain.New(ctx, surface, e.win.Extent())
	if err != nil {
		reg.Close()
		surface.Destroy()
		ctx.Destroy()
		return fmt.Errorf("engine: %w", err)
	}

	sched, err := frame.New(ctx, sc, reg)
	if err != nil {
		reg.Close()
		sc.Destroy()
		ctx.Destroy()
		return fmt.Errorf("engine: %w", err)
	}

	e.ctx = ctx
	e.registry = reg
	e.swapchain = sc
	e.scheduler = sched
	return nil
}

// teardown releases the component chain in dependency order.
func (e *Engine) teardown() {
	if e.ctx == nil {
		return
	}
	if err := e.ctx.WaitIdle(); err != nil && !framecore.IsFatal(err) {
		framecore.Logger().Warn("engine: wait idle", "err", err)
	}
	e.registry.Close()
	e.swapchain.Destroy()
	e.scheduler.Destroy()
	e.ctx.Destroy()

	e.ctx = nil
	e.registry = nil
	e.swapchain = nil
	e.scheduler = nil
}

// OnRecreate registers fn to run after every successful RebuildAll. All
// resource handles of the previous registry are gone by then; fn should
// allocate replacements from e.Registry().
func (e *Engine) OnRecreate(fn func(*Engine) error) {
	e.onRecreate = append(e.onRecreate, fn)
}

// OnTick implements TickHandler. It forwards resize events, rebuilds a stale
// swapchain and runs one frame. Recoverable frame outcomes are logged and
// the loop continues. Device loss triggers RebuildAll while recoveries
// remain, and stops the loop otherwise.
func (e *Engine) OnTick(dt time.Duration) (Control, error) {
	if e.closed {
		return Exit, framecore.ErrClosed
	}
	e.stats.Ticks++

	for extent := range e.win.PollResizeEvents() {
		e.swapchain.NotifyResize(extent)
	}

	if e.swapchain.State() != swapchain.Valid {
		target := e.swapchain.TargetExtent()
		if target.IsZero() {
			e.stats.SkippedTicks++
			return Continue, nil
		}
		if err := e.swapchain.Rebuild(target); err != nil {
			if framecore.IsFatal(err) {
				return e.recover(err)
			}
			framecore.Logger().Warn("engine: swapchain rebuild failed", "extent", target.String(), "err", err)
			return Continue, nil
		}
		e.stats.Rebuilds++
	}

	res, err := e.scheduler.RunFrame(e.record)
	if err != nil {
		if framecore.IsFatal(err) {
			return e.recover(err)
		}
		// Only a destroyed scheduler gets here.
		return Exit, err
	}

	log := framecore.Logger()
	switch res.Status {
	case frame.StatusPresented:
		log.Debug("engine: frame presented",
			"frame", uint64(res.Frame),
			"slot", res.Slot,
			"image", res.Image,
			"dt", dt)
	case frame.StatusRecordFailed:
		log.Warn("engine: frame record failed", "frame", uint64(res.Frame), "err", res.Err)
	case frame.StatusFailed:
		log.Warn("engine: frame failed", "frame", uint64(res.Frame), "slot", res.Slot, "err", res.Err)
	case frame.StatusNeedsRebuild:
		log.Debug("engine: swapchain needs rebuild", "frame", uint64(res.Frame))
	default:
		log.Debug("engine: frame skipped", "status", res.Status.String(), "slot", res.Slot)
	}
	return Continue, nil
}

func (e *Engine) recover(cause error) (Control, error) {
	if e.recoveries >= e.cfg.MaxDeviceRecoveries {
		framecore.Logger().Error("engine: device lost", "err", cause)
		return Exit, cause
	}
	e.recoveries++
	framecore.Logger().Warn("engine: device lost, rebuilding",
		"attempt", e.recoveries,
		"max", e.cfg.MaxDeviceRecoveries,
		"err", cause)
	if err := e.RebuildAll(); err != nil {
		return Exit, errors.Join(cause, err)
	}
	return Continue, nil
}

// RebuildAll destroys every component and builds a fresh set from the
// factory, then runs the OnRecreate callbacks. It is the only way to
// continue after device loss.
func (e *Engine) RebuildAll() error {
	if e.closed {
		return framecore.ErrClosed
	}
	e.teardown()
	if err := e.build(); err != nil {
		e.closed = true
		return err
	}
	for _, fn := range e.onRecreate {
		if err := fn(e); err != nil {
			return fmt.Errorf("engine: recreate callback: %w", err)
		}
	}
	e.stats.Recoveries++
	framecore.Logger().Info("engine: rebuilt",
		"backend", e.ctx.Backend().Name(),
		"extent", e.swapchain.Extent().String())
	return nil
}

// Shutdown waits for the device to go idle and destroys every component.
// It is idempotent.
func (e *Engine) Shutdown() {
	if e.closed {
		return
	}
	e.closed = true
	e.teardown()
	framecore.Logger().Info("engine: shut down")
}

// Config returns the engine configuration.
func (e *Engine) Config() framecore.Config { return e.cfg }

// Context returns the current device context. It changes on RebuildAll.
func (e *Engine) Context() *device.Context { return e.ctx }

// Registry returns the current resource registry. It changes on RebuildAll.
func (e *Engine) Registry() *resource.Registry { return e.registry }

// Swapchain returns the current swapchain manager. It changes on RebuildAll.
func (e *Engine) Swapchain() *swapchain.Manager { return e.swapchain }

// Scheduler returns the current frame scheduler. It changes on RebuildAll.
func (e *Engine) Scheduler() *frame.Scheduler { return e.scheduler }

// Stats returns engine counters.
func (e *Engine) Stats() Stats { return e.stats }
