// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"context"
	"errors"
	"time"
)

// Loop defaults.
const (
	DefaultTicksPerSecond = 20
	DefaultMaxFrameSkip   = 5
)

// Loop runs fixed-rate updates and one TickHandler call per iteration.
//
// Each iteration runs Update once per elapsed fixed step, but at most
// MaxFrameSkip times, and then calls Handler.OnTick. When rendering is
// slower than the update rate the simulation keeps its rate until
// MaxFrameSkip caps it.
type Loop struct {
	// TicksPerSecond is the fixed update rate. Zero means
	// DefaultTicksPerSecond.
	TicksPerSecond int

	// MaxFrameSkip caps the updates run between two handler calls. Zero
	// means DefaultMaxFrameSkip.
	MaxFrameSkip int

	// Update is called once per fixed step. It may be nil.
	Update func(step time.Duration) error

	// Handler is called once per iteration.
	Handler TickHandler

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	started  bool
	nextTick time.Time
	last     time.Time
}

// Step returns the fixed update interval.
func (l *Loop) Step() time.Duration {
	tps := l.TicksPerSecond
	if tps <= 0 {
		tps = DefaultTicksPerSecond
	}
	return time.Second / time.Duration(tps)
}

func (l *Loop) maxFrameSkip() int {
	if l.MaxFrameSkip <= 0 {
		return DefaultMaxFrameSkip
	}
	return l.MaxFrameSkip
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Iterate runs one loop iteration.
func (l *Loop) Iterate() (Control, error) {
	if l.Handler == nil {
		return Exit, errors.New("engine: loop has no handler")
	}
	now := l.now()
	if !l.started {
		l.started = true
		l.nextTick = now
		l.last = now
	}

	step := l.Step()
	for loops := 0; !now.Before(l.nextTick) && loops < l.maxFrameSkip(); loops++ {
		if l.Update != nil {
			if err := l.Update(step); err != nil {
				return Exit, err
			}
		}
		l.nextTick = l.nextTick.Add(step)
	}

	dt := now.Sub(l.last)
	l.last = now
	return l.Handler.OnTick(dt)
}

// Interpolation returns how far the last iteration was into the next
// update step, in [0, 1). Renderers use it to blend between two updates.
func (l *Loop) Interpolation() float64 {
	if !l.started {
		return 0
	}
	step := l.Step()
	ahead := l.nextTick.Sub(l.last)
	if ahead <= 0 {
		return 0
	}
	if ahead > step {
		ahead = step
	}
	return float64(step-ahead) / float64(step)
}

// Run iterates until the handler returns Exit, an error occurs or ctx is
// canceled. Cancellation is not an error.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		c, err := l.Iterate()
		if err != nil {
			return err
		}
		if c == Exit {
			return nil
		}
	}
}
