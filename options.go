package framecore

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Defaults used by NewConfig.
const (
	// DefaultFramesInFlight is the default number of rotating frame slots.
	DefaultFramesInFlight = 2

	// MinFramesInFlight and MaxFramesInFlight bound the slot count.
	MinFramesInFlight = 2
	MaxFramesInFlight = 8

	// DefaultFenceTimeout bounds the wait on a frame slot fence.
	DefaultFenceTimeout = time.Second

	// DefaultAcquireTimeout bounds the wait for the next swapchain image.
	DefaultAcquireTimeout = time.Second

	// DefaultImageCount is the requested number of swapchain images.
	DefaultImageCount = 3

	// DefaultSurfaceFormat is used when the surface does not report one.
	DefaultSurfaceFormat = gputypes.TextureFormatBGRA8Unorm
)

// Config holds the tunables shared by all components.
// Build one with NewConfig and functional options.
type Config struct {
	// FramesInFlight is the number of frame slots (N).
	FramesInFlight int

	// FenceTimeout bounds the per-frame slot fence wait.
	FenceTimeout time.Duration

	// AcquireTimeout bounds the swapchain image acquire.
	AcquireTimeout time.Duration

	// ImageCount is the requested swapchain image count.
	ImageCount int

	// SurfaceFormat is the requested swapchain format.
	SurfaceFormat gputypes.TextureFormat

	// PresentMode is the requested presentation mode.
	PresentMode gputypes.PresentMode

	// MemoryBudget caps live resource bytes. Zero disables the budget.
	MemoryBudget uint64

	// Validation enables backend validation and forwards its debug messages
	// to the logger.
	Validation bool

	// MaxDeviceRecoveries is how many times the engine rebuilds everything
	// after a device loss before giving up. Zero terminates on the first loss.
	MaxDeviceRecoveries int
}

// Option configures a Config.
//
// Example:
//
//	cfg := framecore.NewConfig(
//	    framecore.WithFramesInFlight(3),
//	    framecore.WithValidation(true),
//	)
type Option func(*Config)

// NewConfig returns the default configuration with opts applied.
// Out-of-range values are clamped to their defaults.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		FramesInFlight: DefaultFramesInFlight,
		FenceTimeout:   DefaultFenceTimeout,
		AcquireTimeout: DefaultAcquireTimeout,
		ImageCount:     DefaultImageCount,
		SurfaceFormat:  DefaultSurfaceFormat,
		PresentMode:    gputypes.PresentModeFifo,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.FramesInFlight < MinFramesInFlight || c.FramesInFlight > MaxFramesInFlight {
		c.FramesInFlight = DefaultFramesInFlight
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = DefaultFenceTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.ImageCount < 1 {
		c.ImageCount = DefaultImageCount
	}
	if c.SurfaceFormat == gputypes.TextureFormatUndefined {
		c.SurfaceFormat = DefaultSurfaceFormat
	}
	if c.MaxDeviceRecoveries < 0 {
		c.MaxDeviceRecoveries = 0
	}
}

// WithFramesInFlight sets the number of frame slots. Values outside
// [MinFramesInFlight, MaxFramesInFlight] fall back to the default.
func WithFramesInFlight(n int) Option {
	return func(c *Config) { c.FramesInFlight = n }
}

// WithFenceTimeout sets the slot fence wait bound.
func WithFenceTimeout(d time.Duration) Option {
	return func(c *Config) { c.FenceTimeout = d }
}

// WithAcquireTimeout sets the image acquire bound.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Config) { c.AcquireTimeout = d }
}

// WithImageCount sets the requested swapchain image count.
func WithImageCount(n int) Option {
	return func(c *Config) { c.ImageCount = n }
}

// WithSurfaceFormat sets the requested swapchain format.
func WithSurfaceFormat(f gputypes.TextureFormat) Option {
	return func(c *Config) { c.SurfaceFormat = f }
}

// WithPresentMode sets the requested presentation mode.
func WithPresentMode(m gputypes.PresentMode) Option {
	return func(c *Config) { c.PresentMode = m }
}

// WithMemoryBudget caps live resource memory in bytes.
func WithMemoryBudget(bytes uint64) Option {
	return func(c *Config) { c.MemoryBudget = bytes }
}

// WithValidation enables backend validation and debug message forwarding.
func WithValidation(enabled bool) Option {
	return func(c *Config) { c.Validation = enabled }
}

// WithDeviceRecovery allows up to n rebuild-all attempts after device loss.
func WithDeviceRecovery(n int) Option {
	return func(c *Config) { c.MaxDeviceRecoveries = n }
}
