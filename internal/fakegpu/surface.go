package fakegpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/swapchain"
)

// SurfaceImage is the Native value of a fake swapchain image.
type SurfaceImage struct {
	Index int

	// Generation is the Configure call that created the image (1-based).
	Generation int
}

// Surface implements swapchain.Surface. Injections are keyed by the 1-based
// count of Acquire or Present calls.
type Surface struct {
	dev *Device

	mu         sync.Mutex
	configured bool
	config     swapchain.SurfaceConfig
	configures int
	next       int
	acquires   int
	presents   int
	presented  []int
	destroyed  bool

	staleAcquire      map[int]bool
	suboptimalAcquire map[int]bool
	timeoutAcquire    map[int]bool
	stalePresent      map[int]bool
	failConfigure     int
}

var _ swapchain.Surface = (*Surface)(nil)

// NewSurface creates a surface presenting through d.
func (d *Device) NewSurface() *Surface {
	return &Surface{
		dev:               d,
		staleAcquire:      make(map[int]bool),
		suboptimalAcquire: make(map[int]bool),
		timeoutAcquire:    make(map[int]bool),
		stalePresent:      make(map[int]bool),
	}
}

// StaleOnAcquire makes the n-th Acquire report an out-of-date swapchain.
func (s *Surface) StaleOnAcquire(n int) { s.set(s.staleAcquire, n) }

// SuboptimalOnAcquire makes the n-th Acquire return a suboptimal image.
func (s *Surface) SuboptimalOnAcquire(n int) { s.set(s.suboptimalAcquire, n) }

// TimeoutOnAcquire makes the n-th Acquire time out.
func (s *Surface) TimeoutOnAcquire(n int) { s.set(s.timeoutAcquire, n) }

// StaleOnPresent makes the n-th Present report an out-of-date swapchain.
func (s *Surface) StaleOnPresent(n int) { s.set(s.stalePresent, n) }

// FailConfigure makes the next n Configure calls fail.
func (s *Surface) FailConfigure(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failConfigure = n
}

func (s *Surface) set(m map[int]bool, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m[n] = true
}

// Configure implements swapchain.Surface.
func (s *Surface) Configure(cfg swapchain.SurfaceConfig) ([]swapchain.Image, error) {
	if s.dev.isLost() {
		return nil, framecore.ErrDeviceLost
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfigure > 0 {
		s.failConfigure--
		return nil, errors.New("fakegpu: configure failed")
	}
	s.configures++
	s.configured = true
	s.config = cfg
	s.next = 0

	n := max(cfg.ImageCount, 1)
	images := make([]swapchain.Image, n)
	for i := range images {
		images[i] = swapchain.Image{
			Index:  i,
			Extent: cfg.Extent,
			Format: cfg.Format,
			Native: &SurfaceImage{Index: i, Generation: s.configures},
		}
	}
	return images, nil
}

// Unconfigure implements swapchain.Surface.
func (s *Surface) Unconfigure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = false
}

// Acquire implements swapchain.Surface.
func (s *Surface) Acquire(_ time.Duration, _ device.Semaphore) (swapchain.Acquired, error) {
	if s.dev.isLost() {
		return swapchain.Acquired{}, framecore.ErrDeviceLost
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return swapchain.Acquired{}, framecore.ErrSwapchainStale
	}
	s.acquires++
	n := s.acquires
	switch {
	case s.staleAcquire[n]:
		return swapchain.Acquired{}, fmt.Errorf("fakegpu: acquire %d: %w", n, framecore.ErrSwapchainStale)
	case s.timeoutAcquire[n]:
		return swapchain.Acquired{}, fmt.Errorf("fakegpu: acquire %d: %w", n, framecore.ErrFrameTimeout)
	}
	idx := s.next % max(s.config.ImageCount, 1)
	s.next++
	s.dev.log(Event{Kind: EventAcquire, Image: idx})
	return swapchain.Acquired{Index: idx, Suboptimal: s.suboptimalAcquire[n]}, nil
}

// Present implements swapchain.Surface.
func (s *Surface) Present(index int, _ []device.Semaphore) error {
	if s.dev.isLost() {
		return framecore.ErrDeviceLost
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presents++
	if s.stalePresent[s.presents] {
		return fmt.Errorf("fakegpu: present %d: %w", s.presents, framecore.ErrSwapchainStale)
	}
	s.presented = append(s.presented, index)
	s.dev.log(Event{Kind: EventPresent, Image: index})
	return nil
}

// Destroy implements swapchain.Surface.
func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = false
	s.destroyed = true
}

// Presented returns the image indices successfully presented, in order.
func (s *Surface) Presented() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.presented...)
}

// Configures returns the number of successful Configure calls.
func (s *Surface) Configures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configures
}

// Acquires returns the number of Acquire calls that reached the swapchain.
func (s *Surface) Acquires() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires
}

// Config returns the last configuration.
func (s *Surface) Config() swapchain.SurfaceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Destroyed reports whether Destroy was called.
func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
