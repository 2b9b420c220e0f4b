package framecore

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every component reports failures as one of these,
// optionally wrapped with context.
var (
	// ErrDeviceLost is fatal: the device and everything built on it must be
	// recreated.
	ErrDeviceLost = errors.New("framecore: device lost")

	// ErrAllocation is matched by every *AllocationError.
	ErrAllocation = errors.New("framecore: allocation failed")

	// ErrOutOfDeviceMemory is returned when the backend or the configured
	// budget cannot satisfy an allocation. Run a reclamation pass and retry.
	ErrOutOfDeviceMemory = errors.New("framecore: out of device memory")

	// ErrInvalidHandle is returned for unknown, stale or already freed
	// resource handles.
	ErrInvalidHandle = errors.New("framecore: invalid resource handle")

	// ErrSwapchainStale is returned when the swapchain must be rebuilt before
	// the next frame.
	ErrSwapchainStale = errors.New("framecore: swapchain stale")

	// ErrFrameTimeout is returned when a bounded wait expires.
	ErrFrameTimeout = errors.New("framecore: frame timeout")

	// ErrSurfaceUnavailable is returned while the surface has zero area,
	// e.g. when the window is minimized.
	ErrSurfaceUnavailable = errors.New("framecore: surface unavailable")

	// ErrClosed is returned when operating on a destroyed component.
	ErrClosed = errors.New("framecore: closed")
)

// AllocationErrorKind classifies an AllocationError.
type AllocationErrorKind int

const (
	// AllocationOutOfMemory means the allocation did not fit.
	AllocationOutOfMemory AllocationErrorKind = iota

	// AllocationInvalidHandle means the handle does not name a live resource.
	AllocationInvalidHandle
)

// String returns the kind name.
func (k AllocationErrorKind) String() string {
	switch k {
	case AllocationOutOfMemory:
		return "OutOfMemory"
	case AllocationInvalidHandle:
		return "InvalidHandle"
	default:
		return fmt.Sprintf("AllocationErrorKind(%d)", int(k))
	}
}

// AllocationError is returned by the resource registry.
type AllocationError struct {
	Kind AllocationErrorKind

	// Op is the registry operation that failed ("allocate", "free", ...).
	Op string

	// Label is the resource label, if known.
	Label string

	// Err is the underlying backend error, if any.
	Err error
}

func (e *AllocationError) Error() string {
	msg := "framecore: " + e.Op + ": " + e.Kind.String()
	if e.Label != "" {
		msg += " (" + e.Label + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Is matches ErrAllocation and the sentinel of the error's kind.
func (e *AllocationError) Is(target error) bool {
	switch target {
	case ErrAllocation:
		return true
	case ErrOutOfDeviceMemory:
		return e.Kind == AllocationOutOfMemory
	case ErrInvalidHandle:
		return e.Kind == AllocationInvalidHandle
	}
	return false
}

// IsFatal reports whether err requires a full re-initialization.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
