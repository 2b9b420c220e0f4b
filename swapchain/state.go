// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package swapchain

// State is the swapchain lifecycle state.
type State uint8

const (
	// Valid images match the surface and may be acquired.
	Valid State = iota

	// Stale images must not be recorded against; Rebuild is required.
	Stale

	// Rebuilding is held while in-flight frames drain and images are
	// recreated.
	Rebuilding
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Valid:
		return "Valid"
	case Stale:
		return "Stale"
	case Rebuilding:
		return "Rebuilding"
	default:
		return "Unknown"
	}
}
