// Package resource tracks GPU buffers and images against in-flight frames.
//
// Every resource carries the FrameID of the last frame that used it. Freeing
// a resource invalidates its handle at once, but the backend object is kept
// on a deferred queue until a [FrameTracker] reports that frame retired.
// [Registry.Reclaim] releases what has become safe; it polls and never waits.
//
// Handles are generation checked: a stale handle never aliases a newer
// resource that reused the same slot.
package resource
