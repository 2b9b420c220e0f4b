// Package device owns the backend GPU device for a framecore process.
//
// A [Context] wraps one [Backend]: its capability-tagged queues, a pool of
// reusable fences and semaphores, and serialized submission. Exactly one
// Context may be live at a time. Every other framecore component borrows it
// and is destroyed before it.
//
// Backends report failures with the framecore sentinels. A backend error that
// matches [framecore.ErrDeviceLost] marks the Context lost; after that every
// Submit fails fast without reaching the backend.
package device
