package fakegpu

import (
	"errors"

	"github.com/gogpu/framecore/device"
)

// CommandBuffer is produced by Encoder.End.
type CommandBuffer struct {
	Label    string
	Commands []string
}

// Encoder implements device.CommandEncoder. Native returns the Encoder so
// record callbacks can append commands with Record.
type Encoder struct {
	label     string
	recording bool
	commands  []string
	beginErr  error

	Begun     int
	Ended     int
	Discarded int
	Resets    int
	Destroyed bool
}

var _ device.CommandEncoder = (*Encoder)(nil)

// Begin implements device.CommandEncoder.
func (e *Encoder) Begin(label string) error {
	if err := e.beginErr; err != nil {
		e.beginErr = nil
		return err
	}
	if e.recording {
		return errors.New("fakegpu: encoder already recording")
	}
	e.recording = true
	e.label = label
	e.commands = nil
	e.Begun++
	return nil
}

// End implements device.CommandEncoder.
func (e *Encoder) End() (device.CommandBuffer, error) {
	if !e.recording {
		return nil, errors.New("fakegpu: encoder not recording")
	}
	e.recording = false
	e.Ended++
	return &CommandBuffer{Label: e.label, Commands: e.commands}, nil
}

// Discard implements device.CommandEncoder.
func (e *Encoder) Discard() {
	e.recording = false
	e.commands = nil
	e.Discarded++
}

// Reset implements device.CommandEncoder.
func (e *Encoder) Reset() error {
	e.Resets++
	return nil
}

// Destroy implements device.CommandEncoder.
func (e *Encoder) Destroy() { e.Destroyed = true }

// Native implements device.CommandEncoder.
func (e *Encoder) Native() any { return e }

// FailBegin makes the next Begin return err.
func (e *Encoder) FailBegin(err error) { e.beginErr = err }

// Record appends a named command to the current recording.
func (e *Encoder) Record(cmd string) { e.commands = append(e.commands, cmd) }

// Recording reports whether Begin was called without End or Discard.
func (e *Encoder) Recording() bool { return e.recording }
