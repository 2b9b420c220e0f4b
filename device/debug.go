package device

import (
	"context"
	"log/slog"

	"github.com/gogpu/framecore"
)

// Severity is the severity of a backend debug message.
type Severity int

const (
	SeverityVerbose Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityVerbose:
		return "verbose"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// level maps a backend severity onto slog.
func (s Severity) level() slog.Level {
	switch s {
	case SeverityVerbose:
		return slog.LevelDebug
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DebugMessage is one validation or driver message.
type DebugMessage struct {
	Severity Severity
	Source   string
	Message  string
}

// DebugMessenger is implemented by backends that can report validation
// messages. The Context installs a callback when validation is enabled.
// Messages are diagnostics only and never change control flow.
type DebugMessenger interface {
	SetDebugCallback(fn func(DebugMessage))
}

func logDebugMessage(m DebugMessage) {
	framecore.Logger().Log(context.Background(), m.Severity.level(), "device: "+m.Message,
		"source", m.Source,
		"severity", m.Severity.String())
}
