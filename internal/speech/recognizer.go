// Package speech wraps the platform speech recognizer in a small state
// machine: start, stop, language changes and error mapping, with stale
// platform callbacks filtered by generation.
package speech

import (
	"errors"
)

// ErrUnsupported is returned when no platform recognizer is available.
var ErrUnsupported = errors.New("speech recognition unsupported")

// Config configures one recognizer run.
type Config struct {
	Language       string `json:"language"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// EventKind tags recognizer callbacks.
type EventKind int

const (
	EventResult EventKind = iota
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// Event is one callback from the platform recognizer.
type Event struct {
	Kind       EventKind
	Transcript string
	Final      bool
	// Code is the platform error code for EventError ("not-allowed", ...).
	Code string
}

// Recognizer is the platform speech recognizer. Implementations may call
// emit from any goroutine and in any order relative to Start and Stop.
type Recognizer interface {
	// Available reports whether recognition is possible at all.
	Available() bool
	// Start begins a recognition run; events for the run go to emit.
	Start(cfg Config, emit func(Event)) error
	// Stop asks the recognizer to finish the current run. Remaining
	// results and a final end event may still be delivered.
	Stop()
}
