package assistant

import (
	"time"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
)

// EventKind tags the events a Core publishes to its subscribers.
type EventKind string

const (
	EventInterim     EventKind = "interim"
	EventFinal       EventKind = "final"
	EventOutcome     EventKind = "outcome"
	EventError       EventKind = "error"
	EventStateChange EventKind = "state"
	EventCapability  EventKind = "capability"
)

// Capabilities reports which platform services the assistant can use.
// Without a recognizer the assistant runs in typed-only mode.
type Capabilities struct {
	Recognizer  bool `json:"recognizer"`
	Synthesizer bool `json:"synthesizer"`
	Remote      bool `json:"remote"`
}

// Event is one notification to the host.
type Event struct {
	Kind         EventKind        `json:"kind"`
	Text         string           `json:"text,omitempty"`
	Language     string           `json:"language,omitempty"`
	State        string           `json:"state,omitempty"`
	Outcome      *message.Outcome `json:"outcome,omitempty"`
	Error        *speech.Error    `json:"error,omitempty"`
	Capabilities *Capabilities    `json:"capabilities,omitempty"`
	At           time.Time        `json:"at"`
}

// DefaultSubscriberBuffer is the channel size used when Subscribe is given
// a non-positive size.
const DefaultSubscriberBuffer = 64

type subscriber struct {
	ch      chan Event
	dropped int
}

// broadcast delivers ev to every subscriber without blocking the loop.
// Subscribers that fall behind lose events.
func (c *Core) broadcast(ev Event) {
	if ev.At.IsZero() {
		ev.At = c.now()
	}
	for id, sub := range c.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			c.logger.Warn("subscriber too slow, dropping event", "subscriber", id, "kind", ev.Kind, "dropped", sub.dropped)
		}
	}
}
