// Package dispatch translates recognitions into host outcomes.
//
// The dispatcher is side-effect free: it reads a snapshot of the session
// context and returns the outcomes plus any pending-slot marker for the
// context owner to apply. Failures never propagate; they become noop
// outcomes with a reason.
package dispatch

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/intent"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
)

// DefaultEscalationThreshold is the confidence below which a recognition is
// handed to the remote conversation.
const DefaultEscalationThreshold = 0.5

// Env carries the ambient facts a dispatch depends on.
type Env struct {
	// Online reports whether the remote conversation is reachable.
	Online bool
	// Language is the language replies are produced in.
	Language string
}

// Decision is the synchronous result of one dispatch.
type Decision struct {
	Outcomes []message.Outcome
	// Pending is set when a query is waiting for a mandatory slot.
	Pending *message.PendingSlot
	// Slots are the resolved slots of a query, after inheritance.
	Slots message.SlotBag
}

// Escalated reports whether the decision hands the phrase to the remote
// conversation.
func (d Decision) Escalated() bool {
	for _, o := range d.Outcomes {
		if o.Kind == message.OutcomeEscalate {
			return true
		}
	}
	return false
}

// Dispatcher maps recognitions onto outcomes using the intent table.
type Dispatcher struct {
	table     *intent.Table
	strings   *i18n.Bundle
	threshold float64
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithThreshold overrides the escalation threshold.
func WithThreshold(th float64) Option {
	return func(d *Dispatcher) { d.threshold = th }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher over table.
func New(table *intent.Table, bundle *i18n.Bundle, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:     table,
		strings:   bundle,
		threshold: DefaultEscalationThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves rec against the context snapshot sc.
func (d *Dispatcher) Dispatch(rec message.Recognition, sc message.SessionContext, env Env) (dec Decision) {
	logger := d.logger.With("intent", rec.Intent, "confidence", rec.Confidence)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked", "panic", r)
			dec = Decision{Outcomes: []message.Outcome{message.Noop(fmt.Sprintf("dispatch failed: %v", r))}}
		}
	}()

	if rec.IsUnknown() || rec.Confidence < d.threshold {
		if env.Online {
			logger.Debug("escalating to remote conversation")
			return Decision{Outcomes: []message.Outcome{message.Escalate()}}
		}
		return Decision{Outcomes: []message.Outcome{d.speak(env, "reply.not_understood")}}
	}

	in, ok := d.table.Lookup(rec.Intent)
	if !ok {
		logger.Warn("recognition names an intent outside the table")
		return Decision{Outcomes: []message.Outcome{message.Noop("unknown intent " + rec.Intent)}}
	}

	switch in.Kind {
	case intent.KindNavigate:
		return Decision{Outcomes: []message.Outcome{message.Navigate(in.Route)}}
	case intent.KindQuery:
		return d.query(in, rec, sc, env)
	case intent.KindMeta:
		return d.meta(in, rec, sc, env)
	}
	return Decision{Outcomes: []message.Outcome{message.Noop("unsupported intent kind " + string(in.Kind))}}
}

func (d *Dispatcher) query(in *intent.Intent, rec message.Recognition, sc message.SessionContext, env Env) Decision {
	slots := Resolve(in, rec.Slots, sc)
	for _, group := range in.Mandatory {
		if satisfied(slots, group) {
			continue
		}
		d.logger.Debug("query waiting for slot", "intent", in.ID, "slots", group)
		prompt := "prompt." + strings.Join(group, "_or_")
		return Decision{
			Outcomes: []message.Outcome{d.speak(env, prompt)},
			Pending:  &message.PendingSlot{Intent: in.ID, Slots: append([]string(nil), group...)},
			Slots:    slots,
		}
	}
	return Decision{
		Outcomes: []message.Outcome{message.Query(in.Query, slots)},
		Slots:    slots,
	}
}

func (d *Dispatcher) meta(in *intent.Intent, rec message.Recognition, sc message.SessionContext, env Env) Decision {
	var dec Decision
	if in.Speak != "" {
		dec.Outcomes = append(dec.Outcomes, d.speak(env, in.Speak))
	}
	if in.Signal != "" {
		dec.Outcomes = append(dec.Outcomes, message.Signal(in.Signal))
	}
	if in.Query != "" {
		dec.Slots = Resolve(in, rec.Slots, sc)
		dec.Outcomes = append(dec.Outcomes, message.Query(in.Query, dec.Slots))
	}
	if len(dec.Outcomes) == 0 {
		dec.Outcomes = []message.Outcome{message.Noop("meta intent " + in.ID + " has no action")}
	}
	return dec
}

func (d *Dispatcher) speak(env Env, key string) message.Outcome {
	lang := env.Language
	if lang == "" {
		lang = i18n.Fallback
	}
	return message.Speak(d.strings.Text(lang, key), i18n.Base(lang))
}

// Resolve fills the intent's slots: recognised values first, then the
// session context, then the intent's declared defaults.
func Resolve(in *intent.Intent, recognised message.SlotBag, sc message.SessionContext) message.SlotBag {
	out := make(message.SlotBag, len(in.Slots))
	for _, name := range in.Slots {
		if v := recognised[name]; v != "" {
			out[name] = v
		} else if v := sc.Slot(name); v != "" {
			out[name] = v
		} else if v := in.Defaults[name]; v != "" {
			out[name] = v
		}
	}
	return out
}

func satisfied(slots message.SlotBag, group []string) bool {
	for _, name := range group {
		if slots[name] != "" {
			return true
		}
	}
	return false
}
