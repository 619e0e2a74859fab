// Package message defines the core data types flowing through the assistant
// pipeline: recognition results, dispatch outcomes, conversation turns and
// the session context that carries slot values between turns.
package message

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
)

// Unknown is the intent id of a phrase that matched nothing above the floor.
const Unknown = "UNKNOWN"

// SlotBag maps slot names (commodity, crop, disease, location, horizon) to
// canonical values. A missing slot means "inherit from session context".
type SlotBag map[string]string

// Clone returns an independent copy. The clone of a nil bag is an empty bag.
func (b SlotBag) Clone() SlotBag {
	out := make(SlotBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// String renders the bag in key order, e.g. "commodity=wheat location=gujarat".
func (b SlotBag) String() string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + b[k]
	}
	return strings.Join(parts, " ")
}

// Recognition is the classifier's verdict for one phrase.
type Recognition struct {
	Intent         string  `json:"intent"`
	Confidence     float64 `json:"confidence"`
	Slots          SlotBag `json:"slots,omitempty"`
	MatchedPattern string  `json:"matched_pattern_id,omitempty"`
}

// IsUnknown reports whether nothing matched.
func (r Recognition) IsUnknown() bool {
	return r.Intent == "" || r.Intent == Unknown
}

// UnknownRecognition is the fallback result with confidence 0.
func UnknownRecognition() Recognition {
	return Recognition{Intent: Unknown, Slots: SlotBag{}}
}

// OutcomeKind tags the variants of Outcome.
type OutcomeKind string

const (
	OutcomeNavigate OutcomeKind = "navigate"
	OutcomeQuery    OutcomeKind = "query"
	OutcomeSpeak    OutcomeKind = "speak"
	OutcomeEscalate OutcomeKind = "escalate"
	OutcomeNoop     OutcomeKind = "noop"
	// OutcomeSignal is a side-channel marker for the host (for example
	// opening the help modal). It never changes the route.
	OutcomeSignal OutcomeKind = "signal"
)

// Signals understood by the host.
const (
	SignalOpenHelp = "open_help"
)

// Outcome is one action the host should carry out. Only the fields relevant
// to Kind are set.
type Outcome struct {
	Kind      OutcomeKind     `json:"kind"`
	Route     string          `json:"route,omitempty"`
	QuerySpec string          `json:"query_spec,omitempty"`
	Slots     SlotBag         `json:"resolved_slots,omitempty"`
	Text      string          `json:"text,omitempty"`
	Language  string          `json:"language,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Signal    string          `json:"signal,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	TurnID    string          `json:"turn_id,omitempty"`
}

// Navigate asks the host router to change route.
func Navigate(route string) Outcome {
	return Outcome{Kind: OutcomeNavigate, Route: route}
}

// Query asks the host to fetch data described by query with the resolved slots.
func Query(query string, slots SlotBag) Outcome {
	return Outcome{Kind: OutcomeQuery, QuerySpec: query, Slots: slots.Clone()}
}

// Speak hands text to the synthesizer.
func Speak(text, language string) Outcome {
	return Outcome{Kind: OutcomeSpeak, Text: text, Language: language}
}

// Escalate hands the phrase to the remote conversation.
func Escalate() Outcome {
	return Outcome{Kind: OutcomeEscalate}
}

// Noop records that nothing could be done and why.
func Noop(reason string) Outcome {
	return Outcome{Kind: OutcomeNoop, Reason: reason}
}

// Signal emits a side-channel marker.
func Signal(name string) Outcome {
	return Outcome{Kind: OutcomeSignal, Signal: name}
}

// PendingSlot marks a query intent waiting for a slot the user has not given
// yet. The next phrase is classified with this intent as the assumed target.
type PendingSlot struct {
	Intent string   `json:"intent"`
	Slots  []string `json:"slots"`
}

// Key renders the marker as "<intent>.<slot>[|<slot>...]".
func (p PendingSlot) Key() string {
	return p.Intent + "." + strings.Join(p.Slots, "|")
}

// SessionContext is the running record of recent slot values. Readers other
// than the conversation manager only ever see copies.
type SessionContext struct {
	LastCommodity string       `json:"last_commodity,omitempty"`
	LastCrop      string       `json:"last_crop,omitempty"`
	LastDisease   string       `json:"last_disease,omitempty"`
	LastLocation  string       `json:"last_location,omitempty"`
	LastIntent    string       `json:"last_intent,omitempty"`
	LastUpdatedAt time.Time    `json:"last_updated_at,omitempty"`
	Pending       *PendingSlot `json:"pending,omitempty"`
}

// Snapshot returns a deep copy.
func (c SessionContext) Snapshot() SessionContext {
	if c.Pending != nil {
		p := *c.Pending
		p.Slots = append([]string(nil), c.Pending.Slots...)
		c.Pending = &p
	}
	return c
}

// Slot returns the context value that a missing slot inherits.
func (c SessionContext) Slot(name string) string {
	switch name {
	case "commodity":
		return c.LastCommodity
	case "crop":
		return c.LastCrop
	case "disease":
		return c.LastDisease
	case "location":
		return c.LastLocation
	}
	return ""
}

// Advance records extracted slot values. Slots the context does not track
// are ignored. It reports whether any field changed.
func (c *SessionContext) Advance(slots SlotBag) bool {
	changed := false
	set := func(field *string, name string) {
		if v, ok := slots[name]; ok && v != "" && *field != v {
			*field = v
			changed = true
		}
	}
	set(&c.LastCommodity, "commodity")
	set(&c.LastCrop, "crop")
	set(&c.LastDisease, "disease")
	set(&c.LastLocation, "location")
	return changed
}

// Origin says who produced a turn's response.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Turn is one (phrase, response) pair in the conversation log.
type Turn struct {
	ID             string          `json:"id"`
	Phrase         phrase.Phrase   `json:"user_phrase"`
	Recognition    Recognition     `json:"recognition"`
	ResponseText   string          `json:"response_text,omitempty"`
	ResponseOrigin Origin          `json:"response_origin"`
	Navigation     string          `json:"navigation,omitempty"`
	Data           json.RawMessage `json:"data_payload,omitempty"`
	Outcomes       []Outcome       `json:"outcomes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Location is the optional farmer location sent with remote chat requests.
type Location struct {
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
	Taluka   string `json:"taluka,omitempty"`
}

// IsZero reports whether no field is set.
func (l Location) IsZero() bool {
	return l.State == "" && l.District == "" && l.Taluka == ""
}

// ParseLocation reads a location slot value. Values are either "<state>" or
// "<state>/<district>".
func ParseLocation(v string) Location {
	state, district, _ := strings.Cut(v, "/")
	return Location{State: state, District: district}
}

// Merge overlays the non-empty fields of o onto l.
func (l Location) Merge(o Location) Location {
	if o.State != "" {
		if o.State != l.State {
			l.District, l.Taluka = "", ""
		}
		l.State = o.State
	}
	if o.District != "" {
		if o.District != l.District {
			l.Taluka = ""
		}
		l.District = o.District
	}
	if o.Taluka != "" {
		l.Taluka = o.Taluka
	}
	return l
}
