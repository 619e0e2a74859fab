// Package transporttest provides an in-memory transport.Assistant for
// transport tests.
package transporttest

import (
	"context"
	"strings"
	"sync"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/assistant"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/settings"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
)

// Assistant records calls and answers with canned data. Typed phrases
// containing "price" navigate to /apmc; everything else escalates.
type Assistant struct {
	mu        sync.Mutex
	settings  settings.Settings
	turns     []message.Turn
	texts     []string
	listening bool
	tutorial  bool
	caps      assistant.Capabilities
	subs      []chan assistant.Event

	// Err, when set, is returned from every call.
	Err error
	// StartErr is returned from StartListening.
	StartErr error
}

// New returns a fake with default settings.
func New() *Assistant {
	return &Assistant{
		settings: settings.Default("en-IN"),
		caps:     assistant.Capabilities{Recognizer: true, Synthesizer: true},
	}
}

// Publish delivers ev to every subscriber.
func (a *Assistant) Publish(ev assistant.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range a.subs {
		ch <- ev
	}
}

// Subscribers returns the number of open subscriptions.
func (a *Assistant) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

// SetCapabilities changes what Capabilities reports.
func (a *Assistant) SetCapabilities(c assistant.Capabilities) {
	a.mu.Lock()
	a.caps = c
	a.mu.Unlock()
}

// Listening reports whether StartListening was called last.
func (a *Assistant) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// Texts returns the typed phrases received.
func (a *Assistant) Texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

func (a *Assistant) Subscribe(buffer int) (<-chan assistant.Event, func(), error) {
	if a.Err != nil {
		return nil, nil, a.Err
	}
	if buffer <= 0 {
		buffer = assistant.DefaultSubscriberBuffer
	}
	ch := make(chan assistant.Event, buffer)
	a.mu.Lock()
	a.subs = append(a.subs, ch)
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, c := range a.subs {
			if c == ch {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

// CloseSubscribers closes every subscription, as a stopping loop does.
func (a *Assistant) CloseSubscribers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range a.subs {
		close(ch)
	}
	a.subs = nil
}

func (a *Assistant) StartListening() error {
	if a.Err != nil {
		return a.Err
	}
	if a.StartErr != nil {
		return a.StartErr
	}
	a.mu.Lock()
	a.listening = true
	a.mu.Unlock()
	return nil
}

func (a *Assistant) StopListening() error {
	a.mu.Lock()
	a.listening = false
	a.mu.Unlock()
	return a.Err
}

func (a *Assistant) Settings() (settings.Settings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings, a.Err
}

func (a *Assistant) UpdateSettings(_ context.Context, p settings.Patch) (settings.Settings, error) {
	if a.Err != nil {
		return settings.Settings{}, a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next, err := p.Apply(a.settings)
	if err != nil {
		return a.settings, err
	}
	a.settings = next
	return next, nil
}

func (a *Assistant) SendText(text string) ([]message.Outcome, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)

	out := []message.Outcome{message.Escalate()}
	rec := message.UnknownRecognition()
	if strings.Contains(text, "price") {
		out = []message.Outcome{message.Navigate("/apmc")}
		rec = message.Recognition{Intent: "navigate_apmc", Confidence: 1, Slots: message.SlotBag{}}
	}
	a.turns = append(a.turns, message.Turn{ID: "turn-" + text, Recognition: rec, Outcomes: out})
	return out, nil
}

func (a *Assistant) History() ([]message.Turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]message.Turn(nil), a.turns...), a.Err
}

func (a *Assistant) Transcripts() ([]speech.Entry, error) {
	return nil, a.Err
}

func (a *Assistant) ClearHistory() error {
	a.mu.Lock()
	a.turns = nil
	a.mu.Unlock()
	return a.Err
}

func (a *Assistant) Context() (message.SessionContext, error) {
	return message.SessionContext{LastCrop: "wheat"}, a.Err
}

func (a *Assistant) TutorialShown() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tutorial, a.Err
}

func (a *Assistant) SetTutorialShown(_ context.Context, shown bool) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	a.tutorial = shown
	a.mu.Unlock()
	return nil
}

func (a *Assistant) Capabilities() (assistant.Capabilities, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps, a.Err
}
