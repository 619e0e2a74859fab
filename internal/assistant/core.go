// Package assistant hosts the voice assistant core: one event loop that
// owns the speech session, the classifier pipeline, the conversation
// manager and the synthesizer.
//
// Every component runs on the loop goroutine started by Run. Recognizer
// callbacks, remote chat completions and host calls are posted onto the
// loop as closures, so no component takes a lock. The exported methods are
// safe to call from any goroutine.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/conversation"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/dispatch"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/intent"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/settings"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/store"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts"
)

// ErrClosed is returned by calls made after the loop stopped.
var ErrClosed = errors.New("assistant: closed")

const (
	queueSize    = 64
	storeTimeout = 2 * time.Second
)

// Config holds the core's tunables.
type Config struct {
	DefaultLanguage     string
	EscalationThreshold float64
	HistoryLimit        int
	PersistContext      bool
	RemoteTimeout       time.Duration
	HistoryTurns        int
	Location            message.Location
}

// Deps are the collaborators of a Core. Recognizer, Engine and Client may
// be nil; the assistant then runs with reduced functionality. Store
// defaults to an in-memory store.
type Deps struct {
	Normalizer *phrase.Normalizer
	Table      *intent.Table
	Bundle     *i18n.Bundle
	Recognizer speech.Recognizer
	Engine     tts.Engine
	Client     conversation.Client
	Store      store.Store
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Core is the voice assistant. Create it with New and start its loop with
// Run.
type Core struct {
	logger *slog.Logger
	now    func() time.Time
	bundle *i18n.Bundle

	normalizer *phrase.Normalizer
	table      *intent.Table
	classifier *intent.Classifier
	dispatcher *dispatch.Dispatcher
	manager    *conversation.Manager
	session    *speech.Session
	synth      *tts.Synth
	repo       *settings.Repository

	settings settings.Settings
	tutorial bool

	// escalated is the phrase waiting for a remote answer. It is recorded
	// without a response if the request is superseded.
	escalated *message.Turn

	queue   chan func()
	done    chan struct{}
	subs    map[uint64]*subscriber
	nextSub uint64
}

// New builds a Core and restores persisted settings, the tutorial flag and,
// when enabled, the session context.
func New(ctx context.Context, cfg Config, deps Deps) (*Core, error) {
	if deps.Normalizer == nil || deps.Table == nil || deps.Bundle == nil {
		return nil, errors.New("assistant: normalizer, table and bundle are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	st := deps.Store
	if st == nil {
		st = store.NewMemory()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en-IN"
	}
	if cfg.EscalationThreshold == 0 {
		cfg.EscalationThreshold = dispatch.DefaultEscalationThreshold
	}

	c := &Core{
		logger:     logger.With("component", "assistant"),
		now:        now,
		bundle:     deps.Bundle,
		normalizer: deps.Normalizer,
		table:      deps.Table,
		classifier: intent.NewClassifier(deps.Table),
		repo:       settings.NewRepository(st, cfg.PersistContext, logger),
		queue:      make(chan func(), queueSize),
		done:       make(chan struct{}),
		subs:       make(map[uint64]*subscriber),
	}
	c.dispatcher = dispatch.New(deps.Table, deps.Bundle,
		dispatch.WithThreshold(cfg.EscalationThreshold),
		dispatch.WithLogger(logger.With("component", "dispatch")))
	c.manager = conversation.NewManager(deps.Client, c.post, deps.Bundle,
		conversation.WithLimit(cfg.HistoryLimit),
		conversation.WithTimeout(cfg.RemoteTimeout),
		conversation.WithHistoryTurns(cfg.HistoryTurns),
		conversation.WithLocation(cfg.Location),
		conversation.WithClock(now),
		conversation.WithLogger(logger))
	c.synth = tts.NewSynth(deps.Engine, logger.With("component", "tts"))

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	s, err := c.repo.Load(sctx, settings.Default(cfg.DefaultLanguage))
	if err != nil {
		c.logger.Warn("using default settings", "error", err)
	}
	c.settings = s
	if c.tutorial, err = c.repo.TutorialShown(sctx); err != nil {
		c.logger.Warn("reading tutorial flag", "error", err)
	}
	if sc, ok, err := c.repo.LoadContext(sctx, s); err != nil {
		c.logger.Warn("restoring session context", "error", err)
	} else if ok {
		c.manager.Restore(sc)
	}

	c.session = speech.New(deps.Recognizer, c.post, speechHandler{c}, deps.Bundle, speech.Config{
		Language:       s.RecognizerLanguage,
		Continuous:     s.Continuous,
		InterimResults: s.InterimResults,
	}, speech.WithClock(now), speech.WithLogger(logger.With("component", "speech")))

	return c, nil
}

// Run drives the event loop until ctx is cancelled. It stops listening,
// cancels speech and remote calls, and closes every subscription before
// returning.
func (c *Core) Run(ctx context.Context) error {
	c.logger.Info("assistant started", "language", c.settings.RecognizerLanguage)
	c.announceCapabilities()
	for {
		select {
		case fn := <-c.queue:
			c.runSafely(fn)
		case <-ctx.Done():
			c.shutdown()
			return nil
		}
	}
}

func (c *Core) runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("assistant task panicked", "panic", r)
		}
	}()
	fn()
}

func (c *Core) shutdown() {
	close(c.done)
	c.session.Stop()
	c.synth.Close()
	c.manager.Close()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.logger.Info("assistant stopped")
}

// post schedules fn on the loop. After shutdown it drops fn.
func (c *Core) post(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.done:
	}
}

// call runs fn on the loop and waits for it.
func (c *Core) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.queue <- func() { defer close(finished); fn() }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Subscribe registers for events. The channel is closed by cancel or when
// the loop stops.
func (c *Core) Subscribe(buffer int) (<-chan Event, func(), error) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)
	var id uint64
	err := c.call(func() {
		c.nextSub++
		id = c.nextSub
		c.subs[id] = &subscriber{ch: ch}
	})
	if err != nil {
		return nil, nil, err
	}
	cancel := func() {
		c.post(func() {
			if sub, ok := c.subs[id]; ok {
				close(sub.ch)
				delete(c.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

// StartListening starts the recognizer. It is a no-op while listening and
// returns speech.ErrUnsupported when no recognizer is available.
func (c *Core) StartListening() error {
	var err error
	if cerr := c.call(func() {
		c.synth.Cancel()
		err = c.session.Start()
	}); cerr != nil {
		return cerr
	}
	return err
}

// StopListening stops the recognizer; any interim transcript is finalized.
func (c *Core) StopListening() error {
	return c.call(c.session.Stop)
}

// Settings returns the current settings.
func (c *Core) Settings() (settings.Settings, error) {
	var s settings.Settings
	err := c.call(func() { s = c.settings })
	return s, err
}

// UpdateSettings applies a partial update. A language change while
// listening restarts the recognizer without dropping finals.
func (c *Core) UpdateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	var (
		out settings.Settings
		err error
	)
	if cerr := c.call(func() { out, err = c.updateSettings(ctx, p) }); cerr != nil {
		return settings.Settings{}, cerr
	}
	return out, err
}

func (c *Core) updateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	next, err := p.Apply(c.settings)
	if err != nil {
		return c.settings, err
	}
	prev := c.settings
	c.settings = next

	c.session.Configure(next.Continuous, next.InterimResults)
	c.session.SetLanguage(next.RecognizerLanguage)
	if !next.AutoSpeak && prev.AutoSpeak {
		c.synth.Cancel()
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := c.repo.Save(sctx, next); err != nil {
		c.logger.Warn("saving settings", "error", err)
	}
	if c.repo.ContextPersisted(prev) != c.repo.ContextPersisted(next) {
		c.persistContext(sctx)
	}
	c.logger.Debug("settings updated", "language", next.RecognizerLanguage, "auto_speak", next.AutoSpeak)
	return next, nil
}

// SendText runs a typed phrase through the pipeline and returns the local
// outcomes. Outcomes of a remote answer arrive later as events.
func (c *Core) SendText(text string) ([]message.Outcome, error) {
	var outs []message.Outcome
	err := c.call(func() {
		lang := phrase.Detect(text, phrase.ForTag(c.settings.RecognizerLanguage))
		tag := c.settings.RecognizerLanguage
		if phrase.ForTag(tag) != lang {
			tag = string(lang)
		}
		outs = c.handlePhrase(text, tag)
	})
	return outs, err
}

// History returns the conversation log, oldest first.
func (c *Core) History() ([]message.Turn, error) {
	var turns []message.Turn
	err := c.call(func() { turns = c.manager.Turns() })
	return turns, err
}

// Transcripts returns the recent final transcripts, oldest first.
func (c *Core) Transcripts() ([]speech.Entry, error) {
	var entries []speech.Entry
	err := c.call(func() { entries = c.session.History() })
	return entries, err
}

// ClearHistory empties the conversation log and the transcript history.
// The session context is kept.
func (c *Core) ClearHistory() error {
	return c.call(func() {
		c.manager.Clear()
		c.session.ClearHistory()
	})
}

// Context returns a snapshot of the session context.
func (c *Core) Context() (message.SessionContext, error) {
	var sc message.SessionContext
	err := c.call(func() { sc = c.manager.Context() })
	return sc, err
}

// TutorialShown reports whether the tutorial was already shown.
func (c *Core) TutorialShown() (bool, error) {
	var shown bool
	err := c.call(func() { shown = c.tutorial })
	return shown, err
}

// SetTutorialShown records the tutorial flag.
func (c *Core) SetTutorialShown(ctx context.Context, shown bool) error {
	var err error
	if cerr := c.call(func() {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if err = c.repo.SetTutorialShown(sctx, shown); err == nil {
			c.tutorial = shown
		}
	}); cerr != nil {
		return cerr
	}
	if err != nil {
		return fmt.Errorf("saving tutorial flag: %w", err)
	}
	return nil
}

// Capabilities reports the current platform capabilities.
func (c *Core) Capabilities() (Capabilities, error) {
	var caps Capabilities
	err := c.call(func() { caps = c.capabilities() })
	return caps, err
}

// RefreshCapabilities re-announces the capabilities, e.g. after the
// platform connected or went away. While the recognizer is gone the session
// is stopped.
func (c *Core) RefreshCapabilities() {
	c.post(func() {
		if !c.session.Available() {
			c.session.Stop()
		}
		c.announceCapabilities()
	})
}

func (c *Core) capabilities() Capabilities {
	return Capabilities{
		Recognizer:  c.session.Available(),
		Synthesizer: c.synth.Available(),
		Remote:      c.manager.Online(),
	}
}

func (c *Core) announceCapabilities() {
	caps := c.capabilities()
	c.logger.Info("capabilities", "recognizer", caps.Recognizer, "synthesizer", caps.Synthesizer, "remote", caps.Remote)
	c.broadcast(Event{Kind: EventCapability, Capabilities: &caps})
	if !caps.Recognizer {
		c.broadcast(Event{Kind: EventError, Error: speech.UnsupportedError(c.settings.RecognizerLanguage, c.bundle)})
	}
}

func (c *Core) persistContext(ctx context.Context) {
	if err := c.repo.SaveContext(ctx, c.manager.Context(), c.settings); err != nil {
		c.logger.Warn("saving session context", "error", err)
	}
}

// speechHandler receives session callbacks on the loop.
type speechHandler struct{ c *Core }

func (h speechHandler) OnInterim(text string) {
	h.c.broadcast(Event{Kind: EventInterim, Text: text})
}

func (h speechHandler) OnFinal(e speech.Entry) {
	h.c.broadcast(Event{Kind: EventFinal, Text: e.Transcript, Language: e.Language, At: e.At})
	h.c.handlePhrase(e.Transcript, e.Language)
}

func (h speechHandler) OnError(err *speech.Error) {
	h.c.broadcast(Event{Kind: EventError, Error: err})
}

func (h speechHandler) OnEnded() {}

func (h speechHandler) OnStateChange(s speech.State) {
	h.c.broadcast(Event{Kind: EventStateChange, State: s.String()})
}

func newTurnID() string { return uuid.NewString() }
