package speech

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"
)

// State is the listening state of a Session.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Handler receives session events. Calls happen on the session's executor.
type Handler interface {
	OnInterim(text string)
	OnFinal(e Entry)
	OnError(err *Error)
	OnEnded()
	OnStateChange(s State)
}

// Session owns the platform recognizer. All methods, and every callback it
// makes, run on the executor passed to New; it takes no locks.
type Session struct {
	rec     Recognizer
	post    func(func())
	handler Handler
	strings *i18n.Bundle
	logger  *slog.Logger
	now     func() time.Time

	cfg      Config
	runLang  string
	state    State
	gen      uint64
	draining bool
	interim  string
	history  *History
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the timestamp source for history entries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates an idle session. post must run closures one at a time on the
// goroutine that calls the session's methods.
func New(rec Recognizer, post func(func()), h Handler, strings *i18n.Bundle, cfg Config, opts ...Option) *Session {
	s := &Session{
		rec:     rec,
		post:    post,
		handler: h,
		strings: strings,
		logger:  slog.Default(),
		now:     time.Now,
		cfg:     cfg,
		history: NewHistory(HistorySize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Config returns the configuration the next run will use.
func (s *Session) Config() Config { return s.cfg }

// Available reports whether the platform recognizer can be used.
func (s *Session) Available() bool { return s.rec != nil && s.rec.Available() }

// History returns the final transcripts, oldest first.
func (s *Session) History() []Entry { return s.history.Entries() }

// ClearHistory drops all stored transcripts.
func (s *Session) ClearHistory() { s.history.Clear() }

// Start moves Idle to Listening. Starting while listening is a no-op.
// Failures are reported through OnError as well as returned.
func (s *Session) Start() error {
	if !s.Available() {
		s.handler.OnError(UnsupportedError(s.cfg.Language, s.strings))
		return ErrUnsupported
	}
	if s.state == Listening {
		return nil
	}
	if err := s.begin(); err != nil {
		s.logger.Warn("recognizer start failed", "error", err)
		s.handler.OnError(s.startError(err))
		return err
	}
	s.state = Listening
	s.handler.OnStateChange(Listening)
	return nil
}

func (s *Session) startError(err error) *Error {
	if errors.Is(err, ErrUnsupported) {
		return UnsupportedError(s.cfg.Language, s.strings)
	}
	return newError("", s.cfg.Language, s.strings)
}

func (s *Session) begin() error {
	s.gen++
	s.interim = ""
	s.runLang = s.cfg.Language
	if err := s.rec.Start(s.cfg, s.emitter(s.gen)); err != nil {
		s.gen++
		return fmt.Errorf("starting recognizer: %w", err)
	}
	s.logger.Debug("recognizer started", "generation", s.gen, "language", s.cfg.Language)
	return nil
}

// Stop moves Listening to Idle. A pending interim transcript is flushed as
// a final one before the session reports ended; later callbacks from the
// stopped run are ignored.
func (s *Session) Stop() {
	if s.state == Idle {
		return
	}
	if s.interim != "" && !s.draining {
		s.final(s.interim)
	}
	s.rec.Stop()
	s.toIdle()
	s.handler.OnEnded()
}

// SetLanguage changes the recognition language. While listening the current
// run is drained and a new run starts when the recognizer reports its end;
// finals of the old run still arrive, in-flight interims are discarded.
func (s *Session) SetLanguage(lang string) {
	if lang == s.cfg.Language {
		return
	}
	s.cfg.Language = lang
	if s.state != Listening || s.draining {
		return
	}
	s.logger.Debug("restarting recognizer for language change", "language", lang)
	s.interim = ""
	s.draining = true
	s.rec.Stop()
}

// Configure replaces the continuous and interim flags used by the next run.
func (s *Session) Configure(continuous, interim bool) {
	s.cfg.Continuous = continuous
	s.cfg.InterimResults = interim
}

func (s *Session) emitter(gen uint64) func(Event) {
	return func(ev Event) {
		s.post(func() { s.handle(gen, ev) })
	}
}

func (s *Session) handle(gen uint64, ev Event) {
	if gen != s.gen || s.state != Listening {
		s.logger.Debug("dropping stale recognizer event", "generation", gen, "current", s.gen, "kind", ev.Kind)
		return
	}
	if s.draining {
		s.handleDraining(ev)
		return
	}

	switch ev.Kind {
	case EventResult:
		if ev.Final {
			s.interim = ""
			s.final(ev.Transcript)
			return
		}
		s.interim = ev.Transcript
		s.handler.OnInterim(ev.Transcript)
	case EventError:
		err := newError(ev.Code, s.runLang, s.strings)
		s.logger.Info("recognizer error", "kind", err.Kind, "code", ev.Code)
		s.toIdle()
		s.handler.OnError(err)
		s.handler.OnEnded()
	case EventEnd:
		if s.interim != "" {
			s.final(s.interim)
		}
		s.toIdle()
		s.handler.OnEnded()
	}
}

func (s *Session) handleDraining(ev Event) {
	switch ev.Kind {
	case EventResult:
		if ev.Final {
			s.final(ev.Transcript)
		}
	case EventError:
		if ev.Code == "aborted" {
			return
		}
		err := newError(ev.Code, s.runLang, s.strings)
		s.toIdle()
		s.handler.OnError(err)
		s.handler.OnEnded()
	case EventEnd:
		s.draining = false
		if err := s.begin(); err != nil {
			s.logger.Warn("recognizer restart failed", "error", err)
			s.toIdle()
			s.handler.OnError(s.startError(err))
			s.handler.OnEnded()
		}
	}
}

func (s *Session) final(text string) {
	e := Entry{Transcript: text, Language: s.runLang, At: s.now()}
	s.history.Add(e)
	s.handler.OnFinal(e)
}

func (s *Session) toIdle() {
	s.state = Idle
	s.gen++
	s.draining = false
	s.interim = ""
	s.handler.OnStateChange(Idle)
}
