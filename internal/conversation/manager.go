// Package conversation owns the conversation log and the session context,
// and runs remote chat turns when local classification is not enough.
//
// A Manager is confined to the assistant's event loop. Remote calls run on
// their own goroutine and report back through the loop's post function;
// replies to requests that were superseded in the meantime are dropped.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
)

const (
	DefaultLimit        = 50
	DefaultTimeout      = 10 * time.Second
	DefaultHistoryTurns = 3
)

// Answer is the result of one remote turn. When Err is set, Reply.Text holds
// the localized fallback message.
type Answer struct {
	RequestID uint64
	Phrase    phrase.Phrase
	Reply     Reply
	Err       error
}

// Failed reports whether the remote call did not produce a reply.
func (a Answer) Failed() bool { return a.Err != nil }

// Manager owns the turn log and the session context.
type Manager struct {
	client       Client
	post         func(func())
	bundle       *i18n.Bundle
	limit        int
	timeout      time.Duration
	historyTurns int
	location     message.Location
	now          func() time.Time
	logger       *slog.Logger

	turns  []message.Turn
	sc     message.SessionContext
	window *memory.ConversationBuffer

	base     context.Context
	stop     context.CancelFunc
	reqID    uint64
	inflight context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLimit bounds the turn log.
func WithLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithTimeout sets the remote call timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithHistoryTurns sets how many past turns are sent with each request.
func WithHistoryTurns(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.historyTurns = n
		}
	}
}

// WithLocation sets the user's home location sent with requests.
func WithLocation(l message.Location) Option {
	return func(m *Manager) { m.location = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager. A nil client means the remote conversation
// is unavailable. post must run the given function on the owning loop.
func NewManager(client Client, post func(func()), bundle *i18n.Bundle, opts ...Option) *Manager {
	base, stop := context.WithCancel(context.Background())
	m := &Manager{
		client:       client,
		post:         post,
		bundle:       bundle,
		limit:        DefaultLimit,
		timeout:      DefaultTimeout,
		historyTurns: DefaultHistoryTurns,
		now:          time.Now,
		logger:       slog.Default(),
		window:       memory.NewConversationBuffer(),
		base:         base,
		stop:         stop,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "conversation")
	return m
}

// Online reports whether remote turns are possible.
func (m *Manager) Online() bool { return m.client != nil }

// Context returns a snapshot of the session context.
func (m *Manager) Context() message.SessionContext { return m.sc.Snapshot() }

// Restore replaces the session context, e.g. with a persisted one.
func (m *Manager) Restore(sc message.SessionContext) { m.sc = sc.Snapshot() }

// SetPending installs or clears the pending-slot marker.
func (m *Manager) SetPending(p *message.PendingSlot) {
	if p == nil {
		m.sc.Pending = nil
		return
	}
	cp := message.PendingSlot{Intent: p.Intent, Slots: append([]string(nil), p.Slots...)}
	m.sc.Pending = &cp
}

// TakePending returns and clears the pending-slot marker.
func (m *Manager) TakePending() *message.PendingSlot {
	p := m.sc.Pending
	m.sc.Pending = nil
	return p
}

// Record appends t to the log, evicting the oldest turn beyond the limit,
// and advances the session context from the slots its recognition
// extracted. It returns the stored turn with ID and CreatedAt filled in.
func (m *Manager) Record(t message.Turn) message.Turn {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}
	if t.Recognition.Intent == "" {
		t.Recognition = message.UnknownRecognition()
	}

	m.turns = append(m.turns, t)
	if over := len(m.turns) - m.limit; over > 0 {
		m.turns = append(m.turns[:0:0], m.turns[over:]...)
	}

	changed := m.sc.Advance(t.Recognition.Slots)
	if !t.Recognition.IsUnknown() {
		changed = changed || m.sc.LastIntent != t.Recognition.Intent
		m.sc.LastIntent = t.Recognition.Intent
	}
	if changed {
		m.sc.LastUpdatedAt = t.CreatedAt
	}

	m.remember(t)
	return t
}

// Turns returns a copy of the log, oldest first.
func (m *Manager) Turns() []message.Turn {
	return append([]message.Turn(nil), m.turns...)
}

// Clear empties the log and the server context window. The session context
// is kept.
func (m *Manager) Clear() {
	m.turns = nil
	if err := m.window.Clear(context.Background()); err != nil {
		m.logger.Warn("clearing context window", "error", err)
	}
}

// remember appends the turn to the context window, keeping only the turns
// that are sent with requests.
func (m *Manager) remember(t message.Turn) {
	ctx := context.Background()
	if err := m.window.ChatHistory.AddUserMessage(ctx, t.Phrase.Raw); err != nil {
		m.logger.Warn("recording user message", "error", err)
		return
	}
	if err := m.window.ChatHistory.AddAIMessage(ctx, t.ResponseText); err != nil {
		m.logger.Warn("recording assistant message", "error", err)
		return
	}

	msgs, err := m.window.ChatHistory.Messages(ctx)
	if err != nil {
		m.logger.Warn("reading context window", "error", err)
		return
	}
	keep := 2 * m.historyTurns
	if len(msgs) <= keep {
		return
	}
	if err := m.window.Clear(ctx); err != nil {
		m.logger.Warn("trimming context window", "error", err)
		return
	}
	for _, msg := range msgs[len(msgs)-keep:] {
		if err := m.window.ChatHistory.AddMessage(ctx, msg); err != nil {
			m.logger.Warn("trimming context window", "error", err)
			return
		}
	}
}

// History returns the context window as request history entries.
func (m *Manager) History() []HistoryEntry {
	msgs, err := m.window.ChatHistory.Messages(context.Background())
	if err != nil {
		m.logger.Warn("reading context window", "error", err)
		return nil
	}
	out := make([]HistoryEntry, 0, len(msgs))
	for _, msg := range msgs {
		switch msg := msg.(type) {
		case llms.HumanChatMessage:
			out = append(out, HistoryEntry{Role: RoleUser, Content: msg.Content})
		case llms.AIChatMessage:
			out = append(out, HistoryEntry{Role: RoleAssistant, Content: msg.Content})
		}
	}
	return out
}

// Ask sends p to the remote conversation. Any call still in flight is
// cancelled and its answer will never be delivered. done runs on the loop
// with the answer of this call, unless a later Ask or Cancel supersedes it.
// It returns the request id.
func (m *Manager) Ask(p phrase.Phrase, lang string, done func(Answer)) uint64 {
	m.cancelInflight()
	m.reqID++
	id := m.reqID

	// The remote contract only knows the classification languages; the
	// recognizer tag still picks the language of the fallback text.
	reqLang := p.Language
	if !reqLang.Valid() {
		reqLang = phrase.ForTag(lang)
	}
	lang = i18n.Base(lang)
	if m.client == nil {
		a := Answer{RequestID: id, Phrase: p, Err: errors.New("remote conversation unavailable")}
		a.Reply.Text = m.bundle.Text(lang, "reply.service_unavailable")
		m.post(func() { m.deliver(a, done) })
		return id
	}

	req := Request{
		Message:  p.Raw,
		Language: string(reqLang),
		History:  m.History(),
	}
	if loc := m.requestLocation(); !loc.IsZero() {
		req.Location = &loc
	}

	ctx, cancel := context.WithTimeout(m.base, m.timeout)
	m.inflight = cancel
	logger := m.logger.With("request", id)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		reply, err := m.client.Chat(ctx, req)
		a := Answer{RequestID: id, Phrase: p, Reply: reply, Err: err}
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				logger.Debug("remote turn cancelled")
			} else {
				logger.Warn("remote turn failed", "error", err)
			}
			a.Reply = Reply{Text: m.bundle.Text(lang, "reply.service_unavailable")}
		}
		m.post(func() { m.deliver(a, done) })
	}()
	return id
}

func (m *Manager) deliver(a Answer, done func(Answer)) {
	if a.RequestID != m.reqID {
		m.logger.Debug("dropping superseded answer", "request", a.RequestID, "current", m.reqID)
		return
	}
	m.inflight = nil
	done(a)
}

// requestLocation is the configured location refined by the most recent
// location the user mentioned.
func (m *Manager) requestLocation() message.Location {
	if m.sc.LastLocation == "" {
		return m.location
	}
	return m.location.Merge(message.ParseLocation(m.sc.LastLocation))
}

// InFlight reports whether a remote call is in flight.
func (m *Manager) InFlight() bool { return m.inflight != nil }

// Cancel drops the in-flight call, if any.
func (m *Manager) Cancel() {
	m.cancelInflight()
	m.reqID++
}

func (m *Manager) cancelInflight() {
	if m.inflight != nil {
		m.inflight()
		m.inflight = nil
	}
}

// Close cancels remote calls and waits for their goroutines.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}
