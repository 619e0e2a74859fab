// Package platform connects the assistant to the browser page that owns the
// microphone and the speech synthesizer.
//
// The page opens a WebSocket to the bridge and announces its capabilities
// with a hello frame. The bridge then acts as the assistant's speech
// recognizer, synthesizer and audio sink, relaying commands to the page and
// its callbacks back. At most one page is attached; a new connection
// replaces the previous one.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

var (
	// ErrNotConnected is returned when no platform page is attached.
	ErrNotConnected = errors.New("platform: not connected")
	// ErrDisconnected is returned to playback waiting on a page that went away.
	ErrDisconnected = errors.New("platform: disconnected")
)

type peer struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() { close(p.done) })
}

// Bridge implements speech.Recognizer, tts.Engine and tts.AudioSink on top
// of a platform page.
type Bridge struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	peer     *peer
	hello    Message
	run      uint64
	emit     func(speech.Event)
	waiters  map[string]chan error
	onChange func()
}

// NewBridge creates a bridge. allowedOrigins restricts the pages that may
// attach; empty allows any origin.
func NewBridge(allowedOrigins []string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		logger:  logger.With("component", "platform"),
		waiters: make(map[string]chan error),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return b
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// OnChange registers fn to be called whenever a page attaches, announces
// its capabilities or detaches.
func (b *Bridge) OnChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Bridge) changed() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Connected reports whether a page is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer != nil
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("platform upgrade failed", "error", err)
		return
	}
	p := &peer{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	b.mu.Lock()
	old := b.peer
	b.mu.Unlock()
	if old != nil {
		b.logger.Info("platform replaced by a new connection")
		b.detach(old)
	}

	b.mu.Lock()
	b.peer = p
	b.hello = Message{}
	b.mu.Unlock()
	b.logger.Info("platform attached", "remote", r.RemoteAddr)
	b.changed()

	go b.writePump(p)
	b.readPump(p)
	b.detach(p)
}

// detach drops p if it is still the attached page: playback waiting on it
// fails and an active recognizer run ends.
func (b *Bridge) detach(p *peer) {
	p.close()

	b.mu.Lock()
	if b.peer != p {
		b.mu.Unlock()
		return
	}
	b.peer = nil
	b.hello = Message{}
	emit := b.emit
	b.emit = nil
	waiters := b.waiters
	b.waiters = make(map[string]chan error)
	b.mu.Unlock()

	for _, ch := range waiters {
		ch <- ErrDisconnected
	}
	if emit != nil {
		emit(speech.Event{Kind: speech.EventEnd})
	}
	b.logger.Info("platform detached")
	b.changed()
}

func (b *Bridge) readPump(p *peer) {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				b.logger.Warn("platform read failed", "error", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Warn("invalid platform frame", "error", err)
			continue
		}
		b.handle(p, msg)
	}
}

func (b *Bridge) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.logger.Warn("platform write failed", "error", err)
				p.close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		case <-p.done:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (b *Bridge) handle(p *peer, msg Message) {
	switch msg.Type {
	case TypeHello:
		b.mu.Lock()
		if b.peer == p {
			b.hello = msg
		}
		b.mu.Unlock()
		b.logger.Info("platform capabilities", "recognizer", msg.Recognizer, "synthesizer", msg.Synthesizer, "voices", len(msg.Voices))
		b.changed()

	case TypeRecognizerResult, TypeRecognizerError, TypeRecognizerEnd:
		b.mu.Lock()
		emit := b.emit
		current := b.run
		if msg.Type == TypeRecognizerEnd && msg.Run == current {
			b.emit = nil
		}
		b.mu.Unlock()
		if emit == nil || msg.Run != current {
			b.logger.Debug("dropping recognizer frame for old run", "run", msg.Run, "current", current)
			return
		}
		emit(recognizerEvent(msg))

	case TypeSynthEnd:
		b.finish("synth:"+msg.ID, msg.Error)
	case TypeAudioEnd:
		b.finish("audio:"+msg.ID, msg.Error)

	default:
		b.logger.Debug("unknown platform frame", "type", msg.Type)
	}
}

func recognizerEvent(msg Message) speech.Event {
	switch msg.Type {
	case TypeRecognizerError:
		return speech.Event{Kind: speech.EventError, Code: msg.Code}
	case TypeRecognizerEnd:
		return speech.Event{Kind: speech.EventEnd}
	}
	return speech.Event{Kind: speech.EventResult, Transcript: msg.Transcript, Final: msg.Final}
}

func (b *Bridge) finish(key, errText string) {
	b.mu.Lock()
	ch, ok := b.waiters[key]
	delete(b.waiters, key)
	b.mu.Unlock()
	if !ok {
		return
	}
	if errText != "" {
		ch <- fmt.Errorf("platform: %s", errText)
		return
	}
	ch <- nil
}

func (b *Bridge) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", msg.Type, err)
	}
	b.mu.Lock()
	p := b.peer
	b.mu.Unlock()
	if p == nil {
		return ErrNotConnected
	}
	select {
	case p.send <- data:
		return nil
	case <-p.done:
		return ErrDisconnected
	default:
		return fmt.Errorf("platform: send buffer full, dropping %s", msg.Type)
	}
}

// Available reports whether the page can recognize speech.
func (b *Bridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer != nil && b.hello.Recognizer
}

// Start asks the page to begin a recognizer run.
func (b *Bridge) Start(cfg speech.Config, emit func(speech.Event)) error {
	b.mu.Lock()
	if b.peer == nil || !b.hello.Recognizer {
		b.mu.Unlock()
		return speech.ErrUnsupported
	}
	b.run++
	run := b.run
	b.emit = emit
	b.mu.Unlock()

	if err := b.send(Message{Type: TypeRecognizerStart, Run: run, Config: &cfg}); err != nil {
		b.mu.Lock()
		if b.run == run {
			b.emit = nil
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// Stop asks the page to finish the current run.
func (b *Bridge) Stop() {
	b.mu.Lock()
	run := b.run
	b.mu.Unlock()
	if err := b.send(Message{Type: TypeRecognizerStop, Run: run}); err != nil {
		b.logger.Debug("recognizer stop not delivered", "error", err)
	}
}

// Synthesizer returns the bridge as a tts.Engine.
func (b *Bridge) Synthesizer() tts.Engine { return synthesizer{b} }

// Play sends rendered audio to the page and waits until it finished.
func (b *Bridge) Play(ctx context.Context, a tts.Audio) error {
	return b.roundTrip(ctx, "audio:"+a.ID,
		Message{Type: TypeAudioPlay, ID: a.ID, Audio: &a},
		Message{Type: TypeAudioStop, ID: a.ID})
}

// roundTrip sends req and waits for the matching end frame. When ctx ends
// first, cancel is sent.
func (b *Bridge) roundTrip(ctx context.Context, key string, req, cancel Message) error {
	ch := make(chan error, 1)
	b.mu.Lock()
	if b.peer == nil {
		b.mu.Unlock()
		return ErrNotConnected
	}
	b.waiters[key] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		if b.waiters[key] == ch {
			delete(b.waiters, key)
		}
		b.mu.Unlock()
	}()

	if err := b.send(req); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		if err := b.send(cancel); err != nil {
			b.logger.Debug("cancel not delivered", "type", cancel.Type, "error", err)
		}
		return ctx.Err()
	}
}

// synthesizer exposes the page's speechSynthesis. Its Available differs
// from the recognizer's, so it is a separate type.
type synthesizer struct{ b *Bridge }

func (s synthesizer) Available() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.b.peer != nil && s.b.hello.Synthesizer
}

func (s synthesizer) Voices() []tts.Voice {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return append([]tts.Voice(nil), s.b.hello.Voices...)
}

func (s synthesizer) Speak(ctx context.Context, u tts.Utterance) error {
	return s.b.roundTrip(ctx, "synth:"+u.ID,
		Message{Type: TypeSynthSpeak, ID: u.ID, Utterance: &u},
		Message{Type: TypeSynthCancel, ID: u.ID})
}

// Close detaches the current page, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	p := b.peer
	b.mu.Unlock()
	if p != nil {
		b.detach(p)
	}
	return nil
}
