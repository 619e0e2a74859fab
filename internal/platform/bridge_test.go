package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type page struct {
	t    *testing.T
	conn *websocket.Conn
}

func newBridge(t *testing.T, origins ...string) (*Bridge, *httptest.Server) {
	t.Helper()
	b := NewBridge(origins, nil)
	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		_ = b.Close()
		srv.Close()
	})
	return b, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func attach(t *testing.T, b *Bridge, srv *httptest.Server, hello Message) *page {
	t.Helper()
	b.mu.Lock()
	prev := b.peer
	b.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &page{t: t, conn: conn}
	hello.Type = TypeHello
	p.send(hello)
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.peer != nil && b.peer != prev && b.hello.Type == TypeHello
	}, 2*time.Second, 5*time.Millisecond)
	return p
}

func (p *page) send(msg Message) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(msg))
}

func (p *page) expect(typ MessageType) Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	var msg Message
	require.NoError(p.t, json.Unmarshal(data, &msg))
	require.Equal(p.t, typ, msg.Type)
	return msg
}

func collect() (func(speech.Event), chan speech.Event) {
	events := make(chan speech.Event, 16)
	return func(e speech.Event) { events <- e }, events
}

func nextEvent(t *testing.T, events chan speech.Event) speech.Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no recognizer event")
		return speech.Event{}
	}
}

func TestHelloAnnouncesCapabilities(t *testing.T) {
	b, srv := newBridge(t)
	changes := make(chan struct{}, 8)
	b.OnChange(func() { changes <- struct{}{} })

	assert.False(t, b.Available())
	assert.False(t, b.Synthesizer().Available())

	voices := []tts.Voice{{ID: "v1", Name: "Lekha", Lang: "hi-IN"}}
	attach(t, b, srv, Message{Recognizer: true, Synthesizer: true, Voices: voices})

	assert.True(t, b.Connected())
	assert.True(t, b.Available())
	assert.True(t, b.Synthesizer().Available())
	assert.Equal(t, voices, b.Synthesizer().Voices())
	require.Eventually(t, func() bool { return len(changes) >= 2 }, 2*time.Second, 5*time.Millisecond,
		"attach and hello both notify")
}

func TestStartWithoutPlatform(t *testing.T) {
	b, _ := newBridge(t)
	emit, _ := collect()
	require.ErrorIs(t, b.Start(speech.Config{Language: "en-IN"}, emit), speech.ErrUnsupported)

	err := b.Synthesizer().Speak(context.Background(), tts.Utterance{ID: "u1", Text: "hello"})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestStartRequiresRecognizer(t *testing.T) {
	b, srv := newBridge(t)
	attach(t, b, srv, Message{Synthesizer: true})
	emit, _ := collect()
	require.ErrorIs(t, b.Start(speech.Config{}, emit), speech.ErrUnsupported)
}

func TestRecognizerRun(t *testing.T) {
	b, srv := newBridge(t)
	p := attach(t, b, srv, Message{Recognizer: true})
	emit, events := collect()

	cfg := speech.Config{Language: "hi-IN", Continuous: true, InterimResults: true}
	require.NoError(t, b.Start(cfg, emit))
	start := p.expect(TypeRecognizerStart)
	require.NotNil(t, start.Config)
	assert.Equal(t, cfg, *start.Config)
	run := start.Run

	p.send(Message{Type: TypeRecognizerResult, Run: run, Transcript: "गेहूं का"})
	p.send(Message{Type: TypeRecognizerResult, Run: run - 1, Transcript: "stale"})
	p.send(Message{Type: TypeRecognizerResult, Run: run, Transcript: "गेहूं का भाव", Final: true})
	p.send(Message{Type: TypeRecognizerError, Run: run, Code: "no-speech"})
	p.send(Message{Type: TypeRecognizerEnd, Run: run})

	assert.Equal(t, speech.Event{Kind: speech.EventResult, Transcript: "गेहूं का"}, nextEvent(t, events))
	assert.Equal(t, speech.Event{Kind: speech.EventResult, Transcript: "गेहूं का भाव", Final: true}, nextEvent(t, events))
	assert.Equal(t, speech.Event{Kind: speech.EventError, Code: "no-speech"}, nextEvent(t, events))
	assert.Equal(t, speech.Event{Kind: speech.EventEnd}, nextEvent(t, events))

	b.Stop()
	stop := p.expect(TypeRecognizerStop)
	assert.Equal(t, run, stop.Run)

	// Frames after the end of the run are dropped.
	p.send(Message{Type: TypeRecognizerResult, Run: run, Transcript: "late"})
	require.NoError(t, b.Start(cfg, emit))
	next := p.expect(TypeRecognizerStart)
	assert.Equal(t, run+1, next.Run)
	assert.Empty(t, events)
}

func TestSpeakWaitsForEnd(t *testing.T) {
	b, srv := newBridge(t)
	p := attach(t, b, srv, Message{Synthesizer: true})
	synth := b.Synthesizer()

	tests := []struct {
		name    string
		end     Message
		wantErr string
	}{
		{name: "finished", end: Message{Type: TypeSynthEnd}},
		{name: "failed", end: Message{Type: TypeSynthEnd, Error: "synthesis-failed"}, wantErr: "synthesis-failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tts.Utterance{ID: "utt-" + tt.name, Text: "namaste", Lang: "hi-IN", Rate: 1, Pitch: 1}
			done := make(chan error, 1)
			go func() { done <- synth.Speak(context.Background(), u) }()

			msg := p.expect(TypeSynthSpeak)
			require.NotNil(t, msg.Utterance)
			assert.Equal(t, u, *msg.Utterance)

			end := tt.end
			end.ID = u.ID
			p.send(end)

			err := <-done
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSpeakCancel(t *testing.T) {
	b, srv := newBridge(t)
	p := attach(t, b, srv, Message{Synthesizer: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Synthesizer().Speak(ctx, tts.Utterance{ID: "utt-1", Text: "hello"}) }()

	p.expect(TypeSynthSpeak)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "utt-1", p.expect(TypeSynthCancel).ID)

	// A late end frame for a cancelled utterance is ignored.
	p.send(Message{Type: TypeSynthEnd, ID: "utt-1"})
}

func TestPlayAudio(t *testing.T) {
	b, srv := newBridge(t)
	p := attach(t, b, srv, Message{})

	audio := tts.Audio{ID: "utt-3", Data: []byte("RIFF...."), ContentType: "audio/wav", SampleRate: 22050, Channels: 1}
	done := make(chan error, 1)
	go func() { done <- b.Play(context.Background(), audio) }()

	msg := p.expect(TypeAudioPlay)
	require.NotNil(t, msg.Audio)
	assert.Equal(t, audio, *msg.Audio)
	p.send(Message{Type: TypeAudioEnd, ID: "utt-3"})
	require.NoError(t, <-done)
}

func TestDisconnectEndsRunAndFailsPlayback(t *testing.T) {
	b, srv := newBridge(t)
	changes := make(chan struct{}, 8)
	b.OnChange(func() { changes <- struct{}{} })
	p := attach(t, b, srv, Message{Recognizer: true, Synthesizer: true})

	emit, events := collect()
	require.NoError(t, b.Start(speech.Config{Language: "en-IN"}, emit))
	p.expect(TypeRecognizerStart)

	done := make(chan error, 1)
	go func() { done <- b.Play(context.Background(), tts.Audio{ID: "a1"}) }()
	p.expect(TypeAudioPlay)

	for len(changes) > 0 {
		<-changes
	}
	require.NoError(t, p.conn.Close())

	assert.Equal(t, speech.Event{Kind: speech.EventEnd}, nextEvent(t, events))
	require.ErrorIs(t, <-done, ErrDisconnected)
	assert.False(t, b.Connected())
	assert.False(t, b.Available())
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("detach did not notify")
	}
}

func TestNewConnectionReplacesOld(t *testing.T) {
	b, srv := newBridge(t)
	first := attach(t, b, srv, Message{Recognizer: true})
	emit, events := collect()
	require.NoError(t, b.Start(speech.Config{}, emit))
	first.expect(TypeRecognizerStart)

	second := attach(t, b, srv, Message{Synthesizer: true})
	assert.Equal(t, speech.Event{Kind: speech.EventEnd}, nextEvent(t, events))
	assert.False(t, b.Available(), "capabilities come from the new page")
	assert.True(t, b.Synthesizer().Available())

	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.conn.ReadMessage()
	require.Error(t, err)

	done := make(chan error, 1)
	go func() { done <- b.Synthesizer().Speak(context.Background(), tts.Utterance{ID: "u"}) }()
	second.expect(TypeSynthSpeak)
	second.send(Message{Type: TypeSynthEnd, ID: "u"})
	require.NoError(t, <-done)
}

func TestOriginCheck(t *testing.T) {
	b, srv := newBridge(t, "https://farmhelp.example")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, b.Connected())

	header.Set("Origin", "https://farmhelp.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	require.Eventually(t, b.Connected, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
}
