package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/assistant"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/settings"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/transport/transporttest"
)

func TestMain(m *testing.M) {
	// go-redis starts a package-level clock goroutine on import.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.startGlobalTimeCache.func1"))
}

func newServer(t *testing.T, a *transporttest.Assistant, platform http.Handler) *httptest.Server {
	t.Helper()
	tr := New(config.HTTPConfig{AllowedOrigins: []string{"https://farmhelp.example"}}, platform, nil)
	srv := httptest.NewServer(tr.Handler(a))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestListening(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)

	resp := do(t, srv, http.MethodPost, "/listen/start", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, a.Listening())

	resp = do(t, srv, http.MethodPost, "/listen/stop", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, a.Listening())
}

func TestStartListeningUnsupported(t *testing.T) {
	a := transporttest.New()
	a.StartErr = speech.ErrUnsupported
	srv := newServer(t, a, nil)

	resp := do(t, srv, http.MethodPost, "/listen/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "unsupported", body.Code)
}

func TestSettings(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)

	resp := do(t, srv, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, settings.Default("en-IN"), decodeBody[settings.Settings](t, resp))

	resp = do(t, srv, http.MethodPatch, "/settings", `{"recognizer_language":"hi-IN","tts_rate":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[settings.Settings](t, resp)
	assert.Equal(t, "hi-IN", got.RecognizerLanguage)
	assert.Equal(t, 2.0, got.TTSRate, "rate is clamped")

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"tts_rate":`},
		{name: "bad language", body: `{"recognizer_language":"not a tag!"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPatch, "/settings", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSendText(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)

	resp := do(t, srv, http.MethodPost, "/text", `{"text":"wheat price"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[TextResponse](t, resp)
	assert.Equal(t, []message.Outcome{message.Navigate("/apmc")}, body.Outcomes)
	assert.Equal(t, []string{"wheat price"}, a.Texts())

	resp = do(t, srv, http.MethodPost, "/text", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)
	_, err := a.SendText("wheat price")
	require.NoError(t, err)

	resp := do(t, srv, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[HistoryResponse](t, resp)
	require.Len(t, body.Turns, 1)
	assert.Equal(t, "navigate_apmc", body.Turns[0].Recognition.Intent)
	assert.NotNil(t, body.Transcripts)

	resp = do(t, srv, http.MethodDelete, "/history", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	turns, _ := a.History()
	assert.Empty(t, turns)

	resp = do(t, srv, http.MethodGet, "/context", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "wheat", decodeBody[message.SessionContext](t, resp).LastCrop)
}

func TestTutorial(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)

	resp := do(t, srv, http.MethodGet, "/tutorial", "")
	assert.False(t, decodeBody[TutorialState](t, resp).Shown)

	resp = do(t, srv, http.MethodPut, "/tutorial", `{"shown":true}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/tutorial", "")
	assert.True(t, decodeBody[TutorialState](t, resp).Shown)
}

func TestCapabilities(t *testing.T) {
	a := transporttest.New()
	a.SetCapabilities(assistant.Capabilities{Synthesizer: true, Remote: true})
	srv := newServer(t, a, nil)

	resp := do(t, srv, http.MethodGet, "/capabilities", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, assistant.Capabilities{Synthesizer: true, Remote: true}, decodeBody[assistant.Capabilities](t, resp))
}

func TestClosedAssistant(t *testing.T) {
	a := transporttest.New()
	a.Err = assistant.ErrClosed
	srv := newServer(t, a, nil)

	for _, path := range []string{"/settings", "/history", "/tutorial", "/capabilities", "/context"} {
		resp := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestInternalError(t *testing.T) {
	a := transporttest.New()
	a.Err = errors.New("store unavailable")
	srv := newServer(t, a, nil)

	resp := do(t, srv, http.MethodPut, "/tutorial", `{"shown":true}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "store unavailable", decodeBody[ErrorResponse](t, resp).Error)
}

func TestPlatformMount(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)
	resp := do(t, srv, http.MethodGet, "/platform", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mounted := newServer(t, a, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	resp = do(t, mounted, http.MethodGet, "/platform", "")
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestSwagger(t *testing.T) {
	srv := newServer(t, transporttest.New(), nil)
	resp := do(t, srv, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeBody[map[string]any](t, resp)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/text")
	assert.Contains(t, paths, "/settings")
}

func dialEvents(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", header)
}

func TestEventsStream(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)

	conn, _, err := dialEvents(t, srv, "https://farmhelp.example")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	out := message.Navigate("/weather")
	a.Publish(assistant.Event{Kind: assistant.EventOutcome, Outcome: &out})
	a.Publish(assistant.Event{Kind: assistant.EventInterim, Text: "mausam"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev assistant.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, assistant.EventOutcome, ev.Kind)
	require.NotNil(t, ev.Outcome)
	assert.Equal(t, "/weather", ev.Outcome.Route)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, assistant.EventInterim, ev.Kind)
	assert.Equal(t, "mausam", ev.Text)

	// Closing the subscription closes the socket.
	a.CloseSubscribers()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestEventsUnsubscribeOnDisconnect(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)

	conn, _, err := dialEvents(t, srv, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return a.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEventsRejectsForeignOrigin(t *testing.T) {
	a := transporttest.New()
	srv := newServer(t, a, nil)

	_, resp, err := dialEvents(t, srv, "https://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Eventually(t, func() bool { return a.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
