// Package http implements the HTTP/WebSocket transport for the assistant.
//
// This transport exposes a REST API for listening control, settings, typed
// phrases, history and the tutorial flag, a WebSocket endpoint streaming
// assistant events, and the platform bridge endpoint the browser page
// attaches to. It is best suited for the web client.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/assistant"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
	_ "github.com/ankitpatel990/KrishiNiti-sub001/internal/docs"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/settings"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxBodySize = 64 << 10
)

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	platform http.Handler
	upgrader websocket.Upgrader
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP transport. platform, when non-nil, is mounted at
// /platform.
func New(cfg config.HTTPConfig, platform http.Handler, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		port:     cfg.Port,
		platform: platform,
		logger:   logger.With("transport", "http"),
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the routes serving a.
func (t *Transport) Handler(a transport.Assistant) http.Handler {
	h := &handlers{a: a, logger: t.logger, upgrader: &t.upgrader}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /listen/start", h.startListening)
	mux.HandleFunc("POST /listen/stop", h.stopListening)
	mux.HandleFunc("GET /settings", h.getSettings)
	mux.HandleFunc("PATCH /settings", h.patchSettings)
	mux.HandleFunc("POST /text", h.sendText)
	mux.HandleFunc("GET /history", h.getHistory)
	mux.HandleFunc("DELETE /history", h.clearHistory)
	mux.HandleFunc("GET /context", h.getContext)
	mux.HandleFunc("GET /tutorial", h.getTutorial)
	mux.HandleFunc("PUT /tutorial", h.putTutorial)
	mux.HandleFunc("GET /capabilities", h.getCapabilities)

	// GET /events: WebSocket stream of assistant events.
	mux.HandleFunc("GET /events", h.events)

	// GET /platform: the browser page's recognizer and synthesizer bridge.
	if t.platform != nil {
		mux.Handle("GET /platform", t.platform)
	}

	// Swagger UI: serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// Listen starts the HTTP server and serves a until ctx is cancelled.
func (t *Transport) Listen(ctx context.Context, a transport.Assistant) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.logger.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		t.logger.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

type handlers struct {
	a        transport.Assistant
	logger   *slog.Logger
	upgrader *websocket.Upgrader
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// TextRequest is a typed phrase.
type TextRequest struct {
	Text string `json:"text"`
}

// TextResponse lists the local outcomes of a typed phrase. Outcomes of a
// remote answer arrive on /events.
type TextResponse struct {
	Outcomes []message.Outcome `json:"outcomes"`
}

// HistoryResponse is the conversation log plus recent transcripts.
type HistoryResponse struct {
	Turns       []message.Turn `json:"turns"`
	Transcripts []speech.Entry `json:"transcripts"`
}

// TutorialState is the tutorial flag.
type TutorialState struct {
	Shown bool `json:"shown"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assistant.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "closed"})
	case errors.Is(err, speech.ErrUnsupported):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: string(speech.ErrNotSupported)})
	default:
		h.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

// startListening starts the recognizer.
//
// @Summary     Start listening
// @Description Starts the platform speech recognizer. Any utterance being spoken is cancelled first.
// @Tags        listening
// @Success     204
// @Failure     409  {object}  ErrorResponse  "No recognizer available"
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /listen/start [post]
func (h *handlers) startListening(w http.ResponseWriter, r *http.Request) {
	if err := h.a.StartListening(); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stopListening stops the recognizer.
//
// @Summary     Stop listening
// @Description Stops the recognizer; a pending interim transcript is finalized.
// @Tags        listening
// @Success     204
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /listen/stop [post]
func (h *handlers) stopListening(w http.ResponseWriter, r *http.Request) {
	if err := h.a.StopListening(); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getSettings returns the current settings.
//
// @Summary     Get settings
// @Tags        settings
// @Produce     json
// @Success     200  {object}  settings.Settings
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /settings [get]
func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.a.Settings()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// patchSettings applies a partial settings update.
//
// @Summary     Update settings
// @Description Applies the fields present in the body. Rate and pitch are clamped; a language change restarts an active recognizer.
// @Tags        settings
// @Accept      json
// @Produce     json
// @Param       patch  body      settings.Patch  true  "Fields to change"
// @Success     200    {object}  settings.Settings
// @Failure     400    {object}  ErrorResponse  "Invalid body or language tag"
// @Failure     503    {object}  ErrorResponse  "Assistant stopped"
// @Router      /settings [patch]
func (h *handlers) patchSettings(w http.ResponseWriter, r *http.Request) {
	var p settings.Patch
	if !decode(w, r, &p) {
		return
	}
	s, err := h.a.UpdateSettings(r.Context(), p)
	if err != nil {
		if errors.Is(err, assistant.ErrClosed) {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// sendText runs a typed phrase through the assistant.
//
// @Summary     Send a typed phrase
// @Description The phrase is classified like a final transcript. Local outcomes are returned; when the phrase
// @Description is escalated the remote answer is delivered on /events.
// @Tags        conversation
// @Accept      json
// @Produce     json
// @Param       request  body      TextRequest   true  "Typed phrase"
// @Success     200      {object}  TextResponse
// @Failure     400      {object}  ErrorResponse  "Invalid body or empty text"
// @Failure     503      {object}  ErrorResponse  "Assistant stopped"
// @Router      /text [post]
func (h *handlers) sendText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "text is required"})
		return
	}
	outs, err := h.a.SendText(req.Text)
	if err != nil {
		h.fail(w, err)
		return
	}
	if outs == nil {
		outs = []message.Outcome{}
	}
	writeJSON(w, http.StatusOK, TextResponse{Outcomes: outs})
}

// getHistory returns the conversation log.
//
// @Summary     Get conversation history
// @Tags        conversation
// @Produce     json
// @Success     200  {object}  HistoryResponse
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /history [get]
func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := h.a.History()
	if err != nil {
		h.fail(w, err)
		return
	}
	entries, err := h.a.Transcripts()
	if err != nil {
		h.fail(w, err)
		return
	}
	if turns == nil {
		turns = []message.Turn{}
	}
	if entries == nil {
		entries = []speech.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Turns: turns, Transcripts: entries})
}

// clearHistory empties the conversation log.
//
// @Summary     Clear conversation history
// @Description Clears the log and the transcripts. The session context is kept.
// @Tags        conversation
// @Success     204
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /history [delete]
func (h *handlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.a.ClearHistory(); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getContext returns the session context.
//
// @Summary     Get session context
// @Tags        conversation
// @Produce     json
// @Success     200  {object}  message.SessionContext
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /context [get]
func (h *handlers) getContext(w http.ResponseWriter, r *http.Request) {
	sc, err := h.a.Context()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// getTutorial returns the tutorial flag.
//
// @Summary     Get tutorial state
// @Tags        tutorial
// @Produce     json
// @Success     200  {object}  TutorialState
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /tutorial [get]
func (h *handlers) getTutorial(w http.ResponseWriter, r *http.Request) {
	shown, err := h.a.TutorialShown()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TutorialState{Shown: shown})
}

// putTutorial records the tutorial flag.
//
// @Summary     Set tutorial state
// @Tags        tutorial
// @Accept      json
// @Param       state  body  TutorialState  true  "Tutorial flag"
// @Success     204
// @Failure     400  {object}  ErrorResponse  "Invalid body"
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /tutorial [put]
func (h *handlers) putTutorial(w http.ResponseWriter, r *http.Request) {
	var st TutorialState
	if !decode(w, r, &st) {
		return
	}
	if err := h.a.SetTutorialShown(r.Context(), st.Shown); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getCapabilities reports the platform capabilities.
//
// @Summary     Get capabilities
// @Description Reports whether a recognizer, a synthesizer and the remote conversation are available.
// @Tags        platform
// @Produce     json
// @Success     200  {object}  assistant.Capabilities
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /capabilities [get]
func (h *handlers) getCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.a.Capabilities()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

// events streams assistant events over a WebSocket.
//
// @Summary     Stream assistant events
// @Description Upgrades to a WebSocket and sends one JSON assistant.Event per message: interim and final
// @Description transcripts, outcomes, errors, state and capability changes.
// @Tags        events
// @Success     101
// @Failure     503  {object}  ErrorResponse  "Assistant stopped"
// @Router      /events [get]
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	ch, cancel, err := h.a.Subscribe(0)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("events upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					h.logger.Debug("events read failed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "assistant stopped"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("events write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
