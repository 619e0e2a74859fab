package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
)

// Role of a history entry sent with a chat request.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one message of the context window sent to the server.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /voice/chat.
type Request struct {
	Message  string            `json:"message"`
	Language string            `json:"language"`
	Location *message.Location `json:"location,omitempty"`
	History  []HistoryEntry    `json:"history,omitempty"`
}

// Reply is the server's answer. Intent and NavigateTo are empty when the
// server did not set them.
type Reply struct {
	Text       string          `json:"response"`
	Intent     string          `json:"intent,omitempty"`
	NavigateTo string          `json:"navigate_to,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Client talks to the remote chat service.
type Client interface {
	Chat(ctx context.Context, req Request) (Reply, error)
}

// HTTPClient implements Client over the FarmHelp backend's JSON API.
type HTTPClient struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPClient creates a client for the service rooted at cfg.Endpoint.
// Timeouts come from the caller's context.
func NewHTTPClient(cfg config.ConversationConfig, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		client:   &http.Client{},
		logger:   logger.With("component", "chat-client"),
	}
}

// Chat posts req to {endpoint}/voice/chat.
func (c *HTTPClient) Chat(ctx context.Context, req Request) (Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("marshalling chat request: %w", err)
	}

	reqURL := c.endpoint + "/voice/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("creating request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("chat request", "url", reqURL, "request_id", requestID, "language", req.Language, "history", len(req.History))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Reply{}, fmt.Errorf("chat failed (status %d): %s", resp.StatusCode, respBody)
	}

	// navigate_to and data may be JSON null.
	var raw struct {
		Response   string          `json:"response"`
		Intent     *string         `json:"intent"`
		NavigateTo *string         `json:"navigate_to"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Reply{}, fmt.Errorf("decoding chat response: %w", err)
	}

	reply := Reply{Text: raw.Response}
	if raw.Intent != nil {
		reply.Intent = *raw.Intent
	}
	if raw.NavigateTo != nil {
		reply.NavigateTo = *raw.NavigateTo
	}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		reply.Data = raw.Data
	}
	c.logger.Debug("chat reply", "request_id", requestID, "intent", reply.Intent, "navigate_to", reply.NavigateTo)
	return reply, nil
}
