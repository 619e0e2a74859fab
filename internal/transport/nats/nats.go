// Package nats implements the NATS transport for the assistant.
//
// Outcomes and other assistant events are published under the configured
// prefix, so dashboards and companion services can follow a session.
// Typed phrases and listening control are served as request/reply.
//
//	<prefix>.outcome.<kind>   navigate, query, speak, escalate, noop, signal
//	<prefix>.event.<kind>     interim, final, error, state, capability
//	<prefix>.text             request: {"text": "..."}  reply: TextReply
//	<prefix>.listen.start     reply: TextReply with Error set on failure
//	<prefix>.listen.stop
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/assistant"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/transport"
)

// TextRequest is the body of a <prefix>.text request.
type TextRequest struct {
	Text string `json:"text"`
}

// TextReply answers <prefix>.text and <prefix>.listen.* requests.
type TextReply struct {
	Outcomes []message.Outcome `json:"outcomes,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Transport implements transport.Transport over NATS.
type Transport struct {
	url    string
	prefix string
	logger *slog.Logger
	conn   *nats.Conn
}

// New creates a new NATS transport.
func New(cfg config.NATSConfig, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		url:    cfg.URL,
		prefix: strings.TrimSuffix(cfg.Prefix, "."),
		logger: logger.With("transport", "nats"),
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "nats" }

// Listen connects to the server, serves requests and publishes events until
// ctx is cancelled or the assistant stops.
func (t *Transport) Listen(ctx context.Context, a transport.Assistant) error {
	conn, err := nats.Connect(t.url,
		nats.Name("farmhelp-voice"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	t.conn = conn
	t.logger.Info("nats transport connected", "url", conn.ConnectedUrl(), "prefix", t.prefix)
	return t.Serve(ctx, conn, a)
}

// Serve runs on an established connection. The connection is drained when
// Serve returns.
func (t *Transport) Serve(ctx context.Context, conn *nats.Conn, a transport.Assistant) error {
	defer func() {
		if err := conn.Drain(); err != nil {
			t.logger.Warn("nats drain failed", "error", err)
		}
	}()

	events, cancel, err := a.Subscribe(0)
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	defer cancel()

	routes := map[string]func([]byte) TextReply{
		t.prefix + ".text":         func(data []byte) TextReply { return handleText(a, data) },
		t.prefix + ".listen.start": func([]byte) TextReply { return replyErr(a.StartListening()) },
		t.prefix + ".listen.stop":  func([]byte) TextReply { return replyErr(a.StopListening()) },
	}
	for subject, fn := range routes {
		if _, err := conn.Subscribe(subject, t.responder(fn)); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		t.logger.Debug("subscribed", "subject", subject)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.publish(conn, ev)
		case <-ctx.Done():
			t.logger.Info("nats transport shutting down")
			return nil
		}
	}
}

func (t *Transport) responder(fn func([]byte) TextReply) nats.MsgHandler {
	return func(msg *nats.Msg) {
		reply := fn(msg.Data)
		data, err := json.Marshal(reply)
		if err != nil {
			t.logger.Error("encoding reply", "subject", msg.Subject, "error", err)
			return
		}
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(data); err != nil {
			t.logger.Warn("failed to send response", "subject", msg.Subject, "error", err)
		}
	}
}

func handleText(a transport.Assistant, data []byte) TextReply {
	var req TextRequest
	if err := json.Unmarshal(data, &req); err != nil {
		// A plain-text body is the phrase itself.
		req.Text = string(data)
	}
	if strings.TrimSpace(req.Text) == "" {
		return TextReply{Error: "text is required"}
	}
	outs, err := a.SendText(req.Text)
	if err != nil {
		return TextReply{Error: err.Error()}
	}
	return TextReply{Outcomes: outs}
}

func replyErr(err error) TextReply {
	if err != nil {
		return TextReply{Error: err.Error()}
	}
	return TextReply{}
}

func (t *Transport) publish(conn *nats.Conn, ev assistant.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		t.logger.Error("encoding event", "kind", ev.Kind, "error", err)
		return
	}
	subject := EventSubject(t.prefix, ev)
	if err := conn.Publish(subject, data); err != nil {
		t.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}

// EventSubject is the subject ev is published on.
func EventSubject(prefix string, ev assistant.Event) string {
	if ev.Kind == assistant.EventOutcome && ev.Outcome != nil {
		return prefix + ".outcome." + string(ev.Outcome.Kind)
	}
	return prefix + ".event." + string(ev.Kind)
}

// Close closes the connection.
func (t *Transport) Close() error {
	if t.conn != nil {
		t.conn.Close()
	}
	return nil
}
