// Package transport defines the interface for pluggable host transports.
//
// Each transport (HTTP/WebSocket, gRPC health, NATS) exposes the assistant
// to a different kind of host. Transports never touch the assistant's
// components directly; they only work through the Assistant contract.
package transport

import (
	"context"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/assistant"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/settings"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
)

// Assistant is the surface a transport drives. *assistant.Core implements it.
type Assistant interface {
	Subscribe(buffer int) (<-chan assistant.Event, func(), error)
	StartListening() error
	StopListening() error
	Settings() (settings.Settings, error)
	UpdateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error)
	SendText(text string) ([]message.Outcome, error)
	History() ([]message.Turn, error)
	Transcripts() ([]speech.Entry, error)
	ClearHistory() error
	Context() (message.SessionContext, error)
	TutorialShown() (bool, error)
	SetTutorialShown(ctx context.Context, shown bool) error
	Capabilities() (assistant.Capabilities, error)
}

var _ Assistant = (*assistant.Core)(nil)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http", "nats").
	Name() string

	// Listen starts serving the assistant. It blocks until the context is
	// cancelled.
	Listen(ctx context.Context, a Assistant) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
