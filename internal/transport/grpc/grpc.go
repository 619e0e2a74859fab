// Package grpc implements the gRPC transport for the assistant.
//
// This transport exposes the standard gRPC health service so that
// orchestrators and edge devices can watch the assistant over a typed
// protocol. The overall status is SERVING while the assistant loop runs;
// each platform capability is reported as its own service.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/assistant"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/transport"
)

// Health service names reported besides the overall "" service.
const (
	ServiceRecognizer  = "farmhelp.voice.Recognizer"
	ServiceSynthesizer = "farmhelp.voice.Synthesizer"
	ServiceRemote      = "farmhelp.voice.Remote"
)

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	logger *slog.Logger
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{port: port, logger: logger.With("transport", "grpc")}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server on the configured port.
func (t *Transport) Listen(ctx context.Context, a transport.Assistant) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return t.Serve(ctx, lis, a)
}

// Serve serves on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, a transport.Assistant) error {
	events, cancel, err := a.Subscribe(0)
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("grpc subscribe: %w", err)
	}

	t.server = grpc.NewServer()
	t.health = health.NewServer()
	healthpb.RegisterHealthServer(t.server, t.health)
	reflection.Register(t.server)

	if caps, err := a.Capabilities(); err == nil {
		t.report(caps)
	}
	t.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		t.watch(ctx, events)
	}()

	t.logger.Info("grpc transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		t.logger.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	err = t.server.Serve(lis)
	cancel()
	<-watchDone
	return err
}

// watch follows capability events until the subscription ends, then marks
// every service NOT_SERVING.
func (t *Transport) watch(ctx context.Context, events <-chan assistant.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.health.Shutdown()
				return
			}
			if ev.Kind == assistant.EventCapability && ev.Capabilities != nil {
				t.report(*ev.Capabilities)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) report(caps assistant.Capabilities) {
	t.health.SetServingStatus(ServiceRecognizer, status(caps.Recognizer))
	t.health.SetServingStatus(ServiceSynthesizer, status(caps.Synthesizer))
	t.health.SetServingStatus(ServiceRemote, status(caps.Remote))
}

func status(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
