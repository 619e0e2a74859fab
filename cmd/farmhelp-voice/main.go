// Farmhelp-voice is the voice assistant daemon of the FarmHelp portal. It
// classifies farmer phrases offline, escalates the rest to the remote chat
// service and drives the browser's recognizer and synthesizer over the
// platform bridge.
//
// Usage:
//
//	farmhelp-voice [flags]
//	farmhelp-voice --config /path/to/farmhelp-voice.yaml
//
// @title       FarmHelp Voice Assistant API
// @version     1.0
// @description Voice assistant core for the FarmHelp farmer portal.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/assistant"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/conversation"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/health"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/intent"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/platform"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/store"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/transport"
	grpctransport "github.com/ankitpatel990/KrishiNiti-sub001/internal/transport/grpc"
	httptransport "github.com/ankitpatel990/KrishiNiti-sub001/internal/transport/http"
	natstransport "github.com/ankitpatel990/KrishiNiti-sub001/internal/transport/nats"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts/piper"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/farmhelp-voice.local.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("farmhelp-voice %s\n", version)
		os.Exit(0)
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("reading .env", "error", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	config.SetupLogging(cfg.Logging)
	slog.Info("farmhelp-voice starting", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("farmhelp-voice failed", "error", err)
		os.Exit(1)
	}
	slog.Info("farmhelp-voice stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	normalizer, err := phrase.NewNormalizer()
	if err != nil {
		return fmt.Errorf("building normalizer: %w", err)
	}
	table, err := intent.LoadTable(normalizer)
	if err != nil {
		return err
	}
	bundle, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("loading strings: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	slog.Info("store opened", "backend", cfg.Store.Backend, "namespace", cfg.Store.Namespace)

	bridge := platform.NewBridge(cfg.Transports.HTTP.AllowedOrigins, slog.Default())
	defer bridge.Close()

	var engine tts.Engine
	switch cfg.TTS.Backend {
	case "bridge":
		engine = bridge.Synthesizer()
		slog.Info("using platform synthesizer")
	case "piper":
		engine = piper.New(cfg.TTS.Piper, bridge, slog.Default())
		slog.Info("using Piper TTS", "endpoint", cfg.TTS.Piper.Endpoint, "endpoints", len(cfg.TTS.Piper.Endpoints))
	case "none":
		slog.Info("speech output disabled")
	}

	// A nil client keeps the assistant offline; a typed nil would not.
	var client conversation.Client
	if cfg.Conversation.Endpoint != "" {
		client = conversation.NewHTTPClient(cfg.Conversation, slog.Default())
		slog.Info("remote conversation enabled", "endpoint", cfg.Conversation.Endpoint)
	} else {
		slog.Warn("no conversation endpoint configured, running offline")
	}

	core, err := assistant.New(ctx, assistant.Config{
		DefaultLanguage:     cfg.Assistant.DefaultLanguage,
		EscalationThreshold: cfg.Assistant.EscalationThreshold,
		HistoryLimit:        cfg.Assistant.HistoryLimit,
		PersistContext:      cfg.Assistant.PersistContext,
		RemoteTimeout:       cfg.Conversation.Timeout,
		HistoryTurns:        cfg.Conversation.HistoryTurns,
		Location: message.Location{
			State:    cfg.Assistant.Location.State,
			District: cfg.Assistant.Location.District,
			Taluka:   cfg.Assistant.Location.Taluka,
		},
	}, assistant.Deps{
		Normalizer: normalizer,
		Table:      table,
		Bundle:     bundle,
		Recognizer: bridge,
		Engine:     engine,
		Client:     client,
		Store:      st,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}
	bridge.OnChange(core.RefreshCapabilities)

	var transports []transport.Transport
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP, bridge, slog.Default()))
	}
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port, slog.Default()))
	}
	if cfg.Transports.NATS.Enabled {
		transports = append(transports, natstransport.New(cfg.Transports.NATS, slog.Default()))
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	var wg sync.WaitGroup
	loopDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		loopDone <- core.Run(ctx)
	}()

	healthServer := health.New(cfg.Server.HealthPort, func() error {
		_, err := core.Capabilities()
		return err
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, core); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("farmhelp-voice ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort,
		"tts", cfg.TTS.Backend)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("assistant loop: %w", err)
	}
	return nil
}
