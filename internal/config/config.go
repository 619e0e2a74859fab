// Package config handles loading and validating the farmhelp-voice configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the farmhelp-voice daemon.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Transports   TransportsConfig   `mapstructure:"transports"`
	Assistant    AssistantConfig    `mapstructure:"assistant"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	TTS          TTSConfig          `mapstructure:"tts"`
	Store        StoreConfig        `mapstructure:"store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	NATS NATSConfig `mapstructure:"nats"`
}

// GRPCConfig configures the gRPC health transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // empty allows any origin
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"` // subject prefix, e.g. "farmhelp.voice"
}

// AssistantConfig holds the core's tunables.
type AssistantConfig struct {
	DefaultLanguage     string         `mapstructure:"default_language"`
	EscalationThreshold float64        `mapstructure:"escalation_threshold"`
	HistoryLimit        int            `mapstructure:"history_limit"`
	PersistContext      bool           `mapstructure:"persist_context"`
	Location            LocationConfig `mapstructure:"location"`
}

// LocationConfig is the user's location forwarded with remote chat requests.
type LocationConfig struct {
	State    string `mapstructure:"state"`
	District string `mapstructure:"district"`
	Taluka   string `mapstructure:"taluka"`
}

// ConversationConfig configures the remote chat service.
type ConversationConfig struct {
	Endpoint     string        `mapstructure:"endpoint"` // base URL; empty disables escalation
	Timeout      time.Duration `mapstructure:"timeout"`
	HistoryTurns int           `mapstructure:"history_turns"`
	Token        string        `mapstructure:"token"` // optional bearer token, supports ${VAR}
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend string      `mapstructure:"backend"` // "bridge" or "piper"
	Piper   PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// Endpoints maps language codes to individual Wyoming TCP endpoints and
// takes precedence; Endpoint is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // language code -> Piper voice model name
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // "memory", "redis" or "sqlite"
	RedisURL   string `mapstructure:"redis_url"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Namespace  string `mapstructure:"namespace"` // key prefix, one per device/user
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./farmhelp-voice.yaml, ./configs/farmhelp-voice.yaml,
// /etc/farmhelp-voice/farmhelp-voice.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.nats.enabled", false)
	v.SetDefault("transports.nats.url", "nats://localhost:4222")
	v.SetDefault("transports.nats.prefix", "farmhelp.voice")
	v.SetDefault("assistant.default_language", "en-IN")
	v.SetDefault("assistant.escalation_threshold", 0.5)
	v.SetDefault("assistant.history_limit", 50)
	v.SetDefault("assistant.persist_context", false)
	v.SetDefault("conversation.endpoint", "")
	v.SetDefault("conversation.timeout", 10*time.Second)
	v.SetDefault("conversation.history_turns", 3)
	v.SetDefault("tts.backend", "bridge")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.sqlite_path", "farmhelp-voice.db")
	v.SetDefault("store.namespace", "default")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("farmhelp-voice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/farmhelp-voice")
	}

	// Environment variables: FARMHELP_SERVER_HEALTH_PORT, FARMHELP_STORE_BACKEND, etc.
	v.SetEnvPrefix("FARMHELP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional, env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${FARMHELP_CHAT_TOKEN}")
	cfg.Conversation.Token = resolveEnvRef(cfg.Conversation.Token)
	cfg.Store.RedisURL = resolveEnvRef(cfg.Store.RedisURL)
	cfg.Transports.NATS.URL = resolveEnvRef(cfg.Transports.NATS.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if t := c.Assistant.EscalationThreshold; t < 0 || t > 1 {
		return fmt.Errorf("assistant.escalation_threshold must be within [0,1], got %v", t)
	}
	if c.Assistant.HistoryLimit <= 0 {
		return fmt.Errorf("assistant.history_limit must be positive, got %d", c.Assistant.HistoryLimit)
	}
	if c.Conversation.Timeout <= 0 {
		return fmt.Errorf("conversation.timeout must be positive, got %s", c.Conversation.Timeout)
	}
	if c.Conversation.HistoryTurns < 0 {
		return fmt.Errorf("conversation.history_turns must not be negative, got %d", c.Conversation.HistoryTurns)
	}
	switch c.TTS.Backend {
	case "bridge", "piper", "none":
	default:
		return fmt.Errorf("unknown tts backend %q", c.TTS.Backend)
	}
	switch c.Store.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	slog.SetDefault(slog.New(NewHandler(cfg, os.Stdout)))
}

// NewHandler builds the slog handler described by cfg, writing to w.
func NewHandler(cfg LoggingConfig, w io.Writer) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
