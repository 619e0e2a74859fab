// Package piper implements a tts.Engine backed by a Piper server speaking
// the Wyoming protocol (the linuxserver/piper container listens on TCP
// 10200). Every utterance is rendered to WAV on the server side and handed
// to an AudioSink that plays it on the attached platform page.
package piper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/config"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts"
)

// defaultVoices maps base language codes to Piper voice model names.
var defaultVoices = map[string]string{
	"en": "en_US-lessac-medium",
	"hi": "hi_IN-pratham-medium",
}

// Engine implements tts.Engine using the Wyoming protocol.
type Engine struct {
	endpoint  string            // default host:port of the Piper Wyoming server
	endpoints map[string]string // language -> host:port for per-language Piper instances
	voices    map[string]string // language -> voice name
	sink      tts.AudioSink
	logger    *slog.Logger
}

// New creates a Piper engine from config. Synthesized audio is played
// through sink.
func New(cfg config.PiperConfig, sink tts.AudioSink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	voices := make(map[string]string, len(defaultVoices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = cleanEndpoint(ep)
	}

	return &Engine{
		endpoint:  cleanEndpoint(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
		sink:      sink,
		logger:    logger.With("component", "piper"),
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")
	return ep
}

// Available reports whether an endpoint and a sink are configured.
func (e *Engine) Available() bool {
	return e.sink != nil && (e.endpoint != "" || len(e.endpoints) > 0)
}

// Voices lists one voice per configured language, ordered by language.
func (e *Engine) Voices() []tts.Voice {
	langs := make([]string, 0, len(e.voices))
	for lang := range e.voices {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	out := make([]tts.Voice, 0, len(langs))
	for _, lang := range langs {
		out = append(out, tts.Voice{
			ID:      e.voices[lang],
			Name:    e.voices[lang],
			Lang:    lang,
			Default: lang == "en",
		})
	}
	return out
}

// Speak synthesizes u and blocks until the sink finished playing it.
func (e *Engine) Speak(ctx context.Context, u tts.Utterance) error {
	audio, err := e.Synthesize(ctx, u)
	if err != nil {
		return err
	}
	return e.sink.Play(ctx, audio)
}

// Synthesize sends the utterance to the Piper server and returns WAV audio.
func (e *Engine) Synthesize(ctx context.Context, u tts.Utterance) (tts.Audio, error) {
	if u.Text == "" {
		return tts.Audio{}, fmt.Errorf("empty text for synthesis")
	}
	lang, _, _ := strings.Cut(strings.ToLower(u.Lang), "-")

	voice := u.VoiceID
	if voice == "" {
		voice = e.voices[lang]
	}
	if voice == "" {
		voice = e.voices["en"] // fallback to English
	}

	endpoint := e.endpoints[lang]
	if endpoint == "" {
		endpoint = e.endpoint
	}
	if endpoint == "" {
		return tts.Audio{}, fmt.Errorf("no piper endpoint configured for language %q", u.Lang)
	}

	e.logger.Debug("piper synthesize", "utterance", u.ID, "text_length", len(u.Text), "voice", voice, "endpoint", endpoint)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}
	// Unblock reads when the utterance is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	req := event{Type: "synthesize", Data: map[string]any{
		"text":  u.Text,
		"voice": map[string]any{"name": voice},
	}}
	// Piper stretches phoneme durations by length_scale, so it runs
	// inversely to the speaking rate.
	if u.Rate > 0 && u.Rate != 1 {
		req.Data["length_scale"] = 1 / u.Rate
	}
	if err := writeEvent(conn, req, nil); err != nil {
		return tts.Audio{}, fmt.Errorf("sending synthesize event: %w", err)
	}

	r := bufio.NewReader(conn)
	format := defaultFormat
	var pcm bytes.Buffer
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			if ctx.Err() != nil {
				return tts.Audio{}, ctx.Err()
			}
			return tts.Audio{}, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			format = pcmFormat{
				Rate:     evt.num("rate", format.Rate),
				Channels: evt.num("channels", format.Channels),
				Width:    evt.num("width", format.Width),
			}
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			e.logger.Debug("piper audio-stop", "utterance", u.ID, "pcm_bytes", pcm.Len())
			return tts.Audio{
				ID:          u.ID,
				Data:        encodeWAV(pcm.Bytes(), format),
				ContentType: "audio/wav",
				SampleRate:  format.Rate,
				Channels:    format.Channels,
			}, nil
		case "error":
			return tts.Audio{}, fmt.Errorf("piper error: %s", evt.str("text", "unknown error"))
		default:
			e.logger.Debug("piper unknown event", "type", evt.Type)
		}
	}
}
