// Package tts drives the platform speech synthesizer.
//
// Engines do the actual synthesis (the browser's speechSynthesis over the
// platform bridge, or a Piper server over the Wyoming protocol). Synth sits
// in front of an engine and guarantees that at most one utterance is active.
package tts

import "context"

// Voice describes one voice offered by an engine.
type Voice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// Utterance is one piece of text to speak. An empty VoiceID selects the
// engine's default voice.
type Utterance struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Lang    string  `json:"lang"`
	VoiceID string  `json:"voice_id,omitempty"`
	Rate    float64 `json:"rate"`
	Pitch   float64 `json:"pitch"`
}

// Engine synthesizes speech.
type Engine interface {
	// Available reports whether synthesis is possible.
	Available() bool
	// Voices lists the installed voices in the engine's preference order.
	Voices() []Voice
	// Speak plays u and blocks until playback ends or ctx is cancelled.
	Speak(ctx context.Context, u Utterance) error
}

// Audio is synthesized audio ready for playback.
type Audio struct {
	ID          string `json:"id"`
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
}

// AudioSink plays rendered audio, blocking until playback ends or ctx is
// cancelled. Engines that synthesize server-side hand their output to one.
type AudioSink interface {
	Play(ctx context.Context, a Audio) error
}
