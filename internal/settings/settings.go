// Package settings holds the user's voice preferences and the small flags
// the assistant persists between sessions.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/store"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts"
)

// Persistence keys.
const (
	KeySettings       = "voice.settings"
	KeyTutorialShown  = "voice.tutorial_shown"
	KeySessionContext = "voice.session_context"
)

// Settings are the user's voice preferences.
type Settings struct {
	RecognizerLanguage string  `json:"recognizer_language"`
	Continuous         bool    `json:"continuous"`
	InterimResults     bool    `json:"interim_results"`
	TTSRate            float64 `json:"tts_rate"`
	TTSPitch           float64 `json:"tts_pitch"`
	TTSVoiceID         string  `json:"tts_voice_id,omitempty"`
	AutoSpeak          bool    `json:"auto_speak"`
}

// Default returns the settings of a first run in lang.
func Default(lang string) Settings {
	return Settings{
		RecognizerLanguage: lang,
		InterimResults:     true,
		TTSRate:            1,
		TTSPitch:           1,
		AutoSpeak:          true,
	}
}

// Synth returns the synthesis options of s.
func (s Settings) Synth() tts.Options {
	return tts.Options{Rate: s.TTSRate, Pitch: s.TTSPitch, VoiceID: s.TTSVoiceID}
}

// Normalize clamps rate and pitch and canonicalizes the language tag.
func (s Settings) Normalize() (Settings, error) {
	tag, err := language.Parse(s.RecognizerLanguage)
	if err != nil {
		return s, fmt.Errorf("invalid recognizer language %q: %w", s.RecognizerLanguage, err)
	}
	s.RecognizerLanguage = tag.String()
	o := s.Synth().Clamp()
	s.TTSRate, s.TTSPitch = o.Rate, o.Pitch
	return s, nil
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	RecognizerLanguage *string  `json:"recognizer_language,omitempty"`
	Continuous         *bool    `json:"continuous,omitempty"`
	InterimResults     *bool    `json:"interim_results,omitempty"`
	TTSRate            *float64 `json:"tts_rate,omitempty"`
	TTSPitch           *float64 `json:"tts_pitch,omitempty"`
	TTSVoiceID         *string  `json:"tts_voice_id,omitempty"`
	AutoSpeak          *bool    `json:"auto_speak,omitempty"`
}

// Apply returns s with p applied. An invalid language rejects the whole
// patch; out of range rate and pitch are clamped.
func (p Patch) Apply(s Settings) (Settings, error) {
	if p.RecognizerLanguage != nil {
		s.RecognizerLanguage = *p.RecognizerLanguage
	}
	if p.Continuous != nil {
		s.Continuous = *p.Continuous
	}
	if p.InterimResults != nil {
		s.InterimResults = *p.InterimResults
	}
	if p.TTSRate != nil {
		s.TTSRate = *p.TTSRate
	}
	if p.TTSPitch != nil {
		s.TTSPitch = *p.TTSPitch
	}
	if p.TTSVoiceID != nil {
		s.TTSVoiceID = *p.TTSVoiceID
	}
	if p.AutoSpeak != nil {
		s.AutoSpeak = *p.AutoSpeak
	}
	return s.Normalize()
}

// Repository persists settings, the tutorial flag and optionally the
// session context.
type Repository struct {
	store          store.Store
	persistContext bool
	logger         *slog.Logger
}

// NewRepository wraps s. When persistContext is false the session context
// is never written.
func NewRepository(s store.Store, persistContext bool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: s, persistContext: persistContext, logger: logger.With("component", "settings")}
}

// Load returns the stored settings, or defaults when none are stored or the
// stored value is unreadable.
func (r *Repository) Load(ctx context.Context, defaults Settings) (Settings, error) {
	s := defaults
	err := store.GetJSON(ctx, r.store, KeySettings, &s)
	if errors.Is(err, store.ErrNotFound) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("loading settings: %w", err)
	}
	if s, err = s.Normalize(); err != nil {
		r.logger.Warn("stored settings invalid, using defaults", "error", err)
		return defaults, nil
	}
	return s, nil
}

// Save stores s.
func (r *Repository) Save(ctx context.Context, s Settings) error {
	return store.SetJSON(ctx, r.store, KeySettings, s, 0)
}

// TutorialShown reports whether the tutorial was already shown.
func (r *Repository) TutorialShown(ctx context.Context) (bool, error) {
	var shown bool
	err := store.GetJSON(ctx, r.store, KeyTutorialShown, &shown)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return shown, err
}

// SetTutorialShown records the tutorial flag.
func (r *Repository) SetTutorialShown(ctx context.Context, shown bool) error {
	return store.SetJSON(ctx, r.store, KeyTutorialShown, shown, 0)
}

// ContextPersisted reports whether the session context survives restarts
// under s: context persistence must be enabled and auto-speak set.
func (r *Repository) ContextPersisted(s Settings) bool {
	return r.persistContext && s.AutoSpeak
}

// LoadContext returns the stored session context. ok is false when none is
// stored or context persistence is off under s.
func (r *Repository) LoadContext(ctx context.Context, s Settings) (sc message.SessionContext, ok bool, err error) {
	if !r.ContextPersisted(s) {
		return sc, false, nil
	}
	err = store.GetJSON(ctx, r.store, KeySessionContext, &sc)
	if errors.Is(err, store.ErrNotFound) {
		return sc, false, nil
	}
	if err != nil {
		return message.SessionContext{}, false, err
	}
	return sc, true, nil
}

// SaveContext stores sc when context persistence applies under s and
// removes any stored context otherwise.
func (r *Repository) SaveContext(ctx context.Context, sc message.SessionContext, s Settings) error {
	if !r.ContextPersisted(s) {
		return r.store.Delete(ctx, KeySessionContext)
	}
	return store.SetJSON(ctx, r.store, KeySessionContext, sc, 0)
}
