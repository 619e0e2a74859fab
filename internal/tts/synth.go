package tts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"golang.org/x/text/language"
)

const (
	MinRate  = 0.5
	MaxRate  = 2.0
	MinPitch = 0.0
	MaxPitch = 2.0
)

// Options are the per-utterance synthesis settings.
type Options struct {
	Rate    float64
	Pitch   float64
	VoiceID string
}

// Clamp limits the rate and pitch to their supported ranges.
func (o Options) Clamp() Options {
	o.Rate = clamp(o.Rate, MinRate, MaxRate)
	o.Pitch = clamp(o.Pitch, MinPitch, MaxPitch)
	return o
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// Handle tracks one utterance.
type Handle struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the utterance finished, failed or was cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the playback error once Done is closed. Cancellation is not
// reported as an error.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel stops the utterance if it is still playing.
func (h *Handle) Cancel() { h.cancel() }

func finishedHandle(id string) *Handle {
	h := &Handle{ID: id, cancel: func() {}, done: make(chan struct{})}
	close(h.done)
	return h
}

// Synth owns the engine. Speak and Cancel must be called from a single
// goroutine; playback runs in the background.
type Synth struct {
	engine Engine
	logger *slog.Logger
	base   context.Context
	stop   context.CancelFunc
	active *Handle
	seq    uint64
}

// NewSynth wraps engine. A nil engine behaves as an unavailable one.
func NewSynth(engine Engine, logger *slog.Logger) *Synth {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Synth{engine: engine, logger: logger, base: base, stop: stop}
}

// Available reports whether the engine can speak.
func (s *Synth) Available() bool {
	return s.engine != nil && s.engine.Available()
}

// Voices lists the engine's voices.
func (s *Synth) Voices() []Voice {
	if !s.Available() {
		return nil
	}
	return s.engine.Voices()
}

// Speak cancels any active utterance and plays text in lang. The engine is
// only invoked once the previous utterance has fully stopped, so two
// utterances never overlap.
func (s *Synth) Speak(text, lang string, opts Options) *Handle {
	s.seq++
	id := "utt-" + strconv.FormatUint(s.seq, 10)
	if text == "" {
		return finishedHandle(id)
	}
	if !s.Available() {
		s.logger.Warn("speech synthesis unavailable, dropping utterance", "language", lang, "text_length", len(text))
		return finishedHandle(id)
	}

	prev := s.active
	if prev != nil {
		prev.cancel()
	}

	opts = opts.Clamp()
	u := Utterance{
		ID:      id,
		Text:    text,
		Lang:    lang,
		VoiceID: SelectVoice(s.engine.Voices(), lang, opts.VoiceID),
		Rate:    opts.Rate,
		Pitch:   opts.Pitch,
	}

	ctx, cancel := context.WithCancel(s.base)
	h := &Handle{ID: id, cancel: cancel, done: make(chan struct{})}
	s.active = h

	go func() {
		defer close(h.done)
		defer cancel()
		if prev != nil {
			<-prev.done
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.engine.Speak(ctx, u); err != nil && !errors.Is(err, context.Canceled) {
			h.err = err
			s.logger.Warn("speech synthesis failed", "utterance", id, "error", err)
		}
	}()
	return h
}

// Cancel stops the active utterance, if any.
func (s *Synth) Cancel() {
	if s.active != nil {
		s.active.cancel()
	}
}

// Close cancels playback and waits for the active utterance to finish.
func (s *Synth) Close() {
	s.stop()
	if s.active != nil {
		<-s.active.done
	}
}

// SelectVoice picks the voice for lang: the preferred voice when it is
// installed and speaks lang, else the first voice with exactly the tag
// lang, else the first voice whose base language matches, else the
// engine default (empty id).
func SelectVoice(voices []Voice, lang, preferred string) string {
	want, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	wantBase, _ := want.Base()
	parse := func(v Voice) (language.Tag, bool) {
		tag, err := language.Parse(v.Lang)
		return tag, err == nil
	}
	matches := func(v Voice) bool {
		tag, ok := parse(v)
		if !ok {
			return false
		}
		base, _ := tag.Base()
		return base == wantBase
	}

	if preferred != "" {
		for _, v := range voices {
			if v.ID == preferred && matches(v) {
				return v.ID
			}
		}
	}
	for _, v := range voices {
		if tag, ok := parse(v); ok && tag == want {
			return v.ID
		}
	}
	for _, v := range voices {
		if matches(v) {
			return v.ID
		}
	}
	return ""
}
