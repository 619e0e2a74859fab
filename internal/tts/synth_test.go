package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeEngine blocks each Speak until released or cancelled and tracks how
// many utterances are playing at once.
type fakeEngine struct {
	available bool
	voices    []Voice
	fail      error

	active    atomic.Int32
	maxActive atomic.Int32

	mu      sync.Mutex
	spoken  []Utterance
	release chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		available: true,
		voices: []Voice{
			{ID: "en-1", Lang: "en-US", Default: true},
			{ID: "hi-1", Lang: "hi-IN"},
			{ID: "hi-2", Lang: "hi-IN"},
		},
		release: make(chan struct{}),
	}
}

func (f *fakeEngine) Available() bool { return f.available }
func (f *fakeEngine) Voices() []Voice { return f.voices }

func (f *fakeEngine) Speak(ctx context.Context, u Utterance) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.release:
		return nil
	}
}

func (f *fakeEngine) utterances() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.spoken...)
}

func TestSpeakCancelsPrevious(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := newFakeEngine()
	s := NewSynth(engine, nil)

	first := s.Speak("one", "en-IN", Options{Rate: 1, Pitch: 1})
	require.Eventually(t, func() bool { return len(engine.utterances()) == 1 }, time.Second, time.Millisecond)

	second := s.Speak("two", "en-IN", Options{Rate: 1, Pitch: 1})
	<-first.Done()
	assert.NoError(t, first.Err())

	require.Eventually(t, func() bool { return len(engine.utterances()) == 2 }, time.Second, time.Millisecond)
	close(engine.release)
	<-second.Done()

	assert.Equal(t, int32(1), engine.maxActive.Load())
	s.Close()
}

func TestSpeakNeverOverlaps(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := newFakeEngine()
	s := NewSynth(engine, nil)

	var handles []*Handle
	for i := 0; i < 25; i++ {
		handles = append(handles, s.Speak("utterance", "hi-IN", Options{Rate: 1, Pitch: 1}))
	}
	close(engine.release)
	for _, h := range handles {
		<-h.Done()
	}

	assert.LessOrEqual(t, engine.maxActive.Load(), int32(1))
	// Superseded utterances that had not started yet never reach the engine.
	assert.LessOrEqual(t, len(engine.utterances()), 25)
	s.Close()
}

func TestCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := newFakeEngine()
	s := NewSynth(engine, nil)
	h := s.Speak("hello", "en", Options{Rate: 1, Pitch: 1})
	require.Eventually(t, func() bool { return engine.active.Load() == 1 }, time.Second, time.Millisecond)

	s.Cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("utterance not cancelled")
	}
	assert.NoError(t, h.Err())
	s.Close()
}

func TestSpeakClampsAndSelectsVoice(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := newFakeEngine()
	close(engine.release)
	s := NewSynth(engine, nil)

	<-s.Speak("नमस्ते", "hi-IN", Options{Rate: 5, Pitch: -1}).Done()
	<-s.Speak("hello", "en-IN", Options{Rate: 0.1, Pitch: 3, VoiceID: "hi-2"}).Done()

	got := engine.utterances()
	require.Len(t, got, 2)
	assert.Equal(t, "hi-1", got[0].VoiceID)
	assert.Equal(t, MaxRate, got[0].Rate)
	assert.Equal(t, MinPitch, got[0].Pitch)

	// A preferred voice in another language is not used.
	assert.Equal(t, "en-1", got[1].VoiceID)
	assert.Equal(t, MinRate, got[1].Rate)
	assert.Equal(t, MaxPitch, got[1].Pitch)
	s.Close()
}

func TestSpeakUnavailableIsNoop(t *testing.T) {
	engine := newFakeEngine()
	engine.available = false
	s := NewSynth(engine, nil)

	h := s.Speak("hello", "en", Options{})
	<-h.Done()
	assert.Empty(t, engine.utterances())

	h = NewSynth(nil, nil).Speak("hello", "en", Options{})
	<-h.Done()
	assert.NoError(t, h.Err())
}

func TestSpeakReportsEngineErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := newFakeEngine()
	engine.fail = errors.New("voice missing")
	s := NewSynth(engine, nil)

	h := s.Speak("hello", "en", Options{Rate: 1, Pitch: 1})
	<-h.Done()
	assert.EqualError(t, h.Err(), "voice missing")
	s.Close()
}

func TestSelectVoice(t *testing.T) {
	voices := []Voice{
		{ID: "a", Lang: "en-GB"},
		{ID: "b", Lang: "en-IN"},
		{ID: "c", Lang: "hi-IN"},
		{ID: "d", Lang: "not a tag"},
	}
	assert.Equal(t, "b", SelectVoice(voices, "en-IN", ""))
	assert.Equal(t, "a", SelectVoice(voices, "en-GB", ""))
	assert.Equal(t, "a", SelectVoice(voices, "en-US", ""))
	assert.Equal(t, "a", SelectVoice(voices, "en-IN", "a"))
	assert.Equal(t, "b", SelectVoice(voices, "en", "b"))
	assert.Equal(t, "c", SelectVoice(voices, "hi", "b"))
	assert.Equal(t, "", SelectVoice(voices, "gu-IN", ""))
	assert.Equal(t, "", SelectVoice(voices, "", ""))
}
