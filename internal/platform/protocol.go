package platform

import (
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/speech"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/tts"
)

// MessageType names the frames exchanged with the platform page.
type MessageType string

// Frames sent by the platform.
const (
	TypeHello            MessageType = "hello"
	TypeRecognizerResult MessageType = "recognizer.result"
	TypeRecognizerError  MessageType = "recognizer.error"
	TypeRecognizerEnd    MessageType = "recognizer.end"
	TypeSynthEnd         MessageType = "synth.end"
	TypeAudioEnd         MessageType = "audio.end"
)

// Frames sent to the platform.
const (
	TypeRecognizerStart MessageType = "recognizer.start"
	TypeRecognizerStop  MessageType = "recognizer.stop"
	TypeSynthSpeak      MessageType = "synth.speak"
	TypeSynthCancel     MessageType = "synth.cancel"
	TypeAudioPlay       MessageType = "audio.play"
	TypeAudioStop       MessageType = "audio.stop"
)

// Message is one JSON frame. Only the fields relevant to Type are set.
type Message struct {
	Type MessageType `json:"type"`

	// hello
	Recognizer  bool        `json:"recognizer,omitempty"`
	Synthesizer bool        `json:"synthesizer,omitempty"`
	Voices      []tts.Voice `json:"voices,omitempty"`

	// recognizer.*
	Run        uint64         `json:"run,omitempty"`
	Config     *speech.Config `json:"config,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Final      bool           `json:"final,omitempty"`
	Code       string         `json:"code,omitempty"`

	// synth.* and audio.*
	ID        string         `json:"id,omitempty"`
	Utterance *tts.Utterance `json:"utterance,omitempty"`
	Audio     *tts.Audio     `json:"audio,omitempty"`
	Error     string         `json:"error,omitempty"`
}
