package speech

import "github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"

// ErrorKind is the stable recognizer error taxonomy exposed to the host.
type ErrorKind string

const (
	ErrPermissionDenied ErrorKind = "permission-denied"
	ErrNoSpeech         ErrorKind = "no-speech"
	ErrNoMicrophone     ErrorKind = "no-microphone"
	ErrNetwork          ErrorKind = "network"
	ErrAborted          ErrorKind = "aborted"
	ErrServiceDisabled  ErrorKind = "service-disabled"
	ErrUnknown          ErrorKind = "unknown"
	// ErrNotSupported is a capability error: there is no recognizer at all.
	ErrNotSupported ErrorKind = "unsupported"
)

// KindFromCode maps a Web Speech API error code onto the taxonomy.
func KindFromCode(code string) ErrorKind {
	switch code {
	case "not-allowed", "permission-denied":
		return ErrPermissionDenied
	case "service-not-allowed", "service-disabled":
		return ErrServiceDisabled
	case "no-speech":
		return ErrNoSpeech
	case "audio-capture", "no-microphone":
		return ErrNoMicrophone
	case "network":
		return ErrNetwork
	case "aborted":
		return ErrAborted
	}
	return ErrUnknown
}

// Transient reports whether the next start is expected to work normally.
func (k ErrorKind) Transient() bool {
	return k == ErrNoSpeech || k == ErrAborted || k == ErrNetwork
}

// Error is a recognizer failure with a localized message.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return "speech: " + string(e.Kind) + ": " + e.Message
}

func newError(code, lang string, strings *i18n.Bundle) *Error {
	kind := KindFromCode(code)
	return &Error{Kind: kind, Code: code, Message: strings.Text(lang, "error."+string(kind))}
}

// UnsupportedError is the capability error reported when recognition is not
// possible and the assistant falls back to typed input.
func UnsupportedError(lang string, strings *i18n.Bundle) *Error {
	return &Error{Kind: ErrNotSupported, Code: "unsupported", Message: strings.Text(lang, "error.unsupported")}
}
