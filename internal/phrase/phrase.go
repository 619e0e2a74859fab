// Package phrase turns raw transcripts into normalized, language-tagged
// phrases that the intent classifier can match against.
package phrase

import (
	"strings"
	"time"
	"unicode"
)

// Language is the classification language of a phrase.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"
)

// Valid reports whether l is one of the supported classification languages.
func (l Language) Valid() bool {
	return l == English || l == Hindi
}

// Phrase is one finalized user utterance. It is immutable once built.
type Phrase struct {
	Raw        string    `json:"raw"`
	Normalized string    `json:"normalized"`
	Language   Language  `json:"language"`
	Timestamp  time.Time `json:"timestamp"`
}

// ForTag maps a recognizer BCP-47 tag to a classification language.
// Hindi tags classify as Hindi; everything else uses the English tables.
func ForTag(tag string) Language {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(tag)), "-")
	if base == string(Hindi) {
		return Hindi
	}
	return English
}

// Detect picks the language of typed text: any Devanagari letter makes it
// Hindi, otherwise fallback is returned.
func Detect(text string, fallback Language) Language {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) && unicode.IsLetter(r) {
			return Hindi
		}
	}
	if !fallback.Valid() {
		return English
	}
	return fallback
}
