// Package i18n provides the read-only string table used for user-visible
// assistant text (error notices, slot prompts, help and fallback replies).
package i18n

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Fallback is the language used when a key is missing for the requested one.
const Fallback = "en"

//go:embed strings.yaml
var defaultStrings []byte

// Bundle maps language -> key -> text. It is never mutated after loading.
type Bundle struct {
	tables map[string]map[string]string
}

// Load parses the embedded string table.
func Load() (*Bundle, error) {
	return Parse(defaultStrings)
}

// MustLoad is Load for package initialisation and tests.
func MustLoad() *Bundle {
	b, err := Load()
	if err != nil {
		panic(err)
	}
	return b
}

// Parse builds a bundle from YAML of the form {lang: {key: text}}.
func Parse(data []byte) (*Bundle, error) {
	var tables map[string]map[string]string
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parsing string table: %w", err)
	}
	if _, ok := tables[Fallback]; !ok {
		return nil, fmt.Errorf("string table has no %q entries", Fallback)
	}
	return &Bundle{tables: tables}, nil
}

// Text returns the text for key in lang. lang may be a full BCP-47 tag
// ("hi-IN"); only its base language is used. Missing entries fall back to
// English, then to the key itself.
func (b *Bundle) Text(lang, key string) string {
	if t, ok := b.tables[Base(lang)][key]; ok {
		return t
	}
	if t, ok := b.tables[Fallback][key]; ok {
		return t
	}
	return key
}

// Languages lists the languages present in the bundle.
func (b *Bundle) Languages() []string {
	out := make([]string, 0, len(b.tables))
	for lang := range b.tables {
		out = append(out, lang)
	}
	return out
}

// Base reduces a BCP-47 tag to its lowercase base language ("hi-IN" -> "hi").
func Base(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Fallback
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(strings.SplitN(tag, "-", 2)[0])
	}
	base, _ := t.Base()
	return base.String()
}
