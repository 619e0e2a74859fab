package phrase

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

type alias struct {
	from []string
	to   []string
}

// Normalizer canonicalizes transcripts. It holds only immutable tables, so a
// single instance may be shared freely.
type Normalizer struct {
	aliases map[Language][]alias
	longest map[Language]int
}

// NewNormalizer loads the embedded alias vocabulary.
func NewNormalizer() (*Normalizer, error) {
	return ParseVocabulary(defaultVocabulary)
}

// MustNormalizer is NewNormalizer for tests and fixed build-time tables.
func MustNormalizer() *Normalizer {
	n, err := NewNormalizer()
	if err != nil {
		panic(err)
	}
	return n
}

// ParseVocabulary builds a Normalizer from YAML of the form
// {lang: {canonical: [surface, ...]}}.
func ParseVocabulary(data []byte) (*Normalizer, error) {
	var raw map[Language]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}

	n := &Normalizer{
		aliases: make(map[Language][]alias, len(raw)),
		longest: make(map[Language]int, len(raw)),
	}
	for lang, table := range raw {
		if !lang.Valid() {
			return nil, fmt.Errorf("vocabulary: unsupported language %q", lang)
		}
		outputs := make(map[string]bool)
		sources := make(map[string]bool)
		seen := make(map[string]string)
		for canonical, surfaces := range table {
			to := tokenize(canonical)
			if strings.Join(to, " ") != canonical {
				return nil, fmt.Errorf("vocabulary %s: canonical %q is not normalized", lang, canonical)
			}
			for _, tok := range to {
				outputs[tok] = true
			}
			for _, s := range surfaces {
				from := tokenize(s)
				if len(from) == 0 {
					continue
				}
				key := strings.Join(from, " ")
				if prev, dup := seen[key]; dup && prev != canonical {
					return nil, fmt.Errorf("vocabulary %s: %q maps to both %q and %q", lang, key, prev, canonical)
				}
				seen[key] = canonical
				for _, tok := range from {
					sources[tok] = true
				}
				n.aliases[lang] = append(n.aliases[lang], alias{from: from, to: to})
				if len(from) > n.longest[lang] {
					n.longest[lang] = len(from)
				}
			}
		}
		// A canonical token that can also start an alias would make a second
		// pass rewrite the first pass's output.
		for tok := range outputs {
			if sources[tok] {
				return nil, fmt.Errorf("vocabulary %s: token %q is both canonical and an alias", lang, tok)
			}
		}
	}
	return n, nil
}

// Normalize returns the canonical form of raw in lang: NFC, lowercase,
// punctuation and symbols replaced by spaces, whitespace collapsed and
// aliases resolved longest-first. Normalize is idempotent.
func (n *Normalizer) Normalize(raw string, lang Language) string {
	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(n.resolve(tokens, lang), " ")
}

// Phrase builds a Phrase for a transcript recognised in lang at ts.
func (n *Normalizer) Phrase(raw string, lang Language, ts time.Time) Phrase {
	if !lang.Valid() {
		lang = English
	}
	return Phrase{
		Raw:        raw,
		Normalized: n.Normalize(raw, lang),
		Language:   lang,
		Timestamp:  ts,
	}
}

func (n *Normalizer) resolve(tokens []string, lang Language) []string {
	table := n.aliases[lang]
	if len(table) == 0 {
		return tokens
	}
	longest := n.longest[lang]
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for size := min(longest, len(tokens)-i); size > 0 && !matched; size-- {
			for _, a := range table {
				if len(a.from) == size && equalTokens(tokens[i:i+size], a.from) {
					out = append(out, a.to...)
					i += size
					matched = true
					break
				}
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return out
}

// tokenize applies the script-level normalization and splits on whitespace.
func tokenize(s string) []string {
	s, _, _ = transform.String(norm.NFC, strings.ToLower(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Fields(s)
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
