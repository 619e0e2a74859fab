// Package intent holds the closed intent table and the offline classifier
// that maps normalized phrases onto it.
package intent

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
)

//go:embed intents.yaml
var defaultTable []byte

// Kind is the handler kind of an intent.
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindQuery    Kind = "query"
	KindMeta     Kind = "meta"
)

// Intent is one immutable entry of the declaration table.
type Intent struct {
	ID       string
	Kind     Kind
	Route    string
	Query    string
	Speak    string
	Signal   string
	Offline  bool
	Labels   map[phrase.Language]string
	Examples map[phrase.Language][]string

	// Slots lists the slots extracted for this intent, in order.
	Slots []string
	// Mandatory lists slot groups of which at least one member must be
	// resolved before a query can run.
	Mandatory [][]string
	Defaults  map[string]string

	order    int
	exact    map[phrase.Language]map[string]bool
	keywords map[phrase.Language]keywordSet
	patterns map[phrase.Language][]pattern
}

// Label returns the display label in lang, falling back to English.
func (i *Intent) Label(lang phrase.Language) string {
	if l, ok := i.Labels[lang]; ok {
		return l
	}
	return i.Labels[phrase.English]
}

// Table is the loaded intent declaration table plus slot vocabularies.
// It is built once at startup and never mutated.
type Table struct {
	intents []*Intent
	byID    map[string]*Intent
	slots   map[string]*slotVocabulary
}

// Intents returns the intents in declaration order.
func (t *Table) Intents() []*Intent {
	return append([]*Intent(nil), t.intents...)
}

// Lookup finds an intent by id.
func (t *Table) Lookup(id string) (*Intent, bool) {
	i, ok := t.byID[id]
	return i, ok
}

// HasRoute reports whether some navigate intent targets route.
func (t *Table) HasRoute(route string) bool {
	for _, in := range t.intents {
		if in.Kind == KindNavigate && in.Route == route {
			return true
		}
	}
	return false
}

type fileSlotEntry struct {
	Value    string   `yaml:"value"`
	Surfaces []string `yaml:"surfaces"`
	EN       []string `yaml:"en"`
	HI       []string `yaml:"hi"`
}

type fileKeywords struct {
	Required [][]string `yaml:"required"`
	Optional [][]string `yaml:"optional"`
}

type fileIntent struct {
	ID        string                           `yaml:"id"`
	Kind      Kind                             `yaml:"kind"`
	Route     string                           `yaml:"route"`
	Query     string                           `yaml:"query"`
	Speak     string                           `yaml:"speak"`
	Signal    string                           `yaml:"signal"`
	Offline   *bool                            `yaml:"offline"`
	Labels    map[phrase.Language]string       `yaml:"labels"`
	Examples  map[phrase.Language][]string     `yaml:"examples"`
	Exact     map[phrase.Language][]string     `yaml:"exact"`
	Keywords  map[phrase.Language]fileKeywords `yaml:"keywords"`
	Patterns  map[phrase.Language][]string     `yaml:"patterns"`
	Slots     []string                         `yaml:"slots"`
	Mandatory [][]string                       `yaml:"mandatory"`
	Defaults  map[string]string                `yaml:"defaults"`
}

type fileTable struct {
	Slots   map[string][]fileSlotEntry `yaml:"slots"`
	Intents []fileIntent               `yaml:"intents"`
}

var languages = []phrase.Language{phrase.English, phrase.Hindi}

// LoadTable parses the embedded declaration table.
func LoadTable(n *phrase.Normalizer) (*Table, error) {
	return ParseTable(defaultTable, n)
}

// MustLoadTable is LoadTable for tests and fixed build-time tables.
func MustLoadTable(n *phrase.Normalizer) *Table {
	t, err := LoadTable(n)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTable builds a Table from YAML. Every phrase in the file is run
// through n so that authors can write surface forms.
func ParseTable(data []byte, n *phrase.Normalizer) (*Table, error) {
	var f fileTable
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing intent table: %w", err)
	}

	t := &Table{
		byID:  make(map[string]*Intent, len(f.Intents)),
		slots: make(map[string]*slotVocabulary, len(f.Slots)),
	}
	for name, entries := range f.Slots {
		v, err := buildVocabulary(name, entries, n)
		if err != nil {
			return nil, err
		}
		t.slots[name] = v
	}

	exactOwner := make(map[phrase.Language]map[string]string)
	for order, fi := range f.Intents {
		in, err := t.buildIntent(order, fi, n)
		if err != nil {
			return nil, err
		}
		if _, dup := t.byID[in.ID]; dup {
			return nil, fmt.Errorf("intent %q declared twice", in.ID)
		}
		for lang, triggers := range in.exact {
			if exactOwner[lang] == nil {
				exactOwner[lang] = make(map[string]string)
			}
			for trig := range triggers {
				if owner, ok := exactOwner[lang][trig]; ok {
					return nil, fmt.Errorf("exact trigger %q (%s) used by %s and %s", trig, lang, owner, in.ID)
				}
				exactOwner[lang][trig] = in.ID
			}
		}
		t.intents = append(t.intents, in)
		t.byID[in.ID] = in
	}
	if len(t.intents) == 0 {
		return nil, fmt.Errorf("intent table is empty")
	}
	return t, nil
}

func (t *Table) buildIntent(order int, fi fileIntent, n *phrase.Normalizer) (*Intent, error) {
	if fi.ID == "" || fi.ID == "UNKNOWN" {
		return nil, fmt.Errorf("intent #%d: invalid id %q", order, fi.ID)
	}
	in := &Intent{
		ID:        fi.ID,
		Kind:      fi.Kind,
		Route:     fi.Route,
		Query:     fi.Query,
		Speak:     fi.Speak,
		Signal:    fi.Signal,
		Offline:   fi.Offline == nil || *fi.Offline,
		Labels:    fi.Labels,
		Examples:  fi.Examples,
		Slots:     fi.Slots,
		Mandatory: fi.Mandatory,
		Defaults:  fi.Defaults,
		order:     order,
		exact:     make(map[phrase.Language]map[string]bool),
		keywords:  make(map[phrase.Language]keywordSet),
		patterns:  make(map[phrase.Language][]pattern),
	}

	switch in.Kind {
	case KindNavigate:
		if in.Route == "" {
			return nil, fmt.Errorf("intent %s: navigate intent without route", in.ID)
		}
	case KindQuery:
		if in.Query == "" {
			return nil, fmt.Errorf("intent %s: query intent without query spec", in.ID)
		}
	case KindMeta:
	default:
		return nil, fmt.Errorf("intent %s: unknown kind %q", in.ID, in.Kind)
	}

	declared := make(map[string]bool, len(in.Slots))
	for _, s := range in.Slots {
		if _, ok := t.slots[s]; !ok {
			return nil, fmt.Errorf("intent %s: unknown slot %q", in.ID, s)
		}
		declared[s] = true
	}
	checkSlot := func(s string) error {
		if !declared[s] {
			return fmt.Errorf("intent %s: slot %q is not declared for the intent", in.ID, s)
		}
		return nil
	}
	for _, group := range in.Mandatory {
		for _, s := range group {
			if err := checkSlot(s); err != nil {
				return nil, err
			}
		}
	}
	for s := range in.Defaults {
		if err := checkSlot(s); err != nil {
			return nil, err
		}
	}

	for _, lang := range languages {
		for _, trig := range fi.Exact[lang] {
			norm := n.Normalize(trig, lang)
			if norm == "" {
				return nil, fmt.Errorf("intent %s: empty exact trigger %q", in.ID, trig)
			}
			if in.exact[lang] == nil {
				in.exact[lang] = make(map[string]bool)
			}
			in.exact[lang][norm] = true
		}

		if kw, ok := fi.Keywords[lang]; ok {
			ks, err := buildKeywords(kw, lang, n, checkSlot)
			if err != nil {
				return nil, fmt.Errorf("intent %s: %w", in.ID, err)
			}
			in.keywords[lang] = ks
		}

		for _, src := range fi.Patterns[lang] {
			p, err := parsePattern(src, lang, n, checkSlot)
			if err != nil {
				return nil, fmt.Errorf("intent %s: %w", in.ID, err)
			}
			in.patterns[lang] = append(in.patterns[lang], p)
		}
	}
	return in, nil
}

// slotRef recognises "<name>" and "<name>?" elements.
func slotRef(word string) (name string, optional, ok bool) {
	if strings.HasSuffix(word, "?") {
		optional = true
		word = strings.TrimSuffix(word, "?")
	}
	if len(word) > 2 && strings.HasPrefix(word, "<") && strings.HasSuffix(word, ">") {
		return word[1 : len(word)-1], optional, true
	}
	return "", false, false
}
