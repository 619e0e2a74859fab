package intent

import (
	"fmt"
	"strings"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
)

type slotEntry struct {
	value    string
	surfaces map[phrase.Language][][]string
}

type slotVocabulary struct {
	name    string
	entries []slotEntry
}

func buildVocabulary(name string, entries []fileSlotEntry, n *phrase.Normalizer) (*slotVocabulary, error) {
	v := &slotVocabulary{name: name}
	for _, e := range entries {
		if e.Value == "" {
			return nil, fmt.Errorf("slot %s: entry without value", name)
		}
		se := slotEntry{value: e.Value, surfaces: make(map[phrase.Language][][]string)}
		for _, lang := range languages {
			raw := append([]string(nil), e.Surfaces...)
			switch lang {
			case phrase.English:
				raw = append(raw, e.EN...)
			case phrase.Hindi:
				raw = append(raw, e.HI...)
			}
			for _, s := range raw {
				if toks := strings.Fields(n.Normalize(s, lang)); len(toks) > 0 {
					se.surfaces[lang] = append(se.surfaces[lang], toks)
				}
			}
		}
		if len(se.surfaces) == 0 {
			return nil, fmt.Errorf("slot %s: value %q has no surface forms", name, e.Value)
		}
		v.entries = append(v.entries, se)
	}
	return v, nil
}

// find returns the slot value with the longest surface match in tokens; equal
// lengths resolve to the entry declared first. at is the first matching
// position for that entry and size the matched length.
func (v *slotVocabulary) find(tokens []string, lang phrase.Language) (value string, at, size int) {
	at = -1
	for _, e := range v.entries {
		for _, s := range e.surfaces[lang] {
			if len(s) <= size {
				continue
			}
			if i := indexSeq(tokens, s); i >= 0 {
				value, at, size = e.value, i, len(s)
			}
		}
	}
	return value, at, size
}

// earliest returns the leftmost position where any surface of the
// vocabulary starts, preferring the longest surface there.
func (v *slotVocabulary) earliest(tokens []string, lang phrase.Language) (at, size int) {
	at = -1
	for i := range tokens {
		for _, e := range v.entries {
			for _, s := range e.surfaces[lang] {
				if len(s) > size && hasPrefixSeq(tokens[i:], s) {
					at, size = i, len(s)
				}
			}
		}
		if at >= 0 {
			return at, size
		}
	}
	return -1, 0
}

// extractor memoises slot lookups for a single phrase.
type extractor struct {
	tokens []string
	lang   phrase.Language
	slots  map[string]*slotVocabulary
	cache  map[string]string
}

func newExtractor(tokens []string, lang phrase.Language, slots map[string]*slotVocabulary) *extractor {
	return &extractor{tokens: tokens, lang: lang, slots: slots, cache: make(map[string]string)}
}

func (x *extractor) value(slot string) (string, bool) {
	if v, ok := x.cache[slot]; ok {
		return v, v != ""
	}
	var v string
	if voc, ok := x.slots[slot]; ok {
		v, _, _ = voc.find(x.tokens, x.lang)
	}
	x.cache[slot] = v
	return v, v != ""
}

// term is one alternative of a keyword group: a token sequence or a slot.
type term struct {
	tokens []string
	slot   string
}

func (t term) present(x *extractor) bool {
	if t.slot != "" {
		_, ok := x.value(t.slot)
		return ok
	}
	return indexSeq(x.tokens, t.tokens) >= 0
}

type group []term

func (g group) matches(x *extractor) bool {
	for _, t := range g {
		if t.present(x) {
			return true
		}
	}
	return false
}

type keywordSet struct {
	required []group
	optional []group
}

func buildKeywords(kw fileKeywords, lang phrase.Language, n *phrase.Normalizer, checkSlot func(string) error) (keywordSet, error) {
	build := func(src [][]string) ([]group, error) {
		var out []group
		for _, alts := range src {
			var g group
			for _, w := range alts {
				if name, _, ok := slotRef(w); ok {
					if err := checkSlot(name); err != nil {
						return nil, err
					}
					g = append(g, term{slot: name})
					continue
				}
				toks := strings.Fields(n.Normalize(w, lang))
				if len(toks) == 0 {
					return nil, fmt.Errorf("keyword %q normalizes to nothing", w)
				}
				g = append(g, term{tokens: toks})
			}
			if len(g) > 0 {
				out = append(out, g)
			}
		}
		return out, nil
	}
	req, err := build(kw.Required)
	if err != nil {
		return keywordSet{}, err
	}
	opt, err := build(kw.Optional)
	if err != nil {
		return keywordSet{}, err
	}
	return keywordSet{required: req, optional: opt}, nil
}

// score implements the keyword tier:
// matched_required/total_required*0.8 + matched_optional/total_optional*0.2.
func (k keywordSet) score(x *extractor) (float64, int) {
	if len(k.required) == 0 {
		return 0, 0
	}
	req := 0
	for _, g := range k.required {
		if g.matches(x) {
			req++
		}
	}
	s := 0.8 * float64(req) / float64(len(k.required))
	if len(k.optional) > 0 {
		opt := 0
		for _, g := range k.optional {
			if g.matches(x) {
				opt++
			}
		}
		s += 0.2 * float64(opt) / float64(len(k.optional))
	}
	return s, req
}

type element struct {
	alts     [][]string
	slot     string
	optional bool
}

type pattern struct {
	source   string
	elements []element
}

func parsePattern(src string, lang phrase.Language, n *phrase.Normalizer, checkSlot func(string) error) (pattern, error) {
	p := pattern{source: src}
	for _, word := range strings.Fields(src) {
		if name, optional, ok := slotRef(word); ok {
			if err := checkSlot(name); err != nil {
				return pattern{}, err
			}
			p.elements = append(p.elements, element{slot: name, optional: optional})
			continue
		}
		var el element
		for _, alt := range strings.Split(word, "|") {
			if toks := strings.Fields(n.Normalize(alt, lang)); len(toks) > 0 {
				el.alts = append(el.alts, toks)
			}
		}
		if len(el.alts) == 0 {
			return pattern{}, fmt.Errorf("pattern %q: element %q normalizes to nothing", src, word)
		}
		p.elements = append(p.elements, el)
	}
	if len(p.elements) == 0 {
		return pattern{}, fmt.Errorf("empty pattern")
	}
	return p, nil
}

// match walks the elements left to right, allowing gaps. It returns 0.8 when
// every slot element was filled, 0.6 when an optional slot was skipped, and
// false when a literal or required slot is missing.
func (p pattern) match(x *extractor, slots map[string]*slotVocabulary) (float64, bool) {
	pos := 0
	complete := true
	for _, el := range p.elements {
		rest := x.tokens[pos:]
		if el.slot != "" {
			at, size := slots[el.slot].earliest(rest, x.lang)
			if at < 0 {
				if el.optional {
					complete = false
					continue
				}
				return 0, false
			}
			pos += at + size
			continue
		}
		at, size := -1, 0
		for _, alt := range el.alts {
			if i := indexSeq(rest, alt); i >= 0 && (at < 0 || i < at || (i == at && len(alt) > size)) {
				at, size = i, len(alt)
			}
		}
		if at < 0 {
			return 0, false
		}
		pos += at + size
	}
	if complete {
		return 0.8, true
	}
	return 0.6, true
}

func indexSeq(tokens, seq []string) int {
	for i := 0; i+len(seq) <= len(tokens); i++ {
		if hasPrefixSeq(tokens[i:], seq) {
			return i
		}
	}
	return -1
}

func hasPrefixSeq(tokens, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(tokens) {
		return false
	}
	for i := range seq {
		if tokens[i] != seq[i] {
			return false
		}
	}
	return true
}
