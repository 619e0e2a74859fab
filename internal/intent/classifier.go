package intent

import (
	"fmt"
	"strings"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
)

const (
	confidenceExact   = 1.0
	confidencePending = 0.8
	keywordFloor      = 0.6
	keywordCeiling    = 0.95
	epsilon           = 1e-9
)

// Classifier maps normalized phrases to recognitions. It never touches the
// network and holds no mutable state, so Classify is a pure function of its
// arguments.
type Classifier struct {
	table *Table
}

// NewClassifier creates a classifier over t.
func NewClassifier(t *Table) *Classifier {
	return &Classifier{table: t}
}

// Table returns the declaration table the classifier matches against.
func (c *Classifier) Table() *Table { return c.table }

type candidate struct {
	intent     *Intent
	confidence float64
	required   int
	pattern    string
}

// better reports whether a outranks b: higher confidence, then more matched
// required keyword groups, then earlier declaration.
func better(a, b *candidate) bool {
	if b == nil {
		return true
	}
	if d := a.confidence - b.confidence; d > epsilon {
		return true
	} else if d < -epsilon {
		return false
	}
	if a.required != b.required {
		return a.required > b.required
	}
	return a.intent.order < b.intent.order
}

// Classify returns the best recognition for p. When pending names an intent
// waiting for a slot and p supplies that slot, the pending intent is assumed
// unless another intent matches with higher confidence.
func (c *Classifier) Classify(p phrase.Phrase, pending *message.PendingSlot) message.Recognition {
	tokens := strings.Fields(p.Normalized)
	if len(tokens) == 0 {
		return message.UnknownRecognition()
	}
	lang := p.Language
	if !lang.Valid() {
		lang = phrase.English
	}
	x := newExtractor(tokens, lang, c.table.slots)

	var best *candidate
	for _, in := range c.table.intents {
		if cand := c.evaluate(in, p.Normalized, x); cand != nil && better(cand, best) {
			best = cand
		}
	}

	if pc := c.pendingCandidate(pending, x); pc != nil {
		if best == nil || pc.confidence-best.confidence >= -epsilon {
			best = pc
		}
	}

	if best == nil {
		return message.UnknownRecognition()
	}
	return message.Recognition{
		Intent:         best.intent.ID,
		Confidence:     best.confidence,
		Slots:          c.slotsFor(best.intent, x),
		MatchedPattern: best.pattern,
	}
}

// evaluate scores one intent across the three tiers and keeps the best tier.
func (c *Classifier) evaluate(in *Intent, normalized string, x *extractor) *candidate {
	var best *candidate
	consider := func(conf float64, required int, id string) {
		if best == nil || conf-best.confidence > epsilon {
			best = &candidate{intent: in, confidence: conf, required: required, pattern: id}
		}
	}

	score, required := in.keywords[x.lang].score(x)

	if in.exact[x.lang][normalized] {
		consider(confidenceExact, required, in.ID+"/exact")
	}
	if score-keywordFloor >= -epsilon {
		consider(min(score, keywordCeiling), required, in.ID+"/keywords")
	}
	for i, pat := range in.patterns[x.lang] {
		if conf, ok := pat.match(x, c.table.slots); ok {
			consider(conf, required, fmt.Sprintf("%s/pattern/%d", in.ID, i))
		}
	}
	if best != nil {
		best.required = required
	}
	return best
}

func (c *Classifier) pendingCandidate(pending *message.PendingSlot, x *extractor) *candidate {
	if pending == nil {
		return nil
	}
	in, ok := c.table.Lookup(pending.Intent)
	if !ok {
		return nil
	}
	for _, slot := range pending.Slots {
		if _, ok := x.value(slot); ok {
			return &candidate{
				intent:     in,
				confidence: confidencePending,
				pattern:    in.ID + "/pending/" + slot,
			}
		}
	}
	return nil
}

func (c *Classifier) slotsFor(in *Intent, x *extractor) message.SlotBag {
	bag := make(message.SlotBag, len(in.Slots))
	for _, slot := range in.Slots {
		if v, ok := x.value(slot); ok {
			bag[slot] = v
		}
	}
	return bag
}
