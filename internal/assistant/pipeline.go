package assistant

import (
	"context"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/conversation"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/dispatch"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
)

// remotePattern is the matched pattern id of recognitions supplied by the
// remote conversation.
const remotePattern = "remote"

// handlePhrase runs one final phrase through normalize, classify and
// dispatch, records the turn and emits its outcomes. It returns the local
// outcomes.
func (c *Core) handlePhrase(raw, lang string) []message.Outcome {
	p := c.normalizer.Phrase(raw, phrase.ForTag(lang), c.now())
	if p.Normalized == "" {
		c.logger.Debug("ignoring empty phrase")
		return nil
	}

	// A new phrase supersedes any remote answer still on its way.
	c.supersedeEscalation()

	pending := c.manager.TakePending()
	rec := c.classifier.Classify(p, pending)
	env := dispatch.Env{Online: c.manager.Online(), Language: lang}
	dec := c.dispatcher.Dispatch(rec, c.manager.Context(), env)
	c.manager.SetPending(dec.Pending)

	logger := c.logger.With("intent", rec.Intent, "confidence", rec.Confidence, "pattern", rec.MatchedPattern)
	logger.Debug("phrase classified", "normalized", p.Normalized, "slots", rec.Slots.String())

	turn := message.Turn{
		Phrase:         p,
		Recognition:    rec,
		ResponseOrigin: message.OriginLocal,
		Outcomes:       dec.Outcomes,
	}

	if dec.Escalated() {
		turn.ResponseOrigin = message.OriginRemote
		turn.ID = newTurnID()
		turn.CreatedAt = p.Timestamp
		pendingTurn := turn
		c.escalated = &pendingTurn
		outs := c.stamp(turn.ID, dec.Outcomes)
		c.emit(outs, lang)
		c.manager.Ask(p, lang, func(a conversation.Answer) { c.onAnswer(a, lang) })
		return outs
	}

	fillResponse(&turn, dec.Outcomes)
	turn = c.record(turn)
	outs := c.stamp(turn.ID, dec.Outcomes)
	c.emit(outs, lang)
	return outs
}

// onAnswer applies the remote answer to the escalated turn. It only runs for
// the current request.
func (c *Core) onAnswer(a conversation.Answer, lang string) {
	if c.escalated == nil {
		return
	}
	turn := *c.escalated
	c.escalated = nil

	turn.ResponseText = a.Reply.Text
	turn.Data = a.Reply.Data
	var outs []message.Outcome

	if !a.Failed() {
		outs = c.serverOutcomes(&turn, a.Reply, lang)
	}
	if a.Reply.Text != "" {
		say := message.Speak(a.Reply.Text, i18n.Base(lang))
		say.Data = a.Reply.Data
		outs = append([]message.Outcome{say}, outs...)
	}
	if len(outs) == 0 {
		outs = []message.Outcome{message.Noop("empty remote answer")}
	}

	turn.Outcomes = append(turn.Outcomes, outs...)
	turn = c.record(turn)
	c.emit(c.stamp(turn.ID, outs), lang)
}

// serverOutcomes turns the intent or route the server recognized into
// outcomes. Intents outside the local table are ignored; an explicit route
// is only followed when a navigate intent declares it.
func (c *Core) serverOutcomes(turn *message.Turn, reply conversation.Reply, lang string) []message.Outcome {
	if reply.Intent != "" {
		if _, ok := c.table.Lookup(reply.Intent); ok {
			rec := message.Recognition{
				Intent:         reply.Intent,
				Confidence:     1,
				Slots:          turn.Recognition.Slots.Clone(),
				MatchedPattern: remotePattern,
			}
			turn.Recognition = rec
			dec := c.dispatcher.Dispatch(rec, c.manager.Context(), dispatch.Env{Language: lang})
			c.manager.SetPending(dec.Pending)
			var outs []message.Outcome
			for _, o := range dec.Outcomes {
				// The server's reply text replaces the local speech, except
				// for a prompt asking for a missing slot.
				if o.Kind == message.OutcomeSpeak && dec.Pending == nil {
					continue
				}
				outs = append(outs, o)
			}
			fillNavigation(turn, outs)
			return outs
		}
		c.logger.Info("ignoring remote intent outside the table", "intent", reply.Intent)
	}
	if reply.NavigateTo != "" {
		if c.table.HasRoute(reply.NavigateTo) {
			turn.Navigation = reply.NavigateTo
			return []message.Outcome{message.Navigate(reply.NavigateTo)}
		}
		c.logger.Info("ignoring unknown remote route", "route", reply.NavigateTo)
	}
	return nil
}

// supersedeEscalation cancels the in-flight remote call and records its
// phrase without a response.
func (c *Core) supersedeEscalation() {
	if c.escalated == nil {
		return
	}
	c.manager.Cancel()
	turn := *c.escalated
	c.escalated = nil
	c.logger.Debug("remote answer superseded", "turn", turn.ID)
	c.record(turn)
}

func (c *Core) record(t message.Turn) message.Turn {
	t = c.manager.Record(t)
	if c.repo.ContextPersisted(c.settings) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		c.persistContext(ctx)
	}
	return t
}

// stamp copies outs, tagging each with the turn id.
func (c *Core) stamp(turnID string, outs []message.Outcome) []message.Outcome {
	stamped := make([]message.Outcome, len(outs))
	for i, o := range outs {
		o.TurnID = turnID
		stamped[i] = o
	}
	return stamped
}

// emit publishes outcomes in order and speaks the speak outcomes when
// auto-speak is on.
func (c *Core) emit(outs []message.Outcome, lang string) {
	for i := range outs {
		o := outs[i]
		c.broadcast(Event{Kind: EventOutcome, Outcome: &o})
		if o.Kind == message.OutcomeSpeak && c.settings.AutoSpeak {
			speakLang := lang
			if i18n.Base(lang) != o.Language {
				speakLang = o.Language
			}
			c.synth.Speak(o.Text, speakLang, c.settings.Synth())
		}
	}
}

func fillResponse(t *message.Turn, outs []message.Outcome) {
	for _, o := range outs {
		if o.Kind == message.OutcomeSpeak && t.ResponseText == "" {
			t.ResponseText = o.Text
		}
	}
	fillNavigation(t, outs)
}

func fillNavigation(t *message.Turn, outs []message.Outcome) {
	for _, o := range outs {
		if o.Kind == message.OutcomeNavigate {
			t.Navigation = o.Route
		}
	}
}
