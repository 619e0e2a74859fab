package dispatch

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitpatel990/KrishiNiti-sub001/internal/i18n"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/intent"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/message"
	"github.com/ankitpatel990/KrishiNiti-sub001/internal/phrase"
)

type fixture struct {
	norm       *phrase.Normalizer
	classifier *intent.Classifier
	dispatcher *Dispatcher
	strings    *i18n.Bundle
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	n := phrase.MustNormalizer()
	table, err := intent.LoadTable(n)
	require.NoError(t, err)
	b := i18n.MustLoad()
	return fixture{
		norm:       n,
		classifier: intent.NewClassifier(table),
		dispatcher: New(table, b, opts...),
		strings:    b,
	}
}

func (f fixture) run(raw string, lang phrase.Language, sc message.SessionContext, env Env) Decision {
	rec := f.classifier.Classify(f.norm.Phrase(raw, lang, time.Time{}), sc.Pending)
	return f.dispatcher.Dispatch(rec, sc, env)
}

func TestDispatchSeedScenarios(t *testing.T) {
	f := newFixture(t)
	online := Env{Online: true, Language: "en"}

	t.Run("price query", func(t *testing.T) {
		dec := f.run("show wheat prices", phrase.English, message.SessionContext{}, online)
		want := []message.Outcome{message.Query("prices", message.SlotBag{"commodity": "wheat"})}
		if diff := cmp.Diff(want, dec.Outcomes); diff != "" {
			t.Errorf("outcomes (-want +got):\n%s", diff)
		}
		assert.Nil(t, dec.Pending)
	})

	t.Run("navigation", func(t *testing.T) {
		dec := f.run("मौसम", phrase.Hindi, message.SessionContext{}, Env{Online: true, Language: "hi"})
		assert.Equal(t, []message.Outcome{message.Navigate("/weather")}, dec.Outcomes)
	})

	t.Run("missing slot then pending", func(t *testing.T) {
		var sc message.SessionContext
		dec := f.run("best mandi", phrase.English, sc, online)
		require.Len(t, dec.Outcomes, 1)
		assert.Equal(t, message.OutcomeSpeak, dec.Outcomes[0].Kind)
		assert.Equal(t, f.strings.Text("en", "prompt.commodity"), dec.Outcomes[0].Text)
		require.NotNil(t, dec.Pending)
		assert.Equal(t, "best_mandi.commodity", dec.Pending.Key())

		sc.Pending = dec.Pending
		dec = f.run("rice", phrase.English, sc, online)
		assert.Equal(t, []message.Outcome{message.Query("best_mandi", message.SlotBag{"commodity": "rice"})}, dec.Outcomes)
		assert.Nil(t, dec.Pending)
	})

	t.Run("out of domain escalates", func(t *testing.T) {
		dec := f.run("what is the price of gold", phrase.English, message.SessionContext{}, online)
		assert.Equal(t, []message.Outcome{message.Escalate()}, dec.Outcomes)
		assert.True(t, dec.Escalated())
	})

	t.Run("help", func(t *testing.T) {
		dec := f.run("help", phrase.Hindi, message.SessionContext{}, Env{Online: true, Language: "hi"})
		want := []message.Outcome{
			message.Speak(f.strings.Text("hi", "help.blurb"), "hi"),
			message.Signal(message.SignalOpenHelp),
		}
		assert.Equal(t, want, dec.Outcomes)
	})
}

func TestDispatchOfflineNotUnderstood(t *testing.T) {
	f := newFixture(t)
	dec := f.run("what is the price of gold", phrase.English, message.SessionContext{}, Env{Online: false, Language: "hi-IN"})
	assert.Equal(t, []message.Outcome{message.Speak(f.strings.Text("hi", "reply.not_understood"), "hi")}, dec.Outcomes)
}

func TestDispatchInheritsContext(t *testing.T) {
	f := newFixture(t)
	sc := message.SessionContext{LastCommodity: "cotton", LastLocation: "gujarat/rajkot"}

	dec := f.run("best mandi", phrase.English, sc, Env{Online: true})
	assert.Equal(t, []message.Outcome{
		message.Query("best_mandi", message.SlotBag{"commodity": "cotton", "location": "gujarat/rajkot"}),
	}, dec.Outcomes)

	// Recognised slots take precedence over the context.
	dec = f.run("onion price", phrase.English, sc, Env{Online: true})
	assert.Equal(t, message.SlotBag{"commodity": "onion", "location": "gujarat/rajkot"}, dec.Slots)
}

func TestDispatchDiseaseGroupPrompt(t *testing.T) {
	f := newFixture(t)
	rec := message.Recognition{Intent: "query_disease_treatment", Confidence: 0.8}
	dec := f.dispatcher.Dispatch(rec, message.SessionContext{}, Env{Language: "en"})
	require.NotNil(t, dec.Pending)
	assert.Equal(t, []string{"disease", "crop"}, dec.Pending.Slots)
	assert.Equal(t, f.strings.Text("en", "prompt.disease_or_crop"), dec.Outcomes[0].Text)

	dec = f.dispatcher.Dispatch(rec, message.SessionContext{LastCrop: "potato"}, Env{Language: "en"})
	assert.Equal(t, []message.Outcome{message.Query("disease_treatment", message.SlotBag{"crop": "potato"})}, dec.Outcomes)
}

func TestDispatchThreshold(t *testing.T) {
	f := newFixture(t, WithThreshold(0.9))
	rec := message.Recognition{Intent: "navigate_apmc", Confidence: 0.8}

	dec := f.dispatcher.Dispatch(rec, message.SessionContext{}, Env{Online: true})
	assert.True(t, dec.Escalated())

	f = newFixture(t)
	dec = f.dispatcher.Dispatch(rec, message.SessionContext{}, Env{Online: true})
	assert.Equal(t, []message.Outcome{message.Navigate("/apmc")}, dec.Outcomes)

	dec = f.dispatcher.Dispatch(message.Recognition{Intent: "navigate_apmc", Confidence: 0.49}, message.SessionContext{}, Env{Online: true})
	assert.True(t, dec.Escalated())
}

func TestDispatchNeverFails(t *testing.T) {
	f := newFixture(t)
	dec := f.dispatcher.Dispatch(message.Recognition{Intent: "teleport", Confidence: 1}, message.SessionContext{}, Env{})
	require.Len(t, dec.Outcomes, 1)
	assert.Equal(t, message.OutcomeNoop, dec.Outcomes[0].Kind)
	assert.Contains(t, dec.Outcomes[0].Reason, "teleport")
}

func TestDispatchAlerts(t *testing.T) {
	f := newFixture(t)
	dec := f.run("read my alerts", phrase.English, message.SessionContext{}, Env{Language: "en"})
	require.Len(t, dec.Outcomes, 2)
	assert.Equal(t, message.OutcomeSpeak, dec.Outcomes[0].Kind)
	assert.Equal(t, message.OutcomeQuery, dec.Outcomes[1].Kind)
	assert.Equal(t, "alerts", dec.Outcomes[1].QuerySpec)
}

func TestNavigationNeverPrompts(t *testing.T) {
	f := newFixture(t)
	for _, in := range f.classifier.Table().Intents() {
		if in.Kind != intent.KindNavigate {
			continue
		}
		dec := f.dispatcher.Dispatch(message.Recognition{Intent: in.ID, Confidence: 1}, message.SessionContext{}, Env{})
		assert.Equal(t, []message.Outcome{message.Navigate(in.Route)}, dec.Outcomes, in.ID)
		assert.Nil(t, dec.Pending)
	}
}
