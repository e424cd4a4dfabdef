package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreLiterals(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		text   string
		want   float64
		accept bool
	}{
		{"personal voice", "I missed you so much today, my friend.", 0.9, true},
		{"neutral", "The weather was lovely at the beach.", 0.6, true},
		{"too short", "That sounds hard.", 0, false},
		{"empty", "   ", 0, false},
		{"boilerplate", "As an AI language model, I cannot feel emotions.", 0.6 - 0.75 + 2.0/9, false},
		{"nested disclaimer", "As a language model I feel we are fine.", 0.6 - 0.25 + 0.3, true},
		{"looping", "I am I am I am I am I am", 0.6 + 0.3 - 0.75, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Accept(tc.text)
			assert.InDelta(t, clamp(tc.want), got, 1e-9)
			assert.Equal(t, tc.accept, ok)
		})
	}
}

func TestScoreAlwaysInUnitRange(t *testing.T) {
	t.Parallel()

	inputs := []string{
		strings.Repeat("as an ai i cannot ", 20),
		strings.Repeat("me my mine myself ", 50),
		"word word word word word word word word",
		"¿Qué tal? Estoy bien, gracias por preguntar.",
	}
	for _, in := range inputs {
		s := Score(in)
		assert.GreaterOrEqual(t, s, 0.0, in)
		assert.LessOrEqual(t, s, 1.0, in)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	t.Parallel()

	text := "I think we should go for a walk later, it always helps me."
	assert.Equal(t, Score(text), Score(text))
}

func TestPronounBonusIsCapped(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.9, Score("I me my mine myself we us our"), 1e-9)
}

func TestRepetitionShare(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, repetition([]string{"a", "b"}))
	assert.Equal(t, 0.0, repetition([]string{"a", "b", "c", "d"}))
	assert.InDelta(t, 0.5, repetition([]string{"a", "b", "c", "a", "b", "c", "a", "b"}), 1e-9)
}

func TestBlend(t *testing.T) {
	t.Parallel()

	r := 0.4
	assert.InDelta(t, 0.6, Blend(0.8, &r), 1e-9)
	assert.Equal(t, 0.8, Blend(0.8, nil))
}

func TestBlendStaysAboveThreshold(t *testing.T) {
	t.Parallel()

	zero := 0.0
	score, ok := Accept("I think the plan for the trip is fine.")
	assert.True(t, ok)
	got := Blend(score, &zero)
	assert.GreaterOrEqual(t, got, AcceptThreshold)
	assert.LessOrEqual(t, got, 1.0)

	one := 1.0
	assert.InDelta(t, (score+1)/2, Blend(score, &one), 1e-9)
}
