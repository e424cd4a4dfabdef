// Package quality scores generated text for acceptance. Scoring is pure and
// deterministic.
package quality

import (
	"sort"
	"strings"
	"unicode"
)

// AcceptThreshold is the minimum score for model output to be delivered.
const AcceptThreshold = 0.5

const (
	base              = 0.6
	minWords          = 4
	disclaimerPenalty = 0.25
	maxPronounBonus   = 0.3
)

// Phrases that mark generic assistant boilerplate rather than a personal voice.
var disclaimers = []string{
	"as an ai",
	"as a language model",
	"language model",
	"i cannot",
	"i can't help with",
	"i'm unable to",
	"i am unable to",
	"i don't have personal",
	"i do not have personal",
	"i don't have feelings",
	"i'm just a",
	"it is important to note",
	"please consult a professional",
}

// byLength holds disclaimers longest first, so a phrase nested in a longer
// one is matched only once.
var byLength = func() []string {
	out := append([]string(nil), disclaimers...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}()

var firstPerson = map[string]bool{
	"i": true, "i'm": true, "i've": true, "i'd": true, "i'll": true,
	"me": true, "my": true, "mine": true, "myself": true,
	"we": true, "us": true, "our": true,
}

// Score rates text in [0,1]:
//
//   - fewer than 4 words scores 0
//   - start at 0.6
//   - minus 0.25 per disclaimer phrase found, not counting one that only
//     occurs inside a longer phrase already counted
//   - plus first-person density x2, capped at 0.3
//   - minus the share of word trigrams that repeat an earlier trigram
func Score(text string) float64 {
	words := tokenize(text)
	if len(words) < minWords {
		return 0
	}
	s := base
	lower := strings.ToLower(text)
	seen := 0
	for _, d := range byLength {
		if strings.Contains(lower, d) {
			seen++
			lower = strings.ReplaceAll(lower, d, "\x00")
		}
	}
	s -= disclaimerPenalty * float64(seen)

	fp := 0
	for _, w := range words {
		if firstPerson[w] {
			fp++
		}
	}
	bonus := 2 * float64(fp) / float64(len(words))
	if bonus > maxPronounBonus {
		bonus = maxPronounBonus
	}
	s += bonus

	s -= repetition(words)
	return clamp(s)
}

// Accept scores text and reports whether it clears AcceptThreshold.
func Accept(text string) (float64, bool) {
	s := Score(text)
	return s, s >= AcceptThreshold
}

// Blend combines an accepted heuristic score with a runtime-reported
// confidence. Without a reported value the heuristic stands alone. The result
// never drops below AcceptThreshold, keeping model confidences above any
// fallback marker.
func Blend(score float64, reported *float64) float64 {
	v := score
	if reported != nil {
		v = (score + *reported) / 2
	}
	return clamp(max(v, AcceptThreshold))
}

// repetition returns the share of trigrams that already occurred earlier.
func repetition(words []string) float64 {
	if len(words) < 3 {
		return 0
	}
	total := len(words) - 2
	seen := make(map[[3]string]bool, total)
	repeated := 0
	for i := 0; i < total; i++ {
		k := [3]string{words[i], words[i+1], words[i+2]}
		if seen[k] {
			repeated++
			continue
		}
		seen[k] = true
	}
	return float64(repeated) / float64(total)
}

func tokenize(text string) []string {
	f := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := f[:0]
	for _, w := range f {
		w = strings.Trim(w, "'")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
