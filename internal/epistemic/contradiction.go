package epistemic

import "strings"

// Subject overlap below this Dice coefficient means the two claims talk
// about different things and cannot contradict.
const subjectOverlapThreshold = 0.3

// negationTokens mark an asserted negative.
var negationTokens = []string{"not", "no", "never", "false", "cannot", "isn't", "aren't", "doesn't", "don't"}

// Contradicts reports whether two claim texts contradict: exactly one side
// asserts a negation, and the claims share enough subject matter.
func Contradicts(a, b string) bool {
	if negated(a) == negated(b) {
		return false
	}
	return SubjectOverlap(a, b) >= subjectOverlapThreshold
}

// negated reports whether the text contains a negation token as a word.
func negated(text string) bool {
	for _, w := range tokenize(text, 1) {
		for _, n := range negationTokens {
			if w == n {
				return true
			}
		}
	}
	return false
}

// SubjectOverlap is the Dice coefficient over the sets of words longer than
// three characters. Short words (articles, copulas, negations) carry no
// subject signal and are excluded.
func SubjectOverlap(a, b string) float64 {
	wa := wordSet(tokenize(a, 4))
	wb := wordSet(tokenize(b, 4))
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(wa)+len(wb))
}

// tokenize lower-cases and splits on non-alphanumeric runes, keeping words
// of at least minLen characters.
func tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= minLen {
			out = append(out, f)
		}
	}
	return out
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
