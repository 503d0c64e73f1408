package atlas

import "strings"

// Similarity weights. Titles carry the most identity signal.
const (
	titleWeight = 0.4
	tagWeight   = 0.3
	claimWeight = 0.3
)

// Similarity is the combined title/tag/claim similarity between two DTU
// payloads, in [0,1]. Title and claim text use a word-level Dice
// coefficient; tags use Jaccard over the tag sets.
func Similarity(aTitle string, aTags, aClaims []string, bTitle string, bTags, bClaims []string) float64 {
	title := diceWords(aTitle, bTitle)
	tags := jaccard(aTags, bTags)
	claims := diceWords(strings.Join(aClaims, " "), strings.Join(bClaims, " "))
	return titleWeight*title + tagWeight*tags + claimWeight*claims
}

func diceWords(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
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

func jaccard(a, b []string) float64 {
	sa := make(map[string]bool, len(a))
	for _, t := range a {
		sa[strings.ToLower(t)] = true
	}
	sb := make(map[string]bool, len(b))
	for _, t := range b {
		sb[strings.ToLower(t)] = true
	}
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) >= 3 {
			set[f] = true
		}
	}
	return set
}
