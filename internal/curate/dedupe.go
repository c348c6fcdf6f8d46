package curate

import (
	"strings"
)

// shingleSet builds the set of word n-gram shingles for a text.
func shingleSet(text string, n int) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	out := map[string]struct{}{}
	if len(words) < n {
		if len(words) > 0 {
			out[strings.Join(words, " ")] = struct{}{}
		}
		return out
	}
	for i := 0; i+n <= len(words); i++ {
		out[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// tokenSet builds a lowercase token set for corroboration overlap checks.
func tokenSet(text string, limit int) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()'\"")
		if len(w) < 4 {
			continue
		}
		out[w] = struct{}{}
		if len(out) >= limit {
			break
		}
	}
	return out
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
