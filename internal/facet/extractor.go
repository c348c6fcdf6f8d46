package facet

import (
	"regexp"
	"sort"
	"strings"
)

// Facet is one independent research topic derived from the session context.
// Names are stable across runs for identical context, which keeps cache keys
// and results idempotent.
type Facet struct {
	Name           string   `json:"name"`
	Keywords       []string `json:"keywords"`
	ContextSnippet string   `json:"context_snippet"`
}

// Extract turns the free-text context fields into an ordered list of unique
// facets. Purely local lexicon matching, no network. When nothing matches it
// falls back to a single "general" facet over the orientation text, so the
// result is never empty.
func Extract(context map[string]string) []Facet {
	type hit struct {
		keywords []string
		snippet  string
	}
	hits := map[string]hit{}

	for _, field := range orderedFields(context) {
		text := strings.ToLower(context[field])
		if strings.TrimSpace(text) == "" {
			continue
		}
		for label, patterns := range topicLexicon {
			for _, p := range patterns {
				if !strings.Contains(text, p) {
					continue
				}
				h, ok := hits[label]
				if !ok {
					h = hit{snippet: snippetAround(context[field], p)}
				}
				h.keywords = append(h.keywords, p)
				hits[label] = h
				break
			}
		}
	}

	if len(hits) == 0 {
		orientation := context["orientation"]
		if strings.TrimSpace(orientation) == "" {
			for _, field := range orderedFields(context) {
				if strings.TrimSpace(context[field]) != "" {
					orientation = context[field]
					break
				}
			}
		}
		return []Facet{{
			Name:           "general",
			Keywords:       extractKeywords(strings.ToLower(orientation)),
			ContextSnippet: strings.TrimSpace(orientation),
		}}
	}

	names := make([]string, 0, len(hits))
	for name := range hits {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Facet, 0, len(names))
	for _, name := range names {
		h := hits[name]
		kw := append([]string{}, topicSeedKeywords[name]...)
		kw = append(kw, h.keywords...)
		out = append(out, Facet{
			Name:           name,
			Keywords:       uniqueSorted(kw),
			ContextSnippet: h.snippet,
		})
	}
	return out
}

// orderedFields returns context field names in a fixed order: the well-known
// fields first, anything else alphabetically after.
func orderedFields(context map[string]string) []string {
	known := []string{"orientation", "objective", "presenting_problem", "history", "location"}
	seen := map[string]struct{}{}
	var out []string
	for _, f := range known {
		if _, ok := context[f]; ok {
			out = append(out, f)
			seen[f] = struct{}{}
		}
	}
	var rest []string
	for f := range context {
		if _, ok := seen[f]; !ok {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func snippetAround(text, needle string) string {
	lower := strings.ToLower(text)
	i := strings.Index(lower, needle)
	if i < 0 {
		return strings.TrimSpace(text)
	}
	start := i - 60
	if start < 0 {
		start = 0
	}
	end := i + len(needle) + 60
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

var topicLexicon = map[string][]string{
	"anxiety":       {"anxiety", "anxious", "panic", "phobia", "worry"},
	"depression":    {"depression", "depressive", "low mood", "anhedonia"},
	"trauma":        {"trauma", "ptsd", "post-traumatic", "flashback"},
	"substance-use": {"substance", "alcohol", "addiction", "opioid", "cannabis", "withdrawal"},
	"sleep":         {"insomnia", "sleep", "nightmare"},
	"eating":        {"eating disorder", "anorexia", "bulimia", "binge eating"},
	"chronic-pain":  {"chronic pain", "fibromyalgia", "pain management"},
	"perinatal":     {"perinatal", "postpartum", "pregnancy"},
	"grief":         {"grief", "bereavement", "loss of"},
	"psychosis":     {"psychosis", "psychotic", "schizophrenia", "hallucination"},
	"adhd":          {"adhd", "attention deficit", "hyperactivity"},
	"medication":    {"medication", "ssri", "antidepressant", "anxiolytic", "prescription"},
}

// Seed keywords enrich the lexicon hit so single-word matches still produce
// usable queries.
var topicSeedKeywords = map[string][]string{
	"anxiety":       {"anxiety disorder"},
	"depression":    {"major depressive disorder"},
	"trauma":        {"post-traumatic stress"},
	"substance-use": {"substance use disorder"},
	"sleep":         {"sleep disorder"},
	"eating":        {"eating disorder"},
	"chronic-pain":  {"chronic pain"},
	"perinatal":     {"perinatal mental health"},
	"grief":         {"grief counseling"},
	"psychosis":     {"psychotic disorder"},
	"adhd":          {"adhd"},
	"medication":    {"psychotropic medication"},
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "with": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"patient": {}, "client": {}, "session": {}, "therapy": {}, "about": {}, "their": {}, "they": {}, "has": {}, "have": {},
}

var reNonWord = regexp.MustCompile(`[^\pL\pN]+`)

// extractKeywords keeps the most frequent non-stopword tokens, ties broken
// alphabetically so output is deterministic.
func extractKeywords(text string) []string {
	raw := reNonWord.Split(text, -1)

	counts := map[string]int{}
	for _, tok := range raw {
		tok = strings.TrimSpace(tok)
		if tok == "" || len([]rune(tok)) < 3 {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		counts[tok]++
	}

	type kv struct {
		k string
		v int
	}
	var all []kv
	for k, v := range counts {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v == all[j].v {
			return all[i].k < all[j].k
		}
		return all[i].v > all[j].v
	})

	n := 8
	if len(all) < n {
		n = len(all)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, all[i].k)
	}
	return out
}

func uniqueSorted(in []string) []string {
	m := map[string]struct{}{}
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			m[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
