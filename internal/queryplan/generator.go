package queryplan

import (
	"fmt"
	"strings"

	"presearch/internal/facet"
	"presearch/internal/policy"
)

// Angle is one of the orthogonal query-generation strategies.
type Angle string

const (
	AngleClinical     Angle = "clinical"
	AngleDeterminants Angle = "determinants"
	AngleLocal        Angle = "local"
)

// Angles lists every configured angle in a fixed order.
var Angles = []Angle{AngleClinical, AngleDeterminants, AngleLocal}

type Query struct {
	FacetName string `json:"facet_name"`
	Angle     Angle  `json:"angle"`
	Text      string `json:"text"`
}

// Generator expands facets into scrubbed query variants. Queries are what
// leaves the process, so every candidate string is checked against the
// configured PII patterns before it is emitted.
type Generator struct {
	pol      *policy.Scoring
	location string
}

func NewGenerator(pol *policy.Scoring, location string) *Generator {
	return &Generator{pol: pol, location: strings.TrimSpace(location)}
}

// Generate builds one query per angle for the facet. An expansion that trips a
// PII pattern is regenerated from the facet name alone; if even that trips, the
// angle is dropped. Queries normalizing to the same string are deduplicated.
func (g *Generator) Generate(f facet.Facet) []Query {
	terms := strings.Join(f.Keywords, " ")
	if terms == "" {
		terms = strings.ReplaceAll(f.Name, "-", " ")
	}

	out := make([]Query, 0, len(Angles))
	seen := map[string]struct{}{}

	for _, angle := range Angles {
		text := g.render(angle, terms)
		if g.pol.PIIMatches(text) {
			// Generic fallback: the facet name carries no patient content.
			text = g.render(angle, strings.ReplaceAll(f.Name, "-", " "))
			if g.pol.PIIMatches(text) {
				continue
			}
		}

		norm := normalize(text)
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}

		out = append(out, Query{FacetName: f.Name, Angle: angle, Text: norm})
	}
	return out
}

func (g *Generator) render(angle Angle, terms string) string {
	switch angle {
	case AngleClinical:
		return fmt.Sprintf("%s clinical practice guideline evidence review", terms)
	case AngleDeterminants:
		return fmt.Sprintf("%s social determinants access barriers outcomes", terms)
	case AngleLocal:
		if g.location != "" {
			return fmt.Sprintf("%s support services resources %s", terms, g.location)
		}
		return fmt.Sprintf("%s community support services resources", terms)
	}
	return terms
}

func normalize(q string) string {
	q = strings.ToLower(q)
	q = strings.ReplaceAll(q, "\n", " ")
	return strings.Join(strings.Fields(q), " ")
}
