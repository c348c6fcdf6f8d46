package render

import (
	"sort"

	"presearch/internal/curate"
	"presearch/internal/policy"
	"presearch/internal/queryplan"
	"presearch/internal/score"
	"presearch/internal/synthesis"
)

// Citation is the externally consumed citation shape.
type Citation struct {
	Title         string               `json:"title"`
	URL           string               `json:"url"`
	Date          string               `json:"date"`
	Jurisdiction  string               `json:"jurisdiction"`
	EvidenceLevel policy.EvidenceLevel `json:"evidence_level"`
}

type Progress struct {
	Targets map[string]int `json:"targets"`
	Current map[string]int `json:"current"`
}

// FacetResult is the terminal per-facet aggregate returned to the caller.
type FacetResult struct {
	Name      string             `json:"name"`
	Status    score.Status       `json:"status"`
	Scores    score.Breakdown    `json:"scores"`
	Progress  Progress           `json:"progress"`
	Synthesis synthesis.Sections `json:"synthesis"`
	Citations []Citation         `json:"citations"`
}

// Facet assembles the final payload for one facet, ordering citations most
// authoritative first: evidence level, then freshness.
func Facet(name string, status score.Status, scores score.Breakdown, sections synthesis.Sections, citations []curate.Citation, perAngleTarget int) FacetResult {
	ordered := make([]curate.Citation, len(citations))
	copy(ordered, citations)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ri, rj := ordered[i].EvidenceLevel.Rank(), ordered[j].EvidenceLevel.Rank(); ri != rj {
			return ri > rj
		}
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.After(ordered[j].Date)
		}
		return ordered[i].URL < ordered[j].URL
	})

	rendered := make([]Citation, 0, len(ordered))
	for _, c := range ordered {
		date := ""
		if !c.Date.IsZero() {
			date = c.Date.Format("2006-01-02")
		}
		rendered = append(rendered, Citation{
			Title:         c.Title,
			URL:           c.URL,
			Date:          date,
			Jurisdiction:  c.Jurisdiction,
			EvidenceLevel: c.EvidenceLevel,
		})
	}

	targets := make(map[string]int, len(queryplan.Angles))
	current := make(map[string]int, len(queryplan.Angles))
	for _, angle := range queryplan.Angles {
		targets[string(angle)] = perAngleTarget
		current[string(angle)] = 0
	}
	for _, c := range citations {
		current[string(c.Angle)]++
	}

	return FacetResult{
		Name:      name,
		Status:    status,
		Scores:    scores,
		Progress:  Progress{Targets: targets, Current: current},
		Synthesis: sections,
		Citations: rendered,
	}
}
