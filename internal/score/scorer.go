package score

import (
	"math"
	"time"

	"presearch/internal/curate"
	"presearch/internal/policy"
	"presearch/internal/queryplan"
)

// Status is the facet-level gate outcome. Gating only annotates the facet; it
// never discards citations already kept by curation.
type Status string

const (
	StatusOK           Status = "ok"
	StatusDegraded     Status = "degraded"
	StatusInsufficient Status = "insufficient"
)

type Breakdown struct {
	Coverage  float64 `json:"coverage"`
	Freshness float64 `json:"freshness"`
	Diversity float64 `json:"diversity"`
}

type Scorer struct {
	pol *policy.Scoring
	now func() time.Time
}

func NewScorer(pol *policy.Scoring) *Scorer {
	return &Scorer{pol: pol, now: time.Now}
}

// Score computes the facet's breakdown from its kept citations and applies
// the policy gate.
func (s *Scorer) Score(citations []curate.Citation) (Breakdown, Status) {
	b := Breakdown{
		Coverage:  s.coverage(citations),
		Freshness: s.freshness(citations),
		Diversity: s.diversity(citations),
	}

	w := s.pol.Weights
	total := (w.Coverage*b.Coverage + w.Freshness*b.Freshness + w.Diversity*b.Diversity) /
		(w.Coverage + w.Freshness + w.Diversity)

	switch {
	case total < s.pol.Gate.MinScore:
		return b, StatusInsufficient
	case total < s.pol.Gate.FullScore:
		return b, StatusDegraded
	default:
		return b, StatusOK
	}
}

// coverage is the fraction of query angles that produced at least one kept
// citation.
func (s *Scorer) coverage(citations []curate.Citation) float64 {
	if len(queryplan.Angles) == 0 {
		return 0
	}
	seen := map[queryplan.Angle]struct{}{}
	for _, c := range citations {
		seen[c.Angle] = struct{}{}
	}
	return float64(len(seen)) / float64(len(queryplan.Angles))
}

// freshness decays each citation's age exponentially against the configured
// half-life and averages. Safety notices decay against a shorter half-life,
// which raises the bar for them.
func (s *Scorer) freshness(citations []curate.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	now := s.now()
	sum := 0.0
	for _, c := range citations {
		sum += s.decay(c, now)
	}
	return sum / float64(len(citations))
}

func (s *Scorer) decay(c curate.Citation, now time.Time) float64 {
	date := c.Date
	if date.IsZero() {
		date = c.FetchedAt
	}
	ageDays := now.Sub(date).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	halfLife := s.pol.Freshness.HalfLifeDays
	if c.EvidenceLevel == policy.EvidenceSafetyNotice {
		halfLife = s.pol.Freshness.SafetyNoticeHalfLifeDays
	}
	return math.Pow(0.5, ageDays/halfLife)
}

// diversityTarget is the distinct-source count that earns full marks.
const diversityTarget = 3

func (s *Scorer) diversity(citations []curate.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	domains := map[string]struct{}{}
	jurisdictions := map[string]struct{}{}
	for _, c := range citations {
		if c.Domain != "" {
			domains[c.Domain] = struct{}{}
		}
		if c.Jurisdiction != "" {
			jurisdictions[c.Jurisdiction] = struct{}{}
		}
	}
	distinct := len(domains)
	if len(jurisdictions) > distinct {
		distinct = len(jurisdictions)
	}
	v := float64(distinct) / diversityTarget
	if v > 1 {
		v = 1
	}
	return v
}
