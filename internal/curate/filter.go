package curate

import (
	"sort"
	"time"

	"presearch/internal/audit"
	"presearch/internal/collect"
	"presearch/internal/policy"
	"presearch/internal/queryplan"
)

// Citation is the surviving, enriched form of a Candidate.
type Citation struct {
	Title         string               `json:"title"`
	URL           string               `json:"url"`
	Domain        string               `json:"-"`
	Date          time.Time            `json:"date"`
	Jurisdiction  string               `json:"jurisdiction"`
	EvidenceLevel policy.EvidenceLevel `json:"evidence_level"`
	Extract       string               `json:"-"`
	Angle         queryplan.Angle      `json:"-"`
	FetchedAt     time.Time            `json:"-"`
}

// Minimum token overlap between a greylisted candidate and a whitelisted one
// on the same facet before the greylisted claim counts as corroborated.
const corroborationOverlap = 2

// Curator applies the domain policy and deduplication rules. Every input
// candidate yields exactly one audit decision, kept or not.
type Curator struct {
	reg                 *policy.Registry
	pol                 *policy.Scoring
	sink                audit.Sink
	defaultJurisdiction string
}

func NewCurator(reg *policy.Registry, pol *policy.Scoring, sink audit.Sink, defaultJurisdiction string) *Curator {
	return &Curator{reg: reg, pol: pol, sink: sink, defaultJurisdiction: defaultJurisdiction}
}

type judged struct {
	cand   collect.Candidate
	source policy.Source
}

// Curate filters and deduplicates one facet's candidates and promotes the
// survivors to citations. Rules apply in order: blocklist, quality,
// greylist corroboration, near-duplicate collapse.
func (c *Curator) Curate(candidates []collect.Candidate) []Citation {
	var pass []judged
	var greylisted []judged
	var whitelistTokens []map[string]struct{}

	for _, cand := range candidates {
		src := c.reg.Lookup(cand.Domain)

		if src.Tier == policy.TierBlocklist {
			c.reject(cand, audit.ReasonBlockedDomain)
			continue
		}
		if len(cand.RawText) < c.pol.Quality.MinTextChars {
			c.reject(cand, audit.ReasonLowQuality)
			continue
		}

		j := judged{cand: cand, source: src}
		if src.Tier == policy.TierGreylist {
			greylisted = append(greylisted, j)
			continue
		}
		pass = append(pass, j)
		whitelistTokens = append(whitelistTokens, tokenSet(cand.Title+" "+cand.RawText, 200))
	}

	// Greylisted domains need a whitelisted candidate on the same facet with
	// overlapping claim content.
	for _, g := range greylisted {
		gt := tokenSet(g.cand.Title+" "+g.cand.RawText, 200)
		corroborated := false
		for _, wt := range whitelistTokens {
			if overlapCount(gt, wt) >= corroborationOverlap {
				corroborated = true
				break
			}
		}
		if !corroborated {
			c.reject(g.cand, audit.ReasonUnconfirmedGreylist)
			continue
		}
		pass = append(pass, g)
	}

	kept := c.dedupe(pass)

	out := make([]Citation, 0, len(kept))
	for _, j := range kept {
		c.sink.Record(audit.Decision{URL: j.cand.URL, Kept: true, Reason: audit.ReasonAccepted})
		out = append(out, c.promote(j))
	}
	return out
}

// dedupe collapses candidates whose shingled texts exceed the similarity
// threshold, or which share a normalized URL. The highest-trust entry of each
// cluster survives, earliest-fetched on ties.
func (c *Curator) dedupe(in []judged) []judged {
	sort.SliceStable(in, func(i, j int) bool {
		if ti, tj := tierRank(in[i].source.Tier), tierRank(in[j].source.Tier); ti != tj {
			return ti > tj
		}
		if ri, rj := in[i].source.EvidenceLevel.Rank(), in[j].source.EvidenceLevel.Rank(); ri != rj {
			return ri > rj
		}
		return in[i].cand.FetchedAt.Before(in[j].cand.FetchedAt)
	})

	n := c.pol.Dedupe.ShingleSize
	threshold := c.pol.Dedupe.SimilarityThreshold

	var kept []judged
	var keptShingles []map[string]struct{}
	seenURL := map[string]struct{}{}

	for _, j := range in {
		norm := collect.NormalizeURL(j.cand.URL)
		if _, ok := seenURL[norm]; ok {
			c.reject(j.cand, audit.ReasonDuplicate)
			continue
		}

		sh := shingleSet(j.cand.RawText, n)
		dup := false
		for _, ks := range keptShingles {
			if jaccard(sh, ks) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			c.reject(j.cand, audit.ReasonDuplicate)
			continue
		}

		seenURL[norm] = struct{}{}
		kept = append(kept, j)
		keptShingles = append(keptShingles, sh)
	}
	return kept
}

func (c *Curator) promote(j judged) Citation {
	jurisdiction := j.source.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = c.defaultJurisdiction
	}
	return Citation{
		Title:         j.cand.Title,
		URL:           j.cand.URL,
		Domain:        j.cand.Domain,
		Date:          j.cand.Published,
		Jurisdiction:  jurisdiction,
		EvidenceLevel: j.source.EvidenceLevel,
		Extract:       j.cand.RawText,
		Angle:         j.cand.Query.Angle,
		FetchedAt:     j.cand.FetchedAt,
	}
}

func (c *Curator) reject(cand collect.Candidate, reason string) {
	c.sink.Record(audit.Decision{URL: cand.URL, Kept: false, Reason: reason})
}

func tierRank(t policy.Tier) int {
	switch t {
	case policy.TierWhitelist:
		return 2
	case policy.TierGreylist:
		return 1
	default:
		return 0
	}
}
