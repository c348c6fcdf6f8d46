package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"presearch/internal/curate"
	"presearch/internal/policy"
	"presearch/internal/queryplan"
)

// Sections are the four narrative parts of a facet briefing.
type Sections struct {
	Evidence     string `json:"evidence"`
	Determinants string `json:"determinants"`
	Feasibility  string `json:"feasibility"`
	Coordination string `json:"coordination"`
}

// Build renders the sections for one facet from its kept citations. The
// second return value is true when the evidence section rests on narrative
// sources alone, in which case the facet must be downgraded if it gated ok.
func Build(facetName string, citations []curate.Citation) (Sections, bool) {
	topic := strings.ReplaceAll(facetName, "-", " ")

	ordered := make([]curate.Citation, len(citations))
	copy(ordered, citations)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ri, rj := ordered[i].EvidenceLevel.Rank(), ordered[j].EvidenceLevel.Rank(); ri != rj {
			return ri > rj
		}
		return ordered[i].Date.After(ordered[j].Date)
	})

	evidence, narrativeOnly := evidenceSection(topic, ordered)
	return Sections{
		Evidence:     evidence,
		Determinants: determinantsSection(topic, ordered),
		Feasibility:  feasibilitySection(topic, ordered),
		Coordination: coordinationSection(topic, ordered),
	}, narrativeOnly
}

func evidenceSection(topic string, ordered []curate.Citation) (string, bool) {
	if len(ordered) == 0 {
		return fmt.Sprintf("No evidence sources for %s met inclusion criteria in this run.", topic), false
	}

	narrativeOnly := true
	for _, c := range ordered {
		if c.EvidenceLevel != policy.EvidenceNarrative {
			narrativeOnly = false
			break
		}
	}

	refs := refList(ordered, 3)
	if narrativeOnly {
		return fmt.Sprintf(
			"Only narrative sources were available for %s; treat the following as unverified background rather than clinical evidence: %s.",
			topic, refs), true
	}
	return fmt.Sprintf("Current evidence on %s is anchored by %s.", topic, refs), false
}

func determinantsSection(topic string, ordered []curate.Citation) string {
	hits := byAngle(ordered, queryplan.AngleDeterminants)
	if len(hits) == 0 {
		return fmt.Sprintf("No retained source addressed social or economic determinants for %s; consider exploring access and context factors directly in session.", topic)
	}
	return fmt.Sprintf("Determinants relevant to %s are discussed in %s.", topic, refList(hits, 3))
}

func feasibilitySection(topic string, ordered []curate.Citation) string {
	hits := byAngle(ordered, queryplan.AngleLocal)
	if len(hits) == 0 {
		return fmt.Sprintf("No local resources surfaced for %s; feasibility of referrals is unconfirmed for this area.", topic)
	}
	jurs := jurisdictions(hits)
	if jurs != "" {
		return fmt.Sprintf("Local options for %s were identified (%s): %s.", topic, jurs, refList(hits, 3))
	}
	return fmt.Sprintf("Local options for %s were identified: %s.", topic, refList(hits, 3))
}

func coordinationSection(topic string, ordered []curate.Citation) string {
	var notices []curate.Citation
	for _, c := range ordered {
		if c.EvidenceLevel == policy.EvidenceSafetyNotice {
			notices = append(notices, c)
		}
	}
	if len(notices) > 0 {
		return fmt.Sprintf("Safety notices affect %s and should be raised with the prescriber or care team: %s.", topic, refList(notices, 3))
	}

	var guidance []curate.Citation
	for _, c := range ordered {
		if c.EvidenceLevel == policy.EvidenceGuideline || c.EvidenceLevel == policy.EvidenceMeta {
			guidance = append(guidance, c)
		}
	}
	if len(guidance) > 0 {
		return fmt.Sprintf("No active safety notices for %s; coordination can follow the retained guidance (%s).", topic, refList(guidance, 2))
	}
	return fmt.Sprintf("No coordination triggers were identified for %s in this run.", topic)
}

func byAngle(in []curate.Citation, angle queryplan.Angle) []curate.Citation {
	var out []curate.Citation
	for _, c := range in {
		if c.Angle == angle {
			out = append(out, c)
		}
	}
	return out
}

// refList renders up to n citations as "Title (JUR, 2024)" fragments.
func refList(in []curate.Citation, n int) string {
	if len(in) < n {
		n = len(in)
	}
	parts := make([]string, 0, n)
	for _, c := range in[:n] {
		title := c.Title
		if title == "" {
			title = c.Domain
		}
		var meta []string
		if c.Jurisdiction != "" {
			meta = append(meta, c.Jurisdiction)
		}
		if !c.Date.IsZero() {
			meta = append(meta, c.Date.Format("2006"))
		}
		if len(meta) > 0 {
			parts = append(parts, fmt.Sprintf("%s (%s)", title, strings.Join(meta, ", ")))
		} else {
			parts = append(parts, title)
		}
	}
	return strings.Join(parts, "; ")
}

func jurisdictions(in []curate.Citation) string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range in {
		if c.Jurisdiction == "" {
			continue
		}
		if _, ok := seen[c.Jurisdiction]; ok {
			continue
		}
		seen[c.Jurisdiction] = struct{}{}
		out = append(out, c.Jurisdiction)
	}
	return strings.Join(out, ", ")
}
