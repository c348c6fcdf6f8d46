package policy

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks fatal policy configuration problems. Anything wrapping it
// aborts the run before the first fetch.
var ErrConfig = errors.New("invalid policy configuration")

type EvidenceLevel string

const (
	EvidenceMeta         EvidenceLevel = "meta"
	EvidenceGuideline    EvidenceLevel = "guideline"
	EvidenceSafetyNotice EvidenceLevel = "safety_notice"
	EvidenceNarrative    EvidenceLevel = "narrative"
	EvidenceOther        EvidenceLevel = "other"
)

// Rank orders evidence levels by rigor, highest first.
func (l EvidenceLevel) Rank() int {
	switch l {
	case EvidenceMeta:
		return 4
	case EvidenceGuideline:
		return 3
	case EvidenceSafetyNotice:
		return 2
	case EvidenceNarrative:
		return 1
	default:
		return 0
	}
}

func (l EvidenceLevel) valid() bool {
	switch l {
	case EvidenceMeta, EvidenceGuideline, EvidenceSafetyNotice, EvidenceNarrative, EvidenceOther:
		return true
	}
	return false
}

type Tier string

const (
	TierWhitelist Tier = "whitelist"
	TierGreylist  Tier = "greylist"
	TierBlocklist Tier = "blocklist"
)

// Source is one registry entry: a domain, its trust tier, the evidence level
// its documents default to, and the feeds it publishes (if any).
type Source struct {
	Domain        string        `yaml:"domain"`
	Tier          Tier          `yaml:"tier"`
	EvidenceLevel EvidenceLevel `yaml:"evidence_level"`
	Jurisdiction  string        `yaml:"jurisdiction"`
	Feeds         []string      `yaml:"feeds"`
}

type registryFile struct {
	Sources              []Source      `yaml:"sources"`
	DefaultTier          Tier          `yaml:"default_tier"`
	DefaultEvidenceLevel EvidenceLevel `yaml:"default_evidence_level"`
}

// Registry is the loaded source registry. Read-only after LoadRegistry.
type Registry struct {
	sources      []Source
	byDomain     map[string]Source
	defaultTier  Tier
	defaultLevel EvidenceLevel
}

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading source registry %s: %v", ErrConfig, path, err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing source registry %s: %v", ErrConfig, path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("%w: source registry %s has no sources", ErrConfig, path)
	}
	if f.DefaultTier == "" {
		f.DefaultTier = TierGreylist
	}
	if f.DefaultEvidenceLevel == "" {
		f.DefaultEvidenceLevel = EvidenceOther
	}

	r := &Registry{
		sources:      f.Sources,
		byDomain:     make(map[string]Source, len(f.Sources)),
		defaultTier:  f.DefaultTier,
		defaultLevel: f.DefaultEvidenceLevel,
	}
	for i, s := range f.Sources {
		s.Domain = strings.ToLower(strings.TrimSpace(s.Domain))
		if s.Domain == "" {
			return nil, fmt.Errorf("%w: source %d has empty domain", ErrConfig, i)
		}
		switch s.Tier {
		case TierWhitelist, TierGreylist, TierBlocklist:
		default:
			return nil, fmt.Errorf("%w: source %s has unknown tier %q", ErrConfig, s.Domain, s.Tier)
		}
		if s.EvidenceLevel == "" {
			s.EvidenceLevel = f.DefaultEvidenceLevel
		}
		if !s.EvidenceLevel.valid() {
			return nil, fmt.Errorf("%w: source %s has unknown evidence level %q", ErrConfig, s.Domain, s.EvidenceLevel)
		}
		r.byDomain[s.Domain] = s
		r.sources[i] = s
	}
	return r, nil
}

// Lookup resolves a host to its registry entry, walking up parent domains so
// "www.nice.org.uk" matches a "nice.org.uk" entry. Unregistered hosts get a
// synthetic entry with the registry defaults.
func (r *Registry) Lookup(host string) Source {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.IndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	for h := host; h != ""; {
		if s, ok := r.byDomain[h]; ok {
			return s
		}
		dot := strings.IndexByte(h, '.')
		if dot < 0 {
			break
		}
		h = h[dot+1:]
	}
	return Source{
		Domain:        host,
		Tier:          r.defaultTier,
		EvidenceLevel: r.defaultLevel,
	}
}

// FeedSources returns registry entries that publish feeds, excluding
// blocklisted domains.
func (r *Registry) FeedSources() []Source {
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		if len(s.Feeds) > 0 && s.Tier != TierBlocklist {
			out = append(out, s)
		}
	}
	return out
}

type Weights struct {
	Coverage  float64 `yaml:"coverage"`
	Freshness float64 `yaml:"freshness"`
	Diversity float64 `yaml:"diversity"`
}

// Scoring carries all tunables for filtering, scoring and gating. Loaded once,
// never mutated during a run.
type Scoring struct {
	Weights Weights `yaml:"weights"`
	Gate    struct {
		MinScore  float64 `yaml:"min_score"`
		FullScore float64 `yaml:"full_score"`
	} `yaml:"gate"`
	Freshness struct {
		HalfLifeDays             float64 `yaml:"half_life_days"`
		SafetyNoticeHalfLifeDays float64 `yaml:"safety_notice_half_life_days"`
	} `yaml:"freshness"`
	Dedupe struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		ShingleSize         int     `yaml:"shingle_size"`
	} `yaml:"dedupe"`
	Quality struct {
		MinTextChars int `yaml:"min_text_chars"`
	} `yaml:"quality"`
	Progress struct {
		PerAngleTarget int `yaml:"per_angle_target"`
	} `yaml:"progress"`
	PIIPatterns []string `yaml:"pii_patterns"`

	piiRes []*regexp.Regexp
}

func LoadScoring(path string) (*Scoring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading scoring policy %s: %v", ErrConfig, path, err)
	}

	var s Scoring
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: parsing scoring policy %s: %v", ErrConfig, path, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	for _, p := range s.PIIPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pii pattern %q: %v", ErrConfig, p, err)
		}
		s.piiRes = append(s.piiRes, re)
	}
	return &s, nil
}

func (s *Scoring) validate() error {
	if s.Weights.Coverage+s.Weights.Freshness+s.Weights.Diversity <= 0 {
		return fmt.Errorf("%w: scoring weights sum to zero", ErrConfig)
	}
	if s.Gate.MinScore <= 0 || s.Gate.FullScore < s.Gate.MinScore {
		return fmt.Errorf("%w: gate thresholds must satisfy 0 < min <= full", ErrConfig)
	}
	if s.Freshness.HalfLifeDays <= 0 {
		return fmt.Errorf("%w: freshness half-life must be positive", ErrConfig)
	}
	if s.Freshness.SafetyNoticeHalfLifeDays <= 0 {
		s.Freshness.SafetyNoticeHalfLifeDays = s.Freshness.HalfLifeDays
	}
	if s.Dedupe.SimilarityThreshold <= 0 || s.Dedupe.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be in (0,1]", ErrConfig)
	}
	if s.Dedupe.ShingleSize <= 0 {
		s.Dedupe.ShingleSize = 4
	}
	if s.Quality.MinTextChars <= 0 {
		s.Quality.MinTextChars = 400
	}
	if s.Progress.PerAngleTarget <= 0 {
		s.Progress.PerAngleTarget = 2
	}
	return nil
}

// PIIMatches reports whether any configured PII pattern matches s.
func (p *Scoring) PIIMatches(s string) bool {
	for _, re := range p.piiRes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
