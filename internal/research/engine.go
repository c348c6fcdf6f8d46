package research

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"presearch/internal/audit"
	"presearch/internal/collect"
	"presearch/internal/config"
	"presearch/internal/curate"
	"presearch/internal/facet"
	"presearch/internal/jurisdiction"
	"presearch/internal/policy"
	"presearch/internal/queryplan"
	"presearch/internal/render"
	"presearch/internal/score"
	"presearch/internal/synthesis"
)

// ErrDisabled is returned when the v2 research engine is not selected.
var ErrDisabled = errors.New("research engine v2 not selected")

// Plan identifies the upcoming session this briefing is prepared for.
type Plan struct {
	SessionID string    `json:"session_id"`
	SessionAt time.Time `json:"session_at"`
}

// Options are the recognized per-run options.
type Options struct {
	UseV2    bool   `json:"use_v2"`
	Location string `json:"location"`
}

type AuditDecision struct {
	URL    string `json:"url"`
	Kept   bool   `json:"kept"`
	Reason string `json:"reason"`
}

type AuditReport struct {
	SessionID string          `json:"session_id"`
	StartedAt time.Time       `json:"started_at"`
	Decisions []AuditDecision `json:"decisions"`
}

// Result is the only object returned to the caller.
type Result struct {
	Facets []render.FacetResult `json:"facets"`
	Audit  AuditReport          `json:"audit"`
}

// Engine is the pre-session research pipeline. Policy files are loaded once at
// construction; a missing or invalid file fails construction before any fetch.
type Engine struct {
	cfg       *config.Config
	reg       *policy.Registry
	pol       *policy.Scoring
	jur       *jurisdiction.Resolver
	client    *http.Client
	cache     *collect.Cache
	limiter   *collect.DomainLimiter
	providers []collect.Provider
	logger    *zap.Logger
}

type Option func(*Engine)

// WithProviders replaces the default feed-backed discovery provider, mainly
// for callers that bring their own search backends and for tests.
func WithProviders(ps ...collect.Provider) Option {
	return func(e *Engine) { e.providers = ps }
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if !cfg.UseV2 {
		return nil, ErrDisabled
	}

	reg, err := policy.LoadRegistry(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}
	pol, err := policy.LoadScoring(cfg.ScoringPath)
	if err != nil {
		return nil, err
	}
	jur, err := jurisdiction.NewResolver(cfg.JurisdictionPath)
	if err != nil {
		return nil, err
	}
	cache, err := collect.NewCache(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		reg:     reg,
		pol:     pol,
		jur:     jur,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		cache:   cache,
		limiter: collect.NewDomainLimiter(cfg.PolitenessDelay),
		logger:  logger,
	}
	for _, o := range opts {
		o(e)
	}
	if e.providers == nil {
		e.providers = []collect.Provider{
			collect.NewFeedProvider(e.client, e.limiter, reg, cfg.UserAgent, logger),
		}
	}
	return e, nil
}

// Run executes the full pipeline for one session. Per-query and per-candidate
// failures are absorbed and audited; only setup problems are fatal.
// Cancellation leaves already-collected material usable for a partial result.
func (e *Engine) Run(ctx context.Context, plan Plan, contextFields map[string]string, opts Options) (*Result, error) {
	if !opts.UseV2 {
		return nil, ErrDisabled
	}

	sessionID := plan.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	log := audit.NewLog(e.cfg.AuditDir, sessionID, e.logger)
	defer log.Close()

	location := opts.Location
	if location == "" {
		location = contextFields["location"]
	}
	jurInfo := e.jur.Resolve(location)
	defaultJurisdiction := jurInfo.Code
	if defaultJurisdiction == "" {
		defaultJurisdiction = jurInfo.Name
	}

	facets := facet.Extract(contextFields)
	gen := queryplan.NewGenerator(e.pol, location)

	var queries []queryplan.Query
	for _, f := range facets {
		queries = append(queries, gen.Generate(f)...)
	}
	e.logger.Info("research run starting",
		zap.String("session_id", sessionID),
		zap.Int("facets", len(facets)),
		zap.Int("queries", len(queries)))

	collector := collect.NewCollector(collect.Config{
		UserAgent:   e.cfg.UserAgent,
		MaxRetries:  e.cfg.MaxRetries,
		MaxInFlight: e.cfg.MaxInFlight,
		Location:    location,
	}, e.client, e.cache, e.limiter, e.providers, log, e.logger)

	candidates := collector.Collect(ctx, queries)

	byFacet := map[string][]collect.Candidate{}
	for _, c := range candidates {
		byFacet[c.Query.FacetName] = append(byFacet[c.Query.FacetName], c)
	}

	curator := curate.NewCurator(e.reg, e.pol, log, defaultJurisdiction)
	scorer := score.NewScorer(e.pol)

	results := make([]render.FacetResult, 0, len(facets))
	for _, f := range facets {
		citations := curator.Curate(byFacet[f.Name])
		breakdown, status := scorer.Score(citations)

		sections, narrativeOnly := synthesis.Build(f.Name, citations)
		if narrativeOnly && status == score.StatusOK {
			status = score.StatusDegraded
		}

		results = append(results, render.Facet(f.Name, status, breakdown, sections, citations, e.pol.Progress.PerAngleTarget))
		e.logger.Info("facet completed",
			zap.String("facet", f.Name),
			zap.String("status", string(status)),
			zap.Int("citations", len(citations)))
	}

	report := AuditReport{
		SessionID: log.SessionID(),
		StartedAt: log.StartedAt(),
	}
	for _, d := range log.Decisions() {
		report.Decisions = append(report.Decisions, AuditDecision{URL: d.URL, Kept: d.Kept, Reason: d.Reason})
	}

	return &Result{Facets: results, Audit: report}, nil
}
