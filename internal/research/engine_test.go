package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presearch/internal/audit"
	"presearch/internal/collect"
	"presearch/internal/config"
	"presearch/internal/queryplan"
	"presearch/internal/render"
	"presearch/internal/score"
)

type angleProvider struct {
	refs map[queryplan.Angle][]collect.Reference
}

func (p *angleProvider) Discover(_ context.Context, q queryplan.Query, limit int) ([]collect.Reference, error) {
	refs := p.refs[q.Angle]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func page(title, body string, daysOld int) string {
	published := time.Now().AddDate(0, 0, -daysOld).Format(time.RFC3339)
	return fmt.Sprintf(`<html><head><title>%s</title>
<meta property="article:published_time" content="%s">
</head><body><article><h1>%s</h1><p>%s</p></article></body></html>`, title, published, title, body)
}

var testPages = map[string]string{
	"/guide": page("Anxiety care guideline",
		"Stepped care for generalized anxiety recommends guided self-help before medication, with review intervals and escalation criteria for adults.", 3),
	"/determinants": page("Access barriers in anxiety care",
		"Waiting lists, cost of therapy and transport access shape who actually reaches anxiety treatment across regions.", 10),
	"/local": page("Lyon anxiety support groups",
		"Community support groups in Lyon offer weekly drop-in sessions, peer facilitation and referral pathways for anxious adults.", 17),
}

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := testPages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, serverTier string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	sources := fmt.Sprintf(`
default_tier: greylist
default_evidence_level: other
sources:
  - domain: 127.0.0.1
    tier: %s
    evidence_level: guideline
    jurisdiction: FR
`, serverTier)
	scoring := `
weights: {coverage: 0.4, freshness: 0.3, diversity: 0.3}
gate: {min_score: 0.40, full_score: 0.65}
freshness: {half_life_days: 365, safety_notice_half_life_days: 30}
dedupe: {similarity_threshold: 0.85}
quality: {min_text_chars: 40}
`
	jurisdictions := `{"France": {"code": "FR", "region": "Europe", "aliases": ["lyon"]}}`

	return &config.Config{
		UseV2:            true,
		CacheDir:         filepath.Join(dir, "cache"),
		CacheTTL:         time.Hour,
		AuditDir:         filepath.Join(dir, "audit"),
		UserAgent:        "presearch-test/1.0",
		RequestTimeout:   2 * time.Second,
		MaxRetries:       1,
		PolitenessDelay:  0,
		MaxInFlight:      4,
		SourcesPath:      writeFixture(t, dir, "sources.yaml", sources),
		ScoringPath:      writeFixture(t, dir, "scoring.yaml", scoring),
		JurisdictionPath: writeFixture(t, dir, "jurisdictions.json", jurisdictions),
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, srv *httptest.Server) *Engine {
	t.Helper()
	provider := &angleProvider{refs: map[queryplan.Angle][]collect.Reference{
		queryplan.AngleClinical:     {{URL: srv.URL + "/guide"}},
		queryplan.AngleDeterminants: {{URL: srv.URL + "/determinants"}},
		queryplan.AngleLocal:        {{URL: srv.URL + "/local"}},
	}}
	e, err := New(cfg, zap.NewNop(), WithProviders(provider))
	require.NoError(t, err)
	return e
}

var sessionContext = map[string]string{
	"presenting_problem": "escalating anxiety with panic episodes at work",
	"location":           "Lyon",
}

func TestRunEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t)
	cfg := testConfig(t, "whitelist")
	e := newTestEngine(t, cfg, srv)

	res, err := e.Run(context.Background(), Plan{SessionID: "sess-e2e"}, sessionContext, Options{UseV2: true})
	require.NoError(t, err)

	var f *render.FacetResult
	for i := range res.Facets {
		if res.Facets[i].Name == "anxiety" {
			f = &res.Facets[i]
		}
	}
	require.NotNil(t, f, "context mentioning panic should yield an anxiety facet")
	assert.Equal(t, score.StatusOK, f.Status)
	require.Len(t, f.Citations, 3)
	for _, c := range f.Citations {
		assert.Equal(t, "FR", c.Jurisdiction)
		assert.NotEmpty(t, c.Date)
	}
	assert.Equal(t, "Anxiety care guideline", f.Citations[0].Title)
	assert.InDelta(t, 1.0, f.Scores.Coverage, 1e-9)

	assert.Equal(t, "sess-e2e", res.Audit.SessionID)
	accepted := 0
	for _, d := range res.Audit.Decisions {
		if d.Kept {
			assert.Equal(t, audit.ReasonAccepted, d.Reason)
			accepted++
		}
	}
	assert.Equal(t, 3, accepted)

	// The trail is also on disk, one line per decision plus a header.
	data, err := os.ReadFile(filepath.Join(cfg.AuditDir, "sess-e2e.ndjson"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestRunWarmCacheIsIdempotent(t *testing.T) {
	srv, hits := newTestServer(t)
	cfg := testConfig(t, "whitelist")
	e := newTestEngine(t, cfg, srv)

	first, err := e.Run(context.Background(), Plan{}, sessionContext, Options{UseV2: true})
	require.NoError(t, err)
	cold := hits.Load()
	require.Greater(t, cold, int64(0))

	second, err := e.Run(context.Background(), Plan{}, sessionContext, Options{UseV2: true})
	require.NoError(t, err)
	assert.Equal(t, cold, hits.Load(), "a warm cache run must not refetch")

	require.Equal(t, len(first.Facets), len(second.Facets))
	for i := range first.Facets {
		assert.Equal(t, first.Facets[i].Citations, second.Facets[i].Citations)
		assert.Equal(t, first.Facets[i].Status, second.Facets[i].Status)
		assert.Equal(t, first.Facets[i].Scores.Coverage, second.Facets[i].Scores.Coverage)
		assert.Equal(t, first.Facets[i].Scores.Diversity, second.Facets[i].Scores.Diversity)
		assert.InDelta(t, first.Facets[i].Scores.Freshness, second.Facets[i].Scores.Freshness, 1e-6,
			"freshness moves only with the clock between runs")
	}
}

func TestRunBlockedSourcesYieldInsufficient(t *testing.T) {
	srv, _ := newTestServer(t)
	cfg := testConfig(t, "blocklist")
	e := newTestEngine(t, cfg, srv)

	res, err := e.Run(context.Background(), Plan{}, sessionContext, Options{UseV2: true})
	require.NoError(t, err)

	for _, f := range res.Facets {
		assert.Empty(t, f.Citations)
		assert.Equal(t, score.StatusInsufficient, f.Status)
	}
	require.NotEmpty(t, res.Audit.Decisions)
	for _, d := range res.Audit.Decisions {
		assert.False(t, d.Kept)
		assert.Equal(t, audit.ReasonBlockedDomain, d.Reason)
	}
}

func TestRunGeneratesSessionID(t *testing.T) {
	srv, _ := newTestServer(t)
	e := newTestEngine(t, testConfig(t, "whitelist"), srv)

	res, err := e.Run(context.Background(), Plan{}, sessionContext, Options{UseV2: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Audit.SessionID)
	assert.False(t, res.Audit.StartedAt.IsZero())
}

func TestRunRequiresV2(t *testing.T) {
	srv, _ := newTestServer(t)
	e := newTestEngine(t, testConfig(t, "whitelist"), srv)

	_, err := e.Run(context.Background(), Plan{}, sessionContext, Options{UseV2: false})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewRequiresV2(t *testing.T) {
	cfg := testConfig(t, "whitelist")
	cfg.UseV2 = false

	_, err := New(cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewFailsOnBadPolicy(t *testing.T) {
	cfg := testConfig(t, "whitelist")
	cfg.SourcesPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}
