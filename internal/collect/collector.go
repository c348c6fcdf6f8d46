package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"presearch/internal/audit"
	"presearch/internal/queryplan"
)

// Version participates in the cache key so a change in collection behavior
// invalidates prior entries.
const Version = "2"

// Candidates larger than this are truncated at fetch time.
const maxBodyBytes = 2 << 20

// Candidate is a raw fetch result, consumed by the curation stage.
type Candidate struct {
	Query     queryplan.Query `json:"query"`
	URL       string          `json:"url"`
	Domain    string          `json:"domain"`
	Title     string          `json:"title"`
	RawText   string          `json:"raw_text"`
	Published time.Time       `json:"published"`
	FetchedAt time.Time       `json:"fetched_at"`
	Cached    bool            `json:"cached"`
}

type Config struct {
	UserAgent     string
	MaxRetries    int
	MaxInFlight   int
	Location      string
	PerQueryLimit int
}

// Collector resolves queries to candidates through the cache or the network.
// Safe for concurrent use; politeness is enforced per domain by the shared
// limiter regardless of which worker is fetching.
type Collector struct {
	cfg       Config
	client    *http.Client
	cache     *Cache
	limiter   *DomainLimiter
	providers []Provider
	sink      audit.Sink
	logger    *zap.Logger
}

func NewCollector(cfg Config, client *http.Client, cache *Cache, limiter *DomainLimiter, providers []Provider, sink audit.Sink, logger *zap.Logger) *Collector {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.PerQueryLimit <= 0 {
		cfg.PerQueryLimit = 6
	}
	return &Collector{
		cfg:       cfg,
		client:    client,
		cache:     cache,
		limiter:   limiter,
		providers: providers,
		sink:      sink,
		logger:    logger,
	}
}

// Collect gathers candidates for every query, bounded by MaxInFlight
// concurrent workers. A failed query never aborts the run; cancellation
// returns whatever was collected so far.
func (c *Collector) Collect(ctx context.Context, queries []queryplan.Query) []Candidate {
	jobs := make(chan queryplan.Query)
	var (
		mu  sync.Mutex
		out []Candidate
		wg  sync.WaitGroup
	)

	workers := c.cfg.MaxInFlight
	if workers > len(queries) {
		workers = len(queries)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range jobs {
				cands := c.collectOne(ctx, q)
				mu.Lock()
				out = append(out, cands...)
				mu.Unlock()
			}
		}()
	}

	for _, q := range queries {
		select {
		case jobs <- q:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return out
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

func (c *Collector) collectOne(ctx context.Context, q queryplan.Query) []Candidate {
	key := Key(q.Text, c.cfg.Location, Version)

	if e, ok := c.cache.Get(key, time.Now()); ok {
		var cands []Candidate
		if err := json.Unmarshal(e.Body, &cands); err == nil {
			for i := range cands {
				cands[i].Cached = true
			}
			c.logger.Debug("cache hit", zap.String("query", q.Text), zap.Int("candidates", len(cands)))
			return cands
		}
	}

	refs := c.discover(ctx, q)

	cands := make([]Candidate, 0, len(refs))
	fetchFailures := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			// Partial collection: keep what we have, skip the cache write.
			return cands
		}
		cand, err := c.fetchPage(ctx, q, ref)
		if err != nil {
			if errors.Is(err, errNoContent) {
				c.logger.Debug("content extraction failed", zap.String("url", ref.URL), zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				// The run was cancelled, not the fetch; no decision to record.
				return cands
			}
			fetchFailures++
			c.sink.Record(audit.Decision{URL: ref.URL, Kept: false, Reason: audit.ReasonFetchFailed})
			c.logger.Debug("fetch failed", zap.String("url", ref.URL), zap.Error(err))
			continue
		}
		cands = append(cands, cand)
	}

	// An empty result is cacheable only when discovery genuinely came up empty.
	// All fetches failing is a transient condition and must stay retryable.
	if ctx.Err() == nil && (len(cands) > 0 || fetchFailures == 0) {
		if err := c.cache.Put(key, cands, time.Now()); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return cands
}

func (c *Collector) discover(ctx context.Context, q queryplan.Query) []Reference {
	seen := map[string]struct{}{}
	var refs []Reference
	for _, p := range c.providers {
		found, err := p.Discover(ctx, q, c.cfg.PerQueryLimit)
		if err != nil {
			c.logger.Debug("provider failed", zap.String("query", q.Text), zap.Error(err))
		}
		for _, r := range found {
			if r.URL == "" {
				continue
			}
			norm := NormalizeURL(r.URL)
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			refs = append(refs, r)
		}
		if len(refs) >= c.cfg.PerQueryLimit {
			refs = refs[:c.cfg.PerQueryLimit]
			break
		}
	}
	return refs
}

func (c *Collector) fetchPage(ctx context.Context, q queryplan.Query, ref Reference) (Candidate, error) {
	domain := DomainOf(ref.URL)
	if domain == "" {
		return Candidate{}, fmt.Errorf("bad url %q", ref.URL)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Candidate{}, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx, domain); err != nil {
			return Candidate{}, err
		}

		content, err := c.doFetch(ctx, ref.URL)
		if err != nil {
			lastErr = err
			continue
		}

		published := content.Published
		if published.IsZero() {
			published = ref.Published
		}
		title := content.Title
		if title == "" {
			title = ref.Title
		}
		return Candidate{
			Query:     q,
			URL:       ref.URL,
			Domain:    domain,
			Title:     title,
			RawText:   content.Text,
			Published: published,
			FetchedAt: time.Now().UTC(),
		}, nil
	}
	return Candidate{}, lastErr
}

func (c *Collector) doFetch(ctx context.Context, target string) (extracted, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return extracted{}, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml;q=0.9, */*;q=0.1")

	resp, err := c.client.Do(req)
	if err != nil {
		return extracted{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return extracted{}, fmt.Errorf("http %d fetching %s", resp.StatusCode, target)
	}

	return extractContent(io.LimitReader(resp.Body, maxBodyBytes))
}

var trackingParams = map[string]struct{}{
	"utm": {}, "fbclid": {}, "gclid": {}, "msclkid": {}, "mc_cid": {}, "mc_eid": {},
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// NormalizeURL builds the dedup key for a URL: fragments and tracking
// parameters go, meaningful query parameters stay (sorted), host and scheme
// are lowercased and a trailing slash is trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if isTrackingParam(k) {
				delete(q, k)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// DomainOf returns the lowercased host of a URL, without port.
func DomainOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	if i := strings.IndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}
