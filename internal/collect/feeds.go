package collect

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"presearch/internal/policy"
	"presearch/internal/queryplan"
)

// Reference is a discovered document location, before its content is fetched.
type Reference struct {
	Title     string
	URL       string
	Published time.Time
}

// Provider resolves a query to candidate document references. The engine ships
// a feed-backed provider over the source registry; callers may inject others.
type Provider interface {
	Discover(ctx context.Context, q queryplan.Query, limit int) ([]Reference, error)
}

// FeedProvider pulls the feeds that registry sources publish and filters items
// locally by query keywords, since feeds are not queryable like a search API.
type FeedProvider struct {
	client  *http.Client
	limiter *DomainLimiter
	sources []policy.Source
	agent   string
	logger  *zap.Logger
}

func NewFeedProvider(client *http.Client, limiter *DomainLimiter, reg *policy.Registry, agent string, logger *zap.Logger) *FeedProvider {
	return &FeedProvider{
		client:  client,
		limiter: limiter,
		sources: reg.FeedSources(),
		agent:   agent,
		logger:  logger,
	}
}

func (f *FeedProvider) Discover(ctx context.Context, q queryplan.Query, limit int) ([]Reference, error) {
	keywords := discoveryKeywords(q.Text)
	if len(keywords) == 0 {
		return nil, nil
	}

	parser := gofeed.NewParser()
	out := make([]Reference, 0, limit)

	for _, src := range f.sources {
		if len(out) >= limit {
			break
		}
		for _, feedURL := range src.Feeds {
			if len(out) >= limit {
				break
			}

			if err := f.limiter.Wait(ctx, src.Domain); err != nil {
				return out, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
			if err != nil {
				continue
			}
			req.Header.Set("User-Agent", f.agent)
			req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.1")

			resp, err := f.client.Do(req)
			if err != nil {
				f.logger.Debug("feed fetch failed", zap.String("feed", feedURL), zap.Error(err))
				continue
			}
			feed, err := parser.Parse(resp.Body)
			resp.Body.Close()
			if err != nil {
				f.logger.Debug("feed parse failed", zap.String("feed", feedURL), zap.Error(err))
				continue
			}

			for _, it := range feed.Items {
				if len(out) >= limit {
					break
				}
				hay := strings.ToLower(strings.TrimSpace(it.Title + " " + it.Description))
				if !matchesAnyKeyword(hay, keywords) {
					continue
				}

				var pub time.Time
				if it.PublishedParsed != nil {
					pub = *it.PublishedParsed
				} else if it.UpdatedParsed != nil {
					pub = *it.UpdatedParsed
				}

				out = append(out, Reference{
					Title:     strings.TrimSpace(it.Title),
					URL:       strings.TrimSpace(it.Link),
					Published: pub,
				})
			}
		}
	}

	return out, nil
}

func discoveryKeywords(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

func matchesAnyKeyword(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
