package collect

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var errNoContent = errors.New("no extractable content")

// extracted is the primary content pulled out of a fetched page.
type extracted struct {
	Title     string
	Text      string
	Published time.Time
}

// extractContent strips navigation and boilerplate and keeps the primary text.
// It prefers semantic containers (article, main) and falls back to the body.
func extractContent(r io.Reader) (extracted, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return extracted{}, err
	}

	doc.Find("script, style, nav, header, footer, aside, form, noscript, iframe").Remove()

	var out extracted
	out.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		out.Title = strings.TrimSpace(og)
	}
	out.Published = extractPublished(doc)

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main, [role=main]").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		return extracted{}, errNoContent
	}

	var sb strings.Builder
	root.Find("h1, h2, h3, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t == "" {
			return
		}
		sb.WriteString(t)
		sb.WriteString("\n\n")
	})

	out.Text = collapseWhitespace(sb.String())
	if out.Text == "" {
		// Paragraph-less pages still carry text sometimes.
		out.Text = collapseWhitespace(root.Text())
	}
	if out.Text == "" {
		return extracted{}, errNoContent
	}
	return out, nil
}

func extractPublished(doc *goquery.Document) time.Time {
	candidates := []string{}
	if v, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find(`meta[name="date"]`).Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}

	layouts := []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05", time.RFC1123, time.RFC1123Z}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var kept []string
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
