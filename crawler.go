package linkray

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/zombar/linkray/models"
	"github.com/zombar/linkray/urlkey"
)

// DefaultMaxPages bounds a deep crawl; quick analysis uses a budget of 1.
const DefaultMaxPages = 100

// Crawler drives the fetcher and extractor breadth-first across a bounded
// set of same-site pages, producing one aggregated document.
type Crawler struct {
	fetcher    *Fetcher
	maxPages   int
	maxTextLen int
}

// NewCrawler creates a crawler visiting at most maxPages distinct URLs, each
// page's extracted text capped at maxTextLen runes.
func NewCrawler(fetcher *Fetcher, maxPages, maxTextLen int) *Crawler {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Crawler{fetcher: fetcher, maxPages: maxPages, maxTextLen: maxTextLen}
}

// Crawl traverses breadth-first from the normalized start URL, restricted to
// same-host links. A single page's failure is swallowed and the page skipped;
// the crawl fails only when zero pages yield usable content. Pages are never
// retried or revisited.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (*models.CrawlDocument, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Message: "invalid crawl start URL", Err: err}
	}

	queue := []string{startURL}
	visited := make(map[string]struct{})
	var sections []string
	var titles []string

	for len(queue) > 0 && len(visited) < c.maxPages {
		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindInternal, Message: "crawl cancelled", Err: ctx.Err()}
		default:
		}

		pageURL := queue[0]
		queue = queue[1:]

		key, err := urlkey.Normalize(pageURL)
		if err != nil {
			continue
		}
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		html, err := c.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			slog.Debug("crawl page fetch failed, skipping", "url", pageURL, "error", err)
			continue
		}

		content, err := ExtractContent(html, c.maxTextLen)
		if err != nil {
			slog.Debug("crawl page parse failed, skipping", "url", pageURL, "error", err)
			continue
		}

		if len(content.Text) >= minPageTextLen {
			sections = append(sections, fmt.Sprintf("\n---\n[%s]\n%s", pageURL, content.Text))
			if content.Title != "" && content.Title != "Unknown" {
				titles = append(titles, content.Title)
			}
		}

		// Discovery stops once the budget is committed: links found on the
		// last budgeted page would never be visited anyway.
		if len(visited) < c.maxPages {
			for _, link := range ExtractLinks(html, start) {
				if !sameHost(start, link) {
					continue
				}
				if normalized, err := urlkey.Normalize(link); err == nil {
					if _, ok := visited[normalized]; !ok {
						queue = append(queue, link)
					}
				}
			}
		}
	}

	if len(sections) == 0 {
		return nil, &Error{Kind: KindNoContent, Message: "unable to extract meaningful content from this website"}
	}

	title := strings.Join(titles, " | ")
	if title == "" {
		title = "Unknown"
	}

	return &models.CrawlDocument{
		Text:      strings.Join(sections, ""),
		Title:     title,
		PageCount: len(sections),
	}, nil
}

func sameHost(base *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}
