package linkray

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/zombar/linkray/models"
)

// DefaultMaxTextLen bounds extracted text to cap downstream token cost.
const DefaultMaxTextLen = 12000

// minPageTextLen is the minimal-signal threshold: pages yielding less
// extracted text than this are skipped during aggregation.
const minPageTextLen = 50

// strippedSelectors are non-content elements removed before extraction.
const strippedSelectors = "script, style, nav, footer, header, iframe, noscript, svg"

// contentSelectors are tried in priority order; the one yielding the LONGEST
// text wins, not the first match. body is the catch-all fallback.
var contentSelectors = []string{
	"main",
	"article",
	`[role="main"]`,
	"#content",
	".content",
	"body",
}

// ignoreLinkExtensions are binary or non-HTML resources skipped during link
// discovery.
var ignoreLinkExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".zip", ".rar", ".gz", ".tar", ".exe", ".dmg", ".iso",
	".mp3", ".mp4", ".avi", ".mov", ".webm",
	".css", ".js", ".xml", ".json", ".rss",
}

// ExtractContent strips an HTML document down to its significant readable
// text and title. It is a pure transform: identical input always yields
// identical output.
func ExtractContent(html string, maxTextLen int) (*models.ScrapedContent, error) {
	if maxTextLen <= 0 {
		maxTextLen = DefaultMaxTextLen
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Title first: h1 fallback text would be lost if the heading sits in a
	// stripped container.
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = "Unknown"
	}

	doc.Find(strippedSelectors).Remove()

	var text string
	for _, selector := range contentSelectors {
		if candidate := doc.Find(selector).Text(); len(candidate) > len(text) {
			text = candidate
		}
	}

	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > maxTextLen {
		text = string(runes[:maxTextLen])
	}

	return &models.ScrapedContent{Text: text, Title: title}, nil
}

// ExtractLinks discovers absolute http(s) links in an HTML document,
// resolved against base with fragments stripped. mailto/javascript/tel
// pseudo-links and binary resources are skipped; duplicates are removed
// preserving document order.
func ExtractLinks(html string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "tel:") {
			return
		}

		lower := strings.ToLower(href)
		for _, ext := range ignoreLinkExtensions {
			if strings.HasSuffix(lower, ext) {
				return
			}
		}

		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		resolved.Fragment = ""

		link := resolved.String()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	return links
}
