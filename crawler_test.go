package linkray

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// testSite serves a small linked site and records which paths were hit.
type testSite struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
}

func newTestSite(pages map[string]string) (*testSite, *httptest.Server) {
	site := &testSite{hits: make(map[string]int), pages: pages}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		site.mu.Unlock()

		page, ok := site.pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(page))
	}))
	return site, server
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func pageHTML(title, body string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><main>%s</main>", title, body)
	for _, link := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, link)
	}
	b.WriteString("</body></html>")
	return b.String()
}

const filler = "This page carries enough readable text to clear the minimal signal threshold for aggregation."

func TestCrawl(t *testing.T) {
	site, server := newTestSite(map[string]string{
		"/":  pageHTML("Home", "Home page. "+filler, "/a", "/b"),
		"/a": pageHTML("Page A", "Page A. "+filler, "/", "/b"),
		"/b": pageHTML("Page B", "Page B. "+filler, "/a"),
	})
	defer server.Close()

	crawler := NewCrawler(NewFetcher(5*time.Second), 10, 0)
	doc, err := crawler.Crawl(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if doc.PageCount != 3 {
		t.Errorf("expected 3 pages, got %d", doc.PageCount)
	}
	for _, fragment := range []string{"Home page.", "Page A.", "Page B."} {
		if !strings.Contains(doc.Text, fragment) {
			t.Errorf("aggregated text missing %q", fragment)
		}
	}
	if !strings.Contains(doc.Title, "Home") {
		t.Errorf("aggregated title missing home title: %q", doc.Title)
	}

	// Pages link to each other, but each must be fetched exactly once.
	for _, path := range []string{"/", "/a", "/b"} {
		if n := site.hitCount(path); n != 1 {
			t.Errorf("path %s fetched %d times, expected 1", path, n)
		}
	}
}

func TestCrawlBudget(t *testing.T) {
	pages := make(map[string]string)
	// A chain long enough to exceed the budget: / -> /p1 -> /p2 -> ...
	pages["/"] = pageHTML("Home", filler, "/p1")
	for i := 1; i <= 10; i++ {
		pages[fmt.Sprintf("/p%d", i)] = pageHTML(fmt.Sprintf("P%d", i), filler, fmt.Sprintf("/p%d", i+1))
	}
	_, server := newTestSite(pages)
	defer server.Close()

	crawler := NewCrawler(NewFetcher(5*time.Second), 3, 0)
	doc, err := crawler.Crawl(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if doc.PageCount > 3 {
		t.Errorf("budget of 3 exceeded: %d pages", doc.PageCount)
	}
}

func TestCrawlSameHostOnly(t *testing.T) {
	external, externalServer := newTestSite(map[string]string{
		"/": pageHTML("External", filler),
	})
	defer externalServer.Close()

	_, server := newTestSite(map[string]string{
		"/": pageHTML("Home", filler, externalServer.URL+"/"),
	})
	defer server.Close()

	crawler := NewCrawler(NewFetcher(5*time.Second), 10, 0)
	doc, err := crawler.Crawl(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if doc.PageCount != 1 {
		t.Errorf("expected 1 page, got %d", doc.PageCount)
	}
	if n := external.hitCount("/"); n != 0 {
		t.Errorf("external host was fetched %d times", n)
	}
}

func TestCrawlSkipsThinPages(t *testing.T) {
	_, server := newTestSite(map[string]string{
		"/":     pageHTML("Home", filler, "/thin"),
		"/thin": pageHTML("Thin", "tiny"),
	})
	defer server.Close()

	crawler := NewCrawler(NewFetcher(5*time.Second), 10, 0)
	doc, err := crawler.Crawl(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if doc.PageCount != 1 {
		t.Errorf("thin page counted toward aggregation: %d pages", doc.PageCount)
	}
}

func TestCrawlNoContent(t *testing.T) {
	_, server := newTestSite(map[string]string{
		"/": pageHTML("Empty", ""),
	})
	defer server.Close()

	crawler := NewCrawler(NewFetcher(5*time.Second), 10, 0)
	_, err := crawler.Crawl(context.Background(), server.URL+"/")
	if err == nil {
		t.Fatal("expected error when no page yields content")
	}
	if KindOf(err) != KindNoContent {
		t.Errorf("expected KindNoContent, got %s", KindOf(err))
	}
}

func TestCrawlAllPagesFailing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	crawler := NewCrawler(NewFetcher(5*time.Second), 10, 0)
	_, err := crawler.Crawl(context.Background(), server.URL+"/")
	if err == nil {
		t.Fatal("expected error when every fetch fails")
	}
	if KindOf(err) != KindNoContent {
		t.Errorf("expected KindNoContent, got %s", KindOf(err))
	}
}
