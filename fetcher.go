package linkray

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Many sites block default Go or bot-identifying clients, so the fetcher
// presents itself as a desktop browser.
const (
	fetchUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	fetchAccept        = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	fetchAcceptLang    = "en-US,en;q=0.9"
	defaultMaxBodySize = 10 * 1024 * 1024 // 10MB
)

// Fetcher retrieves raw page bytes over HTTP with a hard per-fetch timeout.
// It never retries; retry and fallback, where they exist, live one level up
// (across crawl pages, across AI models).
type Fetcher struct {
	client      *http.Client
	timeout     time.Duration
	maxBodySize int64
}

// NewFetcher creates a Fetcher whose every fetch is bounded by timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout:     timeout,
		maxBodySize: defaultMaxBodySize,
	}
}

// Fetch issues a GET for the given absolute URL and returns the response
// body as text. Timeouts, transport failures and non-2xx statuses each map
// to a distinct error classification.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", &Error{Kind: KindFetchFailed, Message: "failed to build request", Err: err}
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", fetchAccept)
	req.Header.Set("Accept-Language", fetchAcceptLang)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Kind: KindFetchTimeout, Message: "site took too long to respond", Err: err}
		}
		return "", &Error{Kind: KindFetchFailed, Message: "failed to fetch website", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{
			Kind:    KindFetchFailed,
			Message: fmt.Sprintf("site responded with HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Kind: KindFetchTimeout, Message: "site took too long to respond", Err: err}
		}
		return "", &Error{Kind: KindFetchFailed, Message: "failed to read response body", Err: err}
	}

	return string(body), nil
}
