package linkray

import (
	"context"
	"log/slog"
	"time"

	"github.com/zombar/linkray/metrics"
	"github.com/zombar/linkray/models"
	"github.com/zombar/linkray/urlkey"
)

// Store is the persistence surface the pipeline needs. A fresh-enough cached
// row short-circuits the whole crawl-and-analyze path.
type Store interface {
	// GetScan returns the newest matching row, or (nil, nil) when no row
	// exists or none is younger than maxAge.
	GetScan(ctx context.Context, urlHash, ownerID string, maxAge time.Duration) (*models.Scan, error)
	// UpsertScan inserts or replaces the row keyed by (owner_id, url_hash),
	// filling in the generated ID and CreatedAt.
	UpsertScan(ctx context.Context, scan *models.Scan) error
	// ListRecent returns stored scans newest first, scoped to ownerID when
	// it is non-empty.
	ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.Scan, error)
}

// Archive stores the aggregated crawl document for later inspection.
// Archival is best-effort: failures are logged, never surfaced.
type Archive interface {
	SaveDocument(ctx context.Context, fingerprint, title, text string) (string, error)
}

// Config tunes the analysis pipeline.
type Config struct {
	FetchTimeout   time.Duration
	CacheTTL       time.Duration
	DeepMaxPages   int
	MaxTextLen     int
	ScreenshotBase string
	Models         []string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:   30 * time.Second,
		CacheTTL:       24 * time.Hour,
		DeepMaxPages:   DefaultMaxPages,
		MaxTextLen:     DefaultMaxTextLen,
		ScreenshotBase: urlkey.DefaultScreenshotBase,
		Models:         DefaultModels,
	}
}

// Service runs the full analysis pipeline: normalize, cache lookup, crawl,
// AI assessment, persistence.
type Service struct {
	store    Store
	analyzer *Analyzer
	fetcher  *Fetcher
	archive  Archive
	config   Config
}

// NewService wires the pipeline. archive may be nil to disable document
// archival.
func NewService(config Config, store Store, ai AIClient, archive Archive) *Service {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.DeepMaxPages <= 0 {
		config.DeepMaxPages = DefaultMaxPages
	}
	if config.MaxTextLen <= 0 {
		config.MaxTextLen = DefaultMaxTextLen
	}
	if config.ScreenshotBase == "" {
		config.ScreenshotBase = urlkey.DefaultScreenshotBase
	}
	return &Service{
		store:    store,
		analyzer: NewAnalyzer(ai, config.Models),
		fetcher:  NewFetcher(config.FetchTimeout),
		archive:  archive,
		config:   config,
	}
}

// QuickAnalyze assesses the submitted URL from its landing page only. An
// empty ownerID marks the request anonymous: cached rows are still consulted
// but the fresh result is not persisted.
func (s *Service) QuickAnalyze(ctx context.Context, rawURL, ownerID string) (*models.ScanResult, error) {
	return s.analyze(ctx, rawURL, ownerID, "quick", 1, QuickPrompt)
}

// DeepAnalyze assesses the submitted URL from a bounded same-site crawl,
// producing a richer assessment that includes a reasoned explanation.
func (s *Service) DeepAnalyze(ctx context.Context, rawURL, ownerID string) (*models.ScanResult, error) {
	return s.analyze(ctx, rawURL, ownerID, "deep", s.config.DeepMaxPages, DeepPrompt)
}

func (s *Service) analyze(ctx context.Context, rawURL, ownerID, mode string, maxPages int, prompt string) (*models.ScanResult, error) {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		metrics.RecordScan(mode, "invalid_url", false)
		return nil, &Error{Kind: KindInvalidURL, Message: "please provide a valid URL", Err: err}
	}

	fingerprint := urlkey.Fingerprint(normalized)
	screenshotURL := urlkey.ScreenshotURL(s.config.ScreenshotBase, normalized)

	// Cache read failures degrade to a miss; a broken cache must not take
	// the analyze path down with it.
	cached, err := s.store.GetScan(ctx, fingerprint, ownerID, s.config.CacheTTL)
	if err != nil {
		slog.Warn("cache lookup failed, treating as miss", "url_hash", fingerprint, "error", err)
	}
	if cached != nil {
		slog.Info("serving cached scan", "url_hash", fingerprint, "mode", mode, "age", time.Since(cached.CreatedAt).Round(time.Second))
		metrics.RecordScan(mode, "ok", true)
		return resultFromScan(cached, screenshotURL, true), nil
	}

	crawler := NewCrawler(s.fetcher, maxPages, s.config.MaxTextLen)
	doc, err := crawler.Crawl(ctx, normalized)
	if err != nil {
		metrics.RecordScan(mode, string(KindOf(err)), false)
		return nil, err
	}
	metrics.ObserveCrawlPages(doc.PageCount)

	analysis, err := s.analyzer.Analyze(ctx, BuildPrompt(prompt, doc.Title, doc.Text))
	if err != nil {
		metrics.RecordScan(mode, string(KindOf(err)), false)
		return nil, err
	}

	if s.archive != nil {
		if key, err := s.archive.SaveDocument(ctx, fingerprint, doc.Title, doc.Text); err != nil {
			slog.Warn("crawl document archival failed", "url_hash", fingerprint, "error", err)
		} else {
			slog.Debug("crawl document archived", "url_hash", fingerprint, "key", key)
		}
	}

	scan := &models.Scan{
		OwnerID:       ownerID,
		URLHash:       fingerprint,
		URL:           normalized,
		Summary:       analysis.Summary,
		RiskScore:     analysis.RiskScore,
		Reason:        analysis.Reason,
		Category:      analysis.Category,
		Tags:          analysis.Tags,
		ScreenshotURL: screenshotURL,
	}

	if ownerID != "" {
		if err := s.store.UpsertScan(ctx, scan); err != nil {
			metrics.RecordScan(mode, string(KindPersistenceFailed), false)
			return nil, &Error{Kind: KindPersistenceFailed, Message: "failed to save scan result", Err: err}
		}
	} else {
		scan.CreatedAt = time.Now().UTC()
	}

	slog.Info("scan complete", "url_hash", fingerprint, "mode", mode,
		"pages", doc.PageCount, "risk_score", scan.RiskScore, "persisted", ownerID != "")
	metrics.RecordScan(mode, "ok", false)
	return resultFromScan(scan, screenshotURL, false), nil
}

// RecentScans lists the caller's newest scans. Stored rows are replays by
// definition, so every entry is marked from_cache.
func (s *Service) RecentScans(ctx context.Context, ownerID string, limit int) ([]*models.ScanResult, error) {
	scans, err := s.store.ListRecent(ctx, ownerID, limit)
	if err != nil {
		return nil, &Error{Kind: KindPersistenceFailed, Message: "failed to list recent scans", Err: err}
	}

	results := make([]*models.ScanResult, 0, len(scans))
	for _, scan := range scans {
		screenshot := urlkey.ScreenshotURL(s.config.ScreenshotBase, scan.URL)
		results = append(results, resultFromScan(scan, screenshot, true))
	}
	return results, nil
}

func resultFromScan(scan *models.Scan, screenshotURL string, fromCache bool) *models.ScanResult {
	tags := scan.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.ScanResult{
		ID:            scan.ID,
		URL:           scan.URL,
		Summary:       scan.Summary,
		RiskScore:     scan.RiskScore,
		Reason:        scan.Reason,
		Category:      scan.Category,
		Tags:          tags,
		ScreenshotURL: screenshotURL,
		CreatedAt:     scan.CreatedAt,
		FromCache:     fromCache,
	}
}
