package linkray

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zombar/linkray/models"
	"github.com/zombar/linkray/urlkey"
)

// fakeStore is an in-memory Store keyed by (owner, fingerprint).
type fakeStore struct {
	scans      map[string]*models.Scan
	getErr     error
	upsertErr  error
	upserts    int
	lastUpsert *models.Scan
}

func newFakeStore() *fakeStore {
	return &fakeStore{scans: make(map[string]*models.Scan)}
}

func storeKey(ownerID, urlHash string) string {
	return ownerID + "/" + urlHash
}

func (f *fakeStore) GetScan(ctx context.Context, urlHash, ownerID string, maxAge time.Duration) (*models.Scan, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for key, scan := range f.scans {
		if key != storeKey(ownerID, urlHash) && ownerID != "" {
			continue
		}
		if scan.URLHash != urlHash {
			continue
		}
		if maxAge > 0 && time.Since(scan.CreatedAt) > maxAge {
			continue
		}
		return scan, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertScan(ctx context.Context, scan *models.Scan) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	scan.ID = fmt.Sprintf("scan-%d", f.upserts)
	scan.CreatedAt = time.Now().UTC()
	stored := *scan
	f.scans[storeKey(scan.OwnerID, scan.URLHash)] = &stored
	f.lastUpsert = &stored
	return nil
}

func (f *fakeStore) ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.Scan, error) {
	var out []*models.Scan
	for _, scan := range f.scans {
		if ownerID != "" && scan.OwnerID != ownerID {
			continue
		}
		out = append(out, scan)
	}
	return out, nil
}

func newTestService(t *testing.T, store *fakeStore, ai AIClient) (*Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageHTML("Test Site", "A test site. "+filler)))
	}))
	service := NewService(Config{
		FetchTimeout: 5 * time.Second,
		CacheTTL:     24 * time.Hour,
		Models:       []string{"model-a"},
	}, store, ai, nil)
	return service, server
}

func scriptedAI() *fakeAIClient {
	return &fakeAIClient{responses: map[string]string{"model-a": validAnalysis}}
}

func TestQuickAnalyzePersistsForOwner(t *testing.T) {
	store := newFakeStore()
	service, server := newTestService(t, store, scriptedAI())
	defer server.Close()

	result, err := service.QuickAnalyze(context.Background(), server.URL, "user-1")
	if err != nil {
		t.Fatalf("QuickAnalyze failed: %v", err)
	}

	if result.FromCache {
		t.Error("fresh analysis must not be marked from_cache")
	}
	if result.RiskScore != 85 || result.Category != "E-commerce" {
		t.Errorf("unexpected result: %+v", result)
	}
	if store.upserts != 1 {
		t.Errorf("expected 1 upsert, got %d", store.upserts)
	}
	if store.lastUpsert.OwnerID != "user-1" {
		t.Errorf("scan persisted with wrong owner: %q", store.lastUpsert.OwnerID)
	}
	if result.ID == "" || result.CreatedAt.IsZero() {
		t.Errorf("persisted fields not reflected in result: %+v", result)
	}
}

func TestQuickAnalyzeAnonymousNotPersisted(t *testing.T) {
	store := newFakeStore()
	service, server := newTestService(t, store, scriptedAI())
	defer server.Close()

	result, err := service.QuickAnalyze(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("QuickAnalyze failed: %v", err)
	}

	if store.upserts != 0 {
		t.Errorf("anonymous scan was persisted: %d upserts", store.upserts)
	}
	if result.CreatedAt.IsZero() {
		t.Error("anonymous result missing timestamp")
	}
}

func TestAnalyzeCacheHit(t *testing.T) {
	store := newFakeStore()
	ai := scriptedAI()

	var fetches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Write([]byte(pageHTML("Test Site", "A test site. "+filler)))
	}))
	defer server.Close()

	normalized, err := urlkey.Normalize(server.URL)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	store.scans[storeKey("user-1", urlkey.Fingerprint(normalized))] = &models.Scan{
		ID:        "cached-1",
		OwnerID:   "user-1",
		URLHash:   urlkey.Fingerprint(normalized),
		URL:       normalized,
		Summary:   "Cached summary",
		RiskScore: 90,
		Category:  "News",
		Tags:      []string{"cached"},
		CreatedAt: time.Now().UTC().Add(-1 * time.Hour),
	}

	service := NewService(Config{
		FetchTimeout: 5 * time.Second,
		CacheTTL:     24 * time.Hour,
		Models:       []string{"model-a"},
	}, store, ai, nil)

	result, err := service.QuickAnalyze(context.Background(), server.URL, "user-1")
	if err != nil {
		t.Fatalf("QuickAnalyze failed: %v", err)
	}

	if !result.FromCache {
		t.Error("cached result not marked from_cache")
	}
	if result.Summary != "Cached summary" {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if fetches != 0 {
		t.Errorf("cache hit still fetched the site %d times", fetches)
	}
	if len(ai.calls) != 0 {
		t.Errorf("cache hit still invoked AI: %v", ai.calls)
	}
	if result.ScreenshotURL == "" {
		t.Error("cache hit missing re-derived screenshot URL")
	}
}

func TestAnalyzeStaleCacheRefreshes(t *testing.T) {
	store := newFakeStore()
	service, server := newTestService(t, store, scriptedAI())
	defer server.Close()

	normalized, _ := urlkey.Normalize(server.URL)
	store.scans[storeKey("user-1", urlkey.Fingerprint(normalized))] = &models.Scan{
		ID:        "stale-1",
		OwnerID:   "user-1",
		URLHash:   urlkey.Fingerprint(normalized),
		URL:       normalized,
		Summary:   "Stale summary",
		RiskScore: 10,
		Category:  "News",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}

	result, err := service.QuickAnalyze(context.Background(), server.URL, "user-1")
	if err != nil {
		t.Fatalf("QuickAnalyze failed: %v", err)
	}

	if result.FromCache {
		t.Error("stale cache entry served as fresh")
	}
	if result.Summary != "An online store." {
		t.Errorf("expected fresh analysis, got %q", result.Summary)
	}
	if store.upserts != 1 {
		t.Errorf("refresh not persisted: %d upserts", store.upserts)
	}
}

func TestAnalyzeCacheReadFailureDegradesToMiss(t *testing.T) {
	store := newFakeStore()
	store.getErr = fmt.Errorf("connection refused")
	service, server := newTestService(t, store, scriptedAI())
	defer server.Close()

	result, err := service.QuickAnalyze(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("QuickAnalyze failed: %v", err)
	}
	if result.FromCache {
		t.Error("broken cache produced a cache hit")
	}
}

func TestAnalyzePersistenceFailureIsHardError(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = fmt.Errorf("disk full")
	service, server := newTestService(t, store, scriptedAI())
	defer server.Close()

	_, err := service.QuickAnalyze(context.Background(), server.URL, "user-1")
	if err == nil {
		t.Fatal("expected error when persistence fails for authenticated scan")
	}
	if KindOf(err) != KindPersistenceFailed {
		t.Errorf("expected KindPersistenceFailed, got %s", KindOf(err))
	}
}

func TestAnalyzeInvalidURL(t *testing.T) {
	service := NewService(Config{Models: []string{"model-a"}}, newFakeStore(), scriptedAI(), nil)

	_, err := service.QuickAnalyze(context.Background(), "not a url!!", "")
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
	if KindOf(err) != KindInvalidURL {
		t.Errorf("expected KindInvalidURL, got %s", KindOf(err))
	}
}

func TestAnalyzeAIFailureIsTerminal(t *testing.T) {
	ai := &fakeAIClient{errs: map[string]error{"model-a": fmt.Errorf("unavailable")}}
	store := newFakeStore()
	service, server := newTestService(t, store, ai)
	defer server.Close()

	_, err := service.QuickAnalyze(context.Background(), server.URL, "user-1")
	if err == nil {
		t.Fatal("expected error when AI analysis fails")
	}
	if KindOf(err) != KindAIAnalysisFailed {
		t.Errorf("expected KindAIAnalysisFailed, got %s", KindOf(err))
	}
	if store.upserts != 0 {
		t.Errorf("failed analysis was persisted: %d upserts", store.upserts)
	}
}

func TestRecentScans(t *testing.T) {
	store := newFakeStore()
	store.scans[storeKey("user-1", "hash1")] = &models.Scan{
		ID:        "scan-1",
		OwnerID:   "user-1",
		URLHash:   "hash1",
		URL:       "https://example.com/",
		Summary:   "A site",
		RiskScore: 80,
		Category:  "News",
		CreatedAt: time.Now().UTC(),
	}
	store.scans[storeKey("user-2", "hash2")] = &models.Scan{
		ID:      "scan-2",
		OwnerID: "user-2",
		URLHash: "hash2",
		URL:     "https://other.example/",
	}

	service := NewService(Config{Models: []string{"model-a"}}, store, scriptedAI(), nil)

	results, err := service.RecentScans(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("RecentScans failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].FromCache {
		t.Error("stored scan not marked from_cache")
	}
	if results[0].ScreenshotURL == "" {
		t.Error("screenshot URL not re-derived for stored scan")
	}
}
