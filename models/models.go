package models

import "time"

// Scan is a persisted trust assessment for a single URL. One row exists per
// (owner, fingerprint) pair; a later scan of the same URL by the same owner
// replaces the earlier row.
type Scan struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	URLHash       string    `json:"url_hash"`
	URL           string    `json:"url"`
	Summary       string    `json:"summary"`
	RiskScore     int       `json:"risk_score"`
	Reason        string    `json:"reason,omitempty"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	ScreenshotURL string    `json:"screenshot_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// ScanResult is the response shape for a single analysis. It is built fresh
// per response: the screenshot URL is always re-derived from the normalized
// URL, never replayed from a stored row.
type ScanResult struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Summary       string    `json:"summary"`
	RiskScore     int       `json:"risk_score"`
	Reason        string    `json:"reason,omitempty"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	ScreenshotURL string    `json:"screenshot_url"`
	CreatedAt     time.Time `json:"created_at"`
	FromCache     bool      `json:"from_cache"`
}

// AnalysisResult is the normalized output of the AI analyzer. Every field is
// guaranteed non-empty by the analyzer's defaulting rules; RiskScore is
// always within [0, 100] and Tags holds at most five entries.
type AnalysisResult struct {
	Summary   string   `json:"summary"`
	RiskScore int      `json:"risk_score"`
	Reason    string   `json:"reason"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
}

// ScrapedContent is the cleaned text extracted from one or more HTML pages.
type ScrapedContent struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

// CrawlDocument aggregates extracted text across a bounded crawl. Text holds
// the per-page sections, each tagged with its source URL; Title joins the
// per-page titles.
type CrawlDocument struct {
	Text      string `json:"text"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
}

// AnalyzeRequest is the inbound payload for the analyze endpoints.
type AnalyzeRequest struct {
	URL string `json:"url"`
}

// AnalyzeResponse is the envelope returned by the analyze endpoints.
type AnalyzeResponse struct {
	Success bool        `json:"success"`
	Data    *ScanResult `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// RecentResponse is the envelope returned by the recent-scans endpoint.
type RecentResponse struct {
	Success bool          `json:"success"`
	Data    []*ScanResult `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
	Code    string        `json:"code,omitempty"`
}
