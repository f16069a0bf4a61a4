package linkray

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/zombar/linkray/metrics"
	"github.com/zombar/linkray/models"
)

// AIClient generates a completion for a prompt against a named model.
type AIClient interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// DefaultModels is the fallback chain tried in order on each analysis.
// Cheaper models come first; later entries are progressively more capable
// and more expensive.
var DefaultModels = []string{
	"gemma-3-27b-it",
	"gemma-3-12b-it",
	"gemma-3-4b-it",
	"gemini-2.0-flash-lite-001",
	"gemini-2.5-flash",
	"gemini-flash-latest",
}

const maxTags = 5

const (
	defaultSummary  = "Unable to generate summary"
	defaultCategory = "Unknown"
	defaultReason   = "No explanation provided."
)

// QuickPrompt asks for a trust assessment of a single page. The two %s verbs
// receive the page title and extracted text.
const QuickPrompt = `You are a URL trust and safety analyst. Assess the website below and respond with a single JSON object, no markdown, with exactly these fields:
- "summary": one or two sentences describing what the site is and does
- "risk_score": an integer from 0 (certainly malicious) to 100 (fully trustworthy)
- "category": a short label for the site's type (e.g. "E-commerce", "News", "Phishing")
- "tags": up to 5 short lowercase keyword tags

Title: %s

Content:
%s`

// DeepPrompt asks for a trust assessment of an aggregated multi-page crawl.
// It adds a reason field and a scoring rubric. The two %s verbs receive the
// combined title and the aggregated text.
const DeepPrompt = `You are a URL trust and safety analyst. You are given text aggregated from many pages of a single website. Assess the site as a whole and respond with a single JSON object, no markdown, with exactly these fields:
- "summary": two or three sentences describing the site's purpose and operators
- "risk_score": an integer score following this rubric:
    0-20   confirmed or strongly suspected malicious (phishing, malware, scams)
    30-50  low-quality, misleading or unverifiable sites
    80-90  legitimate established sites
    95-100 verified major platforms
- "reason": a short paragraph explaining the score, citing concrete signals
- "category": a short label for the site's type
- "tags": up to 5 short lowercase keyword tags

Risk factors to check: credential harvesting forms, urgency or scare tactics, impersonation of known brands, missing or fake contact details, unrealistic offers, obfuscated ownership.

Title: %s

Content:
%s`

// Analyzer turns crawled content into a normalized trust assessment by
// walking an ordered list of AI backends until one yields parseable output.
type Analyzer struct {
	client AIClient
	models []string
}

// NewAnalyzer creates an analyzer over the given fallback chain. An empty
// chain selects DefaultModels.
func NewAnalyzer(client AIClient, models []string) *Analyzer {
	if len(models) == 0 {
		models = DefaultModels
	}
	return &Analyzer{client: client, models: models}
}

// BuildPrompt fills a prompt template with the document title and text.
func BuildPrompt(template, title, text string) string {
	return fmt.Sprintf(template, title, text)
}

// Analyze tries each configured model in order with the given prompt and
// returns the first successfully parsed assessment. Generation errors and
// unparseable output both advance to the next model; the returned error is
// classified KindAIAnalysisFailed only once every backend is exhausted.
func (a *Analyzer) Analyze(ctx context.Context, prompt string) (*models.AnalysisResult, error) {
	var lastErr error

	for _, model := range a.models {
		raw, err := a.client.Generate(ctx, model, prompt)
		if err != nil {
			slog.Warn("AI model attempt failed", "model", model, "error", err)
			metrics.RecordModelAttempt(model, "error")
			lastErr = err
			continue
		}

		result, err := parseAnalysis(raw)
		if err != nil {
			slog.Warn("AI model returned unparseable output", "model", model, "error", err)
			metrics.RecordModelAttempt(model, "parse_error")
			lastErr = err
			continue
		}

		metrics.RecordModelAttempt(model, "ok")
		slog.Debug("AI analysis succeeded", "model", model, "risk_score", result.RiskScore)
		return result, nil
	}

	return nil, &Error{Kind: KindAIAnalysisFailed, Message: "AI analysis failed for all configured models", Err: lastErr}
}

// rawAnalysis tolerates the model drifting from the requested schema:
// risk_score may arrive as a float, a string, or be missing entirely.
type rawAnalysis struct {
	Summary   string          `json:"summary"`
	RiskScore json.RawMessage `json:"risk_score"`
	Reason    string          `json:"reason"`
	Category  string          `json:"category"`
	Tags      []string        `json:"tags"`
}

func parseAnalysis(raw string) (*models.AnalysisResult, error) {
	cleaned := stripFences(raw)

	var parsed rawAnalysis
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	result := &models.AnalysisResult{
		Summary:   strings.TrimSpace(parsed.Summary),
		RiskScore: coerceScore(parsed.RiskScore),
		Reason:    strings.TrimSpace(parsed.Reason),
		Category:  strings.TrimSpace(parsed.Category),
		Tags:      parsed.Tags,
	}

	if result.Summary == "" {
		result.Summary = defaultSummary
	}
	if result.Category == "" {
		result.Category = defaultCategory
	}
	if result.Reason == "" {
		result.Reason = defaultReason
	}
	if len(result.Tags) > maxTags {
		result.Tags = result.Tags[:maxTags]
	}
	if result.Tags == nil {
		result.Tags = []string{}
	}

	return result, nil
}

// coerceScore normalizes whatever the model put in risk_score to an integer
// in [0, 100]. Unusable values fall back to a neutral 50.
func coerceScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 50
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		// Some models quote the number despite the schema.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 50
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f); err != nil {
			return 50
		}
	}

	score := int(math.Round(f))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// stripFences removes a markdown code fence wrapper if the model added one
// despite the JSON MIME type hint.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
