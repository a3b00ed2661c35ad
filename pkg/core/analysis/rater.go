// Package analysis turns an extracted record and its index into narrative
// credit commentary: the rating summary, the per-section analyses and the
// peer comparison.
package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/core/utils"
	"creditiq/pkg/models"

	"github.com/sirupsen/logrus"
)

const DefaultMaxTokens = 4000

// Generation holds the sampling settings of a direct generation call.
type Generation struct {
	Temperature float32
	MaxTokens   int
}

func (g Generation) withDefaults() Generation {
	if g.MaxTokens <= 0 {
		g.MaxTokens = DefaultMaxTokens
	}
	return g
}

// Rater writes the preliminary credit rating summary for a record.
type Rater struct {
	provider llm.Provider
	prompts  *prompt.Registry
	gen      Generation
	log      *logrus.Entry
}

func NewRater(provider llm.Provider, prompts *prompt.Registry, gen Generation, log *logrus.Entry) *Rater {
	return &Rater{provider: provider, prompts: prompts, gen: gen.withDefaults(), log: logging.OrDiscard(log)}
}

// Rate generates the eight-section summary from rec. No retrieval is
// involved. The answer is forwarded without shape checks; a provider error
// yields a failed Result whose text is a readable placeholder.
func (r *Rater) Rate(ctx context.Context, rec *models.FinancialRecord) llm.Result {
	if rec == nil {
		return llm.Result{Status: llm.StatusSkipped}
	}
	text, err := r.prompts.Render(prompt.AnalysisRatingSummary, map[string]interface{}{
		"FinancialData": rec.JSON(),
	})
	if err != nil {
		return llm.Failure(err, fmt.Sprintf("Error generating analysis: %v", err))
	}

	out, err := r.provider.GenerateResponse(ctx, llm.Request{
		Prompt:      text,
		Temperature: r.gen.Temperature,
		MaxTokens:   r.gen.MaxTokens,
	})
	if err != nil {
		r.log.WithError(err).Error("rating summary generation failed")
		return llm.Failure(err, fmt.Sprintf("Error generating analysis: %v", err))
	}
	res := llm.Success(utils.CleanMarkdown(out))
	res.Attempts = 1
	return res
}

// RatingGuidance is the parsed "System Preliminary Rating Guidance" block.
type RatingGuidance struct {
	RiskLevel       string `json:"risk_level,omitempty"`
	RatingBand      string `json:"rating_band,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
	Disclaimer      string `json:"disclaimer,omitempty"`
}

var guidanceLines = map[string]*regexp.Regexp{
	"risk":       regexp.MustCompile(`(?im)^[\s\-*•]*\**risk level\**\s*:\**\s*(.+)$`),
	"band":       regexp.MustCompile(`(?im)^[\s\-*•]*\**(?:equivalent )?rating band\**\s*:\**\s*(.+)$`),
	"action":     regexp.MustCompile(`(?im)^[\s\-*•]*\**suggested action\**\s*:\**\s*(.+)$`),
	"disclaimer": regexp.MustCompile(`(?im)^[\s\-*•]*\**disclaimer\**\s*:\**\s*(.+)$`),
}

// ParseRatingGuidance reads the guidance fields from a rating summary. It
// reports false when none of them is present. The values are advisory.
func ParseRatingGuidance(text string) (*RatingGuidance, bool) {
	get := func(key string) string {
		m := guidanceLines[key].FindStringSubmatch(text)
		if m == nil {
			return ""
		}
		return strings.Trim(strings.TrimSpace(m[1]), `*"[]`)
	}
	g := &RatingGuidance{
		RiskLevel:       get("risk"),
		RatingBand:      get("band"),
		SuggestedAction: get("action"),
		Disclaimer:      get("disclaimer"),
	}
	if *g == (RatingGuidance{}) {
		return nil, false
	}
	return g, true
}
