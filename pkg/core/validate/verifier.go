// Package validate cross-checks an extracted record against its source filing.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTopK is wider than extraction so every figure has a chance of
	// meeting its source passage.
	DefaultTopK = 20

	// DefaultMaxTokens bounds the field-by-field report.
	DefaultMaxTokens = 4000

	// AllVerified is the sentinel the verifier answers with when nothing differs.
	AllVerified = "✅ All values verified."

	NoSourcePlaceholder = "Error: No source text available for verification"
)

// Mismatch is one field whose extracted value differs from the source.
type Mismatch struct {
	Field     string `json:"field"`
	Extracted string `json:"extracted"`
	Source    string `json:"source"`
}

// VerificationReport is the parsed verifier answer. Raw keeps the answer as received.
type VerificationReport struct {
	AllVerified bool       `json:"all_verified"`
	Mismatches  []Mismatch `json:"mismatches,omitempty"`
	Raw         string     `json:"raw"`
}

// Querier is the retrieval engine the verifier runs on.
type Querier interface {
	Run(ctx context.Context, ix *knowledge.Index, prompt string, opts knowledge.QueryOptions) llm.Result
}

// Verifier asks the model to compare each extracted figure with the filing.
type Verifier struct {
	engine    Querier
	prompts   *prompt.Registry
	topK      int
	maxTokens int
	log       *logrus.Entry
}

// NewVerifier creates a verifier. topK <= 0 takes DefaultTopK.
func NewVerifier(engine Querier, prompts *prompt.Registry, topK int, log *logrus.Entry) *Verifier {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Verifier{
		engine:    engine,
		prompts:   prompts,
		topK:      topK,
		maxTokens: DefaultMaxTokens,
		log:       logging.OrDiscard(log),
	}
}

// Verify runs the cross-check query. The report is nil whenever the Result
// is not OK; the Result text then holds a placeholder.
func (v *Verifier) Verify(ctx context.Context, ix *knowledge.Index, rec *models.FinancialRecord) (*VerificationReport, llm.Result) {
	if ix == nil {
		return nil, llm.Result{Text: NoSourcePlaceholder, Status: llm.StatusNoIndex}
	}
	if rec == nil {
		return nil, llm.Result{Status: llm.StatusSkipped}
	}

	text, err := v.prompts.Render(prompt.VerificationCrossCheck, map[string]interface{}{
		"ExtractedData": rec.JSON(),
	})
	if err != nil {
		return nil, llm.Failure(err, fmt.Sprintf("Error during verification: %v", err))
	}

	res := v.engine.Run(ctx, ix, text, knowledge.QueryOptions{TopK: v.topK, MaxTokens: v.maxTokens})
	if !res.OK() {
		v.log.WithField("status", res.Status).Warn("verification query returned no answer")
		if res.Text == "" {
			res.Text = fmt.Sprintf("Error during verification: %v", res)
		}
		return nil, res
	}

	report := ParseReport(res.Text)
	v.log.WithFields(logrus.Fields{
		"all_verified": report.AllVerified,
		"mismatches":   len(report.Mismatches),
	}).Info("verification complete")
	return report, res
}

var mismatchLine = regexp.MustCompile(`^\W*❌\s*\[?([^\]:]+?)\]?\s*:\s*Extracted\s+\[?(.*?)\]?\s+but\s+source\s+shows\s+\[?(.*?)\]?\s*\.?$`)

// ParseReport reads the two-outcome convention: the AllVerified sentinel, or
// one "❌ [Field]: Extracted [X] but source shows [Y]" line per mismatch.
// Lines in neither form are ignored. Mismatch lines win over the sentinel.
func ParseReport(text string) *VerificationReport {
	r := &VerificationReport{Raw: text}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := mismatchLine.FindStringSubmatch(line); m != nil {
			r.Mismatches = append(r.Mismatches, Mismatch{
				Field:     strings.TrimSpace(m[1]),
				Extracted: strings.TrimSpace(m[2]),
				Source:    strings.TrimSpace(m[3]),
			})
		}
	}
	r.AllVerified = len(r.Mismatches) == 0 && strings.Contains(text, strings.TrimPrefix(AllVerified, "✅ "))
	return r
}
