package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/models"

	"github.com/sirupsen/logrus"
)

// ErrNoRecords is returned when a comparison has nothing to compare.
var ErrNoRecords = errors.New("no financial records to compare")

// Comparer writes a comparative report over the records of a batch.
type Comparer struct {
	provider llm.Provider
	prompts  *prompt.Registry
	gen      Generation
	log      *logrus.Entry
}

func NewComparer(provider llm.Provider, prompts *prompt.Registry, gen Generation, log *logrus.Entry) *Comparer {
	return &Comparer{provider: provider, prompts: prompts, gen: gen.withDefaults(), log: logging.OrDiscard(log)}
}

// Compare ranks the companies by current ratio, debt-to-equity and operating
// margin and closes with a risk comparison and recommendation. Nil records
// (failed extractions) are left out.
func (c *Comparer) Compare(ctx context.Context, records []*models.FinancialRecord) llm.Result {
	kept := make([]*models.FinancialRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return llm.Result{Status: llm.StatusSkipped, Err: ErrNoRecords}
	}

	payload, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return llm.Failure(err, "")
	}
	text, err := c.prompts.Render(prompt.ComparisonPeerReport, map[string]interface{}{
		"Records": string(payload),
	})
	if err != nil {
		return llm.Failure(err, "")
	}

	out, err := c.provider.GenerateResponse(ctx, llm.Request{
		Prompt:      text,
		Temperature: c.gen.Temperature,
		MaxTokens:   c.gen.MaxTokens,
	})
	if err != nil {
		c.log.WithError(err).Error("comparison report generation failed")
		return llm.Failure(err, fmt.Sprintf("Error generating comparison: %v", err))
	}
	c.log.WithField("companies", len(kept)).Info("comparison report generated")
	res := llm.Success(out)
	res.Attempts = 1
	return res
}
