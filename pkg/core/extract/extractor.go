// Package extract asks the model for the financial record and decodes its reply.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/core/utils"
	"creditiq/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTopK      = 15
	DefaultMaxTokens = 4000

	// rawResponseLimit bounds the reply kept for diagnosis, in runes.
	rawResponseLimit = 500
)

var (
	// ErrNoIndex means there was no index to extract from.
	ErrNoIndex = errors.New("no index available for extraction")
	// ErrNoAnswer means the retrieval query did not produce an answer.
	ErrNoAnswer = errors.New("extraction query produced no answer")
)

// DecodeError reports a reply that could not be decoded into a record.
type DecodeError struct {
	Reason      string `json:"error"`
	RawResponse string `json:"raw_response"`
	Err         error  `json:"-"`
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// formulaHints are the schema placeholders the prompt shows for derived
// fields. A model that echoes one back has not computed anything.
var formulaHints = map[string]bool{
	"total_current_assets / total_current_liabilities": true,
	"total_debt / shareholders_equity":                 true,
	"operating_income / revenue":                       true,
	"operating_cash_flow - capex":                      true,
	"if ocf <0, cash_and_equivalents / |operating_cash_flow/12| else 'not applicable'": true,
}

// Querier is the retrieval engine the extractor runs on.
type Querier interface {
	Run(ctx context.Context, ix *knowledge.Index, prompt string, opts knowledge.QueryOptions) llm.Result
}

// Extractor runs the extraction query and decodes the record.
type Extractor struct {
	engine    Querier
	prompts   *prompt.Registry
	topK      int
	maxTokens int
	log       *logrus.Entry
}

// NewExtractor creates an extractor. topK <= 0 takes DefaultTopK.
func NewExtractor(engine Querier, prompts *prompt.Registry, topK int, log *logrus.Entry) *Extractor {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Extractor{
		engine:    engine,
		prompts:   prompts,
		topK:      topK,
		maxTokens: DefaultMaxTokens,
		log:       logging.OrDiscard(log),
	}
}

// Extract queries ix for the record. Temperature is 0 so repeated runs over
// the same index agree. The query Result is returned alongside for status
// reporting.
func (e *Extractor) Extract(ctx context.Context, ix *knowledge.Index) (*models.FinancialRecord, llm.Result, error) {
	if ix == nil {
		return nil, llm.Result{Status: llm.StatusNoIndex}, ErrNoIndex
	}
	text, err := e.prompts.Render(prompt.ExtractionFinancialRecord, nil)
	if err != nil {
		return nil, llm.Failure(err, ""), err
	}

	res := e.engine.Run(ctx, ix, text, knowledge.QueryOptions{
		TopK:        e.topK,
		Temperature: 0,
		MaxTokens:   e.maxTokens,
	})
	if !res.OK() {
		return nil, res, fmt.Errorf("%w: %s", ErrNoAnswer, res)
	}

	rec, err := Decode(res.Text)
	if err != nil {
		e.log.WithError(err).Warn("extraction reply could not be decoded")
		res.Status = llm.StatusMalformed
		return nil, res, err
	}
	e.log.WithFields(logrus.Fields{
		"company":   rec.Company,
		"disclosed": rec.Disclosed(),
		"attempts":  res.Attempts,
	}).Info("financial record extracted")
	return rec, res, nil
}

// Decode parses a model reply into a record. The object between the first
// '{' and the last '}' is decoded strictly, then leniently. Echoed formula
// hints are cleared. Values are not validated.
func Decode(reply string) (*models.FinancialRecord, error) {
	obj, err := utils.ExtractJSONObject(reply)
	if err != nil {
		return nil, newDecodeError(reply, err)
	}

	var rec models.FinancialRecord
	if _, err := utils.SmartParse(obj, &rec); err != nil {
		return nil, newDecodeError(reply, err)
	}
	clearFormulaHints(&rec)
	return &rec, nil
}

func newDecodeError(reply string, err error) *DecodeError {
	return &DecodeError{
		Reason:      "Failed to parse JSON",
		RawResponse: truncateRunes(reply, rawResponseLimit),
		Err:         err,
	}
}

func clearFormulaHints(rec *models.FinancialRecord) {
	for _, v := range []*models.Value{
		&rec.Liquidity.CurrentRatio,
		&rec.Liquidity.LiquidityRunwayMonths,
		&rec.Leverage.DebtToEquity,
		&rec.Profitability.OperatingMargin,
		&rec.CashFlow.FreeCashFlow,
	} {
		if formulaHints[strings.ToLower(strings.TrimSpace(string(*v)))] {
			*v = ""
		}
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
