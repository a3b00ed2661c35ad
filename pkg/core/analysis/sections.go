package analysis

import (
	"context"
	"fmt"
	"strings"

	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/prompt"

	"github.com/sirupsen/logrus"
)

// NoIndexPlaceholder is the text of every index-backed analysis when the
// document produced no index.
const NoIndexPlaceholder = "Unable to create vector index for analysis"

// DefaultSectionTopK is the retrieval breadth of a section question.
// Consolidating and narrative queries use one chunk fewer.
const DefaultSectionTopK = 3

// Querier is the retrieval engine the section analyses run on.
type Querier interface {
	Run(ctx context.Context, ix *knowledge.Index, prompt string, opts knowledge.QueryOptions) llm.Result
}

// Sections holds the narrative analyses of one filing, keyed the way the
// report lays them out.
type Sections struct {
	Risk          string `json:"risk"`
	Liquidity     string `json:"liquidity"`
	Profitability string `json:"profitability"`
	CashFlow      string `json:"cash_flow"`
}

// SectionAnalyzer runs the short retrieval queries behind the report's
// narrative sections.
type SectionAnalyzer struct {
	engine      Querier
	prompts     *prompt.Registry
	sectionTopK int
	summaryTopK int
	log         *logrus.Entry
}

// NewSectionAnalyzer creates an analyzer. topK <= 0 takes DefaultSectionTopK.
func NewSectionAnalyzer(engine Querier, prompts *prompt.Registry, topK int, log *logrus.Entry) *SectionAnalyzer {
	if topK <= 0 {
		topK = DefaultSectionTopK
	}
	summary := topK - 1
	if summary < 1 {
		summary = 1
	}
	return &SectionAnalyzer{
		engine:      engine,
		prompts:     prompts,
		sectionTopK: topK,
		summaryTopK: summary,
		log:         logging.OrDiscard(log),
	}
}

// riskSections are rendered in this order under bold headings.
var riskSections = []struct {
	title string
	id    string
}{
	{"Financial and Debt-Related Risks", prompt.SectionRiskFinancialDebt},
	{"Debt maturity", prompt.SectionRiskDebtMaturity},
	{"Interest Expense", prompt.SectionRiskInterestExpense},
	{"Executive Summary", prompt.SectionRiskExecutive},
}

// Analyze runs every section. A nil index fills every section with
// NoIndexPlaceholder without querying.
func (a *SectionAnalyzer) Analyze(ctx context.Context, ix *knowledge.Index) Sections {
	return Sections{
		Risk:          a.Risk(ctx, ix),
		Liquidity:     a.Liquidity(ctx, ix),
		Profitability: a.Profitability(ctx, ix),
		CashFlow:      a.CashFlow(ctx, ix),
	}
}

// ask renders id and queries ix, returning the trimmed answer or "".
func (a *SectionAnalyzer) ask(ctx context.Context, ix *knowledge.Index, id string, vars map[string]interface{}, topK int) string {
	text, err := a.prompts.Render(id, vars)
	if err != nil {
		a.log.WithError(err).WithField("prompt", id).Error("section prompt render failed")
		return ""
	}
	res := a.engine.Run(ctx, ix, text, knowledge.QueryOptions{TopK: topK, SystemPrompt: a.prompts.System(id)})
	if !res.OK() {
		a.log.WithField("prompt", id).WithField("status", res.Status).Warn("section query returned no answer")
		return ""
	}
	return strings.TrimSpace(res.Text)
}

// Risk reports the currency scale followed by the four risk narratives.
func (a *SectionAnalyzer) Risk(ctx context.Context, ix *knowledge.Index) string {
	if ix == nil {
		return NoIndexPlaceholder
	}
	var parts []string
	if scale := a.ask(ctx, ix, prompt.SectionCurrencyScale, nil, a.sectionTopK); scale != "" {
		parts = append(parts, strings.TrimSuffix(scale, ".")+".", "")
	}
	for _, s := range riskSections {
		if answer := a.ask(ctx, ix, s.id, nil, a.sectionTopK); answer != "" {
			parts = append(parts, fmt.Sprintf("**%s:**", s.title), answer, "")
		}
	}
	if len(parts) == 0 {
		return "No risk-related details found in the provided filing text."
	}
	return strings.TrimRight(strings.Join(parts, "\n"), "\n")
}

// Liquidity asks four questions and consolidates the answers into "- " bullets.
func (a *SectionAnalyzer) Liquidity(ctx context.Context, ix *knowledge.Index) string {
	if ix == nil {
		return NoIndexPlaceholder
	}
	vars := map[string]interface{}{}
	for _, q := range []struct{ key, id string }{
		{"Cash", prompt.SectionLiquidityCash},
		{"Runway", prompt.SectionLiquidityRunway},
		{"Credit", prompt.SectionLiquidityCredit},
		{"GoingConcern", prompt.SectionLiquidityGoing},
	} {
		answer := a.ask(ctx, ix, q.id, nil, a.sectionTopK)
		if answer == "" {
			answer = "Information not available"
		}
		vars[q.key] = answer
	}

	summary := a.ask(ctx, ix, prompt.SectionLiquiditySummary, vars, a.summaryTopK)
	if summary == "" {
		return "Unable to generate liquidity summary"
	}
	return Bullets(summary)
}

// Bullets prefixes every non-blank line of s with "- " unless it already has it.
func Bullets(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "- ") {
			line = "- " + line
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Profitability returns the profit narrative split into paragraphs.
func (a *SectionAnalyzer) Profitability(ctx context.Context, ix *knowledge.Index) string {
	if ix == nil {
		return NoIndexPlaceholder
	}
	answer := a.ask(ctx, ix, prompt.SectionProfitability, nil, a.summaryTopK)
	if answer == "" {
		return "Unable to generate profitability analysis"
	}
	return Paragraphs(answer)
}

// minParagraph drops fragments such as stray headings.
const minParagraph = 50

// Paragraphs normalises s to blank-line separated paragraphs, keeping only
// substantial ones. If none qualifies s is returned unchanged.
func Paragraphs(s string) string {
	parts := strings.Split(s, "\n\n")
	if len(parts) == 1 {
		parts = strings.Split(s, "\n")
	}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > minParagraph {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return s
	}
	return strings.Join(out, "\n\n")
}

// CashFlow summarises operating, investing and financing cash flows.
func (a *SectionAnalyzer) CashFlow(ctx context.Context, ix *knowledge.Index) string {
	if ix == nil {
		return NoIndexPlaceholder
	}
	answer := a.ask(ctx, ix, prompt.SectionCashFlow, nil, a.summaryTopK)
	if answer == "" {
		return "Unable to generate cash flow analysis"
	}
	return answer
}
