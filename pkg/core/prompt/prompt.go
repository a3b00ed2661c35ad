// Package prompt provides the prompt library for the pipeline stages.
// Prompts are defined in YAML files, embedded at build time and optionally
// overridden from a directory, so wording can change without code changes.
package prompt

// PromptTemplate represents a reusable prompt with metadata
type PromptTemplate struct {
	ID             string           `yaml:"id"`                   // Unique identifier (e.g., "extraction.financial_record")
	Name           string           `yaml:"name"`                 // Human-readable name
	Category       string           `yaml:"category"`             // extraction, analysis, verification, distill, section
	Description    string           `yaml:"description"`          // Description of prompt purpose
	SystemPrompt   string           `yaml:"system_prompt"`        // Optional system message
	UserPromptTmpl string           `yaml:"user_prompt_template"` // Go template for user prompt
	Variables      []PromptVariable `yaml:"variables"`            // Variables used in template
	Version        string           `yaml:"version"`              // Version for tracking changes
}

// PromptVariable defines a variable used in a prompt template
type PromptVariable struct {
	Name        string `yaml:"name"`        // Variable name (e.g., "FinancialData")
	Description string `yaml:"description"` // What this variable represents
	Required    bool   `yaml:"required"`    // Whether this variable is required
	Default     string `yaml:"default"`     // Default value if not provided
}

// PromptExecutionContext holds runtime values for prompt execution
type PromptExecutionContext struct {
	Variables map[string]interface{} // Key-value pairs for template substitution
}

// NewContext creates a new execution context
func NewContext() *PromptExecutionContext {
	return &PromptExecutionContext{
		Variables: make(map[string]interface{}),
	}
}

// Set adds a variable to the context
func (c *PromptExecutionContext) Set(key string, value interface{}) *PromptExecutionContext {
	c.Variables[key] = value
	return c
}

// IDs of the prompts the pipeline renders.
const (
	ExtractionFinancialRecord = "extraction.financial_record"
	AnalysisRatingSummary     = "analysis.rating_summary"
	VerificationCrossCheck    = "verification.cross_check"
	DistillCommentary         = "distill.commentary"
	ComparisonPeerReport      = "comparison.peer_report"

	SectionCurrencyScale       = "section.currency_scale"
	SectionRiskFinancialDebt   = "section.risk_financial_debt"
	SectionRiskDebtMaturity    = "section.risk_debt_maturity"
	SectionRiskInterestExpense = "section.risk_interest_expense"
	SectionRiskExecutive       = "section.risk_executive_summary"
	SectionLiquidityCash       = "section.liquidity_cash"
	SectionLiquidityRunway     = "section.liquidity_runway"
	SectionLiquidityCredit     = "section.liquidity_credit_facilities"
	SectionLiquidityGoing      = "section.liquidity_going_concern"
	SectionLiquiditySummary    = "section.liquidity_summary"
	SectionProfitability       = "section.profitability"
	SectionCashFlow            = "section.cash_flow"
)

// Required lists the IDs a registry must hold before the pipeline can run.
var Required = []string{
	ExtractionFinancialRecord,
	AnalysisRatingSummary,
	VerificationCrossCheck,
	DistillCommentary,
	ComparisonPeerReport,
	SectionCurrencyScale,
	SectionRiskFinancialDebt,
	SectionRiskDebtMaturity,
	SectionRiskInterestExpense,
	SectionRiskExecutive,
	SectionLiquidityCash,
	SectionLiquidityRunway,
	SectionLiquidityCredit,
	SectionLiquidityGoing,
	SectionLiquiditySummary,
	SectionProfitability,
	SectionCashFlow,
}
