package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryHasRequiredPrompts(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	assert.Empty(t, r.Missing(Required...))
	assert.Equal(t, len(Required), len(r.IDs("")))

	pt, err := r.Lookup(SectionRiskFinancialDebt)
	require.NoError(t, err)
	assert.Equal(t, "section", pt.Category, "category comes from the file")
	assert.NotEmpty(t, pt.SystemPrompt)
	assert.Len(t, r.IDs("section"), 12)
	assert.Equal(t, pt.SystemPrompt, r.System(SectionRiskFinancialDebt))
	assert.Empty(t, r.System("nope"))
}

func TestRenderRatingSummary(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	out, err := r.Render(AnalysisRatingSummary, map[string]interface{}{"FinancialData": `{"Company": "Acme"}`})
	require.NoError(t, err)
	assert.Contains(t, out, `{"Company": "Acme"}`)
	assert.Contains(t, out, "System Preliminary Rating Guidance")

	_, err = r.Render(AnalysisRatingSummary, nil)
	assert.Error(t, err, "FinancialData is required")
}

func TestRenderUsesDefaults(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	out, err := r.Render(SectionLiquiditySummary, map[string]interface{}{"Cash": "$2.1 billion"})
	require.NoError(t, err)
	assert.Contains(t, out, "1. Cash and Cash Equivalents: $2.1 billion")
	assert.Contains(t, out, "4. Going Concern Status: Not available")
}

func TestExtractionPromptIsStatic(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	out, err := r.Render(ExtractionFinancialRecord, nil)
	require.NoError(t, err)
	assert.Contains(t, out, `"Current_Ratio": "Total_Current_Assets / Total_Current_Liabilities"`)
}

func TestLoadFromDirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "distill.yaml"), []byte(`
prompts:
  - id: distill.commentary
    user_prompt_template: "Shorter: {{.RatingSummary}}"
`), 0o600))

	r, err := Default()
	require.NoError(t, err)
	require.NoError(t, LoadFromDirectory(r, dir))

	out, err := r.Render(DistillCommentary, map[string]interface{}{"RatingSummary": "text"})
	require.NoError(t, err)
	assert.Equal(t, "Shorter: text", out)

	pt, _ := r.Lookup(DistillCommentary)
	assert.Equal(t, "distill", pt.Category)

	assert.Error(t, LoadFromDirectory(r, filepath.Join(dir, "missing")))
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	assert.Error(t, NewRegistry().Register(&PromptTemplate{}))
	_, err := NewRegistry().Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownPrompt)
}
