package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"creditiq/pkg/core/ingest"
	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/core/utils"
	"creditiq/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registry(t *testing.T) *prompt.Registry {
	t.Helper()
	r, err := prompt.Default()
	require.NoError(t, err)
	return r
}

// literalVerifier checks every extracted value against the retrieved context
// by plain substring search.
func literalVerifier() *llm.MockProvider {
	return &llm.MockProvider{GenerateFunc: func(_ context.Context, req llm.Request) (string, error) {
		obj, err := utils.ExtractJSONObject(req.Prompt)
		if err != nil {
			return "", err
		}
		var rec models.FinancialRecord
		if err := json.Unmarshal([]byte(obj), &rec); err != nil {
			return "", err
		}
		var lines []string
		for _, s := range rec.Sections() {
			for _, f := range s.Fields {
				if f.Value.IsEmpty() || strings.Contains(req.Context, string(f.Value)) {
					continue
				}
				lines = append(lines, fmt.Sprintf("❌ [%s]: Extracted [%s] but source shows [not found]", f.Name, f.Value))
			}
		}
		if len(lines) == 0 {
			return AllVerified, nil
		}
		return strings.Join(lines, "\n"), nil
	}}
}

func buildIndex(t *testing.T, text string) (*knowledge.Index, llm.Embedder) {
	t.Helper()
	emb := llm.HashEmbedder{Dim: 64}
	doc := &ingest.Document{Source: "test", Text: text, Hash: "verifytest"}
	ix, err := knowledge.NewIndexer(emb).BuildIndex(context.Background(), doc)
	require.NoError(t, err)
	require.NotNil(t, ix)
	return ix, emb
}

const filing = "Total Current Assets: $500 million. Total Current Liabilities: $250 million. " +
	"Revenue for the quarter was $1,200 million and operating income was $150 million."

func TestVerifyAllValuesPresent(t *testing.T) {
	ix, emb := buildIndex(t, filing)
	mock := literalVerifier()
	engine := knowledge.NewQueryEngine(mock, emb)

	rec := &models.FinancialRecord{
		Liquidity:     models.Liquidity{TotalCurrentAssets: "$500 million", TotalCurrentLiabilities: "$250 million"},
		Profitability: models.Profitability{Revenue: "$1,200 million", OperatingIncome: "$150 million"},
	}
	report, res := NewVerifier(engine, registry(t), 0, nil).Verify(context.Background(), ix, rec)
	require.True(t, res.OK())
	assert.Equal(t, AllVerified, res.Text)
	assert.True(t, report.AllVerified)
	assert.Empty(t, report.Mismatches)
	assert.Equal(t, ix.Count(), res.TopK, "top_k 20 is clamped to the chunk count")
}

func TestVerifySetsTokenBudget(t *testing.T) {
	ix, emb := buildIndex(t, filing)
	mock := literalVerifier()
	rec := &models.FinancialRecord{Liquidity: models.Liquidity{TotalCurrentAssets: "$500 million"}}

	_, res := NewVerifier(knowledge.NewQueryEngine(mock, emb), registry(t), 0, nil).Verify(context.Background(), ix, rec)
	require.True(t, res.OK())
	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultMaxTokens, calls[0].MaxTokens)
}

func TestVerifyReportsMismatch(t *testing.T) {
	ix, emb := buildIndex(t, filing)
	engine := knowledge.NewQueryEngine(literalVerifier(), emb)

	rec := &models.FinancialRecord{Liquidity: models.Liquidity{
		TotalCurrentAssets:      "$500 billion",
		TotalCurrentLiabilities: "$250 million",
	}}
	report, res := NewVerifier(engine, registry(t), 0, nil).Verify(context.Background(), ix, rec)
	require.True(t, res.OK())
	assert.False(t, report.AllVerified)
	assert.Equal(t, []Mismatch{{Field: "Total_Current_Assets", Extracted: "$500 billion", Source: "not found"}}, report.Mismatches)
}

type fixedQuerier struct{ res llm.Result }

func (f fixedQuerier) Run(context.Context, *knowledge.Index, string, knowledge.QueryOptions) llm.Result {
	return f.res
}

func TestVerifyNilIndex(t *testing.T) {
	report, res := NewVerifier(fixedQuerier{}, registry(t), 0, nil).Verify(context.Background(), nil, &models.FinancialRecord{})
	assert.Nil(t, report)
	assert.Equal(t, llm.StatusNoIndex, res.Status)
	assert.Equal(t, NoSourcePlaceholder, res.Text)
}

func TestVerifyQueryFailure(t *testing.T) {
	q := fixedQuerier{res: llm.Result{Status: llm.StatusFailed, Err: errors.New("timeout")}}
	report, res := NewVerifier(q, registry(t), 0, nil).Verify(context.Background(), &knowledge.Index{}, &models.FinancialRecord{})
	assert.Nil(t, report)
	assert.Equal(t, "Error during verification: failed: timeout", res.Text)
}

func TestParseReport(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		all        bool
		mismatches []Mismatch
	}{
		{"sentinel", "✅ All values verified.", true, nil},
		{"sentinel with preamble", "After review:\n\n✅ All values verified.", true, nil},
		{
			"bracketed",
			"- ❌ [Total_Debt]: Extracted [$5 million] but source shows [$5 billion]",
			false,
			[]Mismatch{{"Total_Debt", "$5 million", "$5 billion"}},
		},
		{
			"bare values",
			"❌ Current_Ratio: Extracted 2.10 but source shows 2.00.\nsome commentary",
			false,
			[]Mismatch{{"Current_Ratio", "2.10", "2.00"}},
		},
		{"unrecognised", "The numbers look fine to me.", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseReport(tt.text)
			assert.Equal(t, tt.all, r.AllVerified)
			assert.Equal(t, tt.mismatches, r.Mismatches)
			assert.Equal(t, tt.text, r.Raw)
		})
	}
}
