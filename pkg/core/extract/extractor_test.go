package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"creditiq/pkg/core/knowledge"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuerier struct {
	result llm.Result
	opts   knowledge.QueryOptions
	prompt string
}

func (s *stubQuerier) Run(_ context.Context, _ *knowledge.Index, p string, opts knowledge.QueryOptions) llm.Result {
	s.prompt, s.opts = p, opts
	return s.result
}

func registry(t *testing.T) *prompt.Registry {
	t.Helper()
	r, err := prompt.Default()
	require.NoError(t, err)
	return r
}

// anyIndex is a non-nil index; the stub querier never reads it.
var anyIndex = &knowledge.Index{}

func TestDecodeWrappedReply(t *testing.T) {
	rec, err := Decode("Sure! ```json\n{\"Company\": \"Acme\", \"Liquidity\": {\"Total_Current_Assets\": \"$500 million\", \"Current_Ratio\": \"Total_Current_Assets / Total_Current_Liabilities\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, models.Value("Acme"), rec.Company)
	assert.Equal(t, models.Value("$500 million"), rec.Liquidity.TotalCurrentAssets)
	assert.True(t, rec.Liquidity.CurrentRatio.IsEmpty(), "formula hint is cleared")
}

func TestDecodeLenient(t *testing.T) {
	rec, err := Decode(`{"Company": 'Acme', "Profitability": {"Revenue": 1200,},}`)
	require.NoError(t, err)
	assert.Equal(t, models.Value("Acme"), rec.Company)
	assert.Equal(t, models.Value("1200"), rec.Profitability.Revenue)
}

func TestDecodeFailureTruncatesRaw(t *testing.T) {
	reply := strings.Repeat("é", 600)
	_, err := Decode(reply)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "Failed to parse JSON", decErr.Reason)
	assert.Equal(t, 500, len([]rune(decErr.RawResponse)))
}

func TestDecodeKeepsRealRatios(t *testing.T) {
	rec, err := Decode(`{"Liquidity": {"Current_Ratio": "1.85"}, "Cash_Flow": {"Free_Cash_Flow": "Operating_Cash_Flow - Capex"}}`)
	require.NoError(t, err)
	assert.Equal(t, models.Value("1.85"), rec.Liquidity.CurrentRatio)
	assert.True(t, rec.CashFlow.FreeCashFlow.IsEmpty())
}

func TestExtractUsesDeterministicQuery(t *testing.T) {
	q := &stubQuerier{result: llm.Success(`{"Company": "Acme"}`)}
	rec, res, err := NewExtractor(q, registry(t), 0, nil).Extract(context.Background(), anyIndex)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, models.Value("Acme"), rec.Company)

	assert.Equal(t, DefaultTopK, q.opts.TopK)
	assert.Equal(t, float32(0), q.opts.Temperature)
	assert.Equal(t, DefaultMaxTokens, q.opts.MaxTokens)
	assert.Contains(t, q.prompt, "You are a financial data extractor")
}

func TestExtractNilIndex(t *testing.T) {
	q := &stubQuerier{}
	_, res, err := NewExtractor(q, registry(t), 0, nil).Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.Equal(t, llm.StatusNoIndex, res.Status)
	assert.Empty(t, q.prompt, "querier not called")
}

func TestExtractNoAnswer(t *testing.T) {
	q := &stubQuerier{result: llm.Failure(errors.New("boom"), "")}
	_, res, err := NewExtractor(q, registry(t), 0, nil).Extract(context.Background(), anyIndex)
	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.Equal(t, llm.StatusFailed, res.Status)
}

func TestExtractMalformed(t *testing.T) {
	q := &stubQuerier{result: llm.Success("I could not find the data.")}
	_, res, err := NewExtractor(q, registry(t), 0, nil).Extract(context.Background(), anyIndex)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "I could not find the data.", decErr.RawResponse)
	assert.Equal(t, llm.StatusMalformed, res.Status)
}
