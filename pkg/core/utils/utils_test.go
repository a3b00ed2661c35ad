package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSmartParseStrategies(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ParseStrategy
	}{
		{"strict", `{"name": "a", "count": 1}`, StrategyStrict},
		{"trailing comma", `{"name": "a", "count": 1,}`, StrategyRepaired},
		{"single quotes", `{'name': 'a', 'count': 1}`, StrategyRepaired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s sample
			got, err := SmartParse(tt.input, &s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, sample{Name: "a", Count: 1}, s)
		})
	}
}

func TestParseHJSON(t *testing.T) {
	out, err := ParseHJSON("{\n  # comment\n  name: a\n  count: 1\n}")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","count":1}`, out)
}

func TestExtractJSONObject(t *testing.T) {
	got, err := ExtractJSONObject("Here you go:\n```json\n{\"a\": {\"b\": 1}}\n```\nThanks")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, got)

	_, err = ExtractJSONObject("no json here")
	assert.ErrorIs(t, err, ErrNoJSONObject)
	_, err = ExtractJSONObject("} backwards {")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestCleanMarkdown(t *testing.T) {
	assert.Equal(t, "# Title", CleanMarkdown("```markdown\n# Title\n```"))
	assert.Equal(t, "body", CleanMarkdown("  ```\nbody\n```  "))
	assert.Equal(t, "plain", CleanMarkdown("plain"))
}

func TestPlainText(t *testing.T) {
	md := "**Commentary Summary:**\n\n- Liquidity is *adequate*\n- Leverage is low\n\n## Risk Flags\n🟢 Favorable"
	assert.Equal(t, "Commentary Summary:\nLiquidity is adequate\nLeverage is low\nRisk Flags\n🟢 Favorable", PlainText(md))
}

func TestToHTMLRendersTables(t *testing.T) {
	out, err := ToHTML("| A | B |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>1</td>")
}
