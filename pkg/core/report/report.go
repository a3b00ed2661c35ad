package report

import (
	"fmt"
	"strings"

	"creditiq/pkg/core/pipeline"
	"creditiq/pkg/core/utils"
)

// Build assembles the printable report of res in Markdown. aging may be nil.
func Build(res *pipeline.RunResult, aging *AgingTable) string {
	var b strings.Builder
	company := "Unknown company"
	rec, ok := res.Record()
	if ok && !rec.Company.IsEmpty() {
		company = rec.Company.String()
	}
	fmt.Fprintf(&b, "# Credit Analysis Report: %s\n\n", company)
	fmt.Fprintf(&b, "Source: %s  \nGenerated: %s  \nRun: %s\n\n", res.URL, res.Timestamp.Format("2006-01-02 15:04 MST"), res.RunID)
	if !res.Succeeded() {
		fmt.Fprintf(&b, "> Run failed at %s: %s\n\n", res.FailedStage, res.Error)
	}

	if ok {
		b.WriteString("## Financial Data\n\n")
		for _, sec := range rec.Sections() {
			fmt.Fprintf(&b, "### %s\n\n| Field | Value |\n|---|---|\n", strings.ReplaceAll(sec.Name, "_", " "))
			for _, f := range sec.Fields {
				v := f.Value.String()
				if f.Value.IsEmpty() {
					v = "-"
				}
				fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(strings.ReplaceAll(f.Name, "_", " ")), escapeCell(v))
			}
			b.WriteString("\n")
		}
	}

	section(&b, "Preliminary Credit Rating Summary", res.Step2Analysis)
	section(&b, "Commentary and Risk Flags", res.Step4ExtractSummary)
	if s := res.Sections; s != nil {
		section(&b, "Risk Analysis", s.Risk)
		section(&b, "Liquidity", s.Liquidity)
		section(&b, "Profitability", s.Profitability)
		section(&b, "Cash Flow", s.CashFlow)
	}
	section(&b, "Verification", res.Step3Verification)
	if aging != nil {
		section(&b, "Receivables Aging", aging.Markdown())
	}
	if len(res.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func section(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", title, strings.TrimSpace(body))
}

// HTML renders Build as an HTML document.
func HTML(res *pipeline.RunResult, aging *AgingTable) (string, error) {
	body, err := utils.ToHTML(Build(res, aging))
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>Credit Analysis Report</title></head>\n<body>\n" +
		body + "</body>\n</html>\n", nil
}
