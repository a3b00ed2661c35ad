package main

import (
	"fmt"
	"io"
	"os"

	"creditiq/pkg/core/pipeline"

	"github.com/spf13/cobra"
)

type outputFlags struct {
	html        string
	xlsx        string
	ledger      string
	ledgerSheet string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.html, "html", "", "write the printable report to this HTML file")
	cmd.Flags().StringVar(&o.xlsx, "xlsx", "", "write the financial record to this Excel workbook")
	cmd.Flags().StringVar(&o.ledger, "ledger", "", "receivables ledger (.xlsx) for the aging table")
	cmd.Flags().StringVar(&o.ledgerSheet, "ledger-sheet", "", "ledger worksheet (default: first sheet)")
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		ticker string
		out    outputFlags
	)
	cmd := &cobra.Command{
		Use:   "run [url|file]",
		Short: "Analyze one filing",
		Long: `Run the full pipeline over one 10-Q: a URL, a local PDF/DOCX/HTML/text
file, or the latest quarterly filing of --ticker from SEC EDGAR.

Example:
  creditiq run https://www.sec.gov/Archives/edgar/data/320193/000032019325000057/aapl-20250329.htm
  creditiq run ./acme-10q.pdf --html acme.html --xlsx acme.xlsx
  creditiq run --ticker AAPL`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			src, err := a.resolveSource(ctx, arg, ticker)
			if err != nil {
				return err
			}
			res := a.orch.Run(ctx, src)
			printResult(cmd.OutOrStdout(), res, a.files.Dir(res.RunID))
			if err := writeOutputs(res, out); err != nil {
				return err
			}
			if !res.Succeeded() {
				return fmt.Errorf("run %s failed at %s", res.RunID, res.FailedStage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "fetch the latest 10-Q of this ticker from SEC EDGAR")
	out.register(cmd)
	return cmd
}

func printResult(w io.Writer, res *pipeline.RunResult, dir string) {
	fmt.Fprintf(w, "Run:     %s\n", res.RunID)
	fmt.Fprintf(w, "Source:  %s\n", res.URL)
	fmt.Fprintf(w, "State:   %s\n", res.State)
	if res.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", res.Error)
	}
	if res.Rating != nil {
		fmt.Fprintf(w, "Risk:    %s (%s)\n", res.Rating.RiskLevel, res.Rating.RatingBand)
	}
	if res.Verification != nil {
		fmt.Fprintf(w, "Checked: %d mismatch(es)\n", len(res.Verification.Mismatches))
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
	fmt.Fprintf(w, "Output:  %s\n", dir)
}

func writeOutputs(res *pipeline.RunResult, out outputFlags) error {
	aging, err := loadAging(out.ledger, out.ledgerSheet)
	if err != nil {
		return err
	}
	if out.html != "" {
		if err := writeHTML(out.html, res, aging); err != nil {
			return err
		}
	}
	if out.xlsx != "" {
		if err := writeWorkbook(out.xlsx, res, aging); err != nil {
			return err
		}
	}
	return nil
}

func createFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
