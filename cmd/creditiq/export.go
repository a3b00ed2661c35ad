package main

import (
	"fmt"
	"io"
	"os"

	"creditiq/pkg/core/pipeline"
	"creditiq/pkg/core/report"

	"github.com/spf13/cobra"
)

func newExportCmd(c *cli) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write the report or workbook of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out.html == "" && out.xlsx == "" {
				return fmt.Errorf("nothing to export: pass --html and/or --xlsx")
			}
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.files.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutputs(res, out)
		},
	}
	out.register(cmd)
	return cmd
}

func loadAging(path, sheet string) (*report.AgingTable, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	items, err := report.ReadLedger(f, sheet)
	if err != nil {
		return nil, err
	}
	return report.BuildAging(items, nil), nil
}

func writeHTML(path string, res *pipeline.RunResult, aging *report.AgingTable) error {
	html, err := report.HTML(res, aging)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(html), 0o644)
}

func writeWorkbook(path string, res *pipeline.RunResult, aging *report.AgingTable) error {
	rec, ok := res.Record()
	if !ok {
		return fmt.Errorf("run %s has no financial record to export", res.RunID)
	}
	return createFile(path, func(w io.Writer) error {
		return report.ExportExcel(w, rec, aging)
	})
}
