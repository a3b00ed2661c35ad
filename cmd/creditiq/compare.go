package main

import (
	"fmt"

	"creditiq/pkg/models"

	"github.com/spf13/cobra"
)

func newCompareCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <run-id> <run-id>...",
		Short: "Write a peer comparison report over stored runs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var records []*models.FinancialRecord
			for _, id := range args {
				res, err := a.files.Load(ctx, id)
				if err != nil {
					return err
				}
				rec, ok := res.Record()
				if !ok {
					a.log.WithField("run_id", id).Warn("run has no financial record, left out of comparison")
					continue
				}
				records = append(records, rec)
			}
			out := a.comparer.Compare(ctx, records)
			if !out.OK() {
				return fmt.Errorf("comparison: %s", out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			return nil
		},
	}
}
