package report

import (
	"fmt"
	"io"

	"creditiq/pkg/models"

	"github.com/xuri/excelize/v2"
)

// sheetNames maps record sections to worksheet names.
var sheetNames = map[string]string{
	"Liquidity":                 "Liquidity",
	"Leverage":                  "Leverage",
	"Profitability":             "Profitability",
	"Cash_Flow":                 "Cash_Flow",
	"Commitments_Contingencies": "Commitments",
}

// AgingSheet is the worksheet name of the aging table.
const AgingSheet = "Aging"

// ExportExcel writes rec as a workbook with one Field/Value sheet per
// section, plus an aging sheet when aging is non-nil.
func ExportExcel(w io.Writer, rec *models.FinancialRecord, aging *AgingTable) error {
	if rec == nil {
		return fmt.Errorf("export: no financial record")
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for i, sec := range rec.Sections() {
		name := sheetNames[sec.Name]
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := f.SetSheetRow(name, "A1", &[]interface{}{"Field", "Value"}); err != nil {
			return err
		}
		for r, field := range sec.Fields {
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(name, cell, &[]interface{}{field.Name, field.Value.String()}); err != nil {
				return err
			}
		}
		if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
			return err
		}
		if err := f.SetColWidth(name, "A", "B", 32); err != nil {
			return err
		}
	}

	if aging != nil {
		if err := writeAging(f, aging, bold); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeAging(f *excelize.File, t *AgingTable, bold int) error {
	if _, err := f.NewSheet(AgingSheet); err != nil {
		return err
	}
	header := []interface{}{ColUnit}
	for _, c := range AgingColumns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(AgingSheet, "A1", &header); err != nil {
		return err
	}
	rows := append(append([]AgingRow{}, t.Rows...), t.Totals)
	for r, row := range rows {
		values := []interface{}{row.Unit}
		for _, v := range row.Values() {
			values = append(values, v)
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(AgingSheet, cell, &values); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(AgingSheet, 1, 1, bold); err != nil {
		return err
	}
	return f.SetRowStyle(AgingSheet, len(rows)+1, len(rows)+1, bold)
}
