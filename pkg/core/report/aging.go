// Package report turns run results into the artifacts analysts read: a
// receivables aging table, an Excel workbook and a printable HTML report.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"creditiq/pkg/core/calc"

	"github.com/dustin/go-humanize"
	"github.com/xuri/excelize/v2"
)

// Ledger column headers.
const (
	ColUnit    = "Unit"
	ColDays    = "Days Late"
	ColBalance = "Item Balance"
)

// AgingColumns are the bucket headers in display order. Total is last.
var AgingColumns = []string{"Current", "1-30", "31-60", "61-90", "91-180", "181+", "Total"}

const buckets = 6

// LedgerItem is one open receivable.
type LedgerItem struct {
	Unit     string
	DaysLate float64
	Balance  float64
}

// AgingRow is the bucketed balance of one unit. Amounts are rounded to cents.
type AgingRow struct {
	Unit    string
	Buckets [buckets]float64
	Total   float64
}

// Values returns the buckets followed by the total, in AgingColumns order.
func (r AgingRow) Values() []float64 {
	out := make([]float64, 0, len(AgingColumns))
	out = append(out, r.Buckets[:]...)
	return append(out, r.Total)
}

// AgingTable is the per-unit aging with a Totals row.
type AgingTable struct {
	Rows   []AgingRow
	Totals AgingRow
}

// Bucket is the index into AgingColumns for an item daysLate past due.
// Zero and negative days are current.
func Bucket(daysLate float64) int {
	switch {
	case daysLate <= 0:
		return 0
	case daysLate <= 30:
		return 1
	case daysLate <= 60:
		return 2
	case daysLate <= 90:
		return 3
	case daysLate <= 180:
		return 4
	default:
		return 5
	}
}

func cents(x float64) float64 { return math.Round(x*100) / 100 }

// BuildAging groups items by unit. labels optionally renames unit codes;
// rows are ordered by unit code.
func BuildAging(items []LedgerItem, labels map[string]string) *AgingTable {
	sums := map[string]*[buckets]float64{}
	for _, it := range items {
		b, ok := sums[it.Unit]
		if !ok {
			b = &[buckets]float64{}
			sums[it.Unit] = b
		}
		b[Bucket(it.DaysLate)] += it.Balance
	}
	units := make([]string, 0, len(sums))
	for u := range sums {
		units = append(units, u)
	}
	sort.Strings(units)

	t := &AgingTable{Totals: AgingRow{Unit: "Totals"}}
	for _, u := range units {
		row := AgingRow{Unit: u}
		if l, ok := labels[u]; ok {
			row.Unit = l
		}
		for i, v := range sums[u] {
			row.Buckets[i] = cents(v)
			row.Total += row.Buckets[i]
		}
		row.Total = cents(row.Total)
		t.Rows = append(t.Rows, row)

		for i := range row.Buckets {
			t.Totals.Buckets[i] += row.Buckets[i]
		}
		t.Totals.Total += row.Total
	}
	for i := range t.Totals.Buckets {
		t.Totals.Buckets[i] = cents(t.Totals.Buckets[i])
	}
	t.Totals.Total = cents(t.Totals.Total)
	return t
}

// ReadLedger reads items from sheet of an .xlsx workbook. An empty sheet
// name selects the first sheet. Rows with a blank unit are skipped.
func ReadLedger(r io.Reader, sheet string) ([]LedgerItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range []string{ColUnit, ColDays, ColBalance} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("ledger is missing column %q", name)
		}
	}

	var items []LedgerItem
	for n, row := range rows[1:] {
		cell := func(name string) string {
			if i := col[name]; i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		unit := cell(ColUnit)
		if unit == "" {
			continue
		}
		days, err := strconv.ParseFloat(cell(ColDays), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: days late %q: %w", n+2, cell(ColDays), err)
		}
		balance, ok := calc.ParseNumber(cell(ColBalance))
		if !ok {
			balance = 0
		}
		items = append(items, LedgerItem{Unit: unit, DaysLate: days, Balance: balance})
	}
	return items, nil
}

// Amount formats a figure with thousands separators and two decimals.
func Amount(x float64) string { return humanize.FormatFloat("#,###.##", x) }

// Markdown renders the table as a GFM table.
func (t *AgingTable) Markdown() string {
	var b strings.Builder
	b.WriteString("| Unit | " + strings.Join(AgingColumns, " | ") + " |\n")
	b.WriteString("|---" + strings.Repeat("|---:", len(AgingColumns)) + "|\n")
	for _, row := range append(t.Rows, t.Totals) {
		cells := make([]string, 0, len(AgingColumns))
		for _, v := range row.Values() {
			cells = append(cells, Amount(v))
		}
		fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(row.Unit), strings.Join(cells, " | "))
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
