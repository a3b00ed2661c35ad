// Package calc derives credit ratios from the figures of an extracted record.
package calc

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"creditiq/pkg/models"

	"github.com/dustin/go-humanize"
)

// NotApplicable marks a runway that cannot be computed: no cash burn, or no
// positive cash balance against it.
const NotApplicable = "Not applicable"

var (
	numberPattern = regexp.MustCompile(`-?\d+(\.\d*)?|\.\d+`)
	noiseReplacer = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", "(", "", ")", "")
)

// ParseNumber reads the first number in a reported figure. Currency symbols,
// thousands separators and parentheses are dropped; a value in parentheses is
// negative unless it already carries a minus sign. "million" and "billion"
// scale the result.
func ParseNumber(s string) (float64, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	negative := strings.Contains(s, "(") && strings.Contains(s, ")")

	m := numberPattern.FindString(noiseReplacer.Replace(s))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if negative && !strings.HasPrefix(m, "-") {
		n = -n
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "million"):
		n *= 1e6
	case strings.Contains(lower, "billion"):
		n *= 1e9
	}
	return n, true
}

func parse(v models.Value) (float64, bool) { return ParseNumber(string(v)) }

// ratio divides two figures when both parse and the denominator is non-zero.
func ratio(num, den models.Value) (float64, bool) {
	a, ok := parse(num)
	if !ok {
		return 0, false
	}
	b, ok := parse(den)
	if !ok || b == 0 {
		return 0, false
	}
	return a / b, true
}

// FillRatios returns a copy of rec with every derivable ratio that is still
// empty filled in. Values already present are never replaced.
func FillRatios(rec *models.FinancialRecord) *models.FinancialRecord {
	if rec == nil {
		return nil
	}
	out := rec.Clone()

	liq := &out.Liquidity
	if liq.CurrentRatio.IsEmpty() {
		if r, ok := ratio(liq.TotalCurrentAssets, liq.TotalCurrentLiabilities); ok {
			liq.CurrentRatio = models.Value(fmt.Sprintf("%.2f", r))
		}
	}

	lev := &out.Leverage
	if lev.DebtToEquity.IsEmpty() {
		if r, ok := ratio(lev.TotalDebt, lev.ShareholdersEquity); ok {
			lev.DebtToEquity = models.Value(fmt.Sprintf("%.2f", r))
		}
	}

	prof := &out.Profitability
	if prof.OperatingMargin.IsEmpty() {
		if r, ok := ratio(prof.OperatingIncome, prof.Revenue); ok {
			prof.OperatingMargin = models.Value(fmt.Sprintf("%.2f%%", r*100))
		}
	}

	cf := &out.CashFlow
	if cf.FreeCashFlow.IsEmpty() {
		ocf, okO := parse(cf.OperatingCashFlow)
		capex, okC := parse(cf.Capex)
		if okO && okC {
			cf.FreeCashFlow = formatDollars(ocf - math.Abs(capex))
		}
	}

	if liq.LiquidityRunwayMonths.IsEmpty() {
		liq.LiquidityRunwayMonths = runway(out)
	}
	return out
}

// runway is cash over monthly burn when operating cash flow is negative.
// It is empty when either figure is missing and NotApplicable when there is
// no burn or no positive cash balance to divide.
func runway(rec *models.FinancialRecord) models.Value {
	ocf, ok := parse(rec.Liquidity.OperatingCashFlow)
	if !ok {
		ocf, ok = parse(rec.CashFlow.OperatingCashFlow)
	}
	if !ok {
		return ""
	}
	if ocf >= 0 {
		return NotApplicable
	}
	if rec.Liquidity.CashAndEquivalents.IsEmpty() {
		return ""
	}
	cash, ok := parse(rec.Liquidity.CashAndEquivalents)
	if !ok || cash <= 0 {
		return NotApplicable
	}
	burn := math.Abs(ocf) / 12
	return models.Value(fmt.Sprintf("%.1f months", cash/burn))
}

func formatDollars(v float64) models.Value {
	n := int64(math.Round(v))
	if n < 0 {
		return models.Value("-$" + humanize.Comma(-n))
	}
	return models.Value("$" + humanize.Comma(n))
}
