package calc

import (
	"fmt"
	"math"

	"creditiq/pkg/models"
)

// ratioTolerance is the relative difference above which a reported ratio is flagged.
const ratioTolerance = 0.02

// ConsistencyResult holds the outcome of cross-checking reported ratios
// against the figures they are derived from.
type ConsistencyResult struct {
	Consistent bool     `json:"consistent"`
	Warnings   []string `json:"warnings,omitempty"`
}

// CheckConsistency recomputes every ratio that the record states and whose
// operands are present, and warns where the two disagree. Ratios that cannot
// be recomputed are not checked.
func CheckConsistency(rec *models.FinancialRecord) ConsistencyResult {
	res := ConsistencyResult{Consistent: true}
	if rec == nil {
		return res
	}

	check := func(field string, stated models.Value, num, den models.Value, scale float64) {
		got, ok := parse(stated)
		if !ok {
			return
		}
		want, ok := ratio(num, den)
		if !ok {
			return
		}
		want *= scale
		if !withinTolerance(got, want) {
			res.Consistent = false
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s is %s but figures give %.2f", field, stated, want))
		}
	}

	check("Current_Ratio", rec.Liquidity.CurrentRatio,
		rec.Liquidity.TotalCurrentAssets, rec.Liquidity.TotalCurrentLiabilities, 1)
	check("Debt_to_Equity", rec.Leverage.DebtToEquity,
		rec.Leverage.TotalDebt, rec.Leverage.ShareholdersEquity, 1)
	check("Operating_Margin", rec.Profitability.OperatingMargin,
		rec.Profitability.OperatingIncome, rec.Profitability.Revenue, 100)

	// Capex sign varies between filings; accept either.
	stated, okS := parse(rec.CashFlow.FreeCashFlow)
	ocf, okO := parse(rec.CashFlow.OperatingCashFlow)
	capex, okC := parse(rec.CashFlow.Capex)
	if okS && okO && okC {
		want := ocf - math.Abs(capex)
		if !withinTolerance(stated, want) && !withinTolerance(stated, ocf+math.Abs(capex)) {
			res.Consistent = false
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Free_Cash_Flow is %s but figures give %s", rec.CashFlow.FreeCashFlow, formatDollars(want)))
		}
	}
	return res
}

func withinTolerance(got, want float64) bool {
	if want == 0 {
		return math.Abs(got) < 0.01
	}
	return math.Abs(got-want)/math.Abs(want) <= ratioTolerance
}
