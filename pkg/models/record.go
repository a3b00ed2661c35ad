// Package models holds the structured financial record extracted from a filing.
package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Value is a reported or derived figure kept verbatim, units and currency
// symbols included. The empty string means "not disclosed".
type Value string

// IsEmpty reports whether the value was not disclosed.
func (v Value) IsEmpty() bool { return strings.TrimSpace(string(v)) == "" }

func (v Value) String() string { return string(v) }

// UnmarshalJSON accepts strings, numbers, booleans and null. Models do not
// always quote figures.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*v = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	case data[0] == '{' || data[0] == '[':
		// nested structure where a scalar was expected; keep the raw text
		*v = Value(string(data))
		return nil
	default:
		if f, err := strconv.ParseFloat(string(data), 64); err == nil {
			*v = Value(strconv.FormatFloat(f, 'f', -1, 64))
			return nil
		}
		*v = Value(string(data))
		return nil
	}
}

// Maturities maps a year label ("2025", "2029_and_beyond") to the amount due.
type Maturities map[string]Value

// UnmarshalJSON accepts an object; any scalar (often "") decodes to nil.
func (m *Maturities) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*m = nil
		return nil
	}
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Liquidity section.
type Liquidity struct {
	CashAndEquivalents      Value `json:"Cash_and_Equivalents"`
	TotalCurrentAssets      Value `json:"Total_Current_Assets"`
	TotalCurrentLiabilities Value `json:"Total_Current_Liabilities"`
	CurrentRatio            Value `json:"Current_Ratio"`
	OperatingCashFlow       Value `json:"Operating_Cash_Flow"`
	LiquidityRunwayMonths   Value `json:"Liquidity_Runway_Months"`
}

// Leverage section.
type Leverage struct {
	TotalDebt          Value      `json:"Total_Debt"`
	ShareholdersEquity Value      `json:"Shareholders_Equity"`
	DebtToEquity       Value      `json:"Debt_to_Equity"`
	DebtMaturities     Maturities `json:"Debt_Maturities"`
	UndrawnFacilities  Value      `json:"Undrawn_Facilities"`
}

// Profitability section.
type Profitability struct {
	Revenue         Value `json:"Revenue"`
	OperatingIncome Value `json:"Operating_Income"`
	NetIncome       Value `json:"Net_Income"`
	OperatingMargin Value `json:"Operating_Margin"`
}

// CashFlow section.
type CashFlow struct {
	OperatingCashFlow Value `json:"Operating_Cash_Flow"`
	Capex             Value `json:"Capex"`
	FreeCashFlow      Value `json:"Free_Cash_Flow"`
}

// Commitments section.
type Commitments struct {
	PurchaseObligations Value `json:"Purchase_Obligations"`
	LegalTaxExposure    Value `json:"Legal_Tax_Exposure"`
}

// FinancialRecord is the extraction schema. It is filled by extraction,
// completed once by the ratio calculator and read-only afterwards.
type FinancialRecord struct {
	Company                  Value         `json:"Company"`
	ReportDate               Value         `json:"Report_Date"`
	Liquidity                Liquidity     `json:"Liquidity"`
	Leverage                 Leverage      `json:"Leverage"`
	Profitability            Profitability `json:"Profitability"`
	CashFlow                 CashFlow      `json:"Cash_Flow"`
	CommitmentsContingencies Commitments   `json:"Commitments_Contingencies"`
}

// Clone returns a deep copy.
func (r *FinancialRecord) Clone() *FinancialRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Leverage.DebtMaturities != nil {
		out.Leverage.DebtMaturities = make(Maturities, len(r.Leverage.DebtMaturities))
		for k, v := range r.Leverage.DebtMaturities {
			out.Leverage.DebtMaturities[k] = v
		}
	}
	return &out
}

// JSON renders the record as indented JSON for prompts and artifacts.
func (r *FinancialRecord) JSON() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Field is one named value in a section.
type Field struct {
	Name  string
	Value Value
}

// Section is an ordered group of fields, in schema order.
type Section struct {
	Name   string
	Fields []Field
}

// Sections lists the record section by section. Debt maturities follow
// Debt_to_Equity as "Debt_Maturities.<year>" in sorted order.
func (r *FinancialRecord) Sections() []Section {
	lev := []Field{
		{"Total_Debt", r.Leverage.TotalDebt},
		{"Shareholders_Equity", r.Leverage.ShareholdersEquity},
		{"Debt_to_Equity", r.Leverage.DebtToEquity},
	}
	years := make([]string, 0, len(r.Leverage.DebtMaturities))
	for y := range r.Leverage.DebtMaturities {
		years = append(years, y)
	}
	sort.Strings(years)
	for _, y := range years {
		lev = append(lev, Field{"Debt_Maturities." + y, r.Leverage.DebtMaturities[y]})
	}
	lev = append(lev, Field{"Undrawn_Facilities", r.Leverage.UndrawnFacilities})

	return []Section{
		{Name: "Liquidity", Fields: []Field{
			{"Cash_and_Equivalents", r.Liquidity.CashAndEquivalents},
			{"Total_Current_Assets", r.Liquidity.TotalCurrentAssets},
			{"Total_Current_Liabilities", r.Liquidity.TotalCurrentLiabilities},
			{"Current_Ratio", r.Liquidity.CurrentRatio},
			{"Operating_Cash_Flow", r.Liquidity.OperatingCashFlow},
			{"Liquidity_Runway_Months", r.Liquidity.LiquidityRunwayMonths},
		}},
		{Name: "Leverage", Fields: lev},
		{Name: "Profitability", Fields: []Field{
			{"Revenue", r.Profitability.Revenue},
			{"Operating_Income", r.Profitability.OperatingIncome},
			{"Net_Income", r.Profitability.NetIncome},
			{"Operating_Margin", r.Profitability.OperatingMargin},
		}},
		{Name: "Cash_Flow", Fields: []Field{
			{"Operating_Cash_Flow", r.CashFlow.OperatingCashFlow},
			{"Capex", r.CashFlow.Capex},
			{"Free_Cash_Flow", r.CashFlow.FreeCashFlow},
		}},
		{Name: "Commitments_Contingencies", Fields: []Field{
			{"Purchase_Obligations", r.CommitmentsContingencies.PurchaseObligations},
			{"Legal_Tax_Exposure", r.CommitmentsContingencies.LegalTaxExposure},
		}},
	}
}

// Disclosed counts the non-empty fields of the five sections. Company is
// not a section field and is not counted.
func (r *FinancialRecord) Disclosed() int {
	n := 0
	for _, s := range r.Sections() {
		for _, f := range s.Fields {
			if !f.Value.IsEmpty() {
				n++
			}
		}
	}
	return n
}
