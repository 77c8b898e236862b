package recap

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD INCOME AGGREGATOR
// =============================================================================

// AggregateByAdmin sums income per admin for the given calendar month.
//
// Records outside [first day, last day] are skipped. Records with a blank
// admin code are unattributed and never reach the map. Sums are decimal, so
// the result is identical whatever order the records arrive in.
func AggregateByAdmin(records []IncomeRecord, month, year int) (map[AdminCode]decimal.Decimal, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return nil, err
	}
	return AggregatePeriod(records, period)
}

// AggregatePeriod is AggregateByAdmin for an already validated Period.
func AggregatePeriod(records []IncomeRecord, period Period) (map[AdminCode]decimal.Decimal, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	totals := make(map[AdminCode]decimal.Decimal)
	for _, r := range records {
		if !period.Contains(r.Date) {
			continue
		}
		code := r.AdminCode.Normalize()
		if code.IsBlank() {
			continue
		}
		if r.Amount.IsNegative() {
			return nil, &InvalidInputError{Field: "amount", Value: r.Amount}
		}
		totals[code] = totals[code].Add(r.Amount)
	}
	return totals, nil
}

// AdminUniverse returns every admin code that appears in any record, for
// any period, sorted. An admin with no income this month still gets a row.
func AdminUniverse(records []IncomeRecord) []AdminCode {
	seen := make(map[AdminCode]bool)
	var codes []AdminCode
	for _, r := range records {
		code := r.AdminCode.Normalize()
		if code.IsBlank() || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
