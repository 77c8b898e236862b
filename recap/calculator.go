/*
calculator.go - Bonus tier selection

FORMULA:
  achievement = round2(actual / target * 100)      (half-up)
  tier        = first of 150, 100, 80 with achievement >= threshold
  bonus       = actual * tierRate / 100             (on actual, not target)

  A zero target earns nothing (and avoids the division).

EXAMPLE:
  target 10,000,000, actual 12,000,000, tiers {3, 4, 5}
  achievement 120.00 -> tier 100 -> 4% -> 480,000
*/
package recap

import "github.com/shopspring/decimal"

var (
	hundred      = decimal.NewFromInt(100)
	threshold80  = decimal.NewFromInt(80)
	threshold100 = decimal.NewFromInt(100)
	threshold150 = decimal.NewFromInt(150)
)

// BonusResult is the calculator output for one (target, actual) pair.
type BonusResult struct {
	AchievementPercent decimal.Decimal
	BonusPercent       decimal.Decimal
	BonusAmount        decimal.Decimal
}

// CalculateBonus is pure and deterministic. Negative inputs are rejected,
// never clamped: they indicate an upstream data bug.
func CalculateBonus(targetRevenue, actualIncome decimal.Decimal, tiers Tiers) (BonusResult, error) {
	if targetRevenue.IsNegative() {
		return BonusResult{}, &InvalidInputError{Field: "target_revenue", Value: targetRevenue}
	}
	if actualIncome.IsNegative() {
		return BonusResult{}, &InvalidInputError{Field: "actual_income", Value: actualIncome}
	}
	if err := tiers.validate(); err != nil {
		return BonusResult{}, err
	}

	if targetRevenue.IsZero() {
		return BonusResult{
			AchievementPercent: decimal.Zero,
			BonusPercent:       decimal.Zero,
			BonusAmount:        decimal.Zero,
		}, nil
	}

	// DivRound rounds half away from zero; inputs are non-negative so this is half-up.
	achievement := actualIncome.Mul(hundred).DivRound(targetRevenue, 2)
	rate := TierRate(achievement, tiers)

	return BonusResult{
		AchievementPercent: achievement,
		BonusPercent:       rate,
		BonusAmount:        actualIncome.Mul(rate).Shift(-2),
	}, nil
}

// TierRate picks the bonus rate for an (already rounded) achievement percent.
func TierRate(achievement decimal.Decimal, tiers Tiers) decimal.Decimal {
	switch {
	case achievement.GreaterThanOrEqual(threshold150):
		return tiers.T150
	case achievement.GreaterThanOrEqual(threshold100):
		return tiers.T100
	case achievement.GreaterThanOrEqual(threshold80):
		return tiers.T80
	default:
		return decimal.Zero
	}
}
