/*
reconciler.go - Merge computed bonuses with saved recap rows

PURPOSE:
  Produces the per-admin view for a month and decides which rows must be
  written back so storage matches what the calculator would produce from
  current inputs.

ALGORITHM (per admin code):
  1. setting  = settings[code], or target 0 + DefaultTiers (HasSettings=false)
  2. actual   = income[code], or 0
  3. bonus    = CalculateBonus(setting.target, actual, setting.tiers)
  4. existing = saved row for (code, period), if any
  5. status / paid_at are carried over from existing; default pending / nil
  6. row goes to ToPersist if there is no existing row or any numeric field differs

INVARIANTS:
  - Reconciliation never invents or clears a paid status.
  - Reconciling twice with unchanged inputs yields an empty ToPersist.
  - Any error aborts the whole pass: no partial row set is returned.

SEE ALSO:
  - store.go: UpsertRecaps (numeric fields only) and MarkPaid (status only)
*/
package recap

import "github.com/shopspring/decimal"

// Reconciliation is the output of one pass.
type Reconciliation struct {
	Period    Period
	Rows      []RecapRow
	ToPersist []RecapRow
}

// Reconcile builds recap rows for every code in adminCodes, in that order.
func Reconcile(
	adminCodes []AdminCode,
	settings []TargetSetting,
	incomeByAdmin map[AdminCode]decimal.Decimal,
	existingRecap []RecapRow,
	period Period,
) (Reconciliation, error) {
	if err := period.Validate(); err != nil {
		return Reconciliation{}, err
	}

	settingsByCode := make(map[AdminCode]TargetSetting, len(settings))
	for _, s := range settings {
		if err := s.Validate(); err != nil {
			return Reconciliation{}, err
		}
		settingsByCode[s.AdminCode.Normalize()] = s
	}

	existingByCode := make(map[AdminCode]RecapRow)
	for _, r := range existingRecap {
		if r.Period != period {
			continue
		}
		existingByCode[r.AdminCode.Normalize()] = r
	}

	result := Reconciliation{Period: period}
	emitted := make(map[AdminCode]bool, len(adminCodes))

	for _, raw := range adminCodes {
		code := raw.Normalize()
		if code.IsBlank() || emitted[code] {
			continue
		}
		emitted[code] = true

		setting, hasSettings := settingsByCode[code]
		if !hasSettings {
			setting = TargetSetting{AdminCode: code, TargetRevenue: decimal.Zero, Tiers: DefaultTiers}
		}

		actual, ok := incomeByAdmin[code]
		if !ok {
			actual = decimal.Zero
		}

		bonus, err := CalculateBonus(setting.TargetRevenue, actual, setting.Tiers)
		if err != nil {
			return Reconciliation{}, err
		}

		row := RecapRow{
			AdminCode:          code,
			Period:             period,
			TargetRevenue:      setting.TargetRevenue,
			ActualIncome:       actual,
			AchievementPercent: bonus.AchievementPercent,
			BonusPercent:       bonus.BonusPercent,
			BonusAmount:        bonus.BonusAmount,
			Status:             StatusPending,
			HasSettings:        hasSettings,
		}

		existing, saved := existingByCode[code]
		if saved {
			row.IsSaved = true
			if existing.Status != "" {
				row.Status = existing.Status
			}
			row.PaidAt = existing.PaidAt
		}

		result.Rows = append(result.Rows, row)
		if !saved || !row.NumericEqual(existing) {
			result.ToPersist = append(result.ToPersist, row)
		}
	}

	return result, nil
}
