package cache

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/bonus-recap/recap"
)

// cachedRow is the JSON shape stored in redis. Decimals marshal as strings.
type cachedRow struct {
	AdminCode          string          `json:"admin_code"`
	Month              int             `json:"month"`
	Year               int             `json:"year"`
	TargetRevenue      decimal.Decimal `json:"target_revenue"`
	ActualIncome       decimal.Decimal `json:"actual_income"`
	AchievementPercent decimal.Decimal `json:"achievement_percent"`
	BonusPercent       decimal.Decimal `json:"bonus_percent"`
	BonusAmount        decimal.Decimal `json:"bonus_amount"`
	Status             string          `json:"status"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	HasSettings        bool            `json:"has_settings"`
	IsSaved            bool            `json:"is_saved"`
}

func fromRow(r recap.RecapRow) cachedRow {
	return cachedRow{
		AdminCode:          string(r.AdminCode),
		Month:              int(r.Period.Month),
		Year:               r.Period.Year,
		TargetRevenue:      r.TargetRevenue,
		ActualIncome:       r.ActualIncome,
		AchievementPercent: r.AchievementPercent,
		BonusPercent:       r.BonusPercent,
		BonusAmount:        r.BonusAmount,
		Status:             string(r.Status),
		PaidAt:             r.PaidAt,
		HasSettings:        r.HasSettings,
		IsSaved:            r.IsSaved,
	}
}

func (c cachedRow) toRow() recap.RecapRow {
	return recap.RecapRow{
		AdminCode:          recap.AdminCode(c.AdminCode),
		Period:             recap.Period{Month: time.Month(c.Month), Year: c.Year},
		TargetRevenue:      c.TargetRevenue,
		ActualIncome:       c.ActualIncome,
		AchievementPercent: c.AchievementPercent,
		BonusPercent:       c.BonusPercent,
		BonusAmount:        c.BonusAmount,
		Status:             recap.Status(c.Status),
		PaidAt:             c.PaidAt,
		HasSettings:        c.HasSettings,
		IsSaved:            c.IsSaved,
	}
}
