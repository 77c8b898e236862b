/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request structs carry go-playground/validator tags for shape checks
  (required, formats). Business rules (non-negative amounts) stay in the
  recap package and are enforced again there.

MONEY:
  Amounts are decimal strings on the wire ("480000", "120.5") so clients
  never see float rounding.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/bonus-recap/recap"
	"github.com/warp/bonus-recap/service"
)

// =============================================================================
// INCOME
// =============================================================================

type IncomeDTO struct {
	ID          string          `json:"id"`
	AdminCode   string          `json:"admin_code"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

type CreateIncomeRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64"`
	AdminCode   string `json:"admin_code" validate:"max=32"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Description string `json:"description" validate:"max=500"`
}

type IncomeListResponse struct {
	Records []IncomeDTO `json:"records"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
}

func toIncomeDTO(r recap.IncomeRecord) IncomeDTO {
	dto := IncomeDTO{
		ID:          r.ID,
		AdminCode:   string(r.AdminCode),
		Date:        r.Date.Format("2006-01-02"),
		Amount:      r.Amount,
		Description: r.Description,
	}
	if !r.CreatedAt.IsZero() {
		dto.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// TARGET SETTINGS
// =============================================================================

type TargetSettingDTO struct {
	AdminCode     string          `json:"admin_code"`
	TargetRevenue decimal.Decimal `json:"target_revenue"`
	BonusTier80   decimal.Decimal `json:"bonus_tier_80"`
	BonusTier100  decimal.Decimal `json:"bonus_tier_100"`
	BonusTier150  decimal.Decimal `json:"bonus_tier_150"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
}

// SaveTargetSettingRequest is the PUT body; the admin code comes from the URL.
type SaveTargetSettingRequest struct {
	TargetRevenue string `json:"target_revenue" validate:"required,numeric"`
	BonusTier80   string `json:"bonus_tier_80" validate:"required,numeric"`
	BonusTier100  string `json:"bonus_tier_100" validate:"required,numeric"`
	BonusTier150  string `json:"bonus_tier_150" validate:"required,numeric"`
}

func toSettingDTO(s recap.TargetSetting) TargetSettingDTO {
	dto := TargetSettingDTO{
		AdminCode:     string(s.AdminCode),
		TargetRevenue: s.TargetRevenue,
		BonusTier80:   s.Tiers.T80,
		BonusTier100:  s.Tiers.T100,
		BonusTier150:  s.Tiers.T150,
	}
	if !s.UpdatedAt.IsZero() {
		dto.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// RECAPS
// =============================================================================

type RecapRowDTO struct {
	AdminCode          string          `json:"admin_code"`
	Month              int             `json:"month"`
	Year               int             `json:"year"`
	TargetRevenue      decimal.Decimal `json:"target_revenue"`
	ActualIncome       decimal.Decimal `json:"actual_income"`
	AchievementPercent decimal.Decimal `json:"achievement_percent"`
	BonusPercent       decimal.Decimal `json:"bonus_percent"`
	BonusAmount        decimal.Decimal `json:"bonus_amount"`
	Status             string          `json:"status"`
	PaidAt             *string         `json:"paid_at"`
	HasSettings        bool            `json:"has_settings"`
	IsSaved            bool            `json:"is_saved"`
}

type RecapResponse struct {
	Period    string        `json:"period"`
	Month     int           `json:"month"`
	Year      int           `json:"year"`
	Rows      []RecapRowDTO `json:"rows"`
	Persisted []string      `json:"persisted"`
	Failed    []string      `json:"failed"`
	Stale     bool          `json:"stale"`
	Error     string        `json:"error,omitempty"`
}

type RetryRequest struct {
	AdminCodes []string `json:"admin_codes" validate:"required,min=1,dive,required"`
}

func toRecapRowDTO(r recap.RecapRow) RecapRowDTO {
	dto := RecapRowDTO{
		AdminCode:          string(r.AdminCode),
		Month:              int(r.Period.Month),
		Year:               r.Period.Year,
		TargetRevenue:      r.TargetRevenue,
		ActualIncome:       r.ActualIncome,
		AchievementPercent: r.AchievementPercent,
		BonusPercent:       r.BonusPercent,
		BonusAmount:        r.BonusAmount,
		Status:             string(r.Status),
		HasSettings:        r.HasSettings,
		IsSaved:            r.IsSaved,
	}
	if r.PaidAt != nil {
		dto.PaidAt = strPtr(r.PaidAt.Format(time.RFC3339))
	}
	return dto
}

func toRecapResponse(res service.Result, err error) RecapResponse {
	resp := RecapResponse{
		Period:    res.Period.String(),
		Month:     int(res.Period.Month),
		Year:      res.Period.Year,
		Rows:      make([]RecapRowDTO, len(res.Rows)),
		Persisted: codesToStrings(res.Persisted),
		Failed:    codesToStrings(res.Failed),
		Stale:     res.Stale,
	}
	for i, r := range res.Rows {
		resp.Rows[i] = toRecapRowDTO(r)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func codesToStrings(codes []recap.AdminCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// =============================================================================
// CALCULATOR
// =============================================================================

type CalculatorResponse struct {
	TargetRevenue      decimal.Decimal `json:"target_revenue"`
	ActualIncome       decimal.Decimal `json:"actual_income"`
	AchievementPercent decimal.Decimal `json:"achievement_percent"`
	BonusPercent       decimal.Decimal `json:"bonus_percent"`
	BonusAmount        decimal.Decimal `json:"bonus_amount"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func strPtr(s string) *string {
	return &s
}
