/*
Package recap provides the monthly admin bonus recap engine.

PURPOSE:
  Admins generate revenue. Each admin has a permanent target and three
  bonus tiers. Once a month the engine sums the admin's income, compares
  it to the target, picks the tier and records the bonus in a recap row
  that can later be marked as paid.

KEY CONCEPTS IN THIS FILE (types.go):
  - TargetSetting: Per-admin target revenue and tier rates
  - IncomeRecord:  A single income transaction attributed to an admin
  - RecapRow:      The per-admin-per-month bonus record (the only entity we write)
  - Status:        pending -> paid, never back

DESIGN PRINCIPLES:
  1. Purity: Calculator, Aggregator and Reconciler do no I/O
  2. Precision: Money and percentages are decimal.Decimal
  3. Continuity: status and paid_at survive every recomputation

SEE ALSO:
  - calculator.go: Tier selection and bonus amount
  - aggregator.go: Period income sums
  - reconciler.go: Merge with saved rows + write-back batch
  - store.go: Persistence interfaces
*/
package recap

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AdminCode identifies a revenue-generating admin (e.g. "A1").
type AdminCode string

// IsBlank reports whether the code is empty after trimming whitespace.
// Blank codes mark unattributed income.
func (c AdminCode) IsBlank() bool { return strings.TrimSpace(string(c)) == "" }

// Normalize trims surrounding whitespace.
func (c AdminCode) Normalize() AdminCode { return AdminCode(strings.TrimSpace(string(c))) }

// =============================================================================
// TARGET SETTING - Permanent per-admin configuration
// =============================================================================

// Tiers holds the bonus rate (in percent) awarded at each achievement threshold.
type Tiers struct {
	T80  decimal.Decimal `json:"bonus_tier_80"`
	T100 decimal.Decimal `json:"bonus_tier_100"`
	T150 decimal.Decimal `json:"bonus_tier_150"`
}

// DefaultTiers is applied when an admin has no TargetSetting, so the row can
// still be displayed as "not configured". With a zero target it never pays out.
var DefaultTiers = Tiers{
	T80:  decimal.NewFromInt(3),
	T100: decimal.NewFromInt(4),
	T150: decimal.NewFromInt(5),
}

func (t Tiers) validate() error {
	if t.T80.IsNegative() {
		return &InvalidInputError{Field: "bonus_tier_80", Value: t.T80}
	}
	if t.T100.IsNegative() {
		return &InvalidInputError{Field: "bonus_tier_100", Value: t.T100}
	}
	if t.T150.IsNegative() {
		return &InvalidInputError{Field: "bonus_tier_150", Value: t.T150}
	}
	return nil
}

// TargetSetting is one admin's target revenue and tier rates.
// There is at most one per AdminCode.
type TargetSetting struct {
	AdminCode     AdminCode
	TargetRevenue decimal.Decimal
	Tiers         Tiers
	UpdatedAt     time.Time
}

// Validate rejects blank codes and negative amounts.
func (s TargetSetting) Validate() error {
	if s.AdminCode.IsBlank() {
		return &InvalidInputError{Field: "admin_code", Value: decimal.Zero}
	}
	if s.TargetRevenue.IsNegative() {
		return &InvalidInputError{Field: "target_revenue", Value: s.TargetRevenue}
	}
	return s.Tiers.validate()
}

// =============================================================================
// INCOME RECORD - Append-mostly, never mutated by the engine
// =============================================================================

type IncomeRecord struct {
	ID          string
	AdminCode   AdminCode
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// Validate checks the record before it is stored. A blank admin code is
// allowed (unattributed income); a negative amount is not.
func (r IncomeRecord) Validate() error {
	if r.Date.IsZero() {
		return &InvalidInputError{Field: "date", Value: decimal.Zero}
	}
	if r.Amount.IsNegative() {
		return &InvalidInputError{Field: "amount", Value: r.Amount}
	}
	return nil
}

// =============================================================================
// RECAP ROW - Per admin, per month
// =============================================================================

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// RecapRow is the persisted bonus record keyed on (AdminCode, Period).
//
// Only Status and PaidAt are not derivable from settings + income.
// HasSettings and IsSaved are computed per pass and never stored.
type RecapRow struct {
	AdminCode          AdminCode
	Period             Period
	TargetRevenue      decimal.Decimal
	ActualIncome       decimal.Decimal
	AchievementPercent decimal.Decimal
	BonusPercent       decimal.Decimal
	BonusAmount        decimal.Decimal
	Status             Status
	PaidAt             *time.Time

	HasSettings bool
	IsSaved     bool
}

// Key returns the upsert key.
func (r RecapRow) Key() RecapKey {
	return RecapKey{AdminCode: r.AdminCode, Period: r.Period}
}

// NumericEqual reports whether every derived numeric field matches.
func (r RecapRow) NumericEqual(other RecapRow) bool {
	return r.TargetRevenue.Equal(other.TargetRevenue) &&
		r.ActualIncome.Equal(other.ActualIncome) &&
		r.AchievementPercent.Equal(other.AchievementPercent) &&
		r.BonusPercent.Equal(other.BonusPercent) &&
		r.BonusAmount.Equal(other.BonusAmount)
}

// MarkPaid performs the pending -> paid transition. A paid row keeps its
// original PaidAt and returns ErrAlreadyPaid.
func (r *RecapRow) MarkPaid(at time.Time) error {
	if r.Status == StatusPaid {
		return ErrAlreadyPaid
	}
	paidAt := at.UTC()
	r.Status = StatusPaid
	r.PaidAt = &paidAt
	return nil
}

// RecapKey is the uniqueness constraint for RecapRow.
type RecapKey struct {
	AdminCode AdminCode
	Period    Period
}
