package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bonus-recap/recap"
	"github.com/warp/bonus-recap/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func march(t *testing.T) recap.Period {
	p, err := recap.NewPeriod(3, 2025)
	require.NoError(t, err)
	return p
}

func recapRow(code string, period recap.Period, actual, bonus string) recap.RecapRow {
	return recap.RecapRow{
		AdminCode:          recap.AdminCode(code),
		Period:             period,
		TargetRevenue:      decimal.RequireFromString("10000000"),
		ActualIncome:       decimal.RequireFromString(actual),
		AchievementPercent: decimal.RequireFromString("120"),
		BonusPercent:       decimal.RequireFromString("4"),
		BonusAmount:        decimal.RequireFromString(bonus),
		Status:             recap.StatusPending,
	}
}

// =============================================================================
// INCOME
// =============================================================================

func TestSQLite_IncomeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := recap.IncomeRecord{
		ID:          "inc-1",
		AdminCode:   " A01 ",
		Date:        time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("1500000.25"),
		Description: "invoice 42",
	}
	require.NoError(t, store.AddIncome(ctx, rec))
	require.ErrorIs(t, store.AddIncome(ctx, rec), recap.ErrDuplicateIncome)

	p := march(t)
	got, err := store.ListIncome(ctx, recap.IncomeFilter{AdminCode: "A01", Period: &p})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recap.AdminCode("A01"), got[0].AdminCode)
	assert.True(t, rec.Amount.Equal(got[0].Amount), "decimal survives TEXT column")
	assert.Equal(t, "invoice 42", got[0].Description)

	april := p.Next()
	got, err = store.ListIncome(ctx, recap.IncomeFilter{Period: &april})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.DeleteIncome(ctx, "inc-1"))
	require.ErrorIs(t, store.DeleteIncome(ctx, "inc-1"), recap.ErrIncomeNotFound)
}

func TestSQLite_IncomePagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.AddIncome(ctx, recap.IncomeRecord{
			ID:     id,
			Date:   time.Date(2025, time.March, i+1, 0, 0, 0, 0, time.UTC),
			Amount: decimal.NewFromInt(1),
		}))
	}

	page, err := store.ListIncome(ctx, recap.IncomeFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].ID)
	assert.Equal(t, "c", page[1].ID)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSQLite_SettingsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := recap.TargetSetting{AdminCode: "A01", TargetRevenue: decimal.NewFromInt(1000), Tiers: recap.DefaultTiers}
	require.NoError(t, store.SaveTargetSetting(ctx, s))

	s.Tiers.T150 = decimal.RequireFromString("7.5")
	require.NoError(t, store.SaveTargetSetting(ctx, s))

	got, err := store.GetTargetSetting(ctx, "A01")
	require.NoError(t, err)
	assert.True(t, got.Tiers.T150.Equal(decimal.RequireFromString("7.5")))

	list, err := store.ListTargetSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteTargetSetting(ctx, "A01"))
	_, err = store.GetTargetSetting(ctx, "A01")
	require.ErrorIs(t, err, recap.ErrSettingNotFound)
}

// =============================================================================
// RECAPS
// =============================================================================

func TestSQLite_UpsertNeverTouchesStatus(t *testing.T) {
	// GIVEN: A01 saved and marked paid
	// WHEN: A later pass upserts new numbers
	// THEN: The numbers change; status and paid_at stay

	store := newTestStore(t)
	ctx := context.Background()
	p := march(t)

	require.NoError(t, store.UpsertRecaps(ctx, []recap.RecapRow{recapRow("A01", p, "12000000", "480000")}))

	paidAt := time.Date(2025, time.April, 3, 10, 0, 0, 0, time.UTC)
	paid, err := store.MarkPaid(ctx, "A01", p, paidAt)
	require.NoError(t, err)
	assert.Equal(t, recap.StatusPaid, paid.Status)

	require.NoError(t, store.UpsertRecaps(ctx, []recap.RecapRow{recapRow("A01", p, "16000000", "800000")}))

	rows, err := store.ListRecaps(ctx, p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, recap.StatusPaid, rows[0].Status)
	require.NotNil(t, rows[0].PaidAt)
	assert.True(t, paidAt.Equal(*rows[0].PaidAt))
	assert.True(t, rows[0].BonusAmount.Equal(decimal.NewFromInt(800000)))
	assert.True(t, rows[0].IsSaved)
}

func TestSQLite_MarkPaidErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := march(t)

	_, err := store.MarkPaid(ctx, "A01", p, time.Now())
	require.ErrorIs(t, err, recap.ErrRecapNotFound)

	require.NoError(t, store.UpsertRecaps(ctx, []recap.RecapRow{recapRow("A01", p, "1", "0")}))
	_, err = store.MarkPaid(ctx, "A01", p, time.Now())
	require.NoError(t, err)

	_, err = store.MarkPaid(ctx, "A01", p, time.Now())
	require.ErrorIs(t, err, recap.ErrAlreadyPaid)
}

func TestSQLite_UpsertReportsFailedRows(t *testing.T) {
	// GIVEN: One row violates the month CHECK constraint
	// THEN: The valid row is written, the bad one is reported by admin code

	store := newTestStore(t)
	ctx := context.Background()
	p := march(t)

	bad := recapRow("B02", recap.Period{Month: 13, Year: 2025}, "1", "0")
	err := store.UpsertRecaps(ctx, []recap.RecapRow{recapRow("A01", p, "1", "0"), bad})

	var batchErr *recap.PersistenceBatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, []recap.AdminCode{"B02"}, batchErr.Failed)

	rows, err := store.ListRecaps(ctx, p)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
