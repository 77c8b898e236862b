package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bonus-recap/cache"
	"github.com/warp/bonus-recap/recap"
	"github.com/warp/bonus-recap/recap/store"
	"github.com/warp/bonus-recap/service"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// flakyStore fails ListIncome while down is set.
type flakyStore struct {
	*store.Memory
	down atomic.Bool
}

func (f *flakyStore) ListIncome(ctx context.Context, filter recap.IncomeFilter) ([]recap.IncomeRecord, error) {
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	return f.Memory.ListIncome(ctx, filter)
}

var fixedNow = time.Date(2025, time.April, 5, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*service.Service, *flakyStore) {
	t.Helper()
	st := &flakyStore{Memory: store.NewMemory()}
	svc := service.New(st, cache.NewMemoryRecapCache(), time.Hour)
	svc.Now = func() time.Time { return fixedNow }
	return svc, st
}

func march2025() recap.Period {
	return recap.Period{Month: time.March, Year: 2025}
}

// seedMarch: A01 has a 10M target and 12M income, B02 has 3M and no setting.
func seedMarch(t *testing.T, svc *service.Service) {
	t.Helper()
	ctx := context.Background()

	_, err := svc.SaveSetting(ctx, recap.TargetSetting{
		AdminCode:     "A01",
		TargetRevenue: decimal.NewFromInt(10000000),
		Tiers:         recap.DefaultTiers,
	})
	require.NoError(t, err)

	for _, rec := range []recap.IncomeRecord{
		{AdminCode: "A01", Date: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(7000000)},
		{AdminCode: "A01", Date: time.Date(2025, time.March, 28, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(5000000)},
		{AdminCode: "B02", Date: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(3000000)},
	} {
		_, err := svc.AddIncome(ctx, rec)
		require.NoError(t, err)
	}
}

func rowFor(t *testing.T, rows []recap.RecapRow, code recap.AdminCode) recap.RecapRow {
	t.Helper()
	for _, r := range rows {
		if r.AdminCode == code {
			return r
		}
	}
	t.Fatalf("no row for %s", code)
	return recap.RecapRow{}
}

// =============================================================================
// RECAP PASSES
// =============================================================================

func TestService_Recap_FirstPassWritesEverything(t *testing.T) {
	svc, _ := newTestService(t)
	seedMarch(t, svc)

	res, err := svc.Recap(context.Background(), march2025())
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, []recap.AdminCode{"A01", "B02"}, res.Persisted)
	assert.Empty(t, res.Failed)
	assert.False(t, res.Stale)

	a01 := rowFor(t, res.Rows, "A01")
	assert.True(t, a01.BonusAmount.Equal(decimal.NewFromInt(480000)))
	assert.True(t, a01.IsSaved)

	b02 := rowFor(t, res.Rows, "B02")
	assert.False(t, b02.HasSettings)
	assert.True(t, b02.BonusAmount.IsZero())
}

func TestService_Recap_SecondPassWritesNothing(t *testing.T) {
	svc, _ := newTestService(t)
	seedMarch(t, svc)
	ctx := context.Background()

	_, err := svc.Recap(ctx, march2025())
	require.NoError(t, err)

	res, err := svc.Recap(ctx, march2025())
	require.NoError(t, err)
	assert.Empty(t, res.Persisted)
	assert.Len(t, res.Rows, 2)
}

func TestService_Recap_InvalidPeriod(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Recap(context.Background(), recap.Period{Month: 0, Year: 2025})
	require.ErrorIs(t, err, recap.ErrInvalidPeriod)
}

func TestService_Recap_SourceDownServesLastKnownGood(t *testing.T) {
	// GIVEN: A successful pass cached the March rows
	// WHEN: The income source goes down
	// THEN: The cached rows come back flagged stale, with the source error

	svc, st := newTestService(t)
	seedMarch(t, svc)
	ctx := context.Background()

	_, err := svc.Recap(ctx, march2025())
	require.NoError(t, err)

	st.down.Store(true)
	res, err := svc.Recap(ctx, march2025())

	require.ErrorIs(t, err, recap.ErrSourceUnavailable)
	assert.True(t, res.Stale)
	assert.Len(t, res.Rows, 2)
	assert.True(t, recap.IsRetryable(err))
}

func TestService_Recap_SourceDownWithoutCache(t *testing.T) {
	svc, st := newTestService(t)
	st.down.Store(true)

	res, err := svc.Recap(context.Background(), march2025())

	require.ErrorIs(t, err, recap.ErrSourceUnavailable)
	assert.False(t, res.Stale)
	assert.Empty(t, res.Rows)
}

func TestService_PartialFailureThenRetry(t *testing.T) {
	// GIVEN: Writing B02 fails
	// WHEN: Running the pass
	// THEN: All rows come back, B02 is listed as failed and not saved
	// AND:  A retry for B02 alone writes it once the store recovers

	svc, st := newTestService(t)
	seedMarch(t, svc)
	ctx := context.Background()

	st.FailUpsert = func(r recap.RecapRow) error {
		if r.AdminCode == "B02" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	res, err := svc.Recap(ctx, march2025())

	var batchErr *recap.PersistenceBatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, []recap.AdminCode{"B02"}, res.Failed)
	assert.Equal(t, []recap.AdminCode{"A01"}, res.Persisted)
	require.Len(t, res.Rows, 2)
	assert.True(t, rowFor(t, res.Rows, "A01").IsSaved)
	assert.False(t, rowFor(t, res.Rows, "B02").IsSaved)

	st.FailUpsert = nil
	retry, err := svc.Retry(ctx, march2025(), res.Failed)
	require.NoError(t, err)
	assert.Equal(t, []recap.AdminCode{"B02"}, retry.Persisted)
	require.Len(t, retry.Rows, 1)

	saved, err := st.ListRecaps(ctx, march2025())
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestService_Retry_RequiresCodes(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Retry(context.Background(), march2025(), nil)
	require.ErrorIs(t, err, recap.ErrInvalidInput)
}

// =============================================================================
// MARK AS PAID
// =============================================================================

func TestService_MarkPaid_SurvivesRecompute(t *testing.T) {
	// GIVEN: A01 paid at 480,000
	// WHEN: Late March income arrives and the recap runs again
	// THEN: The bonus is recomputed and the row is still paid

	svc, _ := newTestService(t)
	seedMarch(t, svc)
	ctx := context.Background()

	_, err := svc.Recap(ctx, march2025())
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, "A01", march2025())
	require.NoError(t, err)
	assert.Equal(t, recap.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, fixedNow.Equal(*paid.PaidAt))

	_, err = svc.AddIncome(ctx, recap.IncomeRecord{
		AdminCode: "A01",
		Date:      time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromInt(4000000),
	})
	require.NoError(t, err)

	res, err := svc.Recap(ctx, march2025())
	require.NoError(t, err)
	assert.Equal(t, []recap.AdminCode{"A01"}, res.Persisted)

	a01 := rowFor(t, res.Rows, "A01")
	assert.Equal(t, recap.StatusPaid, a01.Status)
	assert.True(t, a01.BonusAmount.Equal(decimal.NewFromInt(800000)))
}

func TestService_MarkPaid_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	seedMarch(t, svc)
	ctx := context.Background()

	_, err := svc.MarkPaid(ctx, "A01", march2025())
	require.ErrorIs(t, err, recap.ErrRecapNotFound)

	_, err = svc.MarkPaid(ctx, "  ", march2025())
	require.ErrorIs(t, err, recap.ErrInvalidInput)

	_, err = svc.Recap(ctx, march2025())
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, "A01", march2025())
	require.NoError(t, err)

	_, err = svc.MarkPaid(ctx, "A01", march2025())
	require.ErrorIs(t, err, recap.ErrAlreadyPaid)
}

func TestService_MarkPaid_PatchesCache(t *testing.T) {
	svc, st := newTestService(t)
	seedMarch(t, svc)
	ctx := context.Background()

	_, err := svc.Recap(ctx, march2025())
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, "A01", march2025())
	require.NoError(t, err)

	st.down.Store(true)
	res, err := svc.Recap(ctx, march2025())
	require.ErrorIs(t, err, recap.ErrSourceUnavailable)
	require.True(t, res.Stale)
	assert.Equal(t, recap.StatusPaid, rowFor(t, res.Rows, "A01").Status)
}

// =============================================================================
// INCOME & SETTINGS
// =============================================================================

func TestService_AddIncome_AssignsID(t *testing.T) {
	svc, _ := newTestService(t)

	rec, err := svc.AddIncome(context.Background(), recap.IncomeRecord{
		AdminCode: " A01 ",
		Date:      time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, recap.AdminCode("A01"), rec.AdminCode)
	assert.Equal(t, fixedNow, rec.CreatedAt)
}

func TestService_AddIncome_RejectsNegative(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddIncome(context.Background(), recap.IncomeRecord{
		Date:   time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromInt(-1),
	})
	require.ErrorIs(t, err, recap.ErrInvalidInput)
}

func TestService_SaveSetting_Validates(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SaveSetting(context.Background(), recap.TargetSetting{AdminCode: "A01", TargetRevenue: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, recap.ErrInvalidInput)

	_, err = svc.SaveSetting(context.Background(), recap.TargetSetting{AdminCode: "", TargetRevenue: decimal.NewFromInt(5)})
	require.ErrorIs(t, err, recap.ErrInvalidInput)
}
