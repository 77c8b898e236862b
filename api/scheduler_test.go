package api

import (
	"context"
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

func TestRecapScheduler_RunNowCoversCurrentAndPreviousMonth(t *testing.T) {
	// GIVEN: Income in March and in early April
	// WHEN: The scheduler runs on April 2
	// THEN: Both months get saved recap rows

	ctx := context.Background()
	st := store.NewMemory()
	svc := service.New(st, cache.NoopRecapCache{}, 0)

	for _, date := range []time.Time{
		time.Date(2025, time.March, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := svc.AddIncome(ctx, recap.IncomeRecord{AdminCode: "A01", Date: date, Amount: decimal.NewFromInt(100)})
		require.NoError(t, err)
	}

	scheduler := NewRecapScheduler(svc)
	now := time.Date(2025, time.April, 2, 6, 0, 0, 0, time.UTC)
	scheduler.Now = func() time.Time { return now }

	assert.True(t, scheduler.GetNextRunTime().IsZero())
	assert.Equal(t, 2, scheduler.RunNow(ctx))
	assert.Equal(t, now.Add(scheduler.CheckInterval), scheduler.GetNextRunTime())

	for _, month := range []time.Month{time.March, time.April} {
		rows, err := st.ListRecaps(ctx, recap.Period{Month: month, Year: 2025})
		require.NoError(t, err)
		assert.Len(t, rows, 1, month.String())
	}
}

func TestRecapScheduler_DisabledDoesNotStart(t *testing.T) {
	svc := service.New(store.NewMemory(), nil, 0)
	scheduler := NewRecapScheduler(svc)
	scheduler.Enabled = false

	scheduler.Start()
	scheduler.Stop()

	assert.True(t, scheduler.GetNextRunTime().IsZero())
}

func TestRecapScheduler_StartStop(t *testing.T) {
	svc := service.New(store.NewMemory(), nil, 0)
	scheduler := NewRecapScheduler(svc)
	scheduler.CheckInterval = time.Hour

	scheduler.Start()
	require.Eventually(t, func() bool {
		return !scheduler.GetNextRunTime().IsZero()
	}, time.Second, 10*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()
}
