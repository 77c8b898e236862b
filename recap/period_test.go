package recap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bonus-recap/recap"
)

func TestNewPeriod_Bounds(t *testing.T) {
	p, err := recap.NewPeriod(12, 2025)
	require.NoError(t, err)
	assert.Equal(t, time.December, p.Month)

	_, err = recap.NewPeriod(13, 2025)
	assert.ErrorIs(t, err, recap.ErrInvalidPeriod)

	_, err = recap.NewPeriod(1, 0)
	assert.ErrorIs(t, err, recap.ErrInvalidPeriod)
}

func TestPeriod_StartEnd(t *testing.T) {
	p, _ := recap.NewPeriod(2, 2024)

	assert.Equal(t, day(2024, time.February, 1), p.Start())
	assert.Equal(t, day(2024, time.February, 29), p.End())
}

func TestPeriod_NextPreviousWrapYear(t *testing.T) {
	jan, _ := recap.NewPeriod(1, 2025)
	dec, _ := recap.NewPeriod(12, 2024)

	assert.Equal(t, dec, jan.Previous())
	assert.Equal(t, jan, dec.Next())
}

func TestPeriod_ContainsUsesRecordLocation(t *testing.T) {
	// GIVEN: A record stamped 00:30 on April 1 in UTC+7
	// THEN: It belongs to April, even though it is still March 31 in UTC

	loc := time.FixedZone("UTC+7", 7*60*60)
	ts := time.Date(2025, time.April, 1, 0, 30, 0, 0, loc)

	march, _ := recap.NewPeriod(3, 2025)
	april, _ := recap.NewPeriod(4, 2025)

	assert.False(t, march.Contains(ts))
	assert.True(t, april.Contains(ts))
}

func TestPeriod_String(t *testing.T) {
	p, _ := recap.NewPeriod(3, 2025)
	assert.Equal(t, "2025-03", p.String())
}
