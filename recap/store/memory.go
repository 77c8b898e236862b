// Package store provides recap.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/bonus-recap/recap"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	income   map[string]recap.IncomeRecord
	settings map[recap.AdminCode]recap.TargetSetting
	recaps   map[recap.RecapKey]recap.RecapRow

	// FailUpsert, when set, is consulted for every row in UpsertRecaps.
	// A non-nil error fails that row only.
	FailUpsert func(row recap.RecapRow) error
}

func NewMemory() *Memory {
	return &Memory{
		income:   make(map[string]recap.IncomeRecord),
		settings: make(map[recap.AdminCode]recap.TargetSetting),
		recaps:   make(map[recap.RecapKey]recap.RecapRow),
	}
}

func (m *Memory) Close() error { return nil }

// =============================================================================
// INCOME
// =============================================================================

func (m *Memory) AddIncome(_ context.Context, rec recap.IncomeRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.income[rec.ID]; exists {
		return recap.ErrDuplicateIncome
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.AdminCode = rec.AdminCode.Normalize()
	m.income[rec.ID] = rec
	return nil
}

func (m *Memory) ListIncome(_ context.Context, filter recap.IncomeFilter) ([]recap.IncomeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []recap.IncomeRecord
	for _, r := range m.income {
		if filter.Matches(r) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return recap.Paginate(result, filter.Limit, filter.Offset), nil
}

func (m *Memory) DeleteIncome(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.income[id]; !exists {
		return recap.ErrIncomeNotFound
	}
	delete(m.income, id)
	return nil
}

// =============================================================================
// TARGET SETTINGS
// =============================================================================

func (m *Memory) SaveTargetSetting(_ context.Context, s recap.TargetSetting) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s.AdminCode = s.AdminCode.Normalize()
	s.UpdatedAt = time.Now().UTC()
	m.settings[s.AdminCode] = s
	return nil
}

func (m *Memory) GetTargetSetting(_ context.Context, code recap.AdminCode) (recap.TargetSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[code.Normalize()]
	if !ok {
		return recap.TargetSetting{}, recap.ErrSettingNotFound
	}
	return s, nil
}

func (m *Memory) ListTargetSettings(_ context.Context) ([]recap.TargetSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]recap.TargetSetting, 0, len(m.settings))
	for _, s := range m.settings {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AdminCode < result[j].AdminCode })
	return result, nil
}

func (m *Memory) DeleteTargetSetting(_ context.Context, code recap.AdminCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = code.Normalize()
	if _, ok := m.settings[code]; !ok {
		return recap.ErrSettingNotFound
	}
	delete(m.settings, code)
	return nil
}

// =============================================================================
// RECAPS
// =============================================================================

func (m *Memory) ListRecaps(_ context.Context, period recap.Period) ([]recap.RecapRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []recap.RecapRow
	for k, r := range m.recaps {
		if k.Period == period {
			result = append(result, copyRow(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AdminCode < result[j].AdminCode })
	return result, nil
}

// UpsertRecaps writes each row independently. Status and PaidAt of an
// existing row are never touched; new rows start pending.
func (m *Memory) UpsertRecaps(_ context.Context, rows []recap.RecapRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batchErr := &recap.PersistenceBatchError{}
	for _, row := range rows {
		if m.FailUpsert != nil {
			if err := m.FailUpsert(row); err != nil {
				batchErr.Add(row.AdminCode, err)
				continue
			}
		}

		stored := recap.RecapRow{
			AdminCode:          row.AdminCode,
			Period:             row.Period,
			TargetRevenue:      row.TargetRevenue,
			ActualIncome:       row.ActualIncome,
			AchievementPercent: row.AchievementPercent,
			BonusPercent:       row.BonusPercent,
			BonusAmount:        row.BonusAmount,
			Status:             recap.StatusPending,
		}
		if existing, ok := m.recaps[row.Key()]; ok {
			stored.Status = existing.Status
			stored.PaidAt = existing.PaidAt
		}
		m.recaps[row.Key()] = stored
	}
	return batchErr.OrNil()
}

func (m *Memory) MarkPaid(_ context.Context, code recap.AdminCode, period recap.Period, at time.Time) (recap.RecapRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recap.RecapKey{AdminCode: code.Normalize(), Period: period}
	row, ok := m.recaps[key]
	if !ok {
		return recap.RecapRow{}, recap.ErrRecapNotFound
	}
	if err := row.MarkPaid(at); err != nil {
		return recap.RecapRow{}, err
	}
	m.recaps[key] = row
	return copyRow(row), nil
}

func copyRow(r recap.RecapRow) recap.RecapRow {
	if r.PaidAt != nil {
		t := *r.PaidAt
		r.PaidAt = &t
	}
	r.IsSaved = true
	return r
}
