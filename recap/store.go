/*
store.go - Persistence interfaces for the recap engine

PURPOSE:
  The engine itself does no I/O. These interfaces describe what the
  surrounding service reads before a pass and writes after it.

KEY INTERFACES:
  IncomeStore:   Income records (append-mostly)
  SettingsStore: One TargetSetting per admin code
  RecapStore:    Recap rows keyed on (admin_code, month, year)

WRITE RULES FOR RECAPS:
  - UpsertRecaps(): insert as pending, or update NUMERIC fields only.
    Never touches status / paid_at. Each row is attempted independently;
    failures come back as *PersistenceBatchError listing the admin codes.
  - MarkPaid(): targeted update by key, pending -> paid only.
    Kept separate from the bulk upsert so a concurrent reconciliation
    cannot clobber it.

IMPLEMENTATIONS:
  - recap/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)
*/
package recap

import (
	"context"
	"time"
)

// IncomeFilter narrows ListIncome. Zero values mean "no filter".
type IncomeFilter struct {
	AdminCode AdminCode
	Period    *Period
	Limit     int
	Offset    int
}

// Matches applies the AdminCode and Period parts of the filter.
func (f IncomeFilter) Matches(r IncomeRecord) bool {
	if !f.AdminCode.IsBlank() && r.AdminCode.Normalize() != f.AdminCode.Normalize() {
		return false
	}
	if f.Period != nil && !f.Period.Contains(r.Date) {
		return false
	}
	return true
}

type IncomeStore interface {
	// AddIncome stores a record. Returns ErrDuplicateIncome if the ID exists.
	AddIncome(ctx context.Context, rec IncomeRecord) error

	// ListIncome returns records ordered by date then ID.
	ListIncome(ctx context.Context, filter IncomeFilter) ([]IncomeRecord, error)

	DeleteIncome(ctx context.Context, id string) error
}

type SettingsStore interface {
	// SaveTargetSetting inserts or replaces the setting for its admin code.
	SaveTargetSetting(ctx context.Context, s TargetSetting) error
	GetTargetSetting(ctx context.Context, code AdminCode) (TargetSetting, error)
	ListTargetSettings(ctx context.Context) ([]TargetSetting, error)
	DeleteTargetSetting(ctx context.Context, code AdminCode) error
}

type RecapStore interface {
	// ListRecaps returns saved rows for the period, ordered by admin code.
	ListRecaps(ctx context.Context, period Period) ([]RecapRow, error)

	// UpsertRecaps writes numeric fields. See WRITE RULES above.
	UpsertRecaps(ctx context.Context, rows []RecapRow) error

	// MarkPaid sets status=paid and paid_at=at on a pending row.
	MarkPaid(ctx context.Context, code AdminCode, period Period, at time.Time) (RecapRow, error)
}

// Store is everything the recap service needs.
type Store interface {
	IncomeStore
	SettingsStore
	RecapStore
	Close() error
}

// Paginate applies Limit/Offset to an already filtered slice.
func Paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
