/*
Package sqlite provides a SQLite-backed implementation of recap.Store.

PURPOSE:
  Persists income records, target settings and recap rows. The same SQL
  (modulo placeholders and column types) lives in store/postgres.

KEY TABLES:
  income_records:  Raw income, one row per transaction
  target_settings: One row per admin code
  recaps:          One row per (admin_code, month, year)

UPSERT RULES (recaps):
  UpsertRecaps uses INSERT ... ON CONFLICT(admin_code, month, year) DO UPDATE
  and only sets the numeric columns. status / paid_at are written exactly
  once on insert (pending / NULL) and afterwards only by MarkPaid.

MONEY:
  Decimal columns are TEXT. decimal.Decimal implements driver.Valuer and
  sql.Scanner, so values round-trip without float conversion.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection so that
  ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/recap.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - recap/store.go: Interface definitions
  - recap/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/warp/bonus-recap/recap"
)

const dateLayout = "2006-01-02"

// Store implements recap.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS income_records (
		id TEXT PRIMARY KEY,
		admin_code TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_income_admin_date
		ON income_records(admin_code, date);
	CREATE INDEX IF NOT EXISTS idx_income_date
		ON income_records(date);

	CREATE TABLE IF NOT EXISTS target_settings (
		admin_code TEXT PRIMARY KEY,
		target_revenue TEXT NOT NULL,
		bonus_tier_80 TEXT NOT NULL,
		bonus_tier_100 TEXT NOT NULL,
		bonus_tier_150 TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Upsert key is (admin_code, month, year)
	CREATE TABLE IF NOT EXISTS recaps (
		admin_code TEXT NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		year INTEGER NOT NULL,
		target_revenue TEXT NOT NULL,
		actual_income TEXT NOT NULL,
		achievement_percent TEXT NOT NULL,
		bonus_percent TEXT NOT NULL,
		bonus_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid')),
		paid_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (admin_code, month, year)
	);

	CREATE INDEX IF NOT EXISTS idx_recaps_period
		ON recaps(year, month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INCOME STORE
// =============================================================================

// AddIncome inserts a record.
func (s *Store) AddIncome(ctx context.Context, rec recap.IncomeRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO income_records (id, admin_code, date, amount, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		string(rec.AdminCode.Normalize()),
		rec.Date.Format(dateLayout),
		rec.Amount,
		rec.Description,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return recap.ErrDuplicateIncome
		}
		return fmt.Errorf("failed to insert income record: %w", err)
	}
	return nil
}

// ListIncome returns records matching filter, ordered by date then id.
func (s *Store) ListIncome(ctx context.Context, filter recap.IncomeFilter) ([]recap.IncomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if !filter.AdminCode.IsBlank() {
		where = append(where, "admin_code = ?")
		args = append(args, string(filter.AdminCode.Normalize()))
	}
	if filter.Period != nil {
		where = append(where, "date >= ? AND date <= ?")
		args = append(args, filter.Period.Start().Format(dateLayout), filter.Period.End().Format(dateLayout))
	}

	query := `SELECT id, admin_code, date, amount, description, created_at FROM income_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query income records: %w", err)
	}
	defer rows.Close()

	var records []recap.IncomeRecord
	for rows.Next() {
		var (
			rec         recap.IncomeRecord
			adminCode   string
			date        string
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&rec.ID, &adminCode, &date, &rec.Amount, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan income record: %w", err)
		}
		rec.AdminCode = recap.AdminCode(adminCode)
		rec.Date, _ = time.Parse(dateLayout, date)
		rec.Description = description.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteIncome removes a record.
func (s *Store) DeleteIncome(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM income_records WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, recap.ErrIncomeNotFound)
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SaveTargetSetting inserts or replaces the setting for its admin code.
func (s *Store) SaveTargetSetting(ctx context.Context, setting recap.TargetSetting) error {
	if err := setting.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO target_settings (admin_code, target_revenue, bonus_tier_80, bonus_tier_100, bonus_tier_150, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(admin_code) DO UPDATE SET
			target_revenue = excluded.target_revenue,
			bonus_tier_80 = excluded.bonus_tier_80,
			bonus_tier_100 = excluded.bonus_tier_100,
			bonus_tier_150 = excluded.bonus_tier_150,
			updated_at = excluded.updated_at
	`,
		string(setting.AdminCode.Normalize()),
		setting.TargetRevenue,
		setting.Tiers.T80,
		setting.Tiers.T100,
		setting.Tiers.T150,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetTargetSetting retrieves the setting for code.
func (s *Store) GetTargetSetting(ctx context.Context, code recap.AdminCode) (recap.TargetSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT admin_code, target_revenue, bonus_tier_80, bonus_tier_100, bonus_tier_150, updated_at
		FROM target_settings WHERE admin_code = ?
	`, string(code.Normalize()))

	setting, err := scanSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return recap.TargetSetting{}, recap.ErrSettingNotFound
	}
	return setting, err
}

// ListTargetSettings returns all settings ordered by admin code.
func (s *Store) ListTargetSettings(ctx context.Context) ([]recap.TargetSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT admin_code, target_revenue, bonus_tier_80, bonus_tier_100, bonus_tier_150, updated_at
		FROM target_settings ORDER BY admin_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query target settings: %w", err)
	}
	defer rows.Close()

	var settings []recap.TargetSetting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// DeleteTargetSetting removes the setting for code.
func (s *Store) DeleteTargetSetting(ctx context.Context, code recap.AdminCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM target_settings WHERE admin_code = ?", string(code.Normalize()))
	if err != nil {
		return err
	}
	return requireAffected(res, recap.ErrSettingNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSetting(row scanner) (recap.TargetSetting, error) {
	var (
		setting   recap.TargetSetting
		adminCode string
		updatedAt string
	)
	err := row.Scan(&adminCode, &setting.TargetRevenue,
		&setting.Tiers.T80, &setting.Tiers.T100, &setting.Tiers.T150, &updatedAt)
	if err != nil {
		return setting, err
	}
	setting.AdminCode = recap.AdminCode(adminCode)
	setting.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return setting, nil
}

// =============================================================================
// RECAP STORE
// =============================================================================

// ListRecaps returns saved rows for the period.
func (s *Store) ListRecaps(ctx context.Context, period recap.Period) ([]recap.RecapRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT admin_code, month, year, target_revenue, actual_income, achievement_percent,
		       bonus_percent, bonus_amount, status, paid_at
		FROM recaps
		WHERE month = ? AND year = ?
		ORDER BY admin_code
	`, int(period.Month), period.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to query recaps: %w", err)
	}
	defer rows.Close()

	var result []recap.RecapRow
	for rows.Next() {
		r, err := scanRecap(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpsertRecaps writes each row in its own statement so one bad row does not
// block the others. Failed admin codes are returned in a *PersistenceBatchError.
func (s *Store) UpsertRecaps(ctx context.Context, rows []recap.RecapRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO recaps
		(admin_code, month, year, target_revenue, actual_income, achievement_percent,
		 bonus_percent, bonus_amount, status, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', NULL, ?, ?)
		ON CONFLICT(admin_code, month, year) DO UPDATE SET
			target_revenue = excluded.target_revenue,
			actual_income = excluded.actual_income,
			achievement_percent = excluded.achievement_percent,
			bonus_percent = excluded.bonus_percent,
			bonus_amount = excluded.bonus_amount,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	batchErr := &recap.PersistenceBatchError{}
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, query,
			string(r.AdminCode), int(r.Period.Month), r.Period.Year,
			r.TargetRevenue, r.ActualIncome, r.AchievementPercent,
			r.BonusPercent, r.BonusAmount,
			now, now,
		)
		if err != nil {
			batchErr.Add(r.AdminCode, err)
		}
	}
	return batchErr.OrNil()
}

// MarkPaid is a targeted update by primary key, never part of the bulk upsert.
func (s *Store) MarkPaid(ctx context.Context, code recap.AdminCode, period recap.Period, at time.Time) (recap.RecapRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = code.Normalize()
	res, err := s.db.ExecContext(ctx, `
		UPDATE recaps SET status = 'paid', paid_at = ?, updated_at = ?
		WHERE admin_code = ? AND month = ? AND year = ? AND status = 'pending'
	`,
		at.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339),
		string(code), int(period.Month), period.Year,
	)
	if err != nil {
		return recap.RecapRow{}, fmt.Errorf("failed to mark recap paid: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT admin_code, month, year, target_revenue, actual_income, achievement_percent,
		       bonus_percent, bonus_amount, status, paid_at
		FROM recaps
		WHERE admin_code = ? AND month = ? AND year = ?
	`, string(code), int(period.Month), period.Year)
	current, scanErr := scanRecap(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return recap.RecapRow{}, recap.ErrRecapNotFound
	}
	if scanErr != nil {
		return recap.RecapRow{}, scanErr
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return recap.RecapRow{}, recap.ErrAlreadyPaid
	}
	return current, nil
}

func scanRecap(row scanner) (recap.RecapRow, error) {
	var (
		r         recap.RecapRow
		adminCode string
		month     int
		status    string
		paidAt    sql.NullString
	)
	err := row.Scan(&adminCode, &month, &r.Period.Year,
		&r.TargetRevenue, &r.ActualIncome, &r.AchievementPercent,
		&r.BonusPercent, &r.BonusAmount, &status, &paidAt)
	if err != nil {
		return r, err
	}
	r.AdminCode = recap.AdminCode(adminCode)
	r.Period.Month = time.Month(month)
	r.Status = recap.Status(status)
	if paidAt.Valid && paidAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, paidAt.String); err == nil {
			r.PaidAt = &t
		}
	}
	r.IsSaved = true
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
