// Package postgres implements recap.Store on PostgreSQL through the pgx
// database/sql driver. Schema and upsert rules mirror store/sqlite.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/warp/bonus-recap/recap"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS income_records (
			id TEXT PRIMARY KEY,
			admin_code TEXT NOT NULL DEFAULT '',
			date DATE NOT NULL,
			amount NUMERIC(20,4) NOT NULL CHECK (amount >= 0),
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_income_admin_date ON income_records(admin_code, date);

		CREATE TABLE IF NOT EXISTS target_settings (
			admin_code TEXT PRIMARY KEY,
			target_revenue NUMERIC(20,4) NOT NULL CHECK (target_revenue >= 0),
			bonus_tier_80 NUMERIC(8,4) NOT NULL CHECK (bonus_tier_80 >= 0),
			bonus_tier_100 NUMERIC(8,4) NOT NULL CHECK (bonus_tier_100 >= 0),
			bonus_tier_150 NUMERIC(8,4) NOT NULL CHECK (bonus_tier_150 >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS recaps (
			admin_code TEXT NOT NULL,
			month SMALLINT NOT NULL CHECK (month BETWEEN 1 AND 12),
			year INTEGER NOT NULL,
			target_revenue NUMERIC NOT NULL,
			actual_income NUMERIC NOT NULL,
			achievement_percent NUMERIC NOT NULL,
			bonus_percent NUMERIC NOT NULL,
			bonus_amount NUMERIC NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid')),
			paid_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (admin_code, month, year)
		);
		CREATE INDEX IF NOT EXISTS idx_recaps_period ON recaps(year, month);
	`)
	return err
}

func (s *Store) AddIncome(ctx context.Context, rec recap.IncomeRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO income_records (id, admin_code, date, amount, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, rec.ID, string(rec.AdminCode.Normalize()), rec.Date.Format("2006-01-02"), rec.Amount, rec.Description, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return recap.ErrDuplicateIncome
		}
		return err
	}
	return nil
}

func (s *Store) ListIncome(ctx context.Context, filter recap.IncomeFilter) ([]recap.IncomeRecord, error) {
	var (
		where []string
		args  []any
	)
	if !filter.AdminCode.IsBlank() {
		args = append(args, string(filter.AdminCode.Normalize()))
		where = append(where, fmt.Sprintf("admin_code = $%d", len(args)))
	}
	if filter.Period != nil {
		args = append(args, filter.Period.Start().Format("2006-01-02"), filter.Period.End().Format("2006-01-02"))
		where = append(where, fmt.Sprintf("date BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}

	query := `SELECT id, admin_code, date, amount, description, created_at FROM income_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]recap.IncomeRecord, 0, 64)
	for rows.Next() {
		var (
			rec       recap.IncomeRecord
			adminCode string
		)
		if err := rows.Scan(&rec.ID, &adminCode, &rec.Date, &rec.Amount, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.AdminCode = recap.AdminCode(adminCode)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) DeleteIncome(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM income_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, recap.ErrIncomeNotFound)
}

func (s *Store) SaveTargetSetting(ctx context.Context, setting recap.TargetSetting) error {
	if err := setting.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO target_settings (admin_code, target_revenue, bonus_tier_80, bonus_tier_100, bonus_tier_150, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (admin_code)
		DO UPDATE SET
			target_revenue = EXCLUDED.target_revenue,
			bonus_tier_80 = EXCLUDED.bonus_tier_80,
			bonus_tier_100 = EXCLUDED.bonus_tier_100,
			bonus_tier_150 = EXCLUDED.bonus_tier_150,
			updated_at = now()
	`, string(setting.AdminCode.Normalize()), setting.TargetRevenue, setting.Tiers.T80, setting.Tiers.T100, setting.Tiers.T150)
	return err
}

func (s *Store) GetTargetSetting(ctx context.Context, code recap.AdminCode) (recap.TargetSetting, error) {
	var (
		setting   recap.TargetSetting
		adminCode string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT admin_code, target_revenue, bonus_tier_80, bonus_tier_100, bonus_tier_150, updated_at
		FROM target_settings
		WHERE admin_code = $1
	`, string(code.Normalize())).Scan(&adminCode, &setting.TargetRevenue,
		&setting.Tiers.T80, &setting.Tiers.T100, &setting.Tiers.T150, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return recap.TargetSetting{}, recap.ErrSettingNotFound
		}
		return recap.TargetSetting{}, err
	}
	setting.AdminCode = recap.AdminCode(adminCode)
	return setting, nil
}

func (s *Store) ListTargetSettings(ctx context.Context) ([]recap.TargetSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT admin_code, target_revenue, bonus_tier_80, bonus_tier_100, bonus_tier_150, updated_at
		FROM target_settings
		ORDER BY admin_code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]recap.TargetSetting, 0, 16)
	for rows.Next() {
		var (
			setting   recap.TargetSetting
			adminCode string
		)
		if err := rows.Scan(&adminCode, &setting.TargetRevenue,
			&setting.Tiers.T80, &setting.Tiers.T100, &setting.Tiers.T150, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		setting.AdminCode = recap.AdminCode(adminCode)
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Store) DeleteTargetSetting(ctx context.Context, code recap.AdminCode) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM target_settings WHERE admin_code = $1`, string(code.Normalize()))
	if err != nil {
		return err
	}
	return requireAffected(res, recap.ErrSettingNotFound)
}

const recapColumns = `admin_code, month, year, target_revenue, actual_income, achievement_percent,
	bonus_percent, bonus_amount, status, paid_at`

func (s *Store) ListRecaps(ctx context.Context, period recap.Period) ([]recap.RecapRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recapColumns+`
		FROM recaps
		WHERE month = $1 AND year = $2
		ORDER BY admin_code
	`, int(period.Month), period.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]recap.RecapRow, 0, 16)
	for rows.Next() {
		r, err := scanRecap(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertRecaps never writes status or paid_at on conflict.
func (s *Store) UpsertRecaps(ctx context.Context, rows []recap.RecapRow) error {
	batchErr := &recap.PersistenceBatchError{}
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO recaps
			(admin_code, month, year, target_revenue, actual_income, achievement_percent,
			 bonus_percent, bonus_amount, status, paid_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending',NULL,now(),now())
			ON CONFLICT (admin_code, month, year)
			DO UPDATE SET
				target_revenue = EXCLUDED.target_revenue,
				actual_income = EXCLUDED.actual_income,
				achievement_percent = EXCLUDED.achievement_percent,
				bonus_percent = EXCLUDED.bonus_percent,
				bonus_amount = EXCLUDED.bonus_amount,
				updated_at = now()
		`, string(r.AdminCode), int(r.Period.Month), r.Period.Year,
			r.TargetRevenue, r.ActualIncome, r.AchievementPercent, r.BonusPercent, r.BonusAmount)
		if err != nil {
			batchErr.Add(r.AdminCode, err)
		}
	}
	return batchErr.OrNil()
}

// MarkPaid uses UPDATE ... RETURNING so the transition and the read are one statement.
func (s *Store) MarkPaid(ctx context.Context, code recap.AdminCode, period recap.Period, at time.Time) (recap.RecapRow, error) {
	code = code.Normalize()
	row := s.db.QueryRowContext(ctx, `
		UPDATE recaps
		SET status = 'paid', paid_at = $4, updated_at = now()
		WHERE admin_code = $1 AND month = $2 AND year = $3 AND status = 'pending'
		RETURNING `+recapColumns,
		string(code), int(period.Month), period.Year, at.UTC())

	updated, err := scanRecap(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return recap.RecapRow{}, err
	}

	var status string
	err = s.db.QueryRowContext(ctx, `
		SELECT status FROM recaps WHERE admin_code = $1 AND month = $2 AND year = $3
	`, string(code), int(period.Month), period.Year).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return recap.RecapRow{}, recap.ErrRecapNotFound
	}
	if err != nil {
		return recap.RecapRow{}, err
	}
	return recap.RecapRow{}, recap.ErrAlreadyPaid
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecap(row scanner) (recap.RecapRow, error) {
	var (
		r         recap.RecapRow
		adminCode string
		month     int
		status    string
		paidAt    sql.NullTime
	)
	if err := row.Scan(&adminCode, &month, &r.Period.Year,
		&r.TargetRevenue, &r.ActualIncome, &r.AchievementPercent,
		&r.BonusPercent, &r.BonusAmount, &status, &paidAt); err != nil {
		return recap.RecapRow{}, err
	}
	r.AdminCode = recap.AdminCode(adminCode)
	r.Period.Month = time.Month(month)
	r.Status = recap.Status(status)
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		r.PaidAt = &t
	}
	r.IsSaved = true
	return r, nil
}

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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
