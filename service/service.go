/*
Package service runs recap passes against a store.

PURPOSE:
  The recap package is pure. This package does the I/O around it:
  fetch income, settings and saved recaps, run the reconciler, write the
  ToPersist batch, and handle the mark-as-paid command.

PASS FLOW:
  1. Fetch the three sources concurrently (errgroup)
  2. Any fetch error fails the pass: no rows are derived. The last good
     rows for the period are returned from the cache, flagged Stale.
  3. AdminUniverse + AggregatePeriod + Reconcile
  4. UpsertRecaps(ToPersist). A partial failure still returns the rows,
     with Failed listing the admin codes to retry.
  5. A fully successful pass refreshes the cache.

RETRY:
  Retry(period, codes) is the same pass restricted to codes. Rows that
  already match storage have nothing to write, so successful numbers are
  not rewritten.

SEE ALSO:
  - recap/reconciler.go: the pure merge
  - cache/cache.go: last-known-good rows
*/
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/bonus-recap/cache"
	"github.com/warp/bonus-recap/recap"
)

// Service holds all dependencies for recap passes.
type Service struct {
	Store    recap.Store
	Cache    cache.RecapCache
	CacheTTL time.Duration
	Now      func() time.Time
}

// New creates a service. A nil cache disables the stale fallback.
func New(store recap.Store, c cache.RecapCache, cacheTTL time.Duration) *Service {
	if c == nil {
		c = cache.NoopRecapCache{}
	}
	return &Service{
		Store:    store,
		Cache:    c,
		CacheTTL: cacheTTL,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Result is what a pass hands back to the caller.
type Result struct {
	Period    recap.Period
	Rows      []recap.RecapRow
	Persisted []recap.AdminCode
	Failed    []recap.AdminCode
	Stale     bool
}

// =============================================================================
// RECAP PASSES
// =============================================================================

// Recap reconciles every known admin for the period.
func (s *Service) Recap(ctx context.Context, period recap.Period) (Result, error) {
	return s.run(ctx, period, nil)
}

// Retry reconciles only the given admin codes, typically the Failed list of
// a previous pass.
func (s *Service) Retry(ctx context.Context, period recap.Period, codes []recap.AdminCode) (Result, error) {
	if len(codes) == 0 {
		return Result{}, &recap.InvalidInputError{Field: "admin_codes"}
	}
	return s.run(ctx, period, codes)
}

func (s *Service) run(ctx context.Context, period recap.Period, only []recap.AdminCode) (Result, error) {
	if err := period.Validate(); err != nil {
		return Result{}, err
	}

	var (
		income   []recap.IncomeRecord
		settings []recap.TargetSetting
		existing []recap.RecapRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, err = s.Store.ListIncome(gctx, recap.IncomeFilter{})
		if err != nil {
			return fmt.Errorf("income: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		settings, err = s.Store.ListTargetSettings(gctx)
		if err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		existing, err = s.Store.ListRecaps(gctx, period)
		if err != nil {
			return fmt.Errorf("recaps: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("[Recap] %s: source unavailable: %v", period, err)
		return s.lastKnownGood(ctx, period, fmt.Errorf("%w: %v", recap.ErrSourceUnavailable, err))
	}

	codes := recap.AdminUniverse(income)
	if only != nil {
		codes = restrict(codes, only)
	}

	incomeByAdmin, err := recap.AggregatePeriod(income, period)
	if err != nil {
		return Result{}, err
	}
	rec, err := recap.Reconcile(codes, settings, incomeByAdmin, existing, period)
	if err != nil {
		return Result{}, err
	}

	result := Result{Period: period, Rows: rec.Rows}
	if len(rec.ToPersist) > 0 {
		persistErr := s.persist(ctx, rec.ToPersist, &result)
		if persistErr != nil {
			log.Printf("[Recap] %s: %v", period, persistErr)
			return result, persistErr
		}
	}

	if only == nil {
		if err := s.Cache.Set(ctx, period, result.Rows, s.CacheTTL); err != nil {
			log.Printf("[Recap] %s: cache write failed: %v", period, err)
		}
	}
	log.Printf("[Recap] %s: %d rows, %d written", period, len(result.Rows), len(result.Persisted))
	return result, nil
}

// persist writes the batch and updates IsSaved on rows that now exist.
// A non-batch error from the store counts as every row failing.
func (s *Service) persist(ctx context.Context, batch []recap.RecapRow, result *Result) error {
	err := s.Store.UpsertRecaps(ctx, batch)

	var batchErr *recap.PersistenceBatchError
	if err != nil && !errors.As(err, &batchErr) {
		batchErr = &recap.PersistenceBatchError{}
		for _, r := range batch {
			batchErr.Add(r.AdminCode, err)
		}
	}

	failed := make(map[recap.AdminCode]bool)
	if batchErr != nil {
		for _, code := range batchErr.Failed {
			failed[code] = true
		}
	}

	written := make(map[recap.AdminCode]bool)
	for _, r := range batch {
		if failed[r.AdminCode] {
			result.Failed = append(result.Failed, r.AdminCode)
			continue
		}
		written[r.AdminCode] = true
		result.Persisted = append(result.Persisted, r.AdminCode)
	}
	for i := range result.Rows {
		if written[result.Rows[i].AdminCode] {
			result.Rows[i].IsSaved = true
		}
	}

	if batchErr == nil {
		return nil
	}
	return batchErr.OrNil()
}

func (s *Service) lastKnownGood(ctx context.Context, period recap.Period, cause error) (Result, error) {
	rows, ok, err := s.Cache.Get(ctx, period)
	if err != nil {
		log.Printf("[Recap] %s: cache read failed: %v", period, err)
	}
	if !ok {
		return Result{Period: period}, cause
	}
	return Result{Period: period, Rows: rows, Stale: true}, cause
}

func restrict(universe, only []recap.AdminCode) []recap.AdminCode {
	want := make(map[recap.AdminCode]bool, len(only))
	for _, c := range only {
		want[c.Normalize()] = true
	}
	var out []recap.AdminCode
	for _, c := range universe {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// MARK AS PAID
// =============================================================================

// MarkPaid moves a saved row from pending to paid, stamped with Now().
func (s *Service) MarkPaid(ctx context.Context, code recap.AdminCode, period recap.Period) (recap.RecapRow, error) {
	if err := period.Validate(); err != nil {
		return recap.RecapRow{}, err
	}
	if code.IsBlank() {
		return recap.RecapRow{}, &recap.InvalidInputError{Field: "admin_code"}
	}

	row, err := s.Store.MarkPaid(ctx, code, period, s.Now())
	if err != nil {
		return recap.RecapRow{}, err
	}
	log.Printf("[Recap] %s: %s marked paid", period, row.AdminCode)
	s.patchCached(ctx, row)
	return row, nil
}

// patchCached keeps the cached view in step with a status change.
func (s *Service) patchCached(ctx context.Context, paid recap.RecapRow) {
	rows, ok, err := s.Cache.Get(ctx, paid.Period)
	if err != nil || !ok {
		return
	}
	for i := range rows {
		if rows[i].AdminCode == paid.AdminCode {
			rows[i].Status = paid.Status
			rows[i].PaidAt = paid.PaidAt
		}
	}
	if err := s.Cache.Set(ctx, paid.Period, rows, s.CacheTTL); err != nil {
		log.Printf("[Recap] %s: cache write failed: %v", paid.Period, err)
	}
}

// =============================================================================
// INCOME & SETTINGS
// =============================================================================

// AddIncome assigns an ID when missing and stores the record.
func (s *Service) AddIncome(ctx context.Context, rec recap.IncomeRecord) (recap.IncomeRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.AdminCode = rec.AdminCode.Normalize()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.Now()
	}
	if err := rec.Validate(); err != nil {
		return recap.IncomeRecord{}, err
	}
	if err := s.Store.AddIncome(ctx, rec); err != nil {
		return recap.IncomeRecord{}, err
	}
	return rec, nil
}

func (s *Service) ListIncome(ctx context.Context, filter recap.IncomeFilter) ([]recap.IncomeRecord, error) {
	if filter.Period != nil {
		if err := filter.Period.Validate(); err != nil {
			return nil, err
		}
	}
	return s.Store.ListIncome(ctx, filter)
}

func (s *Service) DeleteIncome(ctx context.Context, id string) error {
	return s.Store.DeleteIncome(ctx, id)
}

func (s *Service) SaveSetting(ctx context.Context, setting recap.TargetSetting) (recap.TargetSetting, error) {
	setting.AdminCode = setting.AdminCode.Normalize()
	if err := setting.Validate(); err != nil {
		return recap.TargetSetting{}, err
	}
	if err := s.Store.SaveTargetSetting(ctx, setting); err != nil {
		return recap.TargetSetting{}, err
	}
	return s.Store.GetTargetSetting(ctx, setting.AdminCode)
}

func (s *Service) GetSetting(ctx context.Context, code recap.AdminCode) (recap.TargetSetting, error) {
	return s.Store.GetTargetSetting(ctx, code)
}

func (s *Service) ListSettings(ctx context.Context) ([]recap.TargetSetting, error) {
	return s.Store.ListTargetSettings(ctx)
}

func (s *Service) DeleteSetting(ctx context.Context, code recap.AdminCode) error {
	return s.Store.DeleteTargetSetting(ctx, code)
}
