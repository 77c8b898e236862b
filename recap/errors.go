/*
errors.go - Error types for the recap engine

ERROR CATEGORIES:
  1. Input errors - negative amounts, malformed periods (client bugs, never clamped)
  2. State errors - missing rows, paid rows
  3. Persistence errors - partial batch failures (retryable per admin code)

USAGE:
    var batchErr *recap.PersistenceBatchError
    if errors.As(err, &batchErr) {
        retry(batchErr.Failed)
    }
*/
package recap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for negative financial inputs or blank keys.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPeriod is returned when month/year do not form a calendar month.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrPersistenceBatch is returned when some recap rows could not be written.
	ErrPersistenceBatch = errors.New("recap batch persistence failed")

	// ErrRecapNotFound is returned when marking a row that was never saved.
	ErrRecapNotFound = errors.New("recap not found")

	// ErrAlreadyPaid is returned when marking a row that is already paid.
	ErrAlreadyPaid = errors.New("recap already paid")

	ErrIncomeNotFound  = errors.New("income record not found")
	ErrSettingNotFound = errors.New("target setting not found")
	ErrDuplicateIncome = errors.New("duplicate income record id")

	// ErrSourceUnavailable wraps failures fetching income, settings or saved recaps.
	ErrSourceUnavailable = errors.New("recap source unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field string
	Value decimal.Decimal
}

func (e *InvalidInputError) Error() string {
	if e.Value.IsZero() {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value.String())
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// PeriodBoundaryError is returned for a month outside 1-12 or an unusable year.
type PeriodBoundaryError struct {
	Month int
	Year  int
}

func (e *PeriodBoundaryError) Error() string {
	return fmt.Sprintf("invalid period: month %d, year %d", e.Month, e.Year)
}

func (e *PeriodBoundaryError) Unwrap() error { return ErrInvalidPeriod }

// PersistenceBatchError lists the admin codes whose rows were not written.
// Rows for every other code in the batch were persisted.
type PersistenceBatchError struct {
	Failed []AdminCode
	Causes map[AdminCode]error
}

// Add records a failure for code.
func (e *PersistenceBatchError) Add(code AdminCode, cause error) {
	if e.Causes == nil {
		e.Causes = make(map[AdminCode]error)
	}
	if _, seen := e.Causes[code]; !seen {
		e.Failed = append(e.Failed, code)
	}
	e.Causes[code] = cause
}

// OrNil returns nil when nothing failed, so callers can `return batchErr.OrNil()`.
func (e *PersistenceBatchError) OrNil() error {
	if e == nil || len(e.Failed) == 0 {
		return nil
	}
	sort.Slice(e.Failed, func(i, j int) bool { return e.Failed[i] < e.Failed[j] })
	return e
}

func (e *PersistenceBatchError) Error() string {
	codes := make([]string, len(e.Failed))
	for i, c := range e.Failed {
		codes[i] = string(c)
	}
	return fmt.Sprintf("%s for %d admin(s): %s", ErrPersistenceBatch, len(e.Failed), strings.Join(codes, ", "))
}

func (e *PersistenceBatchError) Unwrap() error { return ErrPersistenceBatch }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecapNotFound) ||
		errors.Is(err, ErrIncomeNotFound) ||
		errors.Is(err, ErrSettingNotFound)
}

// IsConflict returns true for state conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrDuplicateIncome)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceBatch) || errors.Is(err, ErrSourceUnavailable)
}
