/*
handlers.go - HTTP API handlers for the bonus recap service

ENDPOINTS:
  Income:
    GET    /api/income                      List (admin_code, month, year, limit, offset)
    POST   /api/income                      Create income record
    DELETE /api/income/{id}                 Delete income record

  Target settings:
    GET    /api/settings                    List
    GET    /api/settings/{code}             Get one
    PUT    /api/settings/{code}             Create or replace
    DELETE /api/settings/{code}             Delete

  Recaps:
    GET    /api/recaps/{year}/{month}              Reconcile and return rows
    POST   /api/recaps/{year}/{month}/retry        Retry listed admin codes
    POST   /api/recaps/{year}/{month}/{code}/pay   Mark as paid
    GET    /api/recaps/{year}/{month}/export.csv   Spreadsheet export

  Calculator:
    GET    /api/calculator                  Stateless bonus preview

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad period
  - 404: Missing setting / income / recap
  - 409: Already paid, duplicate income id
  - 503: Source unavailable with no cached rows
  - 207: Recap computed but some rows failed to persist
  - 500: Internal errors

SECURITY NOTE:
  No authentication here. Role gating of admin screens is done by the
  fronting application.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/bonus-recap/recap"
	"github.com/warp/bonus-recap/service"
)

const (
	defaultIncomeLimit = 50
	maxIncomeLimit     = 500
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *service.Service
	validate *validator.Validate
}

// NewHandler creates a new handler around the recap service.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Service:  svc,
		validate: validator.New(),
	}
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// INCOME HANDLERS
// =============================================================================

// ListIncome returns income records, optionally filtered and paginated.
func (h *Handler) ListIncome(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := recap.IncomeFilter{
		AdminCode: recap.AdminCode(q.Get("admin_code")),
		Limit:     defaultIncomeLimit,
	}

	if q.Get("month") != "" || q.Get("year") != "" {
		period, err := parsePeriod(q.Get("year"), q.Get("month"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month/year", err)
			return
		}
		filter.Period = &period
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = min(limit, maxIncomeLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset", err)
			return
		}
		filter.Offset = offset
	}

	records, err := h.Service.ListIncome(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Failed to list income", err)
		return
	}

	dtos := make([]IncomeDTO, len(records))
	for i, rec := range records {
		dtos[i] = toIncomeDTO(rec)
	}
	writeJSON(w, http.StatusOK, IncomeListResponse{Records: dtos, Limit: filter.Limit, Offset: filter.Offset})
}

// CreateIncome stores a new income record.
func (h *Handler) CreateIncome(w http.ResponseWriter, r *http.Request) {
	var req CreateIncomeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	rec, err := h.Service.AddIncome(r.Context(), recap.IncomeRecord{
		ID:          req.ID,
		AdminCode:   recap.AdminCode(req.AdminCode),
		Date:        date,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, "Failed to create income record", err)
		return
	}

	writeJSON(w, http.StatusCreated, toIncomeDTO(rec))
}

// DeleteIncome removes an income record.
func (h *Handler) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteIncome(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "Failed to delete income record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TARGET SETTING HANDLERS
// =============================================================================

func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Service.ListSettings(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list target settings", err)
		return
	}

	dtos := make([]TargetSettingDTO, len(settings))
	for i, s := range settings {
		dtos[i] = toSettingDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := h.Service.GetSetting(r.Context(), recap.AdminCode(chi.URLParam(r, "code")))
	if err != nil {
		writeServiceError(w, "Failed to get target setting", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingDTO(setting))
}

// SaveSetting creates or replaces the setting for {code}.
func (h *Handler) SaveSetting(w http.ResponseWriter, r *http.Request) {
	var req SaveTargetSettingRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		values [4]decimal.Decimal
		raw    = [4]string{req.TargetRevenue, req.BonusTier80, req.BonusTier100, req.BonusTier150}
	)
	for i, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid number", err)
			return
		}
		values[i] = d
	}

	saved, err := h.Service.SaveSetting(r.Context(), recap.TargetSetting{
		AdminCode:     recap.AdminCode(chi.URLParam(r, "code")),
		TargetRevenue: values[0],
		Tiers:         recap.Tiers{T80: values[1], T100: values[2], T150: values[3]},
	})
	if err != nil {
		writeServiceError(w, "Failed to save target setting", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingDTO(saved))
}

func (h *Handler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteSetting(r.Context(), recap.AdminCode(chi.URLParam(r, "code"))); err != nil {
		writeServiceError(w, "Failed to delete target setting", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RECAP HANDLERS
// =============================================================================

// GetRecap reconciles the period and returns the rows.
// GET /api/recaps/{year}/{month}
func (h *Handler) GetRecap(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month/year", err)
		return
	}

	res, err := h.Service.Recap(r.Context(), period)
	writeRecapResult(w, res, err)
}

// RetryRecap re-runs the pass for the listed admin codes only.
// POST /api/recaps/{year}/{month}/retry
func (h *Handler) RetryRecap(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month/year", err)
		return
	}

	var req RetryRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	codes := make([]recap.AdminCode, len(req.AdminCodes))
	for i, c := range req.AdminCodes {
		codes[i] = recap.AdminCode(c)
	}

	res, err := h.Service.Retry(r.Context(), period, codes)
	writeRecapResult(w, res, err)
}

// MarkPaid moves a saved recap row to paid.
// POST /api/recaps/{year}/{month}/{code}/pay
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month/year", err)
		return
	}

	row, err := h.Service.MarkPaid(r.Context(), recap.AdminCode(chi.URLParam(r, "code")), period)
	if err != nil {
		writeServiceError(w, "Failed to mark recap as paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecapRowDTO(row))
}

// ExportRecap writes the period's rows as CSV.
// GET /api/recaps/{year}/{month}/export.csv
func (h *Handler) ExportRecap(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month/year", err)
		return
	}

	res, err := h.Service.Recap(r.Context(), period)
	if err != nil && !errors.Is(err, recap.ErrPersistenceBatch) {
		writeServiceError(w, "Failed to build recap", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="recap-`+period.String()+`.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"admin_code", "month", "year", "target_revenue", "actual_income",
		"achievement_percent", "bonus_percent", "bonus_amount", "status", "paid_at", "has_settings",
	})
	for _, row := range res.Rows {
		paidAt := ""
		if row.PaidAt != nil {
			paidAt = row.PaidAt.Format(time.RFC3339)
		}
		cw.Write([]string{
			string(row.AdminCode),
			strconv.Itoa(int(row.Period.Month)),
			strconv.Itoa(row.Period.Year),
			row.TargetRevenue.String(),
			row.ActualIncome.String(),
			row.AchievementPercent.StringFixed(2),
			row.BonusPercent.String(),
			row.BonusAmount.String(),
			string(row.Status),
			paidAt,
			strconv.FormatBool(row.HasSettings),
		})
	}
	cw.Flush()
}

func writeRecapResult(w http.ResponseWriter, res service.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toRecapResponse(res, nil))
	case errors.Is(err, recap.ErrPersistenceBatch):
		writeJSON(w, http.StatusMultiStatus, toRecapResponse(res, err))
	case errors.Is(err, recap.ErrSourceUnavailable) && res.Stale:
		writeJSON(w, http.StatusOK, toRecapResponse(res, err))
	default:
		writeServiceError(w, "Failed to build recap", err)
	}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculate previews a bonus without touching storage.
// GET /api/calculator?target=&actual=&t80=&t100=&t150=
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	parse := func(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
		v := q.Get(key)
		if v == "" {
			return fallback, nil
		}
		return decimal.NewFromString(v)
	}

	var tiers recap.Tiers
	target, err1 := parse("target", decimal.Zero)
	actual, err2 := parse("actual", decimal.Zero)
	t80, err3 := parse("t80", recap.DefaultTiers.T80)
	t100, err4 := parse("t100", recap.DefaultTiers.T100)
	t150, err5 := parse("t150", recap.DefaultTiers.T150)
	tiers.T80, tiers.T100, tiers.T150 = t80, t100, t150
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid number", err)
		return
	}

	result, err := recap.CalculateBonus(target, actual, tiers)
	if err != nil {
		writeServiceError(w, "Invalid calculator input", err)
		return
	}
	writeJSON(w, http.StatusOK, CalculatorResponse{
		TargetRevenue:      target,
		ActualIncome:       actual,
		AchievementPercent: result.AchievementPercent,
		BonusPercent:       result.BonusPercent,
		BonusAmount:        result.BonusAmount,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePeriod(yearStr, monthStr string) (recap.Period, error) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return recap.Period{}, &recap.PeriodBoundaryError{Month: 0, Year: 0}
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return recap.Period{}, &recap.PeriodBoundaryError{Month: 0, Year: year}
	}
	return recap.NewPeriod(month, year)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps recap errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case recap.IsClientError(err):
		status = http.StatusBadRequest
	case recap.IsNotFound(err):
		status = http.StatusNotFound
	case recap.IsConflict(err):
		status = http.StatusConflict
	case errors.Is(err, recap.ErrSourceUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, message, err)
}
