package dayshttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/days"
	"github.com/odyssey-erp/daybook/internal/platform/httpx"
	"github.com/odyssey-erp/daybook/internal/reconcile"
)

type daysService interface {
	OpenDay(ctx context.Context, in days.OpenDayInput) (days.DailyRecord, error)
	CurrentDay(ctx context.Context) (days.DailyRecord, error)
	GetDay(ctx context.Context, id int64) (days.DailyRecord, error)
	List(ctx context.Context, filter days.ListFilter) ([]days.DailyRecord, error)
	Reconcile(ctx context.Context, dayID int64) (reconcile.Result, error)
	PreviewClosing(ctx context.Context, dayID int64, proposed map[int64]decimal.Decimal) (reconcile.Result, error)
	CloseDay(ctx context.Context, in days.CloseDayInput) (reconcile.Result, error)
	AdminUpdate(ctx context.Context, in days.AdminUpdateInput) (days.DailyRecord, error)
	Delete(ctx context.Context, dayID, actorID int64) error
	Summary(ctx context.Context, dayID int64) (days.Summary, error)
	MonthlyReport(ctx context.Context, year, month int) (days.MonthlyReport, error)
}

// Handler exposes the day lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service daysService
}

// NewHandler constructs the days HTTP handler.
func NewHandler(logger *slog.Logger, service daysService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes relative to the /days router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.open)
	r.Get("/current", h.current)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.adminUpdate)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/reconciliation", h.reconciliation)
	r.Post("/{id}/preview", h.preview)
	r.Post("/{id}/close", h.close)
	r.Get("/{id}/summary", h.summary)
}

// MountReports registers routes relative to the /reports router.
func (h *Handler) MountReports(r chi.Router) {
	r.Get("/monthly", h.monthly)
}

type countLine struct {
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type openRequest struct {
	Date    string      `json:"date" validate:"required,datetime=2006-01-02"`
	Opening []countLine `json:"opening" validate:"dive"`
	Notes   string      `json:"notes" validate:"max=1000"`
}

type closeRequest struct {
	Closing []countLine `json:"closing" validate:"required,min=1,dive"`
	Notes   string      `json:"notes" validate:"max=1000"`
}

type adminUpdateRequest struct {
	Notes        *string          `json:"notes" validate:"omitempty,max=1000"`
	TotalIncome  *decimal.Decimal `json:"total_income"`
	DeliveryCost *decimal.Decimal `json:"delivery_cost"`
	SpoilageCost *decimal.Decimal `json:"spoilage_cost"`
}

type resultResponse struct {
	CanClose bool             `json:"can_close"`
	Result   reconcile.Result `json:"result"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(days.DateLayout, req.Date)
	opening, err := countMap(req.Opening)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.OpenDay(r.Context(), days.OpenDayInput{
		Date:    date,
		Opening: opening,
		Notes:   req.Notes,
		ActorID: httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, "open day", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.CurrentDay(r.Context())
	if err != nil {
		h.fail(w, "current day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.GetDay(r.Context(), id)
	if err != nil {
		h.fail(w, "get day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := days.ListFilter{Status: days.Status(q.Get("status"))}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	records, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list days", err)
		return
	}
	if records == nil {
		records = []days.DailyRecord{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"days": records})
}

func (h *Handler) reconciliation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, "reconcile day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resultResponse{CanClose: res.CanClose(), Result: res})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id, proposed, _, ok := h.bindClosing(w, r)
	if !ok {
		return
	}
	res, err := h.service.PreviewClosing(r.Context(), id, proposed)
	if err != nil {
		h.fail(w, "preview closing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resultResponse{CanClose: res.CanClose(), Result: res})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, closing, req, ok := h.bindClosing(w, r)
	if !ok {
		return
	}
	res, err := h.service.CloseDay(r.Context(), days.CloseDayInput{
		DayID:   id,
		Closing: closing,
		Notes:   req.Notes,
		ActorID: httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, "close day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resultResponse{CanClose: true, Result: res})
}

func (h *Handler) bindClosing(w http.ResponseWriter, r *http.Request) (int64, map[int64]decimal.Decimal, closeRequest, bool) {
	var req closeRequest
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, nil, req, false
	}
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return 0, nil, req, false
	}
	counts, err := countMap(req.Closing)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, nil, req, false
	}
	return id, counts, req, true
}

func (h *Handler) adminUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adminUpdateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.AdminUpdate(r.Context(), days.AdminUpdateInput{
		DayID:        id,
		Notes:        req.Notes,
		TotalIncome:  req.TotalIncome,
		DeliveryCost: req.DeliveryCost,
		SpoilageCost: req.SpoilageCost,
		ActorID:      httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, "admin update day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, "delete day", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, "day summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) monthly(w http.ResponseWriter, r *http.Request) {
	year, errYear := strconv.Atoi(r.URL.Query().Get("year"))
	month, errMonth := strconv.Atoi(r.URL.Query().Get("month"))
	if errYear != nil || errMonth != nil {
		httpx.RespondError(w, &httpx.ValidationError{Detail: "year and month are required integers"})
		return
	}
	report, err := h.service.MonthlyReport(r.Context(), year, month)
	if err != nil {
		h.fail(w, "monthly report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if issues := reconcile.Issues(err); len(issues) > 0 {
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Day Cannot Be Closed", err.Error(), issues)
		return
	}
	switch {
	case errors.Is(err, days.ErrDayNotFound), errors.Is(err, days.ErrNoOpenDay):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, days.ErrDayAlreadyOpen),
		errors.Is(err, days.ErrDuplicateDate),
		errors.Is(err, days.ErrDayClosed),
		errors.Is(err, days.ErrDayNotClosed),
		errors.Is(err, days.ErrBusy):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, days.ErrInvalidInput), errors.Is(err, catalog.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func countMap(lines []countLine) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		if _, dup := out[line.IngredientID]; dup {
			return nil, &httpx.ValidationError{
				Detail: fmt.Sprintf("ingredient %d counted twice", line.IngredientID),
				Fields: map[string]string{"ingredient_id": "unique"},
			}
		}
		out[line.IngredientID] = line.Quantity
	}
	return out, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(days.DateLayout, raw)
	if err != nil {
		return time.Time{}, &httpx.ValidationError{Detail: fmt.Sprintf("invalid date %q", raw)}
	}
	return t, nil
}
