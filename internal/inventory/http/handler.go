package inventoryhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
	"github.com/odyssey-erp/daybook/internal/platform/httpx"
	"github.com/odyssey-erp/daybook/internal/shared"
)

// IdempotencyHeader carries a client generated UUID for safe retries.
const IdempotencyHeader = "Idempotency-Key"

type inventoryService interface {
	RecordDelivery(ctx context.Context, in inventory.DeliveryInput) (inventory.Event, error)
	RecordTransfer(ctx context.Context, in inventory.TransferInput) (inventory.Event, error)
	RecordSpoilage(ctx context.Context, in inventory.SpoilageInput) (inventory.Event, error)
	ListEvents(ctx context.Context, filter inventory.EventFilter) ([]inventory.Event, error)
	ListSnapshots(ctx context.Context, dayID int64) ([]inventory.Snapshot, error)
}

// Handler exposes mid-day movements over JSON.
type Handler struct {
	logger  *slog.Logger
	service inventoryService
}

// NewHandler constructs the inventory HTTP handler.
func NewHandler(logger *slog.Logger, service inventoryService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes relative to the /days router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/deliveries", h.recordDelivery)
	r.Post("/{id}/transfers", h.recordTransfer)
	r.Post("/{id}/spoilage", h.recordSpoilage)
	r.Get("/{id}/events", h.listEvents)
	r.Get("/{id}/snapshots", h.listSnapshots)
}

type deliveryRequest struct {
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Note         string          `json:"note" validate:"max=500"`
}

type transferRequest struct {
	IngredientID int64               `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Direction    inventory.Direction `json:"direction" validate:"required,oneof=in out"`
	Note         string              `json:"note" validate:"max=500"`
}

type spoilageRequest struct {
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reason       string          `json:"reason" validate:"max=500"`
}

func (h *Handler) recordDelivery(w http.ResponseWriter, r *http.Request) {
	dayID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req deliveryRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	evt, err := h.service.RecordDelivery(r.Context(), inventory.DeliveryInput{
		DayID:        dayID,
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Price:        req.Price,
		Note:         req.Note,
		Ref:          idempotencyKey(r),
		ActorID:      httpx.ActorID(r),
	})
	h.respondEvent(w, "record delivery", evt, err)
}

func (h *Handler) recordTransfer(w http.ResponseWriter, r *http.Request) {
	dayID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transferRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	evt, err := h.service.RecordTransfer(r.Context(), inventory.TransferInput{
		DayID:        dayID,
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Direction:    req.Direction,
		Note:         req.Note,
		Ref:          idempotencyKey(r),
		ActorID:      httpx.ActorID(r),
	})
	h.respondEvent(w, "record transfer", evt, err)
}

func (h *Handler) recordSpoilage(w http.ResponseWriter, r *http.Request) {
	dayID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req spoilageRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	evt, err := h.service.RecordSpoilage(r.Context(), inventory.SpoilageInput{
		DayID:        dayID,
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Ref:          idempotencyKey(r),
		ActorID:      httpx.ActorID(r),
	})
	h.respondEvent(w, "record spoilage", evt, err)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	dayID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := inventory.EventFilter{DayID: dayID, Kind: inventory.EventKind(r.URL.Query().Get("kind"))}
	if raw := r.URL.Query().Get("ingredient_id"); raw != "" {
		filter.IngredientID, _ = strconv.ParseInt(raw, 10, 64)
	}
	events, err := h.service.ListEvents(r.Context(), filter)
	if err != nil {
		h.fail(w, "list events", err)
		return
	}
	if events == nil {
		events = []inventory.Event{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	dayID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snaps, err := h.service.ListSnapshots(r.Context(), dayID)
	if err != nil {
		h.fail(w, "list snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []inventory.Snapshot{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func (h *Handler) respondEvent(w http.ResponseWriter, op string, evt inventory.Event, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, evt)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, inventory.ErrDayNotFound), errors.Is(err, catalog.ErrIngredientNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, inventory.ErrDayNotOpen):
		httpx.Problem(w, http.StatusConflict, "Day Not Open", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidPrice),
		errors.Is(err, inventory.ErrInvalidDirection),
		errors.Is(err, inventory.ErrIngredientInactive),
		errors.Is(err, inventory.ErrInvalidIdempotencyKey),
		errors.Is(err, catalog.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}
