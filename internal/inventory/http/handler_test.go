package inventoryhttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/daybook/internal/inventory"
	"github.com/odyssey-erp/daybook/internal/shared"
)

type stubInventoryService struct {
	inventoryService
	deliveryFn func(ctx context.Context, in inventory.DeliveryInput) (inventory.Event, error)
	transferFn func(ctx context.Context, in inventory.TransferInput) (inventory.Event, error)
}

func (s *stubInventoryService) RecordDelivery(ctx context.Context, in inventory.DeliveryInput) (inventory.Event, error) {
	return s.deliveryFn(ctx, in)
}

func (s *stubInventoryService) RecordTransfer(ctx context.Context, in inventory.TransferInput) (inventory.Event, error) {
	return s.transferFn(ctx, in)
}

func newTestRouter(svc inventoryService) http.Handler {
	r := chi.NewRouter()
	r.Route("/days", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes)
	return r
}

func TestRecordDeliveryForwardsIdempotencyKey(t *testing.T) {
	var captured inventory.DeliveryInput
	svc := &stubInventoryService{
		deliveryFn: func(ctx context.Context, in inventory.DeliveryInput) (inventory.Event, error) {
			captured = in
			return inventory.Event{ID: 1, DayID: in.DayID, Kind: inventory.EventDelivery}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/days/7/deliveries", strings.NewReader(`{"ingredient_id":1,"quantity":"5","price":"200"}`))
	req.Header.Set(IdempotencyHeader, "0b4a3c1e-8f87-4c35-9d5a-2f6b1b7d4e10")
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, int64(7), captured.DayID)
	require.Equal(t, "0b4a3c1e-8f87-4c35-9d5a-2f6b1b7d4e10", captured.Ref)
	require.Equal(t, "200", captured.Price.String())
}

func TestRecordDeliveryMapsErrors(t *testing.T) {
	cases := map[error]int{
		inventory.ErrDayNotOpen:         http.StatusConflict,
		shared.ErrIdempotencyConflict:   http.StatusConflict,
		inventory.ErrDayNotFound:        http.StatusNotFound,
		inventory.ErrInvalidQuantity:    http.StatusBadRequest,
		inventory.ErrIngredientInactive: http.StatusBadRequest,
	}
	for svcErr, status := range cases {
		svcErr := svcErr
		svc := &stubInventoryService{
			deliveryFn: func(ctx context.Context, in inventory.DeliveryInput) (inventory.Event, error) {
				return inventory.Event{}, svcErr
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/days/7/deliveries", strings.NewReader(`{"ingredient_id":1,"quantity":"5"}`))
		rr := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rr, req)
		require.Equal(t, status, rr.Code, svcErr.Error())
	}
}

func TestRecordTransferValidatesDirection(t *testing.T) {
	svc := &stubInventoryService{}
	req := httptest.NewRequest(http.MethodPost, "/days/7/transfers", strings.NewReader(`{"ingredient_id":1,"quantity":"5","direction":"sideways"}`))
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
