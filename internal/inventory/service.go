package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	ListSnapshots(ctx context.Context, dayID int64) ([]Snapshot, error)
}

// IngredientPort resolves ingredients for unit and activity checks.
type IngredientPort interface {
	GetIngredient(ctx context.Context, id int64) (catalog.Ingredient, error)
}

// IdempotencyPort records processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records mid-day movements against the open day.
type Service struct {
	repo        RepositoryPort
	ingredients IngredientPort
	audit       AuditPort
	idempotency IdempotencyPort
	listener    EventListener
	now         func() time.Time
}

// NewService builds Service. audit, idem and listener may be nil.
func NewService(repo RepositoryPort, ingredients IngredientPort, audit AuditPort, idem IdempotencyPort, listener EventListener) *Service {
	return &Service{
		repo:        repo,
		ingredients: ingredients,
		audit:       audit,
		idempotency: idem,
		listener:    listener,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RecordDelivery posts goods received from a supplier. Price is the total
// line price in PLN.
func (s *Service) RecordDelivery(ctx context.Context, in DeliveryInput) (Event, error) {
	if in.Price.IsNegative() {
		return Event{}, ErrInvalidPrice
	}
	return s.record(ctx, Event{
		DayID:        in.DayID,
		IngredientID: in.IngredientID,
		Kind:         EventDelivery,
		Quantity:     in.Quantity,
		Price:        in.Price.Round(2),
		Reason:       in.Note,
		Ref:          in.Ref,
		CreatedBy:    in.ActorID,
	})
}

// RecordTransfer posts a move between storage and the shop floor.
func (s *Service) RecordTransfer(ctx context.Context, in TransferInput) (Event, error) {
	if !in.Direction.Valid() {
		return Event{}, ErrInvalidDirection
	}
	return s.record(ctx, Event{
		DayID:        in.DayID,
		IngredientID: in.IngredientID,
		Kind:         EventTransfer,
		Direction:    in.Direction,
		Quantity:     in.Quantity,
		Price:        decimal.Zero,
		Reason:       in.Note,
		Ref:          in.Ref,
		CreatedBy:    in.ActorID,
	})
}

// RecordSpoilage posts discarded stock.
func (s *Service) RecordSpoilage(ctx context.Context, in SpoilageInput) (Event, error) {
	return s.record(ctx, Event{
		DayID:        in.DayID,
		IngredientID: in.IngredientID,
		Kind:         EventSpoilage,
		Quantity:     in.Quantity,
		Price:        decimal.Zero,
		Reason:       in.Reason,
		Ref:          in.Ref,
		CreatedBy:    in.ActorID,
	})
}

// ListEvents lists the movements of a day.
func (s *Service) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	if filter.DayID == 0 {
		return nil, errors.New("inventory: day required")
	}
	return s.repo.ListEvents(ctx, filter)
}

// ListSnapshots lists the opening and closing counts of a day.
func (s *Service) ListSnapshots(ctx context.Context, dayID int64) ([]Snapshot, error) {
	return s.repo.ListSnapshots(ctx, dayID)
}

func (s *Service) record(ctx context.Context, evt Event) (Event, error) {
	if evt.DayID == 0 || evt.IngredientID == 0 {
		return Event{}, errors.New("inventory: day and ingredient required")
	}
	if !evt.Quantity.IsPositive() {
		return Event{}, ErrInvalidQuantity
	}
	if evt.Ref != "" {
		if _, err := uuid.Parse(evt.Ref); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidIdempotencyKey, err)
		}
	}
	ing, err := s.ingredients.GetIngredient(ctx, evt.IngredientID)
	if err != nil {
		return Event{}, err
	}
	if !ing.Active {
		return Event{}, ErrIngredientInactive
	}
	if err := ing.CheckQuantity(evt.Quantity); err != nil {
		return Event{}, err
	}

	key := fmt.Sprintf("%s:%s", evt.Kind, evt.Ref)
	insertedKey := false
	if s.idempotency != nil && evt.Ref != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Event{}, err
		}
		insertedKey = true
	}

	evt.RecordedAt = s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDayOpen(ctx, evt.DayID); err != nil {
			return err
		}
		var err error
		evt, err = tx.InsertEvent(ctx, evt)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Event{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  evt.CreatedBy,
			Action:   fmt.Sprintf("inventory:%s", evt.Kind),
			Entity:   "inventory_event",
			EntityID: fmt.Sprintf("%d", evt.ID),
			At:       evt.RecordedAt,
			Meta: map[string]any{
				"day_id":        evt.DayID,
				"ingredient_id": evt.IngredientID,
				"quantity":      evt.Quantity.String(),
				"direction":     evt.Direction,
			},
		})
	}
	if s.listener != nil {
		_ = s.listener.HandleEventRecorded(ctx, EventRecorded{
			DayID:        evt.DayID,
			EventID:      evt.ID,
			IngredientID: evt.IngredientID,
			Kind:         evt.Kind,
			RecordedAt:   evt.RecordedAt,
		})
	}
	return evt, nil
}
