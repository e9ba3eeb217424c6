package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotKind distinguishes opening and closing counts.
type SnapshotKind string

const (
	// SnapshotOpening is the count taken when the day opens.
	SnapshotOpening SnapshotKind = "opening"
	// SnapshotClosing is the count taken when the day closes.
	SnapshotClosing SnapshotKind = "closing"
)

// EventKind enumerates supported mid-day movements.
type EventKind string

const (
	// EventDelivery represents goods received from a supplier.
	EventDelivery EventKind = "delivery"
	// EventTransfer represents a move between shop and storage.
	EventTransfer EventKind = "transfer"
	// EventSpoilage represents discarded stock.
	EventSpoilage EventKind = "spoilage"
)

// Direction of a transfer relative to the shop floor.
type Direction string

const (
	// DirectionIn moves stock from storage into the shop.
	DirectionIn Direction = "in"
	// DirectionOut moves stock from the shop back to storage.
	DirectionOut Direction = "out"
)

// Valid reports whether the direction is supported.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Snapshot is a counted quantity of one ingredient for one day.
type Snapshot struct {
	DayID        int64           `json:"day_id"`
	IngredientID int64           `json:"ingredient_id"`
	Kind         SnapshotKind    `json:"kind"`
	Quantity     decimal.Decimal `json:"quantity"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// Event is an append-only mid-day movement.
type Event struct {
	ID           int64           `json:"id"`
	DayID        int64           `json:"day_id"`
	IngredientID int64           `json:"ingredient_id"`
	Kind         EventKind       `json:"kind"`
	Direction    Direction       `json:"direction,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Reason       string          `json:"reason,omitempty"`
	Ref          string          `json:"ref,omitempty"`
	RecordedAt   time.Time       `json:"recorded_at"`
	CreatedBy    int64           `json:"created_by,omitempty"`
}

// SignedQuantity returns the effect of the event on shop stock.
func (e Event) SignedQuantity() decimal.Decimal {
	switch e.Kind {
	case EventDelivery:
		return e.Quantity
	case EventTransfer:
		if e.Direction == DirectionOut {
			return e.Quantity.Neg()
		}
		return e.Quantity
	case EventSpoilage:
		return e.Quantity.Neg()
	}
	return decimal.Zero
}

// DeliveryInput is used to post a supplier delivery.
type DeliveryInput struct {
	DayID        int64
	IngredientID int64
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Note         string
	Ref          string
	ActorID      int64
}

// TransferInput describes a move between shop and storage.
type TransferInput struct {
	DayID        int64
	IngredientID int64
	Quantity     decimal.Decimal
	Direction    Direction
	Note         string
	Ref          string
	ActorID      int64
}

// SpoilageInput records discarded stock.
type SpoilageInput struct {
	DayID        int64
	IngredientID int64
	Quantity     decimal.Decimal
	Reason       string
	Ref          string
	ActorID      int64
}

// EventFilter filters listed events.
type EventFilter struct {
	DayID        int64
	IngredientID int64
	Kind         EventKind
}

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")

// ErrInvalidPrice indicates invalid price value.
var ErrInvalidPrice = errors.New("inventory: price must be >= 0")

// ErrInvalidDirection indicates a transfer without a supported direction.
var ErrInvalidDirection = errors.New("inventory: transfer direction must be in or out")

// ErrDayNotOpen is returned when posting to a day that is not open.
var ErrDayNotOpen = errors.New("inventory: day is not open")

// ErrIngredientInactive is returned when posting against a deactivated ingredient.
var ErrIngredientInactive = errors.New("inventory: ingredient is deactivated")

// ErrDayNotFound is returned when posting to an unknown daily record.
var ErrDayNotFound = errors.New("inventory: day not found")

// ErrInvalidIdempotencyKey is returned when the idempotency key is not a UUID.
var ErrInvalidIdempotencyKey = errors.New("inventory: idempotency key must be a UUID")
