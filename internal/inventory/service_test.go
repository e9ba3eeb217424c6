package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/shared"
)

type memoryRepo struct {
	openDays  map[int64]bool
	events    []Event
	snapshots map[int64][]Snapshot
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(openDays ...int64) *memoryRepo {
	repo := &memoryRepo{openDays: make(map[int64]bool), snapshots: make(map[int64][]Snapshot)}
	for _, id := range openDays {
		repo.openDays[id] = true
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (tx *memoryTx) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	return tx.repo.ListEvents(ctx, filter)
}

func (tx *memoryTx) ListSnapshots(ctx context.Context, dayID int64) ([]Snapshot, error) {
	return tx.repo.ListSnapshots(ctx, dayID)
}

func (r *memoryRepo) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	var out []Event
	for _, evt := range r.events {
		if evt.DayID != filter.DayID {
			continue
		}
		if filter.Kind != "" && evt.Kind != filter.Kind {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

func (r *memoryRepo) ListSnapshots(ctx context.Context, dayID int64) ([]Snapshot, error) {
	return r.snapshots[dayID], nil
}

func (tx *memoryTx) LockDayOpen(ctx context.Context, dayID int64) error {
	open, ok := tx.repo.openDays[dayID]
	if !ok {
		return ErrDayNotFound
	}
	if !open {
		return ErrDayNotOpen
	}
	return nil
}

func (tx *memoryTx) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	tx.repo.nextID++
	evt.ID = tx.repo.nextID
	tx.repo.events = append(tx.repo.events, evt)
	return evt, nil
}

func (tx *memoryTx) ReplaceSnapshots(ctx context.Context, dayID int64, kind SnapshotKind, snaps []Snapshot) error {
	kept := tx.repo.snapshots[dayID][:0:0]
	for _, s := range tx.repo.snapshots[dayID] {
		if s.Kind != kind {
			kept = append(kept, s)
		}
	}
	tx.repo.snapshots[dayID] = append(kept, snaps...)
	return nil
}

type ingredientStub map[int64]catalog.Ingredient

func (s ingredientStub) GetIngredient(ctx context.Context, id int64) (catalog.Ingredient, error) {
	ing, ok := s[id]
	if !ok {
		return catalog.Ingredient{}, catalog.ErrIngredientNotFound
	}
	return ing, nil
}

type memoryIdempotency struct {
	keys    map[string]bool
	deleted []string
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type recordingListener struct {
	seen []EventRecorded
}

func (l *recordingListener) HandleEventRecorded(ctx context.Context, evt EventRecorded) error {
	l.seen = append(l.seen, evt)
	return nil
}

type auditRecorder struct {
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func testIngredients() ingredientStub {
	return ingredientStub{
		1: {ID: 1, Name: "Meat", Unit: catalog.UnitWeight, Active: true},
		2: {ID: 2, Name: "Buns", Unit: catalog.UnitCount, Active: true},
		3: {ID: 3, Name: "Old Sauce", Unit: catalog.UnitWeight, Active: false},
	}
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRecordDeliveryAppendsEvent(t *testing.T) {
	repo := newMemoryRepo(7)
	listener := &recordingListener{}
	svc := NewService(repo, testIngredients(), nil, nil, listener)

	evt, err := svc.RecordDelivery(context.Background(), DeliveryInput{
		DayID:        7,
		IngredientID: 1,
		Quantity:     qty("5.00"),
		Price:        qty("200"),
		ActorID:      2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), evt.ID)
	require.Equal(t, EventDelivery, evt.Kind)
	require.False(t, evt.RecordedAt.IsZero())
	require.Len(t, repo.events, 1)
	require.Len(t, listener.seen, 1)
	require.Equal(t, int64(7), listener.seen[0].DayID)
}

func TestRecordStampsAuditWithRecordingTime(t *testing.T) {
	audit := &auditRecorder{}
	svc := NewService(newMemoryRepo(7), testIngredients(), audit, nil, nil)
	stamp := time.Date(2026, 3, 14, 18, 5, 0, 0, time.UTC)
	svc.now = func() time.Time { return stamp }

	evt, err := svc.RecordSpoilage(context.Background(), SpoilageInput{DayID: 7, IngredientID: 1, Quantity: qty("0.25"), ActorID: 4})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	require.Equal(t, stamp, audit.logs[0].At)
	require.Equal(t, stamp, evt.RecordedAt)
	require.Equal(t, "inventory:spoilage", audit.logs[0].Action)
}

func TestRecordTransferRequiresDirection(t *testing.T) {
	svc := NewService(newMemoryRepo(7), testIngredients(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordTransfer(ctx, TransferInput{DayID: 7, IngredientID: 2, Quantity: qty("10")})
	require.ErrorIs(t, err, ErrInvalidDirection)

	evt, err := svc.RecordTransfer(ctx, TransferInput{DayID: 7, IngredientID: 2, Quantity: qty("10"), Direction: DirectionOut})
	require.NoError(t, err)
	require.True(t, evt.SignedQuantity().Equal(qty("-10")))
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	repo := newMemoryRepo(7)
	repo.openDays[8] = false
	svc := NewService(repo, testIngredients(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordSpoilage(ctx, SpoilageInput{DayID: 7, IngredientID: 1, Quantity: qty("0")})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RecordSpoilage(ctx, SpoilageInput{DayID: 7, IngredientID: 2, Quantity: qty("1.5")})
	require.ErrorIs(t, err, catalog.ErrInvalidQuantity)

	_, err = svc.RecordSpoilage(ctx, SpoilageInput{DayID: 7, IngredientID: 3, Quantity: qty("1")})
	require.ErrorIs(t, err, ErrIngredientInactive)

	_, err = svc.RecordDelivery(ctx, DeliveryInput{DayID: 7, IngredientID: 1, Quantity: qty("1"), Price: qty("-1")})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.RecordSpoilage(ctx, SpoilageInput{DayID: 8, IngredientID: 1, Quantity: qty("1")})
	require.ErrorIs(t, err, ErrDayNotOpen)

	_, err = svc.RecordSpoilage(ctx, SpoilageInput{DayID: 99, IngredientID: 1, Quantity: qty("1")})
	require.ErrorIs(t, err, ErrDayNotFound)

	require.Empty(t, repo.events)
}

func TestRecordIsIdempotentByKey(t *testing.T) {
	repo := newMemoryRepo(7)
	idem := &memoryIdempotency{keys: make(map[string]bool)}
	svc := NewService(repo, testIngredients(), nil, idem, nil)
	ctx := context.Background()
	in := DeliveryInput{DayID: 7, IngredientID: 1, Quantity: qty("2"), Price: qty("80"), Ref: "0b4a3c1e-8f87-4c35-9d5a-2f6b1b7d4e10"}

	_, err := svc.RecordDelivery(ctx, in)
	require.NoError(t, err)
	_, err = svc.RecordDelivery(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.events, 1)

	_, err = svc.RecordDelivery(ctx, DeliveryInput{DayID: 7, IngredientID: 1, Quantity: qty("1"), Ref: "not-a-uuid"})
	require.ErrorIs(t, err, ErrInvalidIdempotencyKey)
}

func TestRecordReleasesKeyWhenDayClosed(t *testing.T) {
	repo := newMemoryRepo()
	repo.openDays[7] = false
	idem := &memoryIdempotency{keys: make(map[string]bool)}
	svc := NewService(repo, testIngredients(), nil, idem, nil)

	ref := "7d8c86d9-a1d6-4f0e-9bd6-50c2d0a0a5c1"
	_, err := svc.RecordSpoilage(context.Background(), SpoilageInput{DayID: 7, IngredientID: 1, Quantity: qty("1"), Ref: ref})
	require.ErrorIs(t, err, ErrDayNotOpen)
	require.Equal(t, []string{"spoilage:" + ref}, idem.deleted)
	require.Empty(t, idem.keys)
}

func TestListEventsFiltersByKind(t *testing.T) {
	repo := newMemoryRepo(7)
	svc := NewService(repo, testIngredients(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordDelivery(ctx, DeliveryInput{DayID: 7, IngredientID: 1, Quantity: qty("1"), Price: qty("40")})
	require.NoError(t, err)
	_, err = svc.RecordSpoilage(ctx, SpoilageInput{DayID: 7, IngredientID: 1, Quantity: qty("0.25"), Reason: "dropped"})
	require.NoError(t, err)

	events, err := svc.ListEvents(ctx, EventFilter{DayID: 7, Kind: EventSpoilage})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "dropped", events[0].Reason)

	_, err = svc.ListEvents(ctx, EventFilter{})
	require.Error(t, err)
}
