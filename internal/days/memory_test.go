package days

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
	"github.com/odyssey-erp/daybook/internal/shared"
)

type memoryStore struct {
	mu        sync.Mutex
	days      map[int64]DailyRecord
	openID    int64
	nextDay   int64
	snapshots map[int64][]inventory.Snapshot
	events    []inventory.Event
	nextEvent int64
}

type memoryTx struct {
	store *memoryStore
}

type memoryInventoryTx struct {
	store *memoryStore
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		days:      make(map[int64]DailyRecord),
		snapshots: make(map[int64][]inventory.Snapshot),
	}
}

// WithTx restores the previous state when fn fails.
func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := make(map[int64]DailyRecord, len(s.days))
	for k, v := range s.days {
		days[k] = v
	}
	snaps := make(map[int64][]inventory.Snapshot, len(s.snapshots))
	for k, v := range s.snapshots {
		snaps[k] = append([]inventory.Snapshot(nil), v...)
	}
	events := append([]inventory.Event(nil), s.events...)
	openID, nextDay, nextEvent := s.openID, s.nextDay, s.nextEvent

	if err := fn(ctx, &memoryTx{store: s}); err != nil {
		s.days, s.snapshots, s.events = days, snaps, events
		s.openID, s.nextDay, s.nextEvent = openID, nextDay, nextEvent
		return err
	}
	return nil
}

func (s *memoryStore) GetDay(ctx context.Context, id int64) (DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.days[id]
	if !ok {
		return DailyRecord{}, ErrDayNotFound
	}
	return rec, nil
}

func (s *memoryStore) GetOpenDay(ctx context.Context) (DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.days[s.openID]
	if !ok {
		return DailyRecord{}, ErrNoOpenDay
	}
	return rec, nil
}

func (s *memoryStore) LatestClosedBefore(ctx context.Context, date time.Time) (DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best DailyRecord
	for _, rec := range s.days {
		if rec.Status == StatusClosed && rec.Date.Before(date) && rec.Date.After(best.Date) {
			best = rec
		}
	}
	if best.ID == 0 {
		return DailyRecord{}, ErrDayNotFound
	}
	return best, nil
}

func (s *memoryStore) ListDays(ctx context.Context, filter ListFilter) ([]DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DailyRecord
	for _, rec := range s.days {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *memoryStore) ListClosedBetween(ctx context.Context, from, to time.Time) ([]DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DailyRecord
	for _, rec := range s.days {
		if rec.Status == StatusClosed && !rec.Date.Before(from) && !rec.Date.After(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memoryStore) ListEvents(ctx context.Context, filter inventory.EventFilter) ([]inventory.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventsOf(filter.DayID), nil
}

func (s *memoryStore) ListSnapshots(ctx context.Context, dayID int64) ([]inventory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Snapshot(nil), s.snapshots[dayID]...), nil
}

func (s *memoryStore) eventsOf(dayID int64) []inventory.Event {
	var out []inventory.Event
	for _, evt := range s.events {
		if evt.DayID == dayID {
			out = append(out, evt)
		}
	}
	return out
}

func (s *memoryStore) addEvent(evt inventory.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvent++
	evt.ID = s.nextEvent
	s.events = append(s.events, evt)
}

func (s *memoryStore) snapshotsOf(dayID int64, kind inventory.SnapshotKind) map[int64]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]decimal.Decimal)
	for _, snap := range s.snapshots[dayID] {
		if snap.Kind == kind {
			out[snap.IngredientID] = snap.Quantity
		}
	}
	return out
}

func (tx *memoryTx) LockOpenPointer(ctx context.Context) (int64, error) {
	return tx.store.openID, nil
}

func (tx *memoryTx) SetOpenPointer(ctx context.Context, dayID int64) error {
	tx.store.openID = dayID
	return nil
}

func (tx *memoryTx) InsertDay(ctx context.Context, rec DailyRecord) (DailyRecord, error) {
	for _, existing := range tx.store.days {
		if existing.Date.Equal(rec.Date) {
			return DailyRecord{}, ErrDuplicateDate
		}
	}
	tx.store.nextDay++
	rec.ID = tx.store.nextDay
	rec.UpdatedAt = rec.OpenedAt
	tx.store.days[rec.ID] = rec
	return rec, nil
}

func (tx *memoryTx) LockDay(ctx context.Context, id int64) (DailyRecord, error) {
	rec, ok := tx.store.days[id]
	if !ok {
		return DailyRecord{}, ErrDayNotFound
	}
	return rec, nil
}

func (tx *memoryTx) MarkClosed(ctx context.Context, rec DailyRecord) error {
	if _, ok := tx.store.days[rec.ID]; !ok {
		return ErrDayNotFound
	}
	rec.Status = StatusClosed
	tx.store.days[rec.ID] = rec
	return nil
}

func (tx *memoryTx) UpdateDay(ctx context.Context, rec DailyRecord) (DailyRecord, error) {
	if _, ok := tx.store.days[rec.ID]; !ok {
		return DailyRecord{}, ErrDayNotFound
	}
	tx.store.days[rec.ID] = rec
	return rec, nil
}

func (tx *memoryTx) DeleteDay(ctx context.Context, id int64) error {
	if _, ok := tx.store.days[id]; !ok {
		return ErrDayNotFound
	}
	if tx.store.openID == id {
		tx.store.openID = 0
	}
	delete(tx.store.days, id)
	delete(tx.store.snapshots, id)
	kept := tx.store.events[:0:0]
	for _, evt := range tx.store.events {
		if evt.DayID != id {
			kept = append(kept, evt)
		}
	}
	tx.store.events = kept
	return nil
}

func (tx *memoryTx) Inventory() inventory.TxRepository {
	return &memoryInventoryTx{store: tx.store}
}

func (tx *memoryInventoryTx) LockDayOpen(ctx context.Context, dayID int64) error {
	rec, ok := tx.store.days[dayID]
	if !ok {
		return inventory.ErrDayNotFound
	}
	if !rec.IsOpen() {
		return inventory.ErrDayNotOpen
	}
	return nil
}

func (tx *memoryInventoryTx) InsertEvent(ctx context.Context, evt inventory.Event) (inventory.Event, error) {
	tx.store.nextEvent++
	evt.ID = tx.store.nextEvent
	tx.store.events = append(tx.store.events, evt)
	return evt, nil
}

func (tx *memoryInventoryTx) ReplaceSnapshots(ctx context.Context, dayID int64, kind inventory.SnapshotKind, snaps []inventory.Snapshot) error {
	kept := tx.store.snapshots[dayID][:0:0]
	for _, s := range tx.store.snapshots[dayID] {
		if s.Kind != kind {
			kept = append(kept, s)
		}
	}
	for _, s := range snaps {
		s.DayID = dayID
		s.Kind = kind
		kept = append(kept, s)
	}
	tx.store.snapshots[dayID] = kept
	return nil
}

func (tx *memoryInventoryTx) ListEvents(ctx context.Context, filter inventory.EventFilter) ([]inventory.Event, error) {
	return tx.store.eventsOf(filter.DayID), nil
}

func (tx *memoryInventoryTx) ListSnapshots(ctx context.Context, dayID int64) ([]inventory.Snapshot, error) {
	return append([]inventory.Snapshot(nil), tx.store.snapshots[dayID]...), nil
}

type catalogStub struct {
	ingredients []catalog.Ingredient
	variants    []catalog.Variant
}

func (c catalogStub) ListIngredients(ctx context.Context, includeInactive bool) ([]catalog.Ingredient, error) {
	var out []catalog.Ingredient
	for _, ing := range c.ingredients {
		if includeInactive || ing.Active {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (c catalogStub) ListVariants(ctx context.Context, includeInactive bool) ([]catalog.Variant, error) {
	var out []catalog.Variant
	for _, v := range c.variants {
		if includeInactive || v.Active {
			out = append(out, v)
		}
	}
	return out, nil
}

type auditRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type publishedEvent struct {
	eventType string
	key       string
	event     any
}

type capturePublisher struct {
	events []publishedEvent
}

func (p *capturePublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	p.events = append(p.events, publishedEvent{eventType: eventType, key: key, event: event})
	return nil
}
