package days

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
	"github.com/odyssey-erp/daybook/internal/reconcile"
	"github.com/odyssey-erp/daybook/internal/shared"
)

// RepositoryPort abstracts daily record persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDay(ctx context.Context, id int64) (DailyRecord, error)
	GetOpenDay(ctx context.Context) (DailyRecord, error)
	LatestClosedBefore(ctx context.Context, date time.Time) (DailyRecord, error)
	ListDays(ctx context.Context, filter ListFilter) ([]DailyRecord, error)
	ListClosedBetween(ctx context.Context, from, to time.Time) ([]DailyRecord, error)
}

// CatalogPort reads ingredients and variants.
type CatalogPort interface {
	ListIngredients(ctx context.Context, includeInactive bool) ([]catalog.Ingredient, error)
	ListVariants(ctx context.Context, includeInactive bool) ([]catalog.Variant, error)
}

// MovementPort reads counts and mid-day movements.
type MovementPort interface {
	ListEvents(ctx context.Context, filter inventory.EventFilter) ([]inventory.Event, error)
	ListSnapshots(ctx context.Context, dayID int64) ([]inventory.Snapshot, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, event any) error
}

// LockPort serialises open and close across processes.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service runs the day lifecycle: open, reconcile, preview, close.
type Service struct {
	repo       RepositoryPort
	catalog    CatalogPort
	movements  MovementPort
	thresholds reconcile.Thresholds
	logger     *slog.Logger

	audit     AuditPort
	publisher Publisher
	locker    LockPort
	cache     *SummaryCache
	metrics   *Metrics
	now       func() time.Time
}

// NewService constructs a Service. Optional collaborators are attached with the With* setters.
func NewService(repo RepositoryPort, cat CatalogPort, movements MovementPort, thresholds reconcile.Thresholds, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		catalog:    cat,
		movements:  movements,
		thresholds: thresholds,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithAudit attaches the audit logger.
func (s *Service) WithAudit(audit AuditPort) { s.audit = audit }

// WithPublisher attaches the domain event publisher.
func (s *Service) WithPublisher(p Publisher) { s.publisher = p }

// WithLocker attaches the cross-process lifecycle lock.
func (s *Service) WithLocker(l LockPort) { s.locker = l }

// WithCache attaches the summary cache.
func (s *Service) WithCache(c *SummaryCache) { s.cache = c }

// WithMetrics attaches Prometheus collectors.
func (s *Service) WithMetrics(m *Metrics) { s.metrics = m }

// OpenDay creates the record for in.Date and writes its opening counts.
func (s *Service) OpenDay(ctx context.Context, in OpenDayInput) (DailyRecord, error) {
	if err := in.Validate(); err != nil {
		return DailyRecord{}, err
	}
	release, err := s.lock(ctx)
	if err != nil {
		return DailyRecord{}, err
	}
	defer release()

	ingredients, err := s.catalog.ListIngredients(ctx, false)
	if err != nil {
		return DailyRecord{}, err
	}
	carried, err := s.carryOver(ctx, in.Date)
	if err != nil {
		return DailyRecord{}, err
	}
	known := make(map[int64]catalog.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		known[ing.ID] = ing
	}
	for id, qty := range in.Opening {
		ing, ok := known[id]
		if !ok {
			return DailyRecord{}, fmt.Errorf("%w: ingredient %d is unknown or deactivated", ErrInvalidInput, id)
		}
		if err := ing.CheckQuantity(qty); err != nil {
			return DailyRecord{}, fmt.Errorf("%s: %w", ing.Name, err)
		}
	}

	now := s.now()
	var opening []inventory.Snapshot
	for _, ing := range ingredients {
		qty, ok := in.Opening[ing.ID]
		if !ok {
			qty, ok = carried[ing.ID]
		}
		if !ok {
			continue
		}
		opening = append(opening, inventory.Snapshot{IngredientID: ing.ID, Kind: inventory.SnapshotOpening, Quantity: qty, RecordedAt: now})
	}

	var rec DailyRecord
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		openID, err := tx.LockOpenPointer(ctx)
		if err != nil {
			return err
		}
		if openID != 0 {
			return ErrDayAlreadyOpen
		}
		rec, err = tx.InsertDay(ctx, DailyRecord{
			Date:     in.Date,
			Status:   StatusOpen,
			Notes:    in.Notes,
			OpenedBy: in.ActorID,
			OpenedAt: now,
		})
		if err != nil {
			return err
		}
		for i := range opening {
			opening[i].DayID = rec.ID
		}
		if err := tx.Inventory().ReplaceSnapshots(ctx, rec.ID, inventory.SnapshotOpening, opening); err != nil {
			return err
		}
		return tx.SetOpenPointer(ctx, rec.ID)
	})
	if err != nil {
		return DailyRecord{}, err
	}
	s.record(ctx, in.ActorID, "days:open", rec.ID, map[string]any{
		"date":          rec.Date.Format(DateLayout),
		"opening_count": len(opening),
		"carried_over":  len(carried) > 0,
	})
	return rec, nil
}

// carryOver returns the closing counts of the latest closed day before date.
func (s *Service) carryOver(ctx context.Context, date time.Time) (map[int64]decimal.Decimal, error) {
	prev, err := s.repo.LatestClosedBefore(ctx, date)
	if errors.Is(err, ErrDayNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snaps, err := s.movements.ListSnapshots(ctx, prev.ID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal)
	for _, snap := range snaps {
		if snap.Kind == inventory.SnapshotClosing && !snap.Quantity.IsNegative() {
			out[snap.IngredientID] = snap.Quantity
		}
	}
	return out, nil
}

// CurrentDay returns the open day.
func (s *Service) CurrentDay(ctx context.Context) (DailyRecord, error) {
	return s.repo.GetOpenDay(ctx)
}

// GetDay returns a daily record.
func (s *Service) GetDay(ctx context.Context, id int64) (DailyRecord, error) {
	return s.repo.GetDay(ctx, id)
}

// List returns daily records matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]DailyRecord, error) {
	if filter.Status != "" && filter.Status != StatusOpen && filter.Status != StatusClosed {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	return s.repo.ListDays(ctx, filter)
}

// Reconcile recomputes a day from its stored counts and movements without
// writing anything.
func (s *Service) Reconcile(ctx context.Context, dayID int64) (reconcile.Result, error) {
	if _, err := s.repo.GetDay(ctx, dayID); err != nil {
		return reconcile.Result{}, err
	}
	start := time.Now()
	defer s.metrics.observeRun(start)
	in, err := s.loadInput(ctx, dayID)
	if err != nil {
		return reconcile.Result{}, err
	}
	return reconcile.Reconcile(in), nil
}

// PreviewClosing reconciles an open day as if proposed were its closing
// counts. Blocking problems are reported inside the result.
func (s *Service) PreviewClosing(ctx context.Context, dayID int64, proposed map[int64]decimal.Decimal) (reconcile.Result, error) {
	rec, err := s.repo.GetDay(ctx, dayID)
	if err != nil {
		return reconcile.Result{}, err
	}
	if !rec.IsOpen() {
		return reconcile.Result{}, ErrDayClosed
	}
	start := time.Now()
	defer s.metrics.observeRun(start)
	in, err := s.loadInput(ctx, dayID)
	if err != nil {
		return reconcile.Result{}, err
	}
	if err := checkClosing(in.Ingredients, proposed); err != nil {
		return reconcile.Result{}, err
	}
	in.Snapshots = withClosing(in.Snapshots, dayID, proposed, s.now())
	return reconcile.Reconcile(in), nil
}

// CloseDay commits the closing counts and the reconciliation outcome in one
// transaction. When the gate fails nothing is written; the result is still
// returned alongside an error listing every blocking issue.
func (s *Service) CloseDay(ctx context.Context, in CloseDayInput) (reconcile.Result, error) {
	if in.DayID == 0 {
		return reconcile.Result{}, fmt.Errorf("%w: day required", ErrInvalidInput)
	}
	release, err := s.lock(ctx)
	if err != nil {
		return reconcile.Result{}, err
	}
	defer release()

	ingredients, variants, err := s.loadCatalog(ctx)
	if err != nil {
		return reconcile.Result{}, err
	}
	if err := checkClosing(ingredients, in.Closing); err != nil {
		return reconcile.Result{}, err
	}

	start := time.Now()
	now := s.now()
	var (
		res reconcile.Result
		rec DailyRecord
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = tx.LockDay(ctx, in.DayID)
		if err != nil {
			return err
		}
		if !rec.IsOpen() {
			return ErrDayClosed
		}
		inv := tx.Inventory()
		snaps, err := inv.ListSnapshots(ctx, in.DayID)
		if err != nil {
			return err
		}
		events, err := inv.ListEvents(ctx, inventory.EventFilter{DayID: in.DayID})
		if err != nil {
			return err
		}
		res = reconcile.Reconcile(reconcile.Input{
			DayID:       in.DayID,
			Ingredients: ingredients,
			Snapshots:   withClosing(snaps, in.DayID, in.Closing, now),
			Events:      events,
			Variants:    variants,
			Thresholds:  s.thresholds,
		})
		if err := res.Err(); err != nil {
			return err
		}

		if err := inv.ReplaceSnapshots(ctx, in.DayID, inventory.SnapshotClosing, closingSnapshots(res, now)); err != nil {
			return err
		}
		rec.Status = StatusClosed
		rec.ClosedBy = in.ActorID
		rec.ClosedAt = &now
		if in.Notes != "" {
			rec.Notes = in.Notes
		}
		rec.applyTotals(res)
		rec.Result = &res
		if err := tx.MarkClosed(ctx, rec); err != nil {
			return err
		}
		openID, err := tx.LockOpenPointer(ctx)
		if err != nil {
			return err
		}
		if openID == rec.ID {
			return tx.SetOpenPointer(ctx, 0)
		}
		return nil
	})
	s.metrics.observeRun(start)
	if err != nil {
		if len(reconcile.Issues(err)) > 0 {
			s.metrics.observeRejected(err)
			s.logger.Info("close rejected", slog.Int64("day_id", in.DayID), slog.Int("issues", len(reconcile.Issues(err))))
			return res, err
		}
		return reconcile.Result{}, err
	}

	s.metrics.observeClosed(res)
	s.record(ctx, in.ActorID, "days:close", rec.ID, map[string]any{
		"total_income":   rec.TotalIncome.StringFixed(2),
		"items_sold":     rec.ItemsSold,
		"warning_count":  rec.WarningCount,
		"critical_count": rec.CriticalCount,
	})
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, EventTypeDayClosed, fmt.Sprintf("%d", rec.ID), newDayClosed(rec)); err != nil {
			s.logger.Error("publish day closed", slog.Int64("day_id", rec.ID), slog.Any("error", err))
		}
	}
	s.invalidate(ctx)
	s.logger.Info("day closed",
		slog.Int64("day_id", rec.ID),
		slog.String("total_income", rec.TotalIncome.StringFixed(2)),
		slog.Int("alerts", len(res.Alerts)))
	return res, nil
}

// AdminUpdate edits notes or totals of a closed day. Reopening is not supported.
func (s *Service) AdminUpdate(ctx context.Context, in AdminUpdateInput) (DailyRecord, error) {
	for _, v := range []*decimal.Decimal{in.TotalIncome, in.DeliveryCost, in.SpoilageCost} {
		if v != nil && v.IsNegative() {
			return DailyRecord{}, fmt.Errorf("%w: totals must be >= 0", ErrInvalidInput)
		}
	}
	var rec DailyRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockDay(ctx, in.DayID)
		if err != nil {
			return err
		}
		if current.Status != StatusClosed {
			return ErrDayNotClosed
		}
		if in.Notes != nil {
			current.Notes = *in.Notes
		}
		if in.TotalIncome != nil {
			current.TotalIncome = in.TotalIncome.Round(2)
		}
		if in.DeliveryCost != nil {
			current.DeliveryCost = in.DeliveryCost.Round(2)
		}
		if in.SpoilageCost != nil {
			current.SpoilageCost = in.SpoilageCost.Round(2)
		}
		rec, err = tx.UpdateDay(ctx, current)
		return err
	})
	if err != nil {
		return DailyRecord{}, err
	}
	s.record(ctx, in.ActorID, "days:admin_update", rec.ID, map[string]any{
		"notes_changed":  in.Notes != nil,
		"totals_changed": in.TotalIncome != nil || in.DeliveryCost != nil || in.SpoilageCost != nil,
	})
	s.invalidate(ctx)
	return rec, nil
}

// Delete removes a day with its counts and movements.
func (s *Service) Delete(ctx context.Context, dayID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockDay(ctx, dayID); err != nil {
			return err
		}
		return tx.DeleteDay(ctx, dayID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "days:delete", dayID, nil)
	s.invalidate(ctx)
	return nil
}

// MonthlyReport aggregates closed days of a calendar month.
func (s *Service) MonthlyReport(ctx context.Context, year, month int) (MonthlyReport, error) {
	if year < 2000 || month < 1 || month > 12 {
		return MonthlyReport{}, fmt.Errorf("%w: invalid year or month", ErrInvalidInput)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	records, err := s.repo.ListClosedBetween(ctx, from, to)
	if err != nil {
		return MonthlyReport{}, err
	}
	report := MonthlyReport{
		Year:         year,
		Month:        month,
		TotalIncome:  decimal.Zero,
		DeliveryCost: decimal.Zero,
		SpoilageCost: decimal.Zero,
		Days:         make([]DailyRecord, 0, len(records)),
	}
	for _, rec := range records {
		report.DayCount++
		report.TotalIncome = report.TotalIncome.Add(rec.TotalIncome)
		report.DeliveryCost = report.DeliveryCost.Add(rec.DeliveryCost)
		report.SpoilageCost = report.SpoilageCost.Add(rec.SpoilageCost)
		report.ItemsSold += rec.ItemsSold
		report.WarningCount += rec.WarningCount
		report.CriticalCount += rec.CriticalCount
		rec.Result = nil
		report.Days = append(report.Days, rec)
	}
	return report, nil
}

func (s *Service) loadCatalog(ctx context.Context) ([]catalog.Ingredient, []catalog.Variant, error) {
	var (
		ingredients []catalog.Ingredient
		variants    []catalog.Variant
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ingredients, err = s.catalog.ListIngredients(ctx, true)
		return err
	})
	g.Go(func() error {
		var err error
		variants, err = s.catalog.ListVariants(ctx, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ingredients, variants, nil
}

// loadInput gathers the stored inputs of a day concurrently.
func (s *Service) loadInput(ctx context.Context, dayID int64) (reconcile.Input, error) {
	in := reconcile.Input{DayID: dayID, Thresholds: s.thresholds}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Ingredients, in.Variants, err = s.loadCatalog(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Snapshots, err = s.movements.ListSnapshots(gctx, dayID)
		return err
	})
	g.Go(func() error {
		var err error
		in.Events, err = s.movements.ListEvents(gctx, inventory.EventFilter{DayID: dayID})
		return err
	})
	if err := g.Wait(); err != nil {
		return reconcile.Input{}, err
	}
	return in, nil
}

func (s *Service) lock(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, shared.DayLifecycleLockKey)
	if errors.Is(err, shared.ErrLockHeld) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump summary cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, dayID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "daily_record",
		EntityID: fmt.Sprintf("%d", dayID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// checkClosing rejects closing counts for unknown ingredients or with a
// precision the unit does not allow. Negative counts pass through and are
// reported by the reconciliation gate.
func checkClosing(ingredients []catalog.Ingredient, closing map[int64]decimal.Decimal) error {
	known := make(map[int64]catalog.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		known[ing.ID] = ing
	}
	for id, qty := range closing {
		ing, ok := known[id]
		if !ok {
			return fmt.Errorf("%w: ingredient %d is unknown", ErrInvalidInput, id)
		}
		if qty.IsNegative() {
			continue
		}
		if err := ing.CheckQuantity(qty); err != nil {
			return fmt.Errorf("%s: %w", ing.Name, err)
		}
	}
	return nil
}

// withClosing overlays proposed closing counts on the stored snapshots.
func withClosing(snaps []inventory.Snapshot, dayID int64, closing map[int64]decimal.Decimal, at time.Time) []inventory.Snapshot {
	out := make([]inventory.Snapshot, 0, len(snaps)+len(closing))
	for _, snap := range snaps {
		if snap.Kind == inventory.SnapshotClosing {
			if _, replaced := closing[snap.IngredientID]; replaced {
				continue
			}
		}
		out = append(out, snap)
	}
	ids := make([]int64, 0, len(closing))
	for id := range closing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, inventory.Snapshot{
			DayID:        dayID,
			IngredientID: id,
			Kind:         inventory.SnapshotClosing,
			Quantity:     closing[id],
			RecordedAt:   at,
		})
	}
	return out
}

// closingSnapshots extracts the closing counts the result was computed from.
func closingSnapshots(res reconcile.Result, at time.Time) []inventory.Snapshot {
	out := make([]inventory.Snapshot, 0, len(res.Lines))
	for _, line := range res.Lines {
		if line.Closing == nil {
			continue
		}
		out = append(out, inventory.Snapshot{
			DayID:        res.DayID,
			IngredientID: line.IngredientID,
			Kind:         inventory.SnapshotClosing,
			Quantity:     *line.Closing,
			RecordedAt:   at,
		})
	}
	return out
}
