package days

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
	"github.com/odyssey-erp/daybook/internal/reconcile"
	"github.com/odyssey-erp/daybook/internal/shared"
)

var fixedNow = time.Date(2026, 10, 15, 22, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func burgerCatalog() catalogStub {
	return catalogStub{
		ingredients: []catalog.Ingredient{
			{ID: 1, Name: "Meat", Unit: catalog.UnitWeight, UnitLabel: "kg", UnitCost: d("40"), Active: true},
			{ID: 2, Name: "Buns", Unit: catalog.UnitCount, UnitLabel: "pcs", UnitCost: decimal.Zero, Active: true},
			{ID: 3, Name: "Potatoes", Unit: catalog.UnitWeight, UnitLabel: "kg", UnitCost: decimal.Zero, Active: true},
			{ID: 4, Name: "Ketchup", Unit: catalog.UnitWeight, UnitLabel: "kg", UnitCost: decimal.Zero, Active: true},
		},
		variants: []catalog.Variant{
			{ID: 10, ProductID: 1, Name: "Burger", Price: d("25.00"), Active: true, Recipe: []catalog.RecipeEntry{
				{IngredientID: 1, Quantity: d("0.15"), IsPrimary: true},
				{IngredientID: 2, Quantity: d("1")},
			}},
			{ID: 11, ProductID: 2, Name: "Fries", Price: d("9.00"), Active: true, Recipe: []catalog.RecipeEntry{
				{IngredientID: 3, Quantity: d("0.2"), IsPrimary: true},
				{IngredientID: 4, Quantity: d("0.02")},
			}},
		},
	}
}

func burgerClosing() map[int64]decimal.Decimal {
	return map[int64]decimal.Decimal{1: d("3"), 2: d("20"), 3: d("5"), 4: d("1")}
}

type fixture struct {
	store     *memoryStore
	svc       *Service
	audit     *auditRecorder
	publisher *capturePublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := newMemoryStore()
	audit := &auditRecorder{}
	publisher := &capturePublisher{}
	svc := NewService(store, burgerCatalog(), store, reconcile.DefaultThresholds(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return fixedNow })
	svc.WithAudit(audit)
	svc.WithPublisher(publisher)
	return fixture{store: store, svc: svc, audit: audit, publisher: publisher}
}

// openBurgerDay opens a day and posts the movements of the reference burger day.
func (f fixture) openBurgerDay(t *testing.T) DailyRecord {
	t.Helper()
	rec, err := f.svc.OpenDay(context.Background(), OpenDayInput{
		Date:    day("2026-10-15"),
		Opening: map[int64]decimal.Decimal{1: d("10"), 2: d("100"), 3: d("5"), 4: d("3")},
		ActorID: 1,
	})
	require.NoError(t, err)
	f.store.addEvent(inventory.Event{DayID: rec.ID, IngredientID: 1, Kind: inventory.EventDelivery, Quantity: d("5"), Price: d("200")})
	f.store.addEvent(inventory.Event{DayID: rec.ID, IngredientID: 1, Kind: inventory.EventSpoilage, Quantity: d("0.5")})
	return rec
}

func TestOpenDayWritesOpeningAndPointer(t *testing.T) {
	f := newFixture(t)
	rec := f.openBurgerDay(t)

	require.Equal(t, StatusOpen, rec.Status)
	current, err := f.svc.CurrentDay(context.Background())
	require.NoError(t, err)
	require.Equal(t, rec.ID, current.ID)
	require.Len(t, f.store.snapshotsOf(rec.ID, inventory.SnapshotOpening), 4)
	require.Equal(t, []string{"days:open"}, f.audit.actions)
}

func TestOpenDayCarriesOverPreviousClosing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prev := f.openBurgerDay(t)
	_, err := f.svc.CloseDay(ctx, CloseDayInput{DayID: prev.ID, Closing: burgerClosing(), ActorID: 1})
	require.NoError(t, err)

	next, err := f.svc.OpenDay(ctx, OpenDayInput{
		Date:    day("2026-10-16"),
		Opening: map[int64]decimal.Decimal{1: d("4")},
	})
	require.NoError(t, err)

	opening := f.store.snapshotsOf(next.ID, inventory.SnapshotOpening)
	require.Len(t, opening, 4)
	require.True(t, opening[1].Equal(d("4")), "explicit count wins")
	require.True(t, opening[2].Equal(d("20")))
	require.True(t, opening[4].Equal(d("1")))
}

func TestOpenDayRejectsConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)

	_, err := f.svc.OpenDay(ctx, OpenDayInput{Date: day("2026-10-16")})
	require.ErrorIs(t, err, ErrDayAlreadyOpen)

	_, err = f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: burgerClosing()})
	require.NoError(t, err)

	_, err = f.svc.OpenDay(ctx, OpenDayInput{Date: day("2026-10-15")})
	require.ErrorIs(t, err, ErrDuplicateDate)

	_, err = f.svc.OpenDay(ctx, OpenDayInput{Date: day("2026-10-17"), Opening: map[int64]decimal.Decimal{2: d("1.5")}})
	require.ErrorIs(t, err, catalog.ErrInvalidQuantity)

	_, err = f.svc.OpenDay(ctx, OpenDayInput{Date: day("2026-10-17"), Opening: map[int64]decimal.Decimal{99: d("1")}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.OpenDay(ctx, OpenDayInput{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCloseDayCommitsReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)

	res, err := f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: burgerClosing(), Notes: "busy friday", ActorID: 3})
	require.NoError(t, err)
	require.True(t, res.Summary.TotalIncome.Equal(d("1916.67")))
	require.Len(t, res.Alerts, 1)

	stored, err := f.svc.GetDay(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, stored.Status)
	require.Equal(t, "busy friday", stored.Notes)
	require.Equal(t, int64(3), stored.ClosedBy)
	require.Equal(t, fixedNow, *stored.ClosedAt)
	require.True(t, stored.TotalIncome.Equal(d("1916.67")))
	require.True(t, stored.DeliveryCost.Equal(d("200")))
	require.True(t, stored.SpoilageCost.Equal(d("20")))
	require.Equal(t, int64(77), stored.ItemsSold)
	require.Equal(t, 1, stored.CriticalCount)
	require.NotNil(t, stored.Result)
	require.Len(t, f.store.snapshotsOf(rec.ID, inventory.SnapshotClosing), 4)

	_, err = f.svc.CurrentDay(ctx)
	require.ErrorIs(t, err, ErrNoOpenDay)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, EventTypeDayClosed, f.publisher.events[0].eventType)
	evt := f.publisher.events[0].event.(DayClosed)
	require.Equal(t, "2026-10-15", evt.Date)
	require.True(t, evt.TotalIncome.Equal(d("1916.67")))
	require.Equal(t, []string{"days:open", "days:close"}, f.audit.actions)

	_, err = f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: burgerClosing()})
	require.ErrorIs(t, err, ErrDayClosed)
}

func TestCloseDayGateWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)
	closing := burgerClosing()
	delete(closing, 4)
	closing[3] = d("-1")

	res, err := f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: closing})
	require.Error(t, err)
	var incomplete *reconcile.IncompleteDataError
	require.True(t, errors.As(err, &incomplete))

	kinds := map[reconcile.IssueKind]string{}
	for _, issue := range reconcile.Issues(err) {
		kinds[issue.Kind] = issue.Name
	}
	require.Equal(t, "Ketchup", kinds[reconcile.IssueMissingClosing])
	require.Equal(t, "Potatoes", kinds[reconcile.IssueNegativeClosing])
	require.NotEmpty(t, res.Lines, "result is returned for display")

	stored, err := f.svc.GetDay(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, stored.Status)
	require.Empty(t, f.store.snapshotsOf(rec.ID, inventory.SnapshotClosing))
	require.Equal(t, rec.ID, f.store.openID)
	require.Empty(t, f.publisher.events)
}

func TestCloseDayRejectsMalformedCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)

	closing := burgerClosing()
	closing[2] = d("20.5")
	_, err := f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: closing})
	require.ErrorIs(t, err, catalog.ErrInvalidQuantity)

	closing = burgerClosing()
	closing[42] = d("1")
	_, err = f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: closing})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CloseDay(ctx, CloseDayInput{DayID: 999, Closing: burgerClosing()})
	require.ErrorIs(t, err, ErrDayNotFound)
}

func TestCloseDayBusyWhileLockHeld(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f.svc.WithLocker(shared.NewLocker(client, time.Minute))
	rec := f.openBurgerDay(t)

	require.NoError(t, mr.Set(shared.DayLifecycleLockKey, "someone-else"))
	_, err := f.svc.CloseDay(context.Background(), CloseDayInput{DayID: rec.ID, Closing: burgerClosing()})
	require.ErrorIs(t, err, ErrBusy)

	mr.Del(shared.DayLifecycleLockKey)
	_, err = f.svc.CloseDay(context.Background(), CloseDayInput{DayID: rec.ID, Closing: burgerClosing()})
	require.NoError(t, err)
	require.False(t, mr.Exists(shared.DayLifecycleLockKey), "lock released after close")
}

func TestPreviewClosingHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)

	first, err := f.svc.PreviewClosing(ctx, rec.ID, burgerClosing())
	require.NoError(t, err)
	second, err := f.svc.PreviewClosing(ctx, rec.ID, burgerClosing())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.True(t, first.CanClose())
	require.True(t, first.Summary.TotalIncome.Equal(d("1916.67")))

	require.Empty(t, f.store.snapshotsOf(rec.ID, inventory.SnapshotClosing))
	stored, err := f.svc.GetDay(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, stored.Status)

	partial, err := f.svc.PreviewClosing(ctx, rec.ID, map[int64]decimal.Decimal{1: d("3")})
	require.NoError(t, err)
	require.False(t, partial.CanClose())
}

func TestReconcileMatchesStoredClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)
	closed, err := f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: burgerClosing()})
	require.NoError(t, err)

	again, err := f.svc.Reconcile(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, closed.Summary, again.Summary)
	require.Equal(t, closed.Alerts, again.Alerts)

	mismatches, err := f.svc.VerifyClosed(ctx, day("2026-10-01"), day("2026-10-31"))
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestVerifyClosedReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)
	_, err := f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: burgerClosing()})
	require.NoError(t, err)

	// A movement slipped in after close.
	f.store.addEvent(inventory.Event{DayID: rec.ID, IngredientID: 1, Kind: inventory.EventDelivery, Quantity: d("1"), Price: d("40")})

	mismatches, err := f.svc.VerifyClosed(ctx, day("2026-10-01"), day("2026-10-31"))
	require.NoError(t, err)
	fields := map[string]Mismatch{}
	for _, m := range mismatches {
		fields[m.Field] = m
	}
	require.Contains(t, fields, "delivery_cost")
	require.Equal(t, "200.00", fields["delivery_cost"].Stored)
	require.Equal(t, "240.00", fields["delivery_cost"].Recomputed)
}

func TestAdminUpdateRequiresClosedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)

	notes := "recount"
	_, err := f.svc.AdminUpdate(ctx, AdminUpdateInput{DayID: rec.ID, Notes: &notes})
	require.ErrorIs(t, err, ErrDayNotClosed)

	_, err = f.svc.CloseDay(ctx, CloseDayInput{DayID: rec.ID, Closing: burgerClosing()})
	require.NoError(t, err)

	income := d("1900.004")
	updated, err := f.svc.AdminUpdate(ctx, AdminUpdateInput{DayID: rec.ID, Notes: &notes, TotalIncome: &income, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, "recount", updated.Notes)
	require.Equal(t, "1900.00", updated.TotalIncome.StringFixed(2))
	require.True(t, updated.DeliveryCost.Equal(d("200")))

	negative := d("-1")
	_, err = f.svc.AdminUpdate(ctx, AdminUpdateInput{DayID: rec.ID, SpoilageCost: &negative})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteRemovesDayAndClearsPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.openBurgerDay(t)

	require.NoError(t, f.svc.Delete(ctx, rec.ID, 1))
	_, err := f.svc.GetDay(ctx, rec.ID)
	require.ErrorIs(t, err, ErrDayNotFound)
	_, err = f.svc.CurrentDay(ctx)
	require.ErrorIs(t, err, ErrNoOpenDay)
	require.Empty(t, f.store.events)

	require.ErrorIs(t, f.svc.Delete(ctx, rec.ID, 1), ErrDayNotFound)
}

func TestMonthlyReportAggregatesClosedDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.days[1] = DailyRecord{ID: 1, Date: day("2026-09-30"), Status: StatusClosed, TotalIncome: d("500"), ItemsSold: 10}
	f.store.days[2] = DailyRecord{ID: 2, Date: day("2026-10-01"), Status: StatusClosed, TotalIncome: d("100.10"), DeliveryCost: d("20"), SpoilageCost: d("1.5"), ItemsSold: 7, WarningCount: 1}
	f.store.days[3] = DailyRecord{ID: 3, Date: day("2026-10-31"), Status: StatusClosed, TotalIncome: d("200.25"), DeliveryCost: d("5"), ItemsSold: 9, CriticalCount: 2}
	f.store.days[4] = DailyRecord{ID: 4, Date: day("2026-10-15"), Status: StatusOpen}

	report, err := f.svc.MonthlyReport(ctx, 2026, 10)
	require.NoError(t, err)
	require.Equal(t, 2, report.DayCount)
	require.Equal(t, "300.35", report.TotalIncome.StringFixed(2))
	require.Equal(t, "25.00", report.DeliveryCost.StringFixed(2))
	require.Equal(t, "1.50", report.SpoilageCost.StringFixed(2))
	require.Equal(t, int64(16), report.ItemsSold)
	require.Equal(t, 1, report.WarningCount)
	require.Equal(t, 2, report.CriticalCount)
	require.Len(t, report.Days, 2)

	_, err = f.svc.MonthlyReport(ctx, 2026, 13)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.List(context.Background(), ListFilter{Status: "pending"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFormatPLN(t *testing.T) {
	require.Equal(t, "1 916,67 zł", FormatPLN(d("1916.666")))
	require.Equal(t, "0,00 zł", FormatPLN(decimal.Zero))
	require.Equal(t, "5,05 zł", FormatPLN(d("5.05")))
	require.Equal(t, "-12,50 zł", FormatPLN(d("-12.5")))
	require.Equal(t, "123 456 789 012,35 zł", FormatPLN(d("123456789012.345")))
}
