package days

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/daybook/internal/reconcile"
)

var plnPrinter = message.NewPrinter(language.Polish)

// FormatPLN renders an amount the way receipts do, e.g. "1\u00a0916,67 zł".
// Thousands are grouped with a non-breaking space.
func FormatPLN(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}
	whole := rounded.Truncate(0)
	cents := rounded.Sub(whole).Shift(2).IntPart()
	return fmt.Sprintf("%s%s,%02d zł", sign, plnPrinter.Sprintf("%d", whole.IntPart()), cents)
}

// Summary returns the outcome of a day. Closed days use the stored result,
// open days are reconciled live. Results are cached until the next catalog
// change or movement.
func (s *Service) Summary(ctx context.Context, dayID int64) (Summary, error) {
	return s.cache.Fetch(ctx, dayID, func(ctx context.Context) (Summary, error) {
		return s.buildSummary(ctx, dayID)
	})
}

func (s *Service) buildSummary(ctx context.Context, dayID int64) (Summary, error) {
	rec, err := s.repo.GetDay(ctx, dayID)
	if err != nil {
		return Summary{}, err
	}
	var res reconcile.Result
	live := rec.IsOpen() || rec.Result == nil
	if live {
		if res, err = s.Reconcile(ctx, dayID); err != nil {
			return Summary{}, err
		}
	} else {
		res = *rec.Result
		// Administrative edits override the stored money totals.
		res.Summary.TotalIncome = rec.TotalIncome
		res.Summary.DeliveryCost = rec.DeliveryCost
		res.Summary.SpoilageCost = rec.SpoilageCost
	}
	out := Summary{
		DayID:  rec.ID,
		Date:   rec.Date.Format(DateLayout),
		Status: rec.Status,
		Live:   live,
		Totals: res.Summary,
		Display: SummaryDisplay{
			TotalIncome:  FormatPLN(res.Summary.TotalIncome),
			DeliveryCost: FormatPLN(res.Summary.DeliveryCost),
			SpoilageCost: FormatPLN(res.Summary.SpoilageCost),
		},
		Sales:       res.Sales,
		Alerts:      res.Alerts,
		GeneratedAt: s.now(),
	}
	if out.Sales == nil {
		out.Sales = []reconcile.Sale{}
	}
	if out.Alerts == nil {
		out.Alerts = []reconcile.Alert{}
	}
	return out, nil
}

// WarmOpenSummary fills the summary cache for the open day. It returns
// ErrNoOpenDay when nothing is open.
func (s *Service) WarmOpenSummary(ctx context.Context) (int64, error) {
	rec, err := s.repo.GetOpenDay(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := s.Summary(ctx, rec.ID); err != nil {
		return rec.ID, err
	}
	return rec.ID, nil
}

// Mismatch is a difference between a stored close and a fresh recomputation.
type Mismatch struct {
	DayID      int64  `json:"day_id"`
	Date       string `json:"date"`
	Field      string `json:"field"`
	Stored     string `json:"stored"`
	Recomputed string `json:"recomputed"`
}

// VerifyClosed re-reconciles closed days dated within [from, to] and compares
// the outcome with what was stored at close time.
func (s *Service) VerifyClosed(ctx context.Context, from, to time.Time) ([]Mismatch, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", ErrInvalidInput)
	}
	records, err := s.repo.ListClosedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var out []Mismatch
	for _, rec := range records {
		if rec.Result == nil {
			continue
		}
		fresh, err := s.Reconcile(ctx, rec.ID)
		if err != nil {
			if errors.Is(err, ErrDayNotFound) {
				continue
			}
			return out, err
		}
		out = append(out, compareSummaries(rec, rec.Result.Summary, fresh.Summary)...)
	}
	return out, nil
}

func compareSummaries(rec DailyRecord, stored, fresh reconcile.Summary) []Mismatch {
	var out []Mismatch
	add := func(field, a, b string) {
		if a != b {
			out = append(out, Mismatch{DayID: rec.ID, Date: rec.Date.Format(DateLayout), Field: field, Stored: a, Recomputed: b})
		}
	}
	add("total_income", stored.TotalIncome.StringFixed(2), fresh.TotalIncome.StringFixed(2))
	add("delivery_cost", stored.DeliveryCost.StringFixed(2), fresh.DeliveryCost.StringFixed(2))
	add("spoilage_cost", stored.SpoilageCost.StringFixed(2), fresh.SpoilageCost.StringFixed(2))
	add("items_sold", fmt.Sprint(stored.ItemsSold), fmt.Sprint(fresh.ItemsSold))
	add("warning_count", fmt.Sprint(stored.WarningCount), fmt.Sprint(fresh.WarningCount))
	add("critical_count", fmt.Sprint(stored.CriticalCount), fmt.Sprint(fresh.CriticalCount))
	return out
}
