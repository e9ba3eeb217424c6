package days

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/reconcile"
)

// Status captures the lifecycle of a daily record.
type Status string

const (
	// StatusOpen accepts counts and mid-day movements.
	StatusOpen Status = "open"
	// StatusClosed is final; only administrative edits apply.
	StatusClosed Status = "closed"
)

// DateLayout is the calendar date format used on the wire and in cache keys.
const DateLayout = "2006-01-02"

// DailyRecord is one operating day.
type DailyRecord struct {
	ID            int64             `json:"id"`
	Date          time.Time         `json:"date"`
	Status        Status            `json:"status"`
	Notes         string            `json:"notes,omitempty"`
	OpenedBy      int64             `json:"opened_by,omitempty"`
	OpenedAt      time.Time         `json:"opened_at"`
	ClosedBy      int64             `json:"closed_by,omitempty"`
	ClosedAt      *time.Time        `json:"closed_at,omitempty"`
	TotalIncome   decimal.Decimal   `json:"total_income"`
	DeliveryCost  decimal.Decimal   `json:"delivery_cost"`
	SpoilageCost  decimal.Decimal   `json:"spoilage_cost"`
	ItemsSold     int64             `json:"items_sold"`
	WarningCount  int               `json:"warning_count"`
	CriticalCount int               `json:"critical_count"`
	Result        *reconcile.Result `json:"result,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IsOpen reports whether movements may still be posted.
func (d DailyRecord) IsOpen() bool {
	return d.Status == StatusOpen
}

// applyTotals copies reconciliation aggregates onto the record.
func (d *DailyRecord) applyTotals(res reconcile.Result) {
	d.TotalIncome = res.Summary.TotalIncome
	d.DeliveryCost = res.Summary.DeliveryCost
	d.SpoilageCost = res.Summary.SpoilageCost
	d.ItemsSold = res.Summary.ItemsSold
	d.WarningCount = res.Summary.WarningCount
	d.CriticalCount = res.Summary.CriticalCount
}

// OpenDayInput starts a new day. Opening quantities missing from Opening are
// carried over from the latest closed day.
type OpenDayInput struct {
	Date    time.Time
	Opening map[int64]decimal.Decimal
	Notes   string
	ActorID int64
}

// Validate ensures the input is coherent.
func (in OpenDayInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date required", ErrInvalidInput)
	}
	for id, qty := range in.Opening {
		if qty.IsNegative() {
			return fmt.Errorf("%w: opening quantity for ingredient %d is negative", ErrInvalidInput, id)
		}
	}
	return nil
}

// CloseDayInput finalises a day with its closing counts.
type CloseDayInput struct {
	DayID   int64
	Closing map[int64]decimal.Decimal
	Notes   string
	ActorID int64
}

// AdminUpdateInput edits a closed day. Nil fields are left unchanged.
type AdminUpdateInput struct {
	DayID        int64
	Notes        *string
	TotalIncome  *decimal.Decimal
	DeliveryCost *decimal.Decimal
	SpoilageCost *decimal.Decimal
	ActorID      int64
}

// ListFilter narrows listed days.
type ListFilter struct {
	From   time.Time
	To     time.Time
	Status Status
	Limit  int
	Offset int
}

// MonthlyReport aggregates closed days of one calendar month.
type MonthlyReport struct {
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	DayCount      int             `json:"day_count"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	DeliveryCost  decimal.Decimal `json:"delivery_cost"`
	SpoilageCost  decimal.Decimal `json:"spoilage_cost"`
	ItemsSold     int64           `json:"items_sold"`
	WarningCount  int             `json:"warning_count"`
	CriticalCount int             `json:"critical_count"`
	Days          []DailyRecord   `json:"days"`
}

// Summary is the presentable outcome of a day.
type Summary struct {
	DayID       int64             `json:"day_id"`
	Date        string            `json:"date"`
	Status      Status            `json:"status"`
	Live        bool              `json:"live"`
	Totals      reconcile.Summary `json:"totals"`
	Display     SummaryDisplay    `json:"display"`
	Sales       []reconcile.Sale  `json:"sales"`
	Alerts      []reconcile.Alert `json:"alerts"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SummaryDisplay holds totals formatted for people.
type SummaryDisplay struct {
	TotalIncome  string `json:"total_income"`
	DeliveryCost string `json:"delivery_cost"`
	SpoilageCost string `json:"spoilage_cost"`
}

// ErrDayNotFound indicates the daily record does not exist.
var ErrDayNotFound = errors.New("days: day not found")

// ErrNoOpenDay indicates no day is currently open.
var ErrNoOpenDay = errors.New("days: no day is open")

// ErrDayAlreadyOpen is returned when opening while another day is open.
var ErrDayAlreadyOpen = errors.New("days: another day is already open")

// ErrDuplicateDate is returned when the date already has a record.
var ErrDuplicateDate = errors.New("days: a record already exists for this date")

// ErrDayClosed is returned when mutating a closed day through the regular workflow.
var ErrDayClosed = errors.New("days: day is closed")

// ErrDayNotClosed is returned when an administrative edit targets an open day.
var ErrDayNotClosed = errors.New("days: day is not closed")

// ErrInvalidInput wraps validation failures of day inputs.
var ErrInvalidInput = errors.New("days: invalid input")

// ErrBusy indicates a concurrent open or close holds the lifecycle lock.
var ErrBusy = errors.New("days: another open or close is in progress")
