// Package reconcile derives a day's ingredient usage, sales, revenue and
// discrepancy alerts from opening/closing counts and mid-day movements.
//
// Everything in this package is a pure function of its Input: no I/O, no
// clock, no shared state. Callers may run it concurrently for previews.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
)

// Input bundles everything needed to reconcile one daily record.
type Input struct {
	DayID int64
	// Ingredients in scope for the day. Inactive ingredients are only
	// ledgered when the day carries snapshots or events for them.
	Ingredients []catalog.Ingredient
	Snapshots   []inventory.Snapshot
	Events      []inventory.Event
	// Variants are the sellable variants; inactive ones are ignored.
	Variants   []catalog.Variant
	Thresholds Thresholds
}

// UsageLine is one row of the per-ingredient usage table.
type UsageLine struct {
	IngredientID int64            `json:"ingredient_id"`
	Name         string           `json:"name"`
	Unit         catalog.UnitKind `json:"unit"`
	UnitLabel    string           `json:"unit_label"`
	Opening      decimal.Decimal  `json:"opening"`
	Deliveries   decimal.Decimal  `json:"deliveries"`
	Transfers    decimal.Decimal  `json:"transfers"`
	Spoilage     decimal.Decimal  `json:"spoilage"`
	Closing      *decimal.Decimal `json:"closing"`
	Usage        *decimal.Decimal `json:"usage"`
	Expected     *decimal.Decimal `json:"expected,omitempty"`
	DiffPercent  *decimal.Decimal `json:"diff_percent,omitempty"`
	Severity     Severity         `json:"severity,omitempty"`
}

// Sale is a derived quantity sold for one variant.
type Sale struct {
	VariantID           int64           `json:"variant_id"`
	ProductID           int64           `json:"product_id"`
	Name                string          `json:"name"`
	PrimaryIngredientID int64           `json:"primary_ingredient_id"`
	PrimaryUsage        decimal.Decimal `json:"primary_usage"`
	Quantity            decimal.Decimal `json:"quantity"`
	DisplayQuantity     int64           `json:"display_quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	Revenue             decimal.Decimal `json:"revenue"`
	Clamped             bool            `json:"clamped,omitempty"`
}

// Alert flags an ingredient whose actual usage strays from the sales-implied usage.
type Alert struct {
	IngredientID int64           `json:"ingredient_id"`
	Name         string          `json:"name"`
	Actual       decimal.Decimal `json:"actual"`
	Expected     decimal.Decimal `json:"expected"`
	DiffPercent  decimal.Decimal `json:"diff_percent"`
	Severity     Severity        `json:"severity"`
	Message      string          `json:"message"`
}

// Summary carries day-level aggregates.
type Summary struct {
	TotalIncome   decimal.Decimal `json:"total_income"`
	DeliveryCost  decimal.Decimal `json:"delivery_cost"`
	SpoilageCost  decimal.Decimal `json:"spoilage_cost"`
	ItemsSold     int64           `json:"items_sold"`
	WarningCount  int             `json:"warning_count"`
	CriticalCount int             `json:"critical_count"`
}

// Warning is a non-blocking data-integrity note.
type Warning struct {
	Code         string `json:"code"`
	IngredientID int64  `json:"ingredient_id,omitempty"`
	Message      string `json:"message"`
}

// Warning codes.
const (
	WarnMissingOpening = "missing_opening"
	WarnOrphanEvent    = "orphan_event"
	WarnOrphanSnapshot = "orphan_snapshot"
)

// Result is the output of one reconciliation run.
type Result struct {
	DayID         int64       `json:"day_id"`
	Lines         []UsageLine `json:"lines"`
	Sales         []Sale      `json:"sales"`
	Alerts        []Alert     `json:"alerts"`
	Summary       Summary     `json:"summary"`
	Warnings      []Warning   `json:"warnings,omitempty"`
	Incomplete    []Issue     `json:"incomplete,omitempty"`
	Configuration []Issue     `json:"configuration,omitempty"`
}

// CanClose reports whether the day may transition to closed.
func (r Result) CanClose() bool {
	return len(r.Incomplete) == 0 && len(r.Configuration) == 0
}

// Err returns the blocking errors of the run, or nil.
func (r Result) Err() error {
	return joinIssues(r.Incomplete, r.Configuration)
}
