package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
)

// LedgerRow normalises one ingredient's quantities for a day.
type LedgerRow struct {
	Ingredient   catalog.Ingredient
	Opening      decimal.Decimal
	HasOpening   bool
	Deliveries   decimal.Decimal
	TransfersIn  decimal.Decimal
	TransfersOut decimal.Decimal
	Spoilage     decimal.Decimal
	// Closing is nil until a closing count exists. Nil is not zero.
	Closing      *decimal.Decimal
	DeliveryCost decimal.Decimal
	SpoilageCost decimal.Decimal
}

// Transfers returns transfers net of direction.
func (r LedgerRow) Transfers() decimal.Decimal {
	return r.TransfersIn.Sub(r.TransfersOut)
}

// BuildLedger produces one row per in-scope ingredient, ordered by id.
// Active ingredients always get a row; inactive ones only when the day
// recorded something for them.
func BuildLedger(ingredients []catalog.Ingredient, snapshots []inventory.Snapshot, events []inventory.Event) ([]LedgerRow, []Warning) {
	var warnings []Warning
	touched := make(map[int64]bool, len(snapshots)+len(events))
	for _, s := range snapshots {
		touched[s.IngredientID] = true
	}
	for _, e := range events {
		touched[e.IngredientID] = true
	}

	rows := make(map[int64]*LedgerRow, len(ingredients))
	for _, ing := range ingredients {
		if !ing.Active && !touched[ing.ID] {
			continue
		}
		rows[ing.ID] = &LedgerRow{
			Ingredient:   ing,
			Opening:      decimal.Zero,
			Deliveries:   decimal.Zero,
			TransfersIn:  decimal.Zero,
			TransfersOut: decimal.Zero,
			Spoilage:     decimal.Zero,
			DeliveryCost: decimal.Zero,
			SpoilageCost: decimal.Zero,
		}
	}

	for _, s := range snapshots {
		row, ok := rows[s.IngredientID]
		if !ok {
			warnings = append(warnings, Warning{
				Code:         WarnOrphanSnapshot,
				IngredientID: s.IngredientID,
				Message:      fmt.Sprintf("%s snapshot for unknown ingredient %d ignored", s.Kind, s.IngredientID),
			})
			continue
		}
		switch s.Kind {
		case inventory.SnapshotOpening:
			row.Opening = s.Quantity
			row.HasOpening = true
		case inventory.SnapshotClosing:
			q := s.Quantity
			row.Closing = &q
		}
	}

	for _, e := range events {
		row, ok := rows[e.IngredientID]
		if !ok {
			warnings = append(warnings, Warning{
				Code:         WarnOrphanEvent,
				IngredientID: e.IngredientID,
				Message:      fmt.Sprintf("%s event %d for unknown ingredient %d ignored", e.Kind, e.ID, e.IngredientID),
			})
			continue
		}
		switch e.Kind {
		case inventory.EventDelivery:
			row.Deliveries = row.Deliveries.Add(e.Quantity)
			row.DeliveryCost = row.DeliveryCost.Add(e.Price)
		case inventory.EventTransfer:
			if e.Direction == inventory.DirectionOut {
				row.TransfersOut = row.TransfersOut.Add(e.Quantity)
			} else {
				row.TransfersIn = row.TransfersIn.Add(e.Quantity)
			}
		case inventory.EventSpoilage:
			row.Spoilage = row.Spoilage.Add(e.Quantity)
			row.SpoilageCost = row.SpoilageCost.Add(e.Quantity.Mul(row.Ingredient.UnitCost))
		}
	}

	out := make([]LedgerRow, 0, len(rows))
	for _, row := range rows {
		if !row.HasOpening {
			warnings = append(warnings, Warning{
				Code:         WarnMissingOpening,
				IngredientID: row.Ingredient.ID,
				Message:      fmt.Sprintf("no opening count for %s, assuming 0", row.Ingredient.Name),
			})
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ingredient.ID < out[j].Ingredient.ID })
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].IngredientID < warnings[j].IngredientID })
	return out, warnings
}
