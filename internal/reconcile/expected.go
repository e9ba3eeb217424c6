package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
)

// quantityScale is the number of decimals kept for projected quantities.
const quantityScale = 6

// ProjectExpected computes, per ingredient, how much should have been consumed
// given the derived sales:
//
//	expected[i] = sum over sold variants v of quantity_sold(v) * amount(v, i)
//
// For a primary ingredient used by a single variant this reproduces its
// actual usage. For secondary ingredients it is independent of their counts.
func ProjectExpected(variants []catalog.Variant, sales []Sale) map[int64]decimal.Decimal {
	byID := make(map[int64]catalog.Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}
	expected := make(map[int64]decimal.Decimal)
	for _, sale := range sales {
		v, ok := byID[sale.VariantID]
		if !ok {
			continue
		}
		for _, entry := range v.Recipe {
			expected[entry.IngredientID] = expected[entry.IngredientID].Add(sale.Quantity.Mul(entry.Quantity))
		}
	}
	for id, qty := range expected {
		expected[id] = qty.Round(quantityScale)
	}
	return expected
}

// recipeIngredients returns the ids of ingredients used by any active variant.
func recipeIngredients(variants []catalog.Variant) map[int64]bool {
	ids := make(map[int64]bool)
	for _, v := range variants {
		if !v.Active {
			continue
		}
		for _, entry := range v.Recipe {
			ids[entry.IngredientID] = true
		}
	}
	return ids
}
