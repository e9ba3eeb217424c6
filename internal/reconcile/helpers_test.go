package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func weight(id int64, name string) catalog.Ingredient {
	return catalog.Ingredient{ID: id, Name: name, Unit: catalog.UnitWeight, UnitLabel: "kg", UnitCost: decimal.Zero, Active: true}
}

func count(id int64, name string) catalog.Ingredient {
	return catalog.Ingredient{ID: id, Name: name, Unit: catalog.UnitCount, UnitLabel: "pcs", UnitCost: decimal.Zero, Active: true}
}

func opening(id int64, qty string) inventory.Snapshot {
	return inventory.Snapshot{IngredientID: id, Kind: inventory.SnapshotOpening, Quantity: d(qty)}
}

func closing(id int64, qty string) inventory.Snapshot {
	return inventory.Snapshot{IngredientID: id, Kind: inventory.SnapshotClosing, Quantity: d(qty)}
}

func delivery(id int64, qty, price string) inventory.Event {
	return inventory.Event{IngredientID: id, Kind: inventory.EventDelivery, Quantity: d(qty), Price: d(price)}
}

func transfer(id int64, qty string, dir inventory.Direction) inventory.Event {
	return inventory.Event{IngredientID: id, Kind: inventory.EventTransfer, Direction: dir, Quantity: d(qty)}
}

func spoilage(id int64, qty string) inventory.Event {
	return inventory.Event{IngredientID: id, Kind: inventory.EventSpoilage, Quantity: d(qty)}
}

func variant(id int64, name, price string, recipe ...catalog.RecipeEntry) catalog.Variant {
	return catalog.Variant{ID: id, ProductID: id, Name: name, Price: d(price), Active: true, Recipe: recipe}
}

func primary(ingredientID int64, qty string) catalog.RecipeEntry {
	return catalog.RecipeEntry{IngredientID: ingredientID, Quantity: d(qty), IsPrimary: true}
}

func secondary(ingredientID int64, qty string) catalog.RecipeEntry {
	return catalog.RecipeEntry{IngredientID: ingredientID, Quantity: d(qty)}
}

func ingredientMap(ings ...catalog.Ingredient) map[int64]catalog.Ingredient {
	out := make(map[int64]catalog.Ingredient, len(ings))
	for _, ing := range ings {
		out[ing.ID] = ing
	}
	return out
}
