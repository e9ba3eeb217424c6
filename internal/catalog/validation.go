package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Recipe problem codes shared with the reconciliation engine.
const (
	ProblemNoRecipe            = "no_recipe"
	ProblemMissingPrimary      = "missing_primary"
	ProblemMultiplePrimary     = "multiple_primary"
	ProblemNonPositiveQuantity = "non_positive_quantity"
	ProblemInactivePrimary     = "inactive_primary"
	ProblemUnknownIngredient   = "unknown_ingredient"
	ProblemDuplicateIngredient = "duplicate_ingredient"
	ProblemPrecision           = "precision"
)

// RecipeProblem describes one violation of the recipe invariants.
type RecipeProblem struct {
	Code         string `json:"code"`
	IngredientID int64  `json:"ingredient_id,omitempty"`
	Detail       string `json:"detail"`
}

// RecipeError aggregates every problem found in a recipe.
type RecipeError struct {
	VariantID int64
	Problems  []RecipeProblem
}

func (e *RecipeError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Detail)
	}
	return fmt.Sprintf("catalog: invalid recipe for variant %d: %s", e.VariantID, strings.Join(parts, "; "))
}

// IngredientLookup resolves ingredients by id.
type IngredientLookup func(id int64) (Ingredient, bool)

// CheckRecipe validates the single-primary invariant and quantities of a variant recipe.
func CheckRecipe(v Variant, lookup IngredientLookup) []RecipeProblem {
	if len(v.Recipe) == 0 {
		return []RecipeProblem{{Code: ProblemNoRecipe, Detail: "variant has no recipe"}}
	}
	var problems []RecipeProblem
	seen := make(map[int64]struct{}, len(v.Recipe))
	primaries := 0
	for _, entry := range v.Recipe {
		if _, dup := seen[entry.IngredientID]; dup {
			problems = append(problems, RecipeProblem{
				Code:         ProblemDuplicateIngredient,
				IngredientID: entry.IngredientID,
				Detail:       fmt.Sprintf("ingredient %d listed more than once", entry.IngredientID),
			})
		}
		seen[entry.IngredientID] = struct{}{}
		if !entry.Quantity.IsPositive() {
			problems = append(problems, RecipeProblem{
				Code:         ProblemNonPositiveQuantity,
				IngredientID: entry.IngredientID,
				Detail:       fmt.Sprintf("quantity for ingredient %d must be > 0, got %s", entry.IngredientID, entry.Quantity),
			})
		}
		ing, ok := lookup(entry.IngredientID)
		if !ok {
			problems = append(problems, RecipeProblem{
				Code:         ProblemUnknownIngredient,
				IngredientID: entry.IngredientID,
				Detail:       fmt.Sprintf("ingredient %d does not exist", entry.IngredientID),
			})
			continue
		}
		if entry.IsPrimary {
			primaries++
			if !ing.Active {
				problems = append(problems, RecipeProblem{
					Code:         ProblemInactivePrimary,
					IngredientID: entry.IngredientID,
					Detail:       fmt.Sprintf("primary ingredient %s is deactivated", ing.Name),
				})
			}
		}
	}
	switch {
	case primaries == 0:
		problems = append(problems, RecipeProblem{Code: ProblemMissingPrimary, Detail: "recipe has no primary ingredient"})
	case primaries > 1:
		problems = append(problems, RecipeProblem{Code: ProblemMultiplePrimary, Detail: fmt.Sprintf("recipe has %d primary ingredients", primaries)})
	}
	return problems
}

// checkRecipePrecision enforces entry-time precision: kilograms to three decimals.
func checkRecipePrecision(v Variant, lookup IngredientLookup) []RecipeProblem {
	var problems []RecipeProblem
	for _, entry := range v.Recipe {
		ing, ok := lookup(entry.IngredientID)
		if !ok || ing.Unit != UnitWeight {
			continue
		}
		if !entry.Quantity.Equal(entry.Quantity.Round(3)) {
			problems = append(problems, RecipeProblem{
				Code:         ProblemPrecision,
				IngredientID: entry.IngredientID,
				Detail:       fmt.Sprintf("weight for %s allows at most 3 decimals", ing.Name),
			})
		}
	}
	return problems
}

// ErrInvalidQuantity indicates a counted quantity that does not fit the unit.
var ErrInvalidQuantity = errors.New("catalog: invalid quantity for unit")

// CheckQuantity validates a counted or moved quantity against the ingredient unit:
// kilograms to two decimals, counts as whole numbers, never negative.
func (i Ingredient) CheckQuantity(q decimal.Decimal) error {
	if q.IsNegative() {
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalidQuantity, i.Name)
	}
	switch i.Unit {
	case UnitWeight:
		if !q.Equal(q.Round(2)) {
			return fmt.Errorf("%w: %s allows at most 2 decimals", ErrInvalidQuantity, i.Name)
		}
	case UnitCount:
		if !q.Equal(q.Truncate(0)) {
			return fmt.Errorf("%w: %s must be a whole number", ErrInvalidQuantity, i.Name)
		}
	}
	return nil
}
