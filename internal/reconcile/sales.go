package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
)

// SalesOutcome is the result of deriving sales from primary-ingredient usage.
type SalesOutcome struct {
	Sales []Sale
	// Unconfigured variants lack a recipe or a primary ingredient.
	Unconfigured []Issue
	// Configuration lists recipes that violate the data-entry invariants.
	Configuration []Issue
}

// DeriveSales maps primary-ingredient usage to quantity sold and revenue:
//
//	quantity_sold = usage[primary] / amount_per_unit
//	revenue       = round2(quantity_sold * price)
//
// Negative primary usage clamps quantity sold to zero. Variants sharing a
// primary ingredient each derive from the full usage figure; no allocation.
// Variants whose primary ingredient has no usage yet are skipped silently,
// the missing count is reported by ComputeUsage.
func DeriveSales(variants []catalog.Variant, ingredients map[int64]catalog.Ingredient, usage map[int64]decimal.Decimal) SalesOutcome {
	lookup := func(id int64) (catalog.Ingredient, bool) {
		ing, ok := ingredients[id]
		return ing, ok
	}
	ordered := make([]catalog.Variant, 0, len(variants))
	for _, v := range variants {
		if v.Active {
			ordered = append(ordered, v)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var out SalesOutcome
	for _, v := range ordered {
		problems := catalog.CheckRecipe(v, lookup)
		if len(problems) > 0 {
			for _, issue := range issuesFromProblems(v, problems) {
				if issue.Kind == IssueNoRecipe || issue.Kind == IssueMissingPrimary {
					out.Unconfigured = append(out.Unconfigured, issue)
					continue
				}
				out.Configuration = append(out.Configuration, issue)
			}
			continue
		}

		primary := v.Primaries()[0]
		used, ok := usage[primary.IngredientID]
		if !ok {
			continue
		}
		sale := Sale{
			VariantID:           v.ID,
			ProductID:           v.ProductID,
			Name:                v.Name,
			PrimaryIngredientID: primary.IngredientID,
			PrimaryUsage:        used,
			UnitPrice:           v.Price,
		}
		if used.IsNegative() {
			sale.Quantity = decimal.Zero
			sale.Clamped = true
		} else {
			sale.Quantity = used.Div(primary.Quantity)
		}
		sale.DisplayQuantity = sale.Quantity.Round(0).IntPart()
		sale.Revenue = sale.Quantity.Mul(v.Price).Round(2)
		out.Sales = append(out.Sales, sale)
	}
	return out
}

func issuesFromProblems(v catalog.Variant, problems []catalog.RecipeProblem) []Issue {
	issues := make([]Issue, 0, len(problems))
	for _, p := range problems {
		issues = append(issues, Issue{
			Kind:         issueKindFor(p.Code),
			IngredientID: p.IngredientID,
			VariantID:    v.ID,
			Name:         v.Name,
			Detail:       p.Detail,
		})
	}
	return issues
}

func issueKindFor(code string) IssueKind {
	switch code {
	case catalog.ProblemNoRecipe:
		return IssueNoRecipe
	case catalog.ProblemMissingPrimary:
		return IssueMissingPrimary
	case catalog.ProblemMultiplePrimary:
		return IssueMultiplePrimary
	case catalog.ProblemNonPositiveQuantity:
		return IssueNonPositiveQuantity
	case catalog.ProblemInactivePrimary:
		return IssueInactivePrimary
	case catalog.ProblemUnknownIngredient:
		return IssueUnknownIngredient
	case catalog.ProblemDuplicateIngredient:
		return IssueDuplicateIngredient
	}
	return IssueKind(code)
}
