package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
)

// Reconcile runs ledger, usage, sales, expected usage and discrepancy
// classification for one day. Every problem is collected into the result
// rather than returned early; use Result.Err to gate a close.
func Reconcile(in Input) Result {
	thresholds := in.Thresholds.orDefault()

	rows, warnings := BuildLedger(in.Ingredients, in.Snapshots, in.Events)
	lines, incomplete := ComputeUsage(rows)

	ingredients := make(map[int64]catalog.Ingredient, len(in.Ingredients))
	for _, ing := range in.Ingredients {
		ingredients[ing.ID] = ing
	}
	usage := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		if line.Usage != nil {
			usage[line.IngredientID] = *line.Usage
		}
	}

	outcome := DeriveSales(in.Variants, ingredients, usage)
	incomplete = append(incomplete, outcome.Unconfigured...)

	expected := ProjectExpected(in.Variants, outcome.Sales)
	inRecipes := recipeIngredients(in.Variants)

	var alerts []Alert
	summary := Summary{
		TotalIncome:  decimal.Zero,
		DeliveryCost: decimal.Zero,
		SpoilageCost: decimal.Zero,
	}
	for i := range lines {
		line := &lines[i]
		if line.Usage == nil || !inRecipes[line.IngredientID] {
			continue
		}
		exp := expected[line.IngredientID]
		c := Classify(*line.Usage, exp, thresholds)
		line.Expected = &exp
		diff := c.DiffPercent
		line.DiffPercent = &diff
		line.Severity = c.Severity
		switch c.Severity {
		case SeverityWarning:
			summary.WarningCount++
			alerts = append(alerts, newAlert(*line, *line.Usage, exp, c))
		case SeverityCritical:
			summary.CriticalCount++
			alerts = append(alerts, newAlert(*line, *line.Usage, exp, c))
		}
	}

	for _, sale := range outcome.Sales {
		summary.TotalIncome = summary.TotalIncome.Add(sale.Revenue)
		summary.ItemsSold += sale.DisplayQuantity
	}
	for _, row := range rows {
		summary.DeliveryCost = summary.DeliveryCost.Add(row.DeliveryCost)
		summary.SpoilageCost = summary.SpoilageCost.Add(row.SpoilageCost)
	}
	summary.DeliveryCost = summary.DeliveryCost.Round(2)
	summary.SpoilageCost = summary.SpoilageCost.Round(2)

	return Result{
		DayID:         in.DayID,
		Lines:         lines,
		Sales:         outcome.Sales,
		Alerts:        alerts,
		Summary:       summary,
		Warnings:      warnings,
		Incomplete:    incomplete,
		Configuration: outcome.Configuration,
	}
}
