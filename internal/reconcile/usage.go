package reconcile

import "fmt"

// ComputeUsage applies conservation of mass to each ledger row:
//
//	usage = opening + deliveries + transfers - spoilage - closing
//
// Rows without a closing count get a nil usage. Negative usage is kept as is.
// Missing or negative counts of active ingredients are returned as issues.
func ComputeUsage(rows []LedgerRow) ([]UsageLine, []Issue) {
	lines := make([]UsageLine, 0, len(rows))
	var issues []Issue
	for _, row := range rows {
		ing := row.Ingredient
		line := UsageLine{
			IngredientID: ing.ID,
			Name:         ing.Name,
			Unit:         ing.Unit,
			UnitLabel:    ing.UnitLabel,
			Opening:      row.Opening,
			Deliveries:   row.Deliveries,
			Transfers:    row.Transfers(),
			Spoilage:     row.Spoilage,
			Closing:      row.Closing,
		}
		if ing.Active && !row.HasOpening {
			issues = append(issues, Issue{
				Kind:         IssueMissingOpening,
				IngredientID: ing.ID,
				Name:         ing.Name,
				Detail:       "opening count missing",
			})
		}
		switch {
		case row.Closing == nil:
			if ing.Active {
				issues = append(issues, Issue{
					Kind:         IssueMissingClosing,
					IngredientID: ing.ID,
					Name:         ing.Name,
					Detail:       "closing count missing",
				})
			}
		default:
			if row.Closing.IsNegative() {
				issues = append(issues, Issue{
					Kind:         IssueNegativeClosing,
					IngredientID: ing.ID,
					Name:         ing.Name,
					Detail:       fmt.Sprintf("closing count %s is negative", row.Closing.String()),
				})
			}
			usage := row.Opening.
				Add(row.Deliveries).
				Add(row.Transfers()).
				Sub(row.Spoilage).
				Sub(*row.Closing)
			line.Usage = &usage
		}
		lines = append(lines, line)
	}
	return lines, issues
}
