package reconcile

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
)

func burgerDay() Input {
	meat := weight(1, "Meat")
	meat.UnitCost = d("40")
	return Input{
		DayID:       7,
		Ingredients: []catalog.Ingredient{meat, count(2, "Buns"), weight(3, "Potatoes"), weight(4, "Ketchup")},
		Snapshots: []inventory.Snapshot{
			opening(1, "10.0"), closing(1, "3.0"),
			opening(2, "100"), closing(2, "20"),
			opening(3, "5"), closing(3, "5"),
			opening(4, "3"), closing(4, "1"),
		},
		Events: []inventory.Event{
			delivery(1, "5.0", "200.00"),
			spoilage(1, "0.5"),
		},
		Variants: []catalog.Variant{
			variant(10, "Burger", "25.00", primary(1, "0.15"), secondary(2, "1")),
			variant(11, "Fries", "9.00", primary(3, "0.2"), secondary(4, "0.02")),
		},
	}
}

func lineFor(t *testing.T, res Result, id int64) UsageLine {
	t.Helper()
	for _, line := range res.Lines {
		if line.IngredientID == id {
			return line
		}
	}
	t.Fatalf("no usage line for ingredient %d", id)
	return UsageLine{}
}

func TestReconcileBurgerDay(t *testing.T) {
	res := Reconcile(burgerDay())
	require.True(t, res.CanClose())
	require.NoError(t, res.Err())

	meat := lineFor(t, res, 1)
	require.True(t, meat.Usage.Equal(d("11.5")))
	require.Equal(t, SeverityOK, meat.Severity)
	require.Equal(t, "0.00", meat.DiffPercent.StringFixed(2))

	require.Len(t, res.Sales, 2)
	require.Equal(t, "76.67", res.Sales[0].Quantity.StringFixed(2))
	require.True(t, res.Sales[1].Quantity.IsZero())

	// 76.67 burgers imply 76.67 buns; 80 were used.
	buns := lineFor(t, res, 2)
	require.Equal(t, "76.666667", buns.Expected.StringFixed(6))
	require.Equal(t, SeverityOK, buns.Severity)
	require.Equal(t, "4.35", buns.DiffPercent.StringFixed(2))

	// No fries sold but 2 kg of ketchup gone.
	ketchup := lineFor(t, res, 4)
	require.Equal(t, SeverityCritical, ketchup.Severity)
	require.Equal(t, "100.00", ketchup.DiffPercent.StringFixed(2))

	require.Len(t, res.Alerts, 1)
	require.Equal(t, int64(4), res.Alerts[0].IngredientID)
	require.Contains(t, res.Alerts[0].Message, "+100.00%")

	require.Equal(t, 1, res.Summary.CriticalCount)
	require.Equal(t, 0, res.Summary.WarningCount)
	require.Equal(t, int64(77), res.Summary.ItemsSold)
	require.True(t, res.Summary.TotalIncome.Equal(d("1916.67")))
	require.True(t, res.Summary.DeliveryCost.Equal(d("200")))
	require.True(t, res.Summary.SpoilageCost.Equal(d("20")))
}

func TestReconcileIncomeEqualsSumOfRevenue(t *testing.T) {
	res := Reconcile(burgerDay())
	total := decimal.Zero
	for _, sale := range res.Sales {
		total = total.Add(sale.Revenue)
	}
	require.True(t, total.Equal(res.Summary.TotalIncome))
}

func TestReconcileIsIdempotent(t *testing.T) {
	in := burgerDay()
	first := Reconcile(in)
	second := Reconcile(in)
	require.Equal(t, first, second)
}

func TestReconcileMissingClosingBlocksClose(t *testing.T) {
	in := burgerDay()
	in.Snapshots = in.Snapshots[:len(in.Snapshots)-1]

	res := Reconcile(in)
	require.False(t, res.CanClose())
	require.Nil(t, lineFor(t, res, 4).Usage)

	var incomplete *IncompleteDataError
	require.True(t, errors.As(res.Err(), &incomplete))
	require.Len(t, incomplete.Issues, 1)
	require.Equal(t, IssueMissingClosing, incomplete.Issues[0].Kind)
	require.Equal(t, "Ketchup", incomplete.Issues[0].Name)
}

func TestReconcileConfigurationErrorCarriesIssues(t *testing.T) {
	in := burgerDay()
	in.Variants = append(in.Variants, variant(12, "Broken", "1", primary(1, "0"), primary(2, "1")))

	res := Reconcile(in)
	require.False(t, res.CanClose())

	var config *ConfigurationError
	require.True(t, errors.As(res.Err(), &config))
	issues := Issues(res.Err())
	require.Len(t, issues, 2)
	require.Equal(t, int64(12), issues[0].VariantID)
}

func TestReconcileUnconfiguredVariantIsIncomplete(t *testing.T) {
	in := burgerDay()
	in.Variants = append(in.Variants, variant(12, "Soda", "6"))

	res := Reconcile(in)
	var incomplete *IncompleteDataError
	require.True(t, errors.As(res.Err(), &incomplete))
	require.Equal(t, IssueNoRecipe, incomplete.Issues[0].Kind)
}

func TestReconcileNegativePrimaryUsageIsCritical(t *testing.T) {
	in := burgerDay()
	// Closing above everything available drives meat usage negative.
	in.Snapshots[1] = closing(1, "15.0")

	res := Reconcile(in)
	require.True(t, res.Sales[0].Clamped)
	meat := lineFor(t, res, 1)
	require.True(t, meat.Usage.Equal(d("-0.5")))
	require.Equal(t, SeverityCritical, meat.Severity)
}
