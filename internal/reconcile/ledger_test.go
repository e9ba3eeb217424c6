package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/inventory"
)

func TestBuildLedgerSumsMovements(t *testing.T) {
	meat := weight(1, "Meat")
	meat.UnitCost = d("40")
	rows, warnings := BuildLedger(
		[]catalog.Ingredient{meat},
		[]inventory.Snapshot{opening(1, "10.0"), closing(1, "3.0")},
		[]inventory.Event{
			delivery(1, "5.0", "200.00"),
			transfer(1, "2.0", inventory.DirectionIn),
			transfer(1, "1.5", inventory.DirectionOut),
			spoilage(1, "0.5"),
		},
	)
	require.Empty(t, warnings)
	require.Len(t, rows, 1)
	row := rows[0]
	require.True(t, row.HasOpening)
	require.True(t, row.Deliveries.Equal(d("5")))
	require.True(t, row.Transfers().Equal(d("0.5")))
	require.True(t, row.Spoilage.Equal(d("0.5")))
	require.NotNil(t, row.Closing)
	require.True(t, row.Closing.Equal(d("3")))
	require.True(t, row.DeliveryCost.Equal(d("200")))
	require.True(t, row.SpoilageCost.Equal(d("20")))
}

func TestBuildLedgerMissingOpeningDefaultsToZero(t *testing.T) {
	rows, warnings := BuildLedger(
		[]catalog.Ingredient{weight(1, "Meat")},
		[]inventory.Snapshot{closing(1, "1.0")},
		nil,
	)
	require.Len(t, rows, 1)
	require.False(t, rows[0].HasOpening)
	require.True(t, rows[0].Opening.IsZero())
	require.Len(t, warnings, 1)
	require.Equal(t, WarnMissingOpening, warnings[0].Code)
}

func TestBuildLedgerScopesInactiveAndOrphans(t *testing.T) {
	retired := weight(2, "Old Sauce")
	retired.Active = false
	untouched := weight(3, "Unused")
	untouched.Active = false

	rows, warnings := BuildLedger(
		[]catalog.Ingredient{weight(1, "Meat"), retired, untouched},
		[]inventory.Snapshot{opening(1, "1"), opening(2, "4"), opening(99, "1")},
		[]inventory.Event{delivery(42, "1", "1")},
	)
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0].Ingredient.ID)
	require.Equal(t, int64(2), rows[1].Ingredient.ID)

	codes := map[string]int64{}
	for _, w := range warnings {
		codes[w.Code] = w.IngredientID
	}
	require.Equal(t, int64(99), codes[WarnOrphanSnapshot])
	require.Equal(t, int64(42), codes[WarnOrphanEvent])
}
