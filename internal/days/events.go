package days

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventTypeDayClosed names the DayClosed event on the wire.
const EventTypeDayClosed = "daybook.day_closed"

// DayClosed is published after a day is committed as closed.
type DayClosed struct {
	DayID         int64           `json:"day_id"`
	Date          string          `json:"date"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	DeliveryCost  decimal.Decimal `json:"delivery_cost"`
	SpoilageCost  decimal.Decimal `json:"spoilage_cost"`
	ItemsSold     int64           `json:"items_sold"`
	WarningCount  int             `json:"warning_count"`
	CriticalCount int             `json:"critical_count"`
	ClosedBy      int64           `json:"closed_by,omitempty"`
	ClosedAt      time.Time       `json:"closed_at"`
}

func newDayClosed(rec DailyRecord) DayClosed {
	evt := DayClosed{
		DayID:         rec.ID,
		Date:          rec.Date.Format(DateLayout),
		TotalIncome:   rec.TotalIncome,
		DeliveryCost:  rec.DeliveryCost,
		SpoilageCost:  rec.SpoilageCost,
		ItemsSold:     rec.ItemsSold,
		WarningCount:  rec.WarningCount,
		CriticalCount: rec.CriticalCount,
		ClosedBy:      rec.ClosedBy,
	}
	if rec.ClosedAt != nil {
		evt.ClosedAt = *rec.ClosedAt
	}
	return evt
}
