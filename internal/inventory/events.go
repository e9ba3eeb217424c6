package inventory

import "time"

// EventRecorded is emitted after a mid-day movement is committed.
type EventRecorded struct {
	DayID        int64
	EventID      int64
	IngredientID int64
	Kind         EventKind
	RecordedAt   time.Time
}
