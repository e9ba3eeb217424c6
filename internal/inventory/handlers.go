package inventory

import "context"

// EventListener receives committed movements, e.g. to invalidate cached summaries.
type EventListener interface {
	HandleEventRecorded(ctx context.Context, evt EventRecorded) error
}
