package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/daybook/internal/days"
	jobmetrics "github.com/odyssey-erp/daybook/internal/jobs"
)

// SummaryWarmer primes the cached summary of the open day.
type SummaryWarmer interface {
	WarmOpenSummary(ctx context.Context) (int64, error)
}

// SummaryWarmupJob keeps the open day's summary hot in Redis.
type SummaryWarmupJob struct {
	Days    SummaryWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSummaryWarmupJob wires dependencies for the warmup handler.
func NewSummaryWarmupJob(warmer SummaryWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryWarmupJob {
	return &SummaryWarmupJob{Days: warmer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSummaryWarmup tasks. A missing open day is not a failure.
func (j *SummaryWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Days == nil {
		return errors.New("summary warmup: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskSummaryWarmup))

	tracker := metrics.Track(TaskSummaryWarmup)
	dayID, err := j.Days.WarmOpenSummary(ctx)
	switch {
	case errors.Is(err, days.ErrNoOpenDay):
		logger.Debug("no open day to warm")
		return tracker.End(nil)
	case err != nil:
		logger.Error("warm open summary", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("warmed open day summary", slog.Int64("day_id", dayID))
	return tracker.End(nil)
}
