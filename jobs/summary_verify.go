package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/daybook/internal/days"
	jobmetrics "github.com/odyssey-erp/daybook/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SummaryVerifier recomputes closed days over a date range.
type SummaryVerifier interface {
	VerifyClosed(ctx context.Context, from, to time.Time) ([]days.Mismatch, error)
}

// SummaryVerifyJob compares stored closed-day totals against a fresh reconciliation.
type SummaryVerifyJob struct {
	Days            SummaryVerifier
	Logger          *slog.Logger
	Metrics         *jobmetrics.Metrics
	DefaultLookback int
	clock           func() time.Time
}

// NewSummaryVerifyJob wires dependencies for the verification handler.
func NewSummaryVerifyJob(verifier SummaryVerifier, lookback int, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryVerifyJob {
	return &SummaryVerifyJob{
		Days:            verifier,
		Logger:          logger,
		Metrics:         metrics,
		DefaultLookback: lookback,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskSummaryVerify tasks.
func (j *SummaryVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Days == nil {
		return errors.New("summary verify: handler not configured")
	}
	var payload SummaryVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.LookbackDays <= 0 {
		payload.LookbackDays = j.DefaultLookback
	}
	if payload.LookbackDays <= 0 {
		payload.LookbackDays = 7
	}

	tracker := j.metrics().Track(TaskSummaryVerify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -payload.LookbackDays)

	logger := j.logger().With(
		slog.String("from", from.Format(days.DateLayout)),
		slog.String("to", to.Format(days.DateLayout)),
	)
	logger.Info("starting summary verification")

	mismatches, err := j.Days.VerifyClosed(ctx, from, to)
	if err != nil {
		resultErr = err
		logger.Error("verify closed days", slog.Any("error", err))
		return resultErr
	}

	perField := make(map[string]int)
	for _, m := range mismatches {
		perField[m.Field]++
		logger.Warn("stored summary drifted",
			slog.Int64("day_id", m.DayID),
			slog.String("date", m.Date),
			slog.String("field", m.Field),
			slog.String("stored", m.Stored),
			slog.String("recomputed", m.Recomputed),
		)
	}
	for field, count := range perField {
		j.metrics().AddMismatches(field, count)
	}

	logger.Info("completed summary verification", slog.Int("mismatches", len(mismatches)), slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *SummaryVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSummaryVerify))
	}
	return slog.Default().With(slog.String("job", TaskSummaryVerify))
}

func (j *SummaryVerifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SummaryVerifyJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
