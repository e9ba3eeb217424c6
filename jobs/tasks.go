package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSummaryVerify recomputes recently closed days and reports drift.
	TaskSummaryVerify = "daybook:summary_verify"
	// TaskSummaryWarmup primes the cached summary of the open day.
	TaskSummaryWarmup = "daybook:summary_warmup"
)

// SummaryVerifyPayload bounds the verification window.
type SummaryVerifyPayload struct {
	LookbackDays int `json:"lookback_days"`
}

// NewSummaryVerifyTask constructs the verification task.
func NewSummaryVerifyTask(lookbackDays int) (*asynq.Task, error) {
	data, err := json.Marshal(SummaryVerifyPayload{LookbackDays: lookbackDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryVerify, data), nil
}

// NewSummaryWarmupTask constructs the warmup task.
func NewSummaryWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskSummaryWarmup, nil)
}
