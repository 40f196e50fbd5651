package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity recomputes product quantities from the movement
	// trail and reports drift.
	TaskStockIntegrity = "stock:integrity_scan"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// StockIntegrityPayload scopes a scan. Empty CompanyID scans every tenant.
type StockIntegrityPayload struct {
	CompanyID string `json:"company_id,omitempty"`
}

// NewStockIntegrityTask constructs the integrity scan task.
func NewStockIntegrityTask(payload StockIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrity, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
