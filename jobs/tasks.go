package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/riceledger/riceledger/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryLowStock carries a low stock alert raised after a committed change.
	TaskInventoryLowStock = "inventory:low_stock"
	// TaskIdempotencyCleanup removes expired idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// LowStockPayload is the task body for TaskInventoryLowStock.
type LowStockPayload = inventory.LowStockEvent

// NewLowStockTask constructs an Asynq task for a low stock alert. Alerts for the
// same product within one minute collapse into one task.
func NewLowStockTask(evt inventory.LowStockEvent) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	taskID := fmt.Sprintf("%s:%s:%s", TaskInventoryLowStock, evt.ProductID, evt.At.UTC().Truncate(time.Minute).Format("200601021504"))
	return asynq.NewTask(TaskInventoryLowStock, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(taskID),
		asynq.MaxRetry(5),
	), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
