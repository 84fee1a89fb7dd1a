package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/riceledger/riceledger/internal/jobs"
)

// LowStockJob consumes low stock alerts. It logs each alert and counts it.
type LowStockJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockJob initialises the low stock handler.
func NewLowStockJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Logger: logger, Metrics: metrics}
}

// Handle processes one TaskInventoryLowStock task.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("low stock: handler not configured")
	}
	tracker := j.Metrics.Track(TaskInventoryLowStock)
	defer func() { err = tracker.End(err) }()

	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().WarnContext(ctx, "low stock payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	j.logger().WarnContext(ctx, "product stock low",
		slog.String("product_id", payload.ProductID.String()),
		slog.String("product", payload.ProductName),
		slog.Int64("quantity", payload.Quantity),
		slog.String("stock_kg", payload.Stock.String()),
		slog.Int64("alert_at", payload.LowStockAlert),
		slog.String("source", payload.Source),
		slog.Time("at", payload.At),
	)
	j.Metrics.AddLowStockAlert(payload.Source)
	return nil
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes the idempotency key table.
type IdempotencyCleanupJob struct {
	Cleaner   KeyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(cleaner KeyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Cleaner: cleaner, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes one TaskIdempotencyCleanup task. A payload retention wins
// over the configured one.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Cleaner == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	retention := j.Retention
	if len(t.Payload()) > 0 {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.OlderThan > 0 {
			retention = payload.OlderThan
		}
	}
	if retention <= 0 {
		retention = 72 * time.Hour
	}

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	removed, err := j.Cleaner.Cleanup(ctx, retention)
	if err != nil {
		logger.ErrorContext(ctx, "idempotency cleanup", slog.Any("error", err))
		return err
	}
	j.Metrics.AddCleanedKeys(removed)
	logger.InfoContext(ctx, "idempotency keys cleaned",
		slog.Int64("removed", removed),
		slog.Duration("retention", retention),
	)
	return nil
}
