package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/riceledger/riceledger/internal/inventory"
	jobmetrics "github.com/riceledger/riceledger/internal/jobs"
	"github.com/riceledger/riceledger/internal/shared"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueDefault, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func lowStockEvent() inventory.LowStockEvent {
	return inventory.LowStockEvent{
		ProductID:     uuid.New(),
		ProductName:   "Basmati Rice",
		Quantity:      2,
		Stock:         decimal.NewFromInt(52),
		LowStockAlert: 3,
		Source:        "sale",
		At:            time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC),
	}
}

func TestClientNotifyLowStockEnqueuesTask(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake, logger: slog.New(slog.DiscardHandler)}
	evt := lowStockEvent()

	require.NoError(t, client.NotifyLowStock(context.Background(), evt))
	require.Len(t, fake.tasks, 1)
	require.Equal(t, TaskInventoryLowStock, fake.tasks[0].Type())

	var payload LowStockPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	require.Equal(t, evt.ProductID, payload.ProductID)
	require.Equal(t, "sale", payload.Source)
}

func TestClientNotifyLowStockIgnoresDuplicates(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, client.NotifyLowStock(context.Background(), lowStockEvent()))

	boom := errors.New("redis down")
	client = &Client{client: &fakeEnqueuer{err: boom}}
	require.ErrorIs(t, client.NotifyLowStock(context.Background(), lowStockEvent()), boom)
}

func TestLowStockJobHandle(t *testing.T) {
	job := NewLowStockJob(slog.New(slog.DiscardHandler), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewLowStockTask(lowStockEvent())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskInventoryLowStock, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupJob(t *testing.T) {
	guard := shared.NewMemoryIdempotency()
	require.NoError(t, guard.Claim(context.Background(), "k", "sale.create"))
	job := NewIdempotencyCleanupJob(guard, time.Hour, slog.New(slog.DiscardHandler), nil)

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.ErrorIs(t, guard.Claim(context.Background(), "k", "sale.create"), shared.ErrIdempotencyConflict)

	task, err = NewIdempotencyCleanupTask(time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, guard.Claim(context.Background(), "k", "sale.create"))

	var unconfigured *IdempotencyCleanupJob
	require.Error(t, unconfigured.Handle(context.Background(), task))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	cases := []struct {
		name    string
		handler *Handler
		status  int
	}{
		{"no inspector", NewHandler(nil, slog.New(slog.DiscardHandler)), http.StatusOK},
		{"queue info", NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, slog.New(slog.DiscardHandler)), http.StatusOK},
		{"redis down", NewHandler(stubInspector{err: errors.New("dial tcp")}, slog.New(slog.DiscardHandler)), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", tc.handler.MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
		})
	}
}
