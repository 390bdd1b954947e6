package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotelledger/internal/metrics"
	"hotelledger/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SheetsClient applies mirrored rows to the external spreadsheet.
type SheetsClient interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpsertTransaction(ctx context.Context, tx *models.InventoryTransaction) error
}

// TaskStore is the durable outbox behind the worker.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error)
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	SupersedeSyncTasks(ctx context.Context, taskType string, entityID, beforeID int64) (int64, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// mirrorPayload is persisted in SyncTask.Payload as JSON.
type mirrorPayload struct {
	Booking     *models.Booking              `json:"booking,omitempty"`
	Transaction *models.InventoryTransaction `json:"transaction,omitempty"`
}

// MirrorWorker consumes sync_queue tasks and applies them to Google Sheets.
// Tasks are persisted first, then scheduled through Redis when available
// or an in-memory queue; the table is polled for anything missed.
type MirrorWorker struct {
	store         TaskStore
	sheets        SheetsClient
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewMirrorWorker(store TaskStore, sheets SheetsClient, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *MirrorWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &MirrorWorker{
		store:         store,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "mirror:queue",
		deadLetterKey: "mirror:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

func (w *MirrorWorker) EnqueueBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil || booking.ID == 0 {
		return errors.New("booking id is required")
	}
	return w.enqueue(ctx, models.SyncTaskUpsertBooking, booking.ID, mirrorPayload{Booking: booking})
}

func (w *MirrorWorker) EnqueueTransaction(ctx context.Context, tx *models.InventoryTransaction) error {
	if tx == nil || tx.ID == 0 {
		return errors.New("transaction id is required")
	}
	return w.enqueue(ctx, models.SyncTaskUpsertTransaction, tx.ID, mirrorPayload{Transaction: tx})
}

func (w *MirrorWorker) enqueue(ctx context.Context, taskType string, entityID int64, payload mirrorPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType: taskType,
		EntityID: entityID,
		Payload:  string(payloadBytes),
		Status:   "pending",
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		err := w.pushRedis(ctx, w.redisQueueKey, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("mirror_worker: redis push failed, fallback to memory queue")
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("mirror_worker: in-memory queue full, task left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *MirrorWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("mirror_worker: started")
	defer w.logger.Info().Msg("mirror_worker: stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.processPending(ctx); n == 0 {
			w.sleep(ctx)
		}
	}
}

// processPending handles one batch of due tasks from the outbox table.
func (w *MirrorWorker) processPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("mirror_worker: fetch pending")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *MirrorWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *MirrorWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *MirrorWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("mirror_worker: redis BRPOP error")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("mirror_worker: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

// processTask applies a task popped from any of the queues. The outbox row
// is authoritative: a copy whose row is already closed is dropped.
func (w *MirrorWorker) processTask(ctx context.Context, task *models.SyncTask) {
	current, err := w.store.GetSyncTask(ctx, task.ID)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mirror_worker: reload task")
		}
		return
	}
	if current.Status != "pending" && current.Status != "retry" {
		metrics.IncMirrorTask("skipped")
		w.logger.Debug().Int64("task_id", task.ID).Str("status", current.Status).Msg("mirror_worker: task already closed")
		return
	}
	*task = *current

	var payload mirrorPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.apply(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncMirrorTask("completed")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mirror_worker: mark completed")
	}
	// Older snapshots of the same entity still waiting for a retry are stale now.
	n, err := w.store.SupersedeSyncTasks(ctx, task.TaskType, task.EntityID, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mirror_worker: supersede older tasks")
	} else if n > 0 {
		w.logger.Info().Int64("task_id", task.ID).Int64("superseded", n).Msg("mirror_worker: older tasks superseded")
	}
}

func (w *MirrorWorker) apply(ctx context.Context, taskType string, payload mirrorPayload) error {
	switch taskType {
	case models.SyncTaskUpsertBooking:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.sheets.UpsertBooking(ctx, payload.Booking)
	case models.SyncTaskUpsertTransaction:
		if payload.Transaction == nil {
			return errors.New("transaction payload missing")
		}
		return w.sheets.UpsertTransaction(ctx, payload.Transaction)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *MirrorWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncMirrorTask("retry")
	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).
		Msg("mirror_worker: task failed, will retry")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mirror_worker: mark retry")
	}
}

func (w *MirrorWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	metrics.IncMirrorTask("failed")
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Msg("mirror_worker: task failed permanently")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mirror_worker: mark failed")
	}
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mirror_worker: deadletter push")
		}
	}
}

func (w *MirrorWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
