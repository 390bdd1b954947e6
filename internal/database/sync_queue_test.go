package database

import (
	"context"
	"testing"
	"time"

	"hotelledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{TaskType: models.SyncTaskUpsertBooking, EntityID: 7, Payload: `{"id":7}`}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, "pending", task.Status)

	future := time.Now().Add(time.Hour)
	later := &models.SyncTask{TaskType: models.SyncTaskUpsertTransaction, EntityID: 8, Status: "retry", NextRetryAt: &future}
	require.NoError(t, db.CreateSyncTask(ctx, later))

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(7), pending[0].EntityID)

	next := time.Now().Add(-time.Second)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "retry", "boom", &next))
	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "boom", *pending[0].LastError)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "failed", "gave up", nil))
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotNil(t, failed[0].ProcessedAt)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, later.ID, "completed", "", nil))
	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGetSyncTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{TaskType: models.SyncTaskUpsertBooking, EntityID: 3, Payload: `{}`}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	got, err := db.GetSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, int64(3), got.EntityID)

	_, err = db.GetSyncTask(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	newer := &models.SyncTask{TaskType: models.SyncTaskUpsertBooking, EntityID: 3, Payload: `{}`}
	require.NoError(t, db.CreateSyncTask(ctx, newer))
	n, err := db.SupersedeSyncTasks(ctx, models.SyncTaskUpsertBooking, 3, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = db.GetSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "superseded", got.Status)
	assert.NotNil(t, got.ProcessedAt)

	// superseded tasks are never polled again
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, newer.ID, pending[0].ID)
}
