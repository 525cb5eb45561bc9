package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// seedAccount stores an account the tasks under test can reference.
func seedAccount(t *testing.T, db *DB, username string) model.Account {
	t.Helper()
	a, err := newAccountRepo(t, db).Upsert(context.Background(), sampleAccount("facebook", username))
	require.NoError(t, err)
	return a
}

func pendingTask(accountID int64) model.DeletionTask {
	return model.DeletionTask{
		AccountID: accountID,
		Method:    model.MethodAutomated,
		Status:    model.TaskStatusPending,
	}
}

func TestTaskRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()
	acct := seedAccount(t, db, "alice")

	created, err := repo.Create(ctx, pendingTask(acct.ID))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.AccountID)
	assert.Equal(t, model.MethodAutomated, got.Method)
	assert.Equal(t, model.TaskStatusPending, got.Status)
	assert.Nil(t, got.RetryAfter)
	assert.Nil(t, got.CompletedAt)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestTaskRepo_SecondActiveTaskRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()
	acct := seedAccount(t, db, "alice")

	_, err := repo.Create(ctx, pendingTask(acct.ID))
	require.NoError(t, err)

	_, err = repo.Create(ctx, pendingTask(acct.ID))
	assert.ErrorIs(t, err, driven.ErrActiveTaskExists)
}

func TestTaskRepo_FinishedTaskAllowsNewOne(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()
	acct := seedAccount(t, db, "alice")

	first, err := repo.Create(ctx, pendingTask(acct.ID))
	require.NoError(t, err)

	first.Status = model.TaskStatusFailed
	first.LastError = "smtp: 550 mailbox unavailable"
	require.NoError(t, repo.Update(ctx, first))

	second, err := repo.Create(ctx, pendingTask(acct.ID))
	require.NoError(t, err)

	// Reactivating the failed task would now give the account two active tasks.
	first.Status = model.TaskStatusPending
	assert.ErrorIs(t, repo.Update(ctx, first), driven.ErrActiveTaskExists)

	active, err := repo.ActiveForAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
}

func TestTaskRepo_UpdateRoundTripsEveryField(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()
	acct := seedAccount(t, db, "alice")

	task, err := repo.Create(ctx, pendingTask(acct.ID))
	require.NoError(t, err)

	retryAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	confirmed := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	task.Method = model.MethodEmail
	task.Status = model.TaskStatusPending
	task.Attempts = 2
	task.LastError = "connection reset"
	task.RetryCount = 1
	task.RetryAfter = &retryAt
	task.ConfirmedAt = &confirmed
	task.DeletionURL = "https://facebook.com/delete"
	task.PrivacyEmail = "privacy@facebook.com"
	task.FallbackReason = "navigator_unavailable"
	require.NoError(t, repo.Update(ctx, task))

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MethodEmail, got.Method)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "connection reset", got.LastError)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.RetryAfter)
	assert.True(t, retryAt.Equal(*got.RetryAfter))
	require.NotNil(t, got.ConfirmedAt)
	assert.True(t, confirmed.Equal(*got.ConfirmedAt))
	assert.Equal(t, "privacy@facebook.com", got.PrivacyEmail)
	assert.Equal(t, "navigator_unavailable", got.FallbackReason)
	assert.True(t, got.RetryScheduled())
}

func TestTaskRepo_UpdateMissing(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))

	err := repo.Update(context.Background(), model.DeletionTask{ID: 42, Status: model.TaskStatusFailed})
	assert.ErrorIs(t, err, driven.ErrTaskNotFound)
}

func TestTaskRepo_GetMissing(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))

	_, err := repo.Get(context.Background(), 42)
	assert.ErrorIs(t, err, driven.ErrTaskNotFound)
}

func TestTaskRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()
	acct := seedAccount(t, db, "alice")

	task, err := repo.Create(ctx, pendingTask(acct.ID))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, task.ID))
	require.NoError(t, repo.Delete(ctx, task.ID), "deleting a missing task is not an error")

	active, err := repo.ActiveForAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestTaskRepo_ListByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepo(db)
	ctx := context.Background()

	alice := seedAccount(t, db, "alice")
	bob := seedAccount(t, db, "bob")

	_, err := repo.Create(ctx, pendingTask(alice.ID))
	require.NoError(t, err)
	failed := pendingTask(bob.ID)
	failed.Status = model.TaskStatusFailed
	_, err = repo.Create(ctx, failed)
	require.NoError(t, err)

	pending, err := repo.ListByStatus(ctx, model.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alice.ID, pending[0].AccountID)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTaskRepo_RequiresExistingAccount(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))

	_, err := repo.Create(context.Background(), pendingTask(999))
	assert.Error(t, err)
}
