package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidl/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestRecordAndListBatch(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	ok := domain.NewTask(0, "http://example.com/a.bin", "/dl/a.bin")
	require.NoError(t, ok.MarkInProgress())
	ok.AddBytes(100)
	require.NoError(t, ok.MarkCompleted(100))

	bad := domain.NewTask(1, "http://example.com/b.bin", "/dl/b.bin")
	require.NoError(t, bad.MarkInProgress())
	require.NoError(t, bad.MarkFailed(errors.New("http status 404")))

	tasks := []*domain.Task{ok, bad}
	summary := domain.Summarize(tasks, 100, 1500*time.Millisecond)

	started := time.Now().Add(-2 * time.Second)
	id, err := store.RecordBatch(ctx, started, summary, tasks)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	batches, err := store.ListBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, id, b.ID)
	assert.Equal(t, int64(100), b.TotalBytes)
	assert.Equal(t, 1, b.Completed)
	assert.Equal(t, 1, b.Failed)
	assert.Equal(t, 1500*time.Millisecond, b.Elapsed)

	require.Len(t, b.Outcomes, 2)
	assert.Equal(t, "http://example.com/a.bin", b.Outcomes[0].URL)
	assert.Equal(t, string(domain.TaskStatusCompleted), b.Outcomes[0].Status)
	assert.Empty(t, b.Outcomes[0].Error)
	assert.Equal(t, string(domain.TaskStatusFailed), b.Outcomes[1].Status)
	assert.Equal(t, "http status 404", b.Outcomes[1].Error)
}

func TestListBatchesLimitAndOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		task := domain.NewTask(0, "http://example.com/x.bin", "/dl/x.bin")
		require.NoError(t, task.MarkInProgress())
		require.NoError(t, task.MarkCompleted(int64(i)))
		summary := domain.Summarize([]*domain.Task{task}, int64(i), time.Second)
		started := time.Now().Add(time.Duration(i) * time.Minute)
		_, err := store.RecordBatch(ctx, started, summary, []*domain.Task{task})
		require.NoError(t, err)
	}

	batches, err := store.ListBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	// newest first
	assert.Equal(t, int64(2), batches[0].TotalBytes)
	assert.Equal(t, int64(1), batches[1].TotalBytes)
}

func TestListBatchesEmpty(t *testing.T) {
	store := openStore(t)
	batches, err := store.ListBatches(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
