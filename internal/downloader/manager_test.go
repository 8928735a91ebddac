package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidl/internal/domain"
	"multidl/internal/fetcher"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func body(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + i%10)
	}
	return b
}

// Two good URLs (100 and 250 bytes), one 404, two workers: the batch
// completes with exactly one failure and total bytes 350.
func TestRunMixedBatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.bin", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(body(100)) })
	mux.HandleFunc("/b.bin", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(body(250)) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dest := t.TempDir()
	m := NewManager(Config{DestDir: dest, Workers: 2, Logger: quietLogger()})

	missing := srv.URL + "/missing.bin"
	summary, err := m.Run(context.Background(), []string{
		srv.URL + "/a.bin",
		srv.URL + "/b.bin",
		missing,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(350), summary.TotalBytes)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, missing, summary.Failures[0].URL)
	var statusErr *fetcher.HTTPStatusError
	assert.ErrorAs(t, summary.Failures[0].Err, &statusErr)

	for _, name := range []string{"a.bin", "b.bin"} {
		fi, statErr := os.Stat(filepath.Join(dest, name))
		require.NoError(t, statErr, name)
		assert.NotZero(t, fi.Size())
	}
}

// A failing task must not keep the remaining tasks from completing.
func TestRunPartialFailureIsolation(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 8; i++ {
		mux.HandleFunc(fmt.Sprintf("/f%d.bin", i), func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(body(50))
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls := []string{srv.URL + "/gone.bin"}
	for i := 0; i < 8; i++ {
		urls = append(urls, fmt.Sprintf("%s/f%d.bin", srv.URL, i))
	}

	m := NewManager(Config{DestDir: t.TempDir(), Workers: 3, Logger: quietLogger()})
	summary, err := m.Run(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	for _, task := range m.Tasks() {
		assert.True(t, task.Status.Terminal(), "task %d left in %s", task.ID, task.Status)
	}
}

// With worker count N, never more than N requests are in flight at once.
func TestRunConcurrencyBound(t *testing.T) {
	const workers = 2
	var inFlight, peak int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		defer atomic.AddInt64(&inFlight, -1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		_, _ = w.Write(body(10))
	}))
	defer srv.Close()

	var urls []string
	for i := 0; i < 10; i++ {
		urls = append(urls, fmt.Sprintf("%s/file%d.bin", srv.URL, i))
	}

	m := NewManager(Config{DestDir: t.TempDir(), Workers: workers, Logger: quietLogger()})
	summary, err := m.Run(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Completed)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(workers))
}

// Distinct URLs mapping to the same filename get disambiguated paths.
func TestRunFilenameCollision(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/one/data.bin", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(body(10)) })
	mux.HandleFunc("/two/data.bin", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(body(20)) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dest := t.TempDir()
	m := NewManager(Config{DestDir: dest, Workers: 1, Logger: quietLogger()})
	summary, err := m.Run(context.Background(), []string{
		srv.URL + "/one/data.bin",
		srv.URL + "/two/data.bin",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)

	tasks := m.Tasks()
	require.Len(t, tasks, 2)
	assert.NotEqual(t, tasks[0].DestPath, tasks[1].DestPath)
	assert.Equal(t, filepath.Join(dest, "data.bin"), tasks[0].DestPath)
	assert.Equal(t, filepath.Join(dest, "data.1.bin"), tasks[1].DestPath)
}

func TestRunCancelledContextFailsRemainingTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body(10))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(Config{DestDir: t.TempDir(), Workers: 2, Logger: quietLogger()})
	summary, err := m.Run(ctx, []string{srv.URL + "/a.bin", srv.URL + "/b.bin"})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 2, summary.Failed)
	for _, task := range m.Tasks() {
		assert.Equal(t, domain.TaskStatusFailed, task.Status)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	m := NewManager(Config{DestDir: t.TempDir(), Workers: 4, Logger: quietLogger()})
	summary, err := m.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.Zero(t, summary.TotalBytes)
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Config{})
	assert.Greater(t, m.cfg.Workers, 0)
	assert.NotNil(t, m.cfg.Fetcher)
	assert.NotNil(t, m.cfg.Logger)
	assert.NotNil(t, m.Aggregator())
}
