// Package downloader runs a batch of HTTP downloads through a fixed pool of
// workers sharing one FIFO queue. One task's failure never stops the others;
// the batch always runs to completion and reports every outcome.
package downloader

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"multidl/internal/domain"
	"multidl/internal/fetcher"
	"multidl/internal/pathutil"
	"multidl/internal/progress"
)

const runLogPrecision = time.Millisecond

// Config carries the batch parameters. Zero fields get defaults in
// NewManager.
type Config struct {
	DestDir string
	Workers int
	Fetcher *fetcher.Fetcher
	Logger  *logrus.Logger
}

// Manager builds the task set for a batch and drives it to quiescence.
type Manager struct {
	cfg   Config
	agg   *progress.Aggregator
	tasks []*domain.Task
}

func NewManager(cfg Config) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetcher.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Manager{
		cfg: cfg,
		agg: progress.NewAggregator(),
	}
}

// Aggregator exposes the progress read API for renderers. Available from
// construction so a consumer can subscribe before Run starts.
func (m *Manager) Aggregator() *progress.Aggregator {
	return m.agg
}

// Tasks returns the batch's tasks. Stable after Run returns; used for
// reporting and the history journal.
func (m *Manager) Tasks() []*domain.Task {
	return m.tasks
}

// Run builds one task per URL, drains the queue with exactly cfg.Workers
// concurrent fetchers and blocks until every worker has exited. The returned
// summary enumerates every failure; Run itself only errors on setup
// problems, never on task failures.
func (m *Manager) Run(ctx context.Context, urls []string) (*domain.Summary, error) {
	m.tasks = m.buildTasks(urls)

	for _, task := range m.tasks {
		if err := m.agg.Register(task.ID, domain.SizeUnknown); err != nil {
			return nil, err
		}
	}

	// FIFO queue: filled and closed up front, workers drain until empty
	queue := make(chan *domain.Task, len(m.tasks))
	for _, task := range m.tasks {
		queue <- task
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runWorker(ctx, queue)
		}()
	}
	wg.Wait()

	snap := m.agg.Snapshot()
	summary := domain.Summarize(m.tasks, snap.TotalBytes, snap.Elapsed)
	m.cfg.Logger.Infof("batch finished: %d completed, %d failed, %d bytes in %s",
		summary.Completed, summary.Failed, summary.TotalBytes, summary.Elapsed.Round(runLogPrecision))
	return summary, nil
}

func (m *Manager) runWorker(ctx context.Context, queue <-chan *domain.Task) {
	for task := range queue {
		logger := m.cfg.Logger.WithFields(logrus.Fields{
			"task_id": task.ID,
			"url":     task.URL,
		})

		if err := ctx.Err(); err != nil {
			// batch cancelled: undequeued work fails fast, nothing is lost
			// beyond bytes not yet flushed
			_ = task.MarkFailed(err)
			m.agg.Finish(task.ID)
			logger.Warnf("cancelled before start: %v", err)
			continue
		}

		logger.Debug("download started")
		if err := m.cfg.Fetcher.Fetch(ctx, task, m.agg); err != nil {
			logger.Errorf("download failed: %v", err)
			continue
		}
		logger.Infof("download completed: %s (%d bytes)", filepath.Base(task.DestPath), task.BytesDownloaded)
	}
}

// buildTasks derives destination paths from the URLs' final path segments,
// disambiguating collisions so each task owns a distinct file.
func (m *Manager) buildTasks(urls []string) []*domain.Task {
	names := make([]string, len(urls))
	for i, u := range urls {
		names[i] = pathutil.Filename(u)
	}
	names = pathutil.Disambiguate(names)

	tasks := make([]*domain.Task, len(urls))
	for i, u := range urls {
		tasks[i] = domain.NewTask(i, u, filepath.Join(m.cfg.DestDir, names[i]))
	}
	return tasks
}
