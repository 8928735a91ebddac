// Package progress owns the shared byte counters for a running batch.
// Workers report deltas through Advance; any presentation layer reads
// point-in-time copies through Snapshot. The raw counters are never exposed.
package progress

import (
	"fmt"
	"sync"
	"time"

	"multidl/internal/domain"
)

// TaskProgress is one task's entry in a snapshot.
type TaskProgress struct {
	ID       int
	Bytes    int64
	Expected int64 // domain.SizeUnknown when the server never said
	Finished bool
}

// Snapshot is an internally consistent copy of the aggregate state: the
// total always equals the sum of the per-task values in the same snapshot.
type Snapshot struct {
	Tasks      []TaskProgress
	TotalBytes int64
	Elapsed    time.Duration
}

// ExpectedTotal sums the known expected sizes. known is false when no task
// reported a size, in which case a renderer has nothing to show a bar
// against.
func (s Snapshot) ExpectedTotal() (total int64, known bool) {
	for _, tp := range s.Tasks {
		if tp.Expected != domain.SizeUnknown {
			total += tp.Expected
			known = true
		}
	}
	return total, known
}

// Aggregator accumulates per-task and total byte counts. Advance calls from
// different tasks may race; the mutex keeps each (per-task, total) update
// atomic so no reader ever observes a torn state.
type Aggregator struct {
	mu        sync.Mutex
	order     []int
	bytes     map[int]int64
	expected  map[int]int64
	finished  map[int]bool
	total     int64
	startedAt time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		bytes:     make(map[int]int64),
		expected:  make(map[int]int64),
		finished:  make(map[int]bool),
		startedAt: time.Now(),
	}
}

// Register creates the entry for a task. Must be called once per task before
// its worker starts; registration order is the order snapshots report.
func (a *Aggregator) Register(id int, expectedSize int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bytes[id]; ok {
		return fmt.Errorf("task %d already registered", id)
	}
	a.order = append(a.order, id)
	a.bytes[id] = 0
	a.expected[id] = expectedSize
	return nil
}

// SetExpected updates a task's expected size once the response headers
// reveal it.
func (a *Aggregator) SetExpected(id int, expectedSize int64) {
	a.mu.Lock()
	if _, ok := a.bytes[id]; ok {
		a.expected[id] = expectedSize
	}
	a.mu.Unlock()
}

// Advance adds delta bytes to the task's counter and the batch total in one
// atomic step. Safe for concurrent use by all workers.
func (a *Aggregator) Advance(id int, delta int64) {
	if delta <= 0 {
		return
	}
	a.mu.Lock()
	if _, ok := a.bytes[id]; ok {
		a.bytes[id] += delta
		a.total += delta
	}
	a.mu.Unlock()
}

// Finish closes a task's progress stream. The task's bytes stay in the
// total; renderers stop showing a live rate for it.
func (a *Aggregator) Finish(id int) {
	a.mu.Lock()
	if _, ok := a.bytes[id]; ok {
		a.finished[id] = true
	}
	a.mu.Unlock()
}

// Snapshot copies the current state. The lock is held only for the copy, so
// a concurrent Advance is delayed at most by a few map reads.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	snap := Snapshot{
		Tasks:      make([]TaskProgress, 0, len(a.order)),
		TotalBytes: a.total,
		Elapsed:    time.Since(a.startedAt),
	}
	for _, id := range a.order {
		snap.Tasks = append(snap.Tasks, TaskProgress{
			ID:       id,
			Bytes:    a.bytes[id],
			Expected: a.expected[id],
			Finished: a.finished[id],
		})
	}
	a.mu.Unlock()
	return snap
}

// StartedAt is the batch start timestamp, set once at construction.
func (a *Aggregator) StartedAt() time.Time {
	return a.startedAt
}
