package domain

import "fmt"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusResumed    TaskStatus = "resumed"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// SizeUnknown is the TotalSize value for servers that omit Content-Length.
const SizeUnknown int64 = -1

// Task is one URL-to-file download unit. It is created by the batch runner,
// mutated only by the fetcher that owns it, and reaches a terminal status
// exactly once. Tasks are never reused or retried.
type Task struct {
	ID              int
	URL             string
	DestPath        string
	Status          TaskStatus
	BytesDownloaded int64
	TotalSize       int64
	Err             error
}

func NewTask(id int, url, destPath string) *Task {
	return &Task{
		ID:        id,
		URL:       url,
		DestPath:  destPath,
		Status:    TaskStatusPending,
		TotalSize: SizeUnknown,
	}
}

// MarkInProgress transitions the task into the active state. Legal from
// Pending and from Resumed (a resumed task becomes active once the range
// response starts streaming).
func (t *Task) MarkInProgress() error {
	if t.Status != TaskStatusPending && t.Status != TaskStatusResumed {
		return t.transitionErr(TaskStatusInProgress)
	}
	t.Status = TaskStatusInProgress
	return nil
}

// MarkResumed records that a range request for the existing partial file was
// accepted by the server.
func (t *Task) MarkResumed() error {
	if t.Status != TaskStatusPending {
		return t.transitionErr(TaskStatusResumed)
	}
	t.Status = TaskStatusResumed
	return nil
}

// MarkCompleted is the successful terminal transition. totalBytes is the
// byte count actually observed on the wire, which is authoritative even when
// the server never sent a Content-Length.
func (t *Task) MarkCompleted(totalBytes int64) error {
	if t.Status.Terminal() {
		return t.transitionErr(TaskStatusCompleted)
	}
	t.Status = TaskStatusCompleted
	t.BytesDownloaded = totalBytes
	return nil
}

// MarkFailed is the failing terminal transition.
func (t *Task) MarkFailed(err error) error {
	if t.Status.Terminal() {
		return t.transitionErr(TaskStatusFailed)
	}
	t.Status = TaskStatusFailed
	t.Err = err
	return nil
}

// AddBytes advances the per-task byte counter. The counter only ever grows.
func (t *Task) AddBytes(n int64) {
	if n > 0 {
		t.BytesDownloaded += n
	}
}

func (t *Task) transitionErr(to TaskStatus) error {
	return fmt.Errorf("task %d: illegal transition %s -> %s", t.ID, t.Status, to)
}
