// Package fetcher transfers exactly one URL to exactly one destination
// path, resuming from an existing partial file when the server accepts a
// byte range. Failures leave partial bytes on disk so a later run can pick
// up where this one stopped.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"multidl/internal/domain"
	"multidl/internal/progress"
)

const DefaultChunkSize = 32 * 1024

// Fetcher performs single-file downloads. The zero value is not usable; use
// New.
type Fetcher struct {
	Client    *http.Client
	ChunkSize int
}

func New() *Fetcher {
	return &Fetcher{
		Client:    &http.Client{},
		ChunkSize: DefaultChunkSize,
	}
}

// Fetch runs the task to a terminal status and reports byte deltas to the
// aggregator as the body streams in. The returned error is the task's
// failure cause, nil on completion.
func (f *Fetcher) Fetch(ctx context.Context, task *domain.Task, agg *progress.Aggregator) error {
	defer agg.Finish(task.ID)
	if err := f.fetch(ctx, task, agg); err != nil {
		_ = task.MarkFailed(err)
		return err
	}
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, task *domain.Task, agg *progress.Aggregator) error {
	existing, err := existingLength(task.DestPath)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return &NetworkError{URL: task.URL, Err: err}
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return &NetworkError{URL: task.URL, Err: err}
	}
	defer resp.Body.Close()

	var file *os.File
	switch {
	case existing > 0 && resp.StatusCode == http.StatusPartialContent:
		// server honored the range, append to what we have
		if err := task.MarkResumed(); err != nil {
			return err
		}
		if resp.ContentLength >= 0 {
			task.TotalSize = existing + resp.ContentLength
		}
		file, err = os.OpenFile(task.DestPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)

	case existing > 0 && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// nothing past our offset: the file is already complete
		if err := task.MarkInProgress(); err != nil {
			return err
		}
		task.TotalSize = existing
		return task.MarkCompleted(0)

	case resp.StatusCode == http.StatusOK:
		// fresh download, or the server ignored the range; either way the
		// existing bytes cannot be trusted as a prefix
		if resp.ContentLength >= 0 {
			task.TotalSize = resp.ContentLength
		}
		file, err = os.OpenFile(task.DestPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)

	default:
		return &HTTPStatusError{URL: task.URL, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if err != nil {
		return &IOError{Path: task.DestPath, Err: err}
	}
	defer file.Close()

	if err := task.MarkInProgress(); err != nil {
		return err
	}
	if task.TotalSize != domain.SizeUnknown {
		agg.SetExpected(task.ID, task.TotalSize)
	}

	if err := f.stream(ctx, resp.Body, file, task, agg); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return &IOError{Path: task.DestPath, Err: err}
	}
	return task.MarkCompleted(task.BytesDownloaded)
}

// stream copies the body in fixed-size chunks, advancing the aggregator
// after every write. The context is checked between chunks so cancellation
// is cooperative and the partial file stays intact.
func (f *Fetcher) stream(ctx context.Context, body io.Reader, file *os.File, task *domain.Task, agg *progress.Aggregator) error {
	buf := make([]byte, f.ChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				return &IOError{Path: task.DestPath, Err: werr}
			}
			task.AddBytes(int64(n))
			agg.Advance(task.ID, int64(n))
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &NetworkError{URL: task.URL, Err: rerr}
		}
	}
}

func existingLength(path string) (int64, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, &IOError{Path: path, Err: err}
	}
	if fi.IsDir() {
		return 0, &IOError{Path: path, Err: fmt.Errorf("destination is a directory")}
	}
	return fi.Size(), nil
}
