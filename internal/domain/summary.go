package domain

import "time"

// Failure pairs a failed URL with its cause for the final report.
type Failure struct {
	URL string
	Err error
}

// Summary is the read-only result of a whole batch, computed once after the
// worker pool reaches quiescence.
type Summary struct {
	TotalBytes int64
	Elapsed    time.Duration
	Completed  int
	Failed     int
	Failures   []Failure
}

// Throughput is the average transfer rate in bytes per second over the whole
// batch. Zero when the batch finished instantly.
func (s Summary) Throughput() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.TotalBytes) / secs
}

// Summarize derives the batch summary from the tasks' terminal states.
func Summarize(tasks []*Task, totalBytes int64, elapsed time.Duration) *Summary {
	s := &Summary{
		TotalBytes: totalBytes,
		Elapsed:    elapsed,
	}
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusCompleted:
			s.Completed++
		case TaskStatusFailed:
			s.Failed++
			s.Failures = append(s.Failures, Failure{URL: t.URL, Err: t.Err})
		}
	}
	return s
}
