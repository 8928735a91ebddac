package progress

import (
	"time"

	pb "gopkg.in/cheggaaa/pb.v1"
)

const defaultPollInterval = 200 * time.Millisecond

// Renderer draws a single aggregate progress bar from snapshots. It is a
// plain consumer of the aggregator's read API and holds no state the engine
// depends on.
type Renderer struct {
	agg      *Aggregator
	interval time.Duration
	bar      *pb.ProgressBar
	stop     chan struct{}
	done     chan struct{}
}

func NewRenderer(agg *Aggregator) *Renderer {
	return &Renderer{
		agg:      agg,
		interval: defaultPollInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling snapshots and drawing until Stop is called.
func (r *Renderer) Start() {
	r.bar = pb.New64(0).SetUnits(pb.U_BYTES)
	r.bar.ShowSpeed = true
	r.bar.ShowElapsedTime = true
	r.bar.ShowFinalTime = false
	r.bar.Start()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				r.draw()
				return
			case <-ticker.C:
				r.draw()
			}
		}
	}()
}

// Stop finishes the bar after a final draw and waits for the poll loop to
// exit.
func (r *Renderer) Stop() {
	close(r.stop)
	<-r.done
	r.bar.Finish()
}

func (r *Renderer) draw() {
	snap := r.agg.Snapshot()
	if expected, known := snap.ExpectedTotal(); known && expected >= snap.TotalBytes {
		r.bar.SetTotal64(expected)
		r.bar.ShowBar = true
		r.bar.ShowPercent = true
	} else {
		// no sizes known yet, a bar would be meaningless
		r.bar.ShowBar = false
		r.bar.ShowPercent = false
	}
	r.bar.Set64(snap.TotalBytes)
}
