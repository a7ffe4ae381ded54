package store

import (
	"context"
	"time"

	"tickscalper/internal/observ"
	"tickscalper/internal/paper"
)

// Async drains writes onto a background goroutine so the event path never
// blocks on the database. When the queue is full the write is dropped and
// counted.
type Async struct {
	st   Store
	jobs chan func()
	done chan struct{}
}

func NewAsync(st Store, buffer int) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	return &Async{
		st:   st,
		jobs: make(chan func(), buffer),
		done: make(chan struct{}),
	}
}

// Start consumes queued writes until ctx is cancelled, then drains whatever
// is left before closing the underlying store.
func (a *Async) Start(ctx context.Context) {
	go func() {
		defer close(a.done)
		for {
			select {
			case job := <-a.jobs:
				job()
			case <-ctx.Done():
				for {
					select {
					case job := <-a.jobs:
						job()
					default:
						if err := a.st.Close(); err != nil {
							observ.LogError("store_close_error", err, nil)
						}
						return
					}
				}
			}
		}
	}()
}

// Wait blocks until the drain loop has exited.
func (a *Async) Wait() { <-a.done }

func (a *Async) enqueue(kind string, job func()) {
	select {
	case a.jobs <- job:
	default:
		observ.IncCounter("store_writes_dropped_total", map[string]string{"kind": kind})
	}
}

// ClosedPosition implements paper.Sink.
func (a *Async) ClosedPosition(rec paper.ClosedPosition) {
	a.enqueue("closed_position", func() {
		if err := a.st.InsertClosedPosition(rec); err != nil {
			observ.LogError("store_insert_error", err, map[string]any{
				"kind": "closed_position", "symbol": rec.Symbol,
			})
			return
		}
		observ.IncCounter("store_writes_total", map[string]string{"kind": "closed_position"})
	})
}

func (a *Async) SignalSample(row SignalSampleRow) {
	a.enqueue("signal_sample", func() {
		if err := a.st.InsertSignalSample(row); err != nil {
			observ.LogError("store_insert_error", err, map[string]any{
				"kind": "signal_sample", "symbol": row.Symbol,
			})
			return
		}
		observ.IncCounter("store_writes_total", map[string]string{"kind": "signal_sample"})
	})
}

// Purge runs the retention sweep on the writer goroutine.
func (a *Async) Purge(olderThan time.Duration) {
	a.enqueue("purge", func() {
		n, err := a.st.PurgeSignalSamples(olderThan)
		if err != nil {
			observ.LogError("store_purge_error", err, nil)
			return
		}
		if n > 0 {
			observ.Log("store_purged", map[string]any{"rows": n})
		}
	})
}
