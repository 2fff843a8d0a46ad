package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/statuscheck"
	"go.uber.org/zap"
)

// StatusWorker:
// - fetches status-check jobs from a queue (Kafka or Redis),
// - waits for each to come due and polls the notifier backend,
// - acks the job once the poll ran, whatever its result.
type StatusWorker struct {
	// Dependencies
	Source  statuscheck.Source
	Checker statuscheck.Checker
	Log     *zap.Logger

	// Behavior
	Workers      int           // number of goroutines processing jobs
	CheckTimeout time.Duration // per poll
	RetryBackoff time.Duration // pause after a failed fetch
}

// NewStatusWorker builds a worker with sane defaults.
func NewStatusWorker(src statuscheck.Source, c statuscheck.Checker, log *zap.Logger) *StatusWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusWorker{
		Source:       src,
		Checker:      c,
		Log:          log,
		Workers:      4,
		CheckTimeout: 10 * time.Second,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Run starts the worker and blocks until ctx is cancelled and in-flight
// jobs have returned.
func (w *StatusWorker) Run(ctx context.Context) error {
	if w.Source == nil || w.Checker == nil {
		return errors.New("status-worker: source and checker are required")
	}
	if w.Workers <= 0 {
		w.Workers = 4
	}
	if w.RetryBackoff <= 0 {
		w.RetryBackoff = 200 * time.Millisecond
	}

	jobs := make(chan statuscheck.Delivery, w.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(jobs)
		for {
			d, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("status job fetch failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.RetryBackoff):
				}
				continue
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start processors
	var wg sync.WaitGroup
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runProcessor(ctx, jobs)
		}()
	}

	wg.Wait()
	return nil
}

func (w *StatusWorker) runProcessor(ctx context.Context, in <-chan statuscheck.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, d)
		}
	}
}

func (w *StatusWorker) processOne(ctx context.Context, d statuscheck.Delivery) {
	statuscheck.Perform(ctx, w.Checker, d.Job, w.CheckTimeout, w.Log)
	if ctx.Err() != nil {
		// left unacked so a queue with redelivery hands it out again
		return
	}
	if d.Ack == nil {
		return
	}
	if err := d.Ack(ctx); err != nil {
		w.Log.Warn("status job ack failed", zap.String("token", d.Job.Token), zap.Error(err))
	}
}
