package ingest

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// ErrWorkerClosed is returned by Submit once the worker stopped taking events.
var ErrWorkerClosed = errors.New("ingest worker closed")

// Envelope carries one raw event from a transport. Ack, if set, is called
// once the event has been handled and must not be redelivered.
type Envelope struct {
	Payload map[string]interface{}
	Ack     func()
}

// Ingester processes one raw event.
type Ingester interface {
	Ingest(ctx context.Context, payload map[string]interface{}) (Outcome, error)
}

// Worker feeds events from a bounded queue to a fixed number of goroutines.
type Worker struct {
	ingester Ingester
	queue    chan Envelope
	workers  int
	done     chan struct{}
	once     sync.Once
	log      *logger.Logger
}

// NewWorker creates a worker with the given queue capacity and concurrency.
func NewWorker(ingester Ingester, queueSize, workers int, log *logger.Logger) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Worker{
		ingester: ingester,
		queue:    make(chan Envelope, queueSize),
		workers:  workers,
		done:     make(chan struct{}),
		log:      log,
	}
}

// Submit enqueues env, blocking while the queue is full.
func (w *Worker) Submit(ctx context.Context, env Envelope) error {
	select {
	case <-w.done:
		return ErrWorkerClosed
	default:
	}

	select {
	case w.queue <- env:
		prommetrics.SetIngestQueueDepth(len(w.queue))
		return nil
	case <-w.done:
		return ErrWorkerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued events until ctx is cancelled or Close is called.
// After Close, events already queued are drained before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Int("workers", w.workers).
		Int("queue_size", cap(w.queue)).
		Msg("Ingest worker started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	err := g.Wait()

	w.log.Info().Msg("Ingest worker stopped")
	return err
}

// Close stops intake. It is safe to call more than once.
func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.done)
	})
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-w.queue:
			w.handle(ctx, env)
		case <-w.done:
			for {
				select {
				case env := <-w.queue:
					w.handle(ctx, env)
				default:
					return
				}
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, env Envelope) {
	prommetrics.SetIngestQueueDepth(len(w.queue))

	outcome, err := w.ingester.Ingest(ctx, env.Payload)
	if err != nil {
		// Not acked, so the transport may redeliver.
		w.log.Error().Err(err).Msg("Failed to ingest usage event")
		return
	}
	if !outcome.Accepted {
		w.log.Debug().Str("reason", outcome.Reason).Msg("Dropped invalid usage event")
	}
	if env.Ack != nil {
		env.Ack()
	}
}
