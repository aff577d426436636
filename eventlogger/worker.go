package eventlogger

import (
	"context"
	"log/slog"
	"sync"
)

type WorkerOption func(*Worker)

// WithDropHandler is called for every event discarded because the buffer was
// full.
func WithDropHandler(fn func(Event)) WorkerOption {
	return func(w *Worker) {
		w.onDrop = fn
	}
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.log = logger
	}
}

// Worker persists events in the background so request handlers never wait on
// the audit store.
type Worker struct {
	eventCh chan Event
	store   EventLogger
	log     *slog.Logger
	onDrop  func(Event)
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWorker(store EventLogger, bufferSize int, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		eventCh: make(chan Event, bufferSize),
		store:   store,
		log:     slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Start() {
	w.wg.Go(func() {
		for {
			select {
			case <-w.ctx.Done():
				w.log.Info("draining events before shutdown", "remaining_events", len(w.eventCh))
				for len(w.eventCh) > 0 {
					event := <-w.eventCh
					if err := w.store.Save(context.Background(), event); err != nil {
						w.log.Error("failed to save event during shutdown", "error", err, "event_type", event.Type)
					}
				}
				return
			case event := <-w.eventCh:
				if err := w.store.Save(w.ctx, event); err != nil {
					w.log.Error("failed to save event", "error", err, "event_type", event.Type)
				}
			}
		}
	})
}

func (w *Worker) Log(event Event) {
	select {
	case w.eventCh <- event:
	default:
		w.log.Warn("event channel full, dropping event", "event_type", event.Type)
		if w.onDrop != nil {
			w.onDrop(event)
		}
	}
}

// Shutdown stops the worker after saving whatever is still buffered. The
// channel stays open so a late Log drops or buffers instead of panicking.
func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}
