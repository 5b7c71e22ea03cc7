package events

import (
	"context"
	"log"
	"time"
)

const publishTimeout = 5 * time.Second

// WorkerPool manages a pool of workers for publishing lifecycle events.
type WorkerPool struct {
	size      int
	jobs      chan LifecycleEvent
	publisher Publisher
}

// NewWorkerPool creates a new worker pool with a buffered queue.
func NewWorkerPool(size, queueSize int, publisher Publisher) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:      size,
		jobs:      make(chan LifecycleEvent, queueSize),
		publisher: publisher,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Event worker %d started", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.publish(ctx, ev)
		case <-ctx.Done():
			log.Printf("Event worker %d shutting down", id)
			return
		}
	}
}

func (wp *WorkerPool) publish(ctx context.Context, ev LifecycleEvent) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := wp.publisher.Publish(pubCtx, ev); err != nil {
		log.Printf("Error publishing event %s for reservation %s: %v", ev.ID, ev.ReservationID, err)
	}
}

// Dispatch queues an event. A full queue drops the event rather than stall the
// caller's transaction path.
func (wp *WorkerPool) Dispatch(ev LifecycleEvent) {
	select {
	case wp.jobs <- ev:
	default:
		log.Printf("Event queue full, dropping %s for reservation %s", ev.To, ev.ReservationID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan LifecycleEvent {
	return wp.jobs
}
