package reconcile

import (
	"context"
	"log"
	"time"
)

// Runner drives passes on a fixed interval for deployments with a worker.
type Runner struct {
	rc       *Reconciler
	interval time.Duration
}

func NewRunner(rc *Reconciler, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{rc: rc, interval: interval}
}

// Run starts the reconcile loop and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	log.Printf("Starting reconcile runner every %s...", r.interval)
	r.rc.Run(ctx)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reconcile runner shutting down.")
			return
		case <-timer.C:
			r.rc.Run(ctx)
			timer.Reset(r.interval)
		}
	}
}
