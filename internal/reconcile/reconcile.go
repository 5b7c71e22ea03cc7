// Package reconcile advances time-driven reservation and device states. One
// idempotent pass is shared by the inline request trigger and the timer runner.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"arcade-rental-backend/internal/events"
	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
	"arcade-rental-backend/internal/store"
)

// Store is the persistence the reconciler needs.
type Store interface {
	DueCompletions(ctx context.Context, now time.Time) ([]model.Reservation, error)
	DueNoShows(ctx context.Context, cutoff time.Time) ([]model.Reservation, error)
	DueStarts(ctx context.Context, now time.Time) ([]model.Reservation, error)
	Complete(ctx context.Context, r model.Reservation, now time.Time) error
	MarkNoShow(ctx context.Context, r model.Reservation, now time.Time) error
	StartRental(ctx context.Context, r model.Reservation, now time.Time) error
}

// Result summarizes one pass.
type Result struct {
	Executed  bool     `json:"executed"`
	Completed int      `json:"completed"`
	NoShows   int      `json:"no_shows"`
	Started   int      `json:"started"`
	Errors    []string `json:"errors,omitempty"`
}

// Options tunes a Reconciler.
type Options struct {
	Grace         time.Duration
	InlineTimeout time.Duration
}

// Reconciler runs reconciliation passes.
type Reconciler struct {
	store  Store
	clock  kst.Clock
	gate   Gate
	events events.Dispatcher
	opts   Options
	group  singleflight.Group
}

// New creates a Reconciler. A nil gate lets every trigger through.
func New(s Store, clock kst.Clock, gate Gate, dispatcher events.Dispatcher, opts Options) *Reconciler {
	if clock == nil {
		clock = kst.RealClock{}
	}
	if gate == nil {
		gate = OpenGate{}
	}
	if dispatcher == nil {
		dispatcher = events.Discard{}
	}
	if opts.Grace <= 0 {
		opts.Grace = 30 * time.Minute
	}
	if opts.InlineTimeout <= 0 {
		opts.InlineTimeout = 2 * time.Second
	}
	return &Reconciler{store: s, clock: clock, gate: gate, events: dispatcher, opts: opts}
}

// Run performs one pass: completions, then no-shows, then rental starts. Row
// failures are logged and collected; Run itself never fails.
func (rc *Reconciler) Run(ctx context.Context) Result {
	now := rc.clock.Now()
	res := Result{Executed: true}

	res.Completed = rc.pass(ctx, "complete", &res,
		func() ([]model.Reservation, error) { return rc.store.DueCompletions(ctx, now) },
		func(r model.Reservation) error { return rc.store.Complete(ctx, r, now) },
		func(r model.Reservation) { rc.emit(r, lifecycle.StatusCompleted, now) },
	)
	res.NoShows = rc.pass(ctx, "no_show", &res,
		func() ([]model.Reservation, error) { return rc.store.DueNoShows(ctx, now.Add(-rc.opts.Grace)) },
		func(r model.Reservation) error { return rc.store.MarkNoShow(ctx, r, now) },
		func(r model.Reservation) { rc.emit(r, lifecycle.StatusNoShow, now) },
	)
	res.Started = rc.pass(ctx, "rental_start", &res,
		func() ([]model.Reservation, error) { return rc.store.DueStarts(ctx, now) },
		func(r model.Reservation) error { return rc.store.StartRental(ctx, r, now) },
		nil,
	)

	if res.Completed+res.NoShows+res.Started > 0 || len(res.Errors) > 0 {
		log.Printf("reconcile: completed=%d no_show=%d started=%d errors=%d",
			res.Completed, res.NoShows, res.Started, len(res.Errors))
	}
	return res
}

func (rc *Reconciler) pass(ctx context.Context, name string, res *Result,
	find func() ([]model.Reservation, error),
	apply func(model.Reservation) error,
	done func(model.Reservation),
) int {
	if err := ctx.Err(); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
		return 0
	}
	rows, err := find()
	if err != nil {
		log.Printf("reconcile %s: %v", name, err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
		return 0
	}

	n := 0
	for _, r := range rows {
		err := apply(r)
		switch {
		case err == nil:
			n++
			if done != nil {
				done(r)
			}
		case errors.Is(err, store.ErrStaleStatus):
			// Moved by a concurrent pass or operator.
		default:
			log.Printf("reconcile %s: reservation %s: %v", name, r.ID, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", name, r.ID, err))
		}
	}
	return n
}

func (rc *Reconciler) emit(r model.Reservation, to lifecycle.Status, now time.Time) {
	from := r.Status
	r.Status = to
	rc.events.Dispatch(events.NewLifecycleEvent(r, from, lifecycle.TriggerTime, now))
}

// Trigger is the inline caller used before availability reads. It runs a pass
// only when the gate allows, bounds it by the inline timeout, detaches it from
// the caller's cancellation, and coalesces concurrent callers onto one pass.
func (rc *Reconciler) Trigger(ctx context.Context) Result {
	if !rc.gate.Allow(ctx, rc.clock.Now()) {
		return Result{}
	}
	v, _, _ := rc.group.Do("reconcile", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.opts.InlineTimeout)
		defer cancel()
		return rc.Run(runCtx), nil
	})
	return v.(Result)
}
