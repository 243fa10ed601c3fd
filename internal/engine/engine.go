/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package engine

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/dapr/kit/ptr"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/diagridio/go-async-scheduler/api"
	"github.com/diagridio/go-async-scheduler/api/errors"
	"github.com/diagridio/go-async-scheduler/internal/duration"
	"github.com/diagridio/go-async-scheduler/internal/state"
)

// Options are the options for creating a new engine instance.
type Options struct {
	Log          logr.Logger
	Clock        clock.Clock
	Store        *state.Store
	FaultHandler api.FaultHandler
}

// executeFn runs a single execution of a schedule.
type executeFn func(ctx context.Context) time.Duration

// Engine drives the execution loops of schedules, installing them into the
// state store.
type Engine struct {
	log          logr.Logger
	clock        clock.Clock
	store        *state.Store
	faultHandler api.FaultHandler
}

func New(opts Options) *Engine {
	return &Engine{
		log:          opts.Log.WithName("engine"),
		clock:        opts.Clock,
		store:        opts.Store,
		faultHandler: opts.FaultHandler,
	}
}

// Schedule installs a new run of the schedule, superseding any existing run
// of the same identity.
func (e *Engine) Schedule(schedule api.Schedule) error {
	id := schedule.ID()
	_, err := e.store.Install(id, nil, e.loop(id, schedule.Execute, schedule.Execute))
	if err != nil {
		return err
	}

	e.log.V(3).Info("Scheduled", "id", id)
	return nil
}

// ScheduleHintable installs a new run of the hintable schedule, together with
// a subscription to its hints. The subscription lives for as long as the run
// is installed. Every hint received restarts the run, cancelling whatever
// iteration is pending, and the first execution of the restarted run is given
// the hint.
func ScheduleHintable[H any](e *Engine, schedule api.HintableSchedule[H]) error {
	id := schedule.ID()

	withHint := func(hint *H) executeFn {
		return func(ctx context.Context) time.Duration {
			return schedule.Execute(ctx, hint)
		}
	}
	noHint := withHint(nil)

	// Subscribe before install so that no hint falls between the run being
	// installed and the subscription being opened.
	sub := schedule.Hints().Subscribe()
	lease, err := e.store.Install(id, []state.Subscription{sub}, e.loop(id, noHint, noHint))
	if err != nil {
		sub.Close()
		return err
	}

	go func() {
		for hint := range sub.C() {
			if !e.store.Restart(id, lease, e.loop(id, withHint(ptr.Of(hint)), noHint)) {
				return
			}
			e.log.V(3).Info("Restarted on hint", "id", id)
		}
	}()

	e.log.V(3).Info("Scheduled hintable", "id", id)
	return nil
}

// loop returns the operation which repeatedly executes a schedule. first is
// used for the first execution of the unit, next for every one after. The
// loop re-enters through the state store after every sleep, and returns as
// soon as its unit is no longer current.
func (e *Engine) loop(id uuid.UUID, first, next executeFn) state.Operation {
	return func(ctx context.Context, unit uint64) {
		log := e.log.WithValues("id", id, "unit", unit)

		execute := first
		for {
			interval, err := e.execute(ctx, execute)

			// A run superseded mid-execution never re-enters.
			if ctx.Err() != nil {
				return
			}

			if err == nil {
				interval, err = duration.Validate(interval)
			}

			if err != nil {
				if e.store.Fault(id, unit) {
					log.Error(err, "Schedule faulted, no further executions until rescheduled")
					if e.faultHandler != nil {
						e.faultHandler(id, err)
					}
				}
				return
			}

			timer := e.clock.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C():
			}

			if !e.store.Reenter(id, unit) {
				return
			}

			execute = next
		}
	}
}

// execute runs a single execution, recovering a panic into an error.
func (e *Engine) execute(ctx context.Context, fn executeFn) (interval time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewExecutePanic(r, debug.Stack())
		}
	}()

	return fn(ctx), nil
}
