/*
Copyright (c) 2024 Diagrid Inc.
Licensed under the MIT License.
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/diagridio/go-async-scheduler/api"
	"github.com/diagridio/go-async-scheduler/internal/engine"
	"github.com/diagridio/go-async-scheduler/internal/state"
)

// Options are the options for creating a new scheduler instance.
type Options struct {
	// Log is the logger to use for logging. Defaults to a zap production
	// logger.
	Log logr.Logger

	// Clock is the clock used to sleep between executions. Defaults to the
	// real clock.
	Clock clock.Clock

	// FaultHandler is an optional function called whenever the run of a
	// schedule is torn down because of a fault.
	FaultHandler api.FaultHandler
}

// Scheduler is the implementation of the scheduler interface.
type Scheduler struct {
	log    logr.Logger
	store  *state.Store
	engine *engine.Engine
}

var _ api.Interface = (*Scheduler)(nil)

// New creates a new scheduler instance. Schedules can be added straight away.
func New(opts Options) (*Scheduler, error) {
	log := opts.Log
	if log.GetSink() == nil {
		sink, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		log = zapr.NewLogger(sink)
		log = log.WithName("async-scheduler")
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	store := state.New(state.Options{
		Log: log,
	})

	return &Scheduler{
		log:   log,
		store: store,
		engine: engine.New(engine.Options{
			Log:          log,
			Clock:        clk,
			Store:        store,
			FaultHandler: opts.FaultHandler,
		}),
	}, nil
}

// Schedule starts running the given schedule, superseding any run of the
// same identity.
func (s *Scheduler) Schedule(schedule api.Schedule) error {
	if schedule == nil {
		return errors.New("schedule cannot be nil")
	}
	return s.engine.Schedule(schedule)
}

// ScheduleHintable starts running the given hintable schedule, superseding
// any run of the same identity. Hints published on the schedule's stream
// while the run is installed restart it immediately.
func ScheduleHintable[H any](s *Scheduler, schedule api.HintableSchedule[H]) error {
	if schedule == nil {
		return errors.New("schedule cannot be nil")
	}
	return engine.ScheduleHintable(s.engine, schedule)
}

func (s *Scheduler) Unschedule(id uuid.UUID) {
	s.store.Cancel(id)
}

func (s *Scheduler) UnscheduleAll() {
	s.store.CancelAll()
}

func (s *Scheduler) IsScheduled(id uuid.UUID) bool {
	return s.store.Has(id)
}

func (s *Scheduler) Scheduled() sets.Set[uuid.UUID] {
	return s.store.IDs()
}

// Close unschedules every run and refuses any further schedules. Blocks
// until every in-flight execution has returned, or the context is done.
func (s *Scheduler) Close(ctx context.Context) error {
	s.store.Close()
	if err := s.store.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for executions to return: %w", err)
	}
	s.log.Info("Scheduler closed")
	return nil
}
