/*
Copyright (c) 2024 Diagrid Inc.
Licensed under the MIT License.
*/

package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Schedule is a repeating unit of work. Execute runs the work once and
// returns how long to wait before it is run again. The returned interval must
// be greater than zero.
type Schedule interface {
	// ID returns the identity of the schedule. It must be stable for the
	// lifetime of the schedule.
	ID() uuid.UUID

	// Execute runs the work once. The context is cancelled when the run which
	// owns this call is superseded or unscheduled. Cancellation is
	// cooperative, the scheduler never aborts a call which is in progress.
	Execute(ctx context.Context) time.Duration
}

// HintableSchedule is a repeating unit of work which can additionally be
// triggered immediately, outside of its normal cadence, by a hint.
//
// For example, a schedule may poll a resource every 10 minutes but also needs
// to fetch it straight away when the user changes some setting. Publishing
// the new setting on the Hints stream restarts the schedule, and the very next
// Execute receives the published value.
type HintableSchedule[H any] interface {
	// ID returns the identity of the schedule. It must be stable for the
	// lifetime of the schedule.
	ID() uuid.UUID

	// Hints returns the multicast stream of hints for this schedule.
	Hints() Stream[H]

	// Execute runs the work once. hint is nil unless this call is the first
	// execution following a hint.
	Execute(ctx context.Context, hint *H) time.Duration
}

// Stream is a multicast stream of values. Every live subscription receives
// every value published after it was opened.
type Stream[H any] interface {
	Subscribe() Subscription[H]
}

// Subscription is a single observer of a Stream.
type Subscription[H any] interface {
	// C returns the channel values are delivered on. The channel is closed
	// when the subscription is closed.
	C() <-chan H

	// Close releases the subscription. Safe to call more than once.
	Close()
}

// FaultHandler is called when the run of a schedule is torn down because of
// a fault, for example an invalid interval or a panic inside Execute.
type FaultHandler func(id uuid.UUID, err error)

// Interface is the scheduler. It runs any number of schedules concurrently,
// each on its own cadence.
type Interface interface {
	// Schedule starts running the given schedule. Any run which already
	// exists for the same identity is superseded.
	Schedule(schedule Schedule) error

	// Unschedule cancels the run of the given identity, if any.
	Unschedule(id uuid.UUID)

	// UnscheduleAll cancels every run.
	UnscheduleAll()

	// IsScheduled returns true if a run currently exists for the given
	// identity. Faulted and cancelled identities are not scheduled.
	IsScheduled(id uuid.UUID) bool

	// Scheduled returns the set of identities which currently have a run.
	Scheduled() sets.Set[uuid.UUID]

	// Close unschedules every run, refuses any further schedules, and waits
	// for all in-flight executions to return or for the context to be done.
	Close(ctx context.Context) error
}
