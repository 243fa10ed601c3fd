/*
Copyright (c) 2024 Diagrid Inc.
Licensed under the MIT License.
*/

package fake

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/diagridio/go-async-scheduler/api"
	"github.com/diagridio/go-async-scheduler/hint"
)

// Schedule is a fake api.Schedule.
type Schedule struct {
	id        uuid.UUID
	executeFn func(context.Context) time.Duration
}

func New() *Schedule {
	return &Schedule{
		id: uuid.New(),
		executeFn: func(context.Context) time.Duration {
			return time.Second
		},
	}
}

func (f *Schedule) WithID(id uuid.UUID) *Schedule {
	f.id = id
	return f
}

func (f *Schedule) WithExecute(fn func(context.Context) time.Duration) *Schedule {
	f.executeFn = fn
	return f
}

func (f *Schedule) ID() uuid.UUID {
	return f.id
}

func (f *Schedule) Execute(ctx context.Context) time.Duration {
	return f.executeFn(ctx)
}

// Hintable is a fake api.HintableSchedule. Hints are published with
// Publish.
type Hintable[H any] struct {
	id        uuid.UUID
	hints     *hint.Broadcaster[H]
	executeFn func(context.Context, *H) time.Duration
}

func NewHintable[H any]() *Hintable[H] {
	return &Hintable[H]{
		id:    uuid.New(),
		hints: hint.New[H](),
		executeFn: func(context.Context, *H) time.Duration {
			return time.Second
		},
	}
}

func (f *Hintable[H]) WithID(id uuid.UUID) *Hintable[H] {
	f.id = id
	return f
}

func (f *Hintable[H]) WithExecute(fn func(context.Context, *H) time.Duration) *Hintable[H] {
	f.executeFn = fn
	return f
}

func (f *Hintable[H]) ID() uuid.UUID {
	return f.id
}

func (f *Hintable[H]) Hints() api.Stream[H] {
	return f.hints
}

func (f *Hintable[H]) Execute(ctx context.Context, hint *H) time.Duration {
	return f.executeFn(ctx, hint)
}

// Publish publishes a hint to every subscriber of this schedule.
func (f *Hintable[H]) Publish(hint H) {
	f.hints.Publish(hint)
}

// Subscribers returns the number of open hint subscriptions.
func (f *Hintable[H]) Subscribers() int {
	return f.hints.Subscribers()
}
