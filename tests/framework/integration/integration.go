/*
Copyright (c) 2024 Diagrid Inc.
Licensed under the MIT License.
*/

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/diagridio/go-async-scheduler/scheduler"
)

type Options struct {
	Clock   clock.Clock
	FaultCh chan<- uuid.UUID
}

type Integration struct {
	sched *scheduler.Scheduler
}

func NewBase(t *testing.T) *Integration {
	t.Helper()
	return New(t, Options{})
}

// New returns a running scheduler which is closed on test cleanup.
func New(t *testing.T, opts Options) *Integration {
	t.Helper()

	schedOpts := scheduler.Options{
		Log:   logr.Discard(),
		Clock: opts.Clock,
	}
	if opts.FaultCh != nil {
		schedOpts.FaultHandler = func(id uuid.UUID, _ error) {
			opts.FaultCh <- id
		}
	}

	sched, err := scheduler.New(schedOpts)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		require.NoError(t, sched.Close(ctx))
	})

	return &Integration{
		sched: sched,
	}
}

func (i *Integration) Scheduler() *scheduler.Scheduler {
	return i.sched
}
