/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package suite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagridio/go-async-scheduler/example/color"
	"github.com/diagridio/go-async-scheduler/hint"
	"github.com/diagridio/go-async-scheduler/scheduler"
	"github.com/diagridio/go-async-scheduler/tests/framework/integration"
)

func Test_hint(t *testing.T) {
	t.Parallel()

	t.Run("a hint reaches every run subscribed to the stream", func(t *testing.T) {
		t.Parallel()

		sched := integration.NewBase(t).Scheduler()
		hints := hint.New[color.Channel]()

		schedules := make([]*color.Schedule, 20)
		for i := range schedules {
			schedules[i] = color.New(hints)
			require.NoError(t, scheduler.ScheduleHintable(sched, schedules[i]))
		}

		assert.EventuallyWithT(t, func(c *assert.CollectT) {
			for _, s := range schedules {
				assert.Positive(c, s.Latest().R)
			}
		}, 5*time.Second, time.Millisecond*10)

		hints.Publish(color.Blue)

		assert.EventuallyWithT(t, func(c *assert.CollectT) {
			for _, s := range schedules {
				latest := s.Latest()
				assert.Zero(c, latest.R)
				assert.Positive(c, latest.B)
			}
		}, 5*time.Second, time.Millisecond*10)
	})

	t.Run("unscheduled runs stop observing hints", func(t *testing.T) {
		t.Parallel()

		sched := integration.NewBase(t).Scheduler()
		hints := hint.New[color.Channel]()

		kept := color.New(hints)
		removed := color.New(hints)
		require.NoError(t, scheduler.ScheduleHintable(sched, kept))
		require.NoError(t, scheduler.ScheduleHintable(sched, removed))

		assert.EventuallyWithT(t, func(c *assert.CollectT) {
			assert.Positive(c, kept.Latest().R)
			assert.Positive(c, removed.Latest().R)
		}, 5*time.Second, time.Millisecond*10)

		sched.Unschedule(removed.ID())
		assert.Equal(t, 1, hints.Subscribers())
		// Let any in-flight execution finish.
		time.Sleep(color.Interval)
		stale := removed.Latest()

		hints.Publish(color.Green)

		assert.EventuallyWithT(t, func(c *assert.CollectT) {
			assert.Positive(c, kept.Latest().G)
		}, 5*time.Second, time.Millisecond*10)
		assert.Equal(t, stale, removed.Latest())
	})
}
