package main

import (
	"context"
	"strings"
	"time"

	"github.com/dapr/kit/concurrency"
	"github.com/dapr/kit/signals"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/diagridio/go-async-scheduler/example/color"
	"github.com/diagridio/go-async-scheduler/hint"
	"github.com/diagridio/go-async-scheduler/scheduler"
)

func main() {
	zlog, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log := zapr.NewLogger(zlog).WithName("color-example")

	sched, err := scheduler.New(scheduler.Options{Log: log})
	if err != nil {
		panic(err)
	}

	hints := hint.New[color.Channel]()
	defer hints.Close()

	schedules := make([]*color.Schedule, 6)
	for i := range schedules {
		schedules[i] = color.New(hints)
		if err := scheduler.ScheduleHintable(sched, schedules[i]); err != nil {
			panic(err)
		}
	}

	// TODO: Make the run duration configurable.
	ctx, cancel := context.WithTimeout(signals.Context(), time.Second*10)
	defer cancel()

	err = concurrency.NewRunnerManager(
		// Poll the latest colours.
		func(ctx context.Context) error {
			ticker := time.NewTicker(color.Interval * 10)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					row := make([]string, len(schedules))
					for i, s := range schedules {
						row[i] = s.Latest().String()
					}
					log.Info("Colors", "row", strings.Join(row, " "))
				}
			}
		},
		// Cycle the ramped channel.
		func(ctx context.Context) error {
			channels := []color.Channel{color.Green, color.Blue, color.Red}
			for i := 0; ; i++ {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Second * 2):
					channel := channels[i%len(channels)]
					log.Info("Changing channel", "channel", channel)
					hints.Publish(channel)
				}
			}
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
			defer closeCancel()
			return sched.Close(closeCtx)
		},
	).Run(ctx)
	if err != nil {
		panic(err)
	}
}
