/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package color

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagridio/go-async-scheduler/api"
	"github.com/diagridio/go-async-scheduler/hint"
)

// Interval is the cadence of every colour schedule.
const Interval = 50 * time.Millisecond

// step is how much the channel value ramps per execution.
const step = 0.01

// Channel is the colour channel a schedule ramps.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Color is an opaque RGB colour with components in [0, 1].
type Color struct {
	R, G, B float64
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", uint8(c.R*255), uint8(c.G*255), uint8(c.B*255))
}

// Schedule ramps the value of a single colour channel on every execution,
// wrapping back to 0 once it passes 1. The ramped channel is changed by
// publishing a Channel hint.
type Schedule struct {
	id    uuid.UUID
	hints *hint.Broadcaster[Channel]

	lock    sync.Mutex
	channel Channel
	value   float64
	latest  Color
}

var _ api.HintableSchedule[Channel] = (*Schedule)(nil)

// New returns a colour schedule listening to the given hints. Many schedules
// can share the same broadcaster.
func New(hints *hint.Broadcaster[Channel]) *Schedule {
	return &Schedule{
		id:      uuid.New(),
		hints:   hints,
		channel: Red,
	}
}

func (s *Schedule) ID() uuid.UUID {
	return s.id
}

func (s *Schedule) Hints() api.Stream[Channel] {
	return s.hints
}

func (s *Schedule) Execute(_ context.Context, channel *Channel) time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()

	if channel != nil {
		s.channel = *channel
	}

	s.value += step
	if s.value > 1 {
		s.value = 0
	}

	switch s.channel {
	case Green:
		s.latest = Color{G: s.value}
	case Blue:
		s.latest = Color{B: s.value}
	default:
		s.latest = Color{R: s.value}
	}

	return Interval
}

// Latest returns the colour computed by the last execution. Black before the
// first execution.
func (s *Schedule) Latest() Color {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.latest
}
