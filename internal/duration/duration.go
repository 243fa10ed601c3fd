/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package duration

import (
	"time"

	"github.com/diagridio/go-async-scheduler/api/errors"
)

// Validate returns the given interval if it is strictly positive. A
// time.Duration is already a single nanosecond count, so intervals built
// from any unit compare without ambiguity.
func Validate(interval time.Duration) (time.Duration, error) {
	if interval.Nanoseconds() <= 0 {
		return 0, errors.NewInvalidDuration(interval)
	}
	return interval, nil
}
