/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned when scheduling on a scheduler which has been closed.
var ErrClosed = errors.New("scheduler is closed")

// InvalidDuration is an error type that indicates a schedule returned an
// interval which is not greater than zero.
type InvalidDuration struct {
	interval time.Duration
}

func (i InvalidDuration) Error() string {
	return fmt.Sprintf("invalid duration: '%s' must be greater than 0", i.interval)
}

// Interval returns the rejected interval.
func (i InvalidDuration) Interval() time.Duration {
	return i.interval
}

func NewInvalidDuration(interval time.Duration) InvalidDuration {
	return InvalidDuration{interval: interval}
}

func IsInvalidDuration(err error) bool {
	var target InvalidDuration
	return errors.As(err, &target)
}

// ExecutePanic is an error type that indicates a schedule panicked during
// execution.
type ExecutePanic struct {
	value any
	stack []byte
}

func (e ExecutePanic) Error() string {
	return fmt.Sprintf("panic during execute: %v, stacktrace: %s", e.value, e.stack)
}

func NewExecutePanic(value any, stack []byte) ExecutePanic {
	return ExecutePanic{value: value, stack: stack}
}

func IsExecutePanic(err error) bool {
	var target ExecutePanic
	return errors.As(err, &target)
}
