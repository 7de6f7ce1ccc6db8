// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrNoHandler is returned by the router when no handler is eligible.
	ErrNoHandler = errors.ConstError("no eligible handler")

	// ErrGuardConflict is returned for a handler table that cannot be
	// evaluated deterministically.
	ErrGuardConflict = errors.ConstError("guard conflict")

	// ErrResourceMissing is returned by steps that need a resource the
	// operator has not provided.
	ErrResourceMissing = errors.ConstError("resource missing")

	// ErrStepFailed is matched by every *StepError.
	ErrStepFailed = errors.ConstError("step execution failed")

	// ErrStepTimeout is returned when a step outlives the watchdog.
	ErrStepTimeout = errors.ConstError("step timed out")

	// ErrNotInstalled is returned when an action needs the product
	// installed and it is not.
	ErrNotInstalled = errors.ConstError("not installed")
)

// StepError records which step of which handler failed, so that the
// failure can be reported and the handler retried from its first step.
type StepError struct {
	Handler string
	Index   int
	Step    string
	Err     error
}

// Error implements error.
func (e *StepError) Error() string {
	return fmt.Sprintf("handler %q step %d (%s): %v", e.Handler, e.Index, e.Step, e.Err)
}

// Unwrap returns the cause of the step failure.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Is makes every StepError match ErrStepFailed.
func (e *StepError) Is(target error) bool {
	return target == ErrStepFailed
}

// errorf returns an error annotating sentinel with a formatted message,
// such that errors.Is(err, sentinel) holds.
func errorf(sentinel error, format string, args ...interface{}) error {
	return errors.Annotatef(sentinel, format, args...)
}
