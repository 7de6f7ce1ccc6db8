// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/charm-virtual-accelerator/core/status"
)

// Recorder observes step and handler executions.
type Recorder interface {
	ObserveStep(handler, step string, elapsed time.Duration, err error)
	ObserveHandler(handler string, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStep(string, string, time.Duration, error) {}
func (nopRecorder) ObserveHandler(string, time.Duration, error)      {}

// ExecutorConfig holds the dependencies of an Executor.
type ExecutorConfig struct {
	// Status receives a maintenance status before each step.
	Status status.StatusSetter

	// Clock drives the watchdog and the recorded durations.
	Clock clock.Clock

	// Timeout bounds the duration of a single step. Zero disables the
	// watchdog.
	Timeout time.Duration

	// Recorder, if set, observes every step and handler.
	Recorder Recorder
}

// Validate returns an error if the config cannot be used.
func (config ExecutorConfig) Validate() error {
	if config.Status == nil {
		return errors.NotValidf("nil Status")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Timeout < 0 {
		return errors.NotValidf("negative Timeout")
	}
	return nil
}

// Executor runs the steps of a handler strictly in order. It stops at the
// first failure and never rolls back steps that already completed.
type Executor struct {
	config ExecutorConfig
}

// NewExecutor returns an Executor with the given config.
func NewExecutor(config ExecutorConfig) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Recorder == nil {
		config.Recorder = nopRecorder{}
	}
	return &Executor{config: config}, nil
}

// Run runs every step of h. A failure is returned as a *StepError.
func (e *Executor) Run(ctx context.Context, h Handler) error {
	start := e.config.Clock.Now()
	for i, step := range h.Steps {
		if step.Message != "" {
			e.setStatus(status.Maintenance, step.Message)
		}
		logger.Debugf("%s: step %d (%s)", h.Name, i, step.Name)

		stepStart := e.config.Clock.Now()
		err := e.runStep(ctx, step)
		e.config.Recorder.ObserveStep(h.Name, step.Name, e.config.Clock.Now().Sub(stepStart), err)
		if err != nil {
			stepErr := &StepError{
				Handler: h.Name,
				Index:   i,
				Step:    step.Name,
				Err:     err,
			}
			e.config.Recorder.ObserveHandler(h.Name, e.config.Clock.Now().Sub(start), stepErr)
			return stepErr
		}
	}
	e.config.Recorder.ObserveHandler(h.Name, e.config.Clock.Now().Sub(start), nil)
	return nil
}

func (e *Executor) runStep(ctx context.Context, step Step) error {
	if e.config.Timeout == 0 {
		return step.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- step.Run(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-e.config.Clock.After(e.config.Timeout):
		// The step goroutine is abandoned; its context is cancelled on
		// return so that well behaved steps stop soon after.
		return errorf(ErrStepTimeout, "%q after %v", step.Name, e.config.Timeout)
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

func (e *Executor) setStatus(st status.Status, message string) {
	err := e.config.Status.SetStatus(status.StatusInfo{Status: st, Message: message})
	if err != nil {
		logger.Warningf("cannot set status %s %q: %v", st, message, err)
	}
}
