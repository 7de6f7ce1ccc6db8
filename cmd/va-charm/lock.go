// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mutex/v2"
)

const (
	// lockName is shared by every va-charm process on the machine, so a
	// hook and an action never update the state file together.
	lockName = "va-charm"

	lockDelay   = 250 * time.Millisecond
	lockTimeout = 5 * time.Minute
)

// acquireLock blocks until the va-charm lock is held, ctx is done or
// lockTimeout passes. The returned func releases the lock.
func acquireLock(ctx context.Context, acquire func(mutex.Spec) (mutex.Releaser, error), clk clock.Clock) (func(), error) {
	releaser, err := acquire(mutex.Spec{
		Name:    lockName,
		Clock:   clk,
		Delay:   lockDelay,
		Timeout: lockTimeout,
		Cancel:  ctx.Done(),
	})
	if errors.Is(err, mutex.ErrTimeout) {
		return nil, errors.Annotatef(err, "another %s is running", commandName)
	} else if err != nil {
		return nil, errors.Annotate(err, "acquiring charm lock")
	}
	return releaser.Release, nil
}
