// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/charm-virtual-accelerator/internal/hooktools"
)

const jujuLogWriter = "juju-log"

// forwardLogs sends log records to juju-log so they show in
// "juju debug-log". Only warnings and errors are forwarded unless debug
// is set, which also lowers the level of every logger.
func forwardLogs(target hooktools.Logger, debug bool) (func(), error) {
	level := loggo.WARNING
	if debug {
		level = loggo.DEBUG
		if err := loggo.ConfigureLoggers("<root>=DEBUG"); err != nil {
			return nil, errors.Trace(err)
		}
	}
	writer := loggo.NewMinimumLevelWriter(hooktools.NewLogWriter(target), level)
	if err := loggo.RegisterWriter(jujuLogWriter, writer); err != nil {
		return nil, errors.Trace(err)
	}
	return func() {
		_, _ = loggo.RemoveWriter(jujuLogWriter)
	}, nil
}
