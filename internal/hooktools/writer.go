// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooktools

import (
	"fmt"

	"github.com/juju/loggo"
)

// Logger is the part of Tools used to forward log records.
type Logger interface {
	Log(level loggo.Level, message string) error
}

// logWriter forwards loggo records to juju-log.
type logWriter struct {
	logger Logger
}

// NewLogWriter returns a loggo.Writer sending every record it receives to
// juju-log, so that it shows in the model's debug log. Failures to forward
// are dropped: logging them would recurse.
func NewLogWriter(logger Logger) loggo.Writer {
	return &logWriter{logger: logger}
}

// Write implements loggo.Writer.
func (w *logWriter) Write(entry loggo.Entry) {
	_ = w.logger.Log(entry.Level, fmt.Sprintf("%s: %s", entry.Module, entry.Message))
}
