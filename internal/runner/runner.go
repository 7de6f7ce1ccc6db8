// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package runner runs host commands on behalf of the charm.
package runner

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4/exec"
	"github.com/kballard/go-shellquote"
)

//go:generate go run go.uber.org/mock/mockgen -package mocks -destination mocks/runner_mock.go github.com/juju/charm-virtual-accelerator/internal/runner CommandRunner

var logger = loggo.GetLogger("juju.va.runner")

// CommandRunner allows to run commands on the underlying system.
type CommandRunner interface {
	RunCommands(run exec.RunParams) (*exec.ExecResponse, error)
}

// DefaultRunner runs commands with a local shell.
type DefaultRunner struct{}

// RunCommands implements CommandRunner.
func (DefaultRunner) RunCommands(run exec.RunParams) (*exec.ExecResponse, error) {
	return exec.RunCommands(run)
}

// ExitError is returned when a command exits with a non-zero code.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

// Error implements error.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%q exited with code %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// IsExitCode reports whether err is an ExitError with the given code.
func IsExitCode(err error, code int) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return exitErr.Code == code
}

// Run runs the named command with args, each quoted for the shell, and
// returns its standard output.
func Run(r CommandRunner, name string, args ...string) (string, error) {
	return RunEnv(r, nil, name, args...)
}

// RunEnv is like Run, with env ("KEY=value" entries) added to the
// environment of the command.
func RunEnv(r CommandRunner, env []string, name string, args ...string) (string, error) {
	command := shellquote.Join(append([]string{name}, args...)...)
	logger.Tracef("running %s", command)
	result, err := r.RunCommands(exec.RunParams{
		Commands:    command,
		Environment: env,
	})
	if err != nil {
		return "", errors.Annotatef(err, "running %q", name)
	}
	if result.Code != 0 {
		return "", errors.Trace(&ExitError{
			Command: command,
			Code:    result.Code,
			Stderr:  strings.TrimSpace(string(result.Stderr)),
		})
	}
	return string(result.Stdout), nil
}
