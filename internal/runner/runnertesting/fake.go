// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package runnertesting

import (
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/testing"
	"github.com/juju/utils/v4/exec"
	"github.com/kballard/go-shellquote"
)

// Result is the canned outcome of a command.
type Result struct {
	Stdout string
	Stderr string
	Code   int
}

// FakeRunner records every command it is asked to run and answers with
// canned results. Results are looked up first by the full command line
// (words joined by single spaces) and then by the command name alone.
type FakeRunner struct {
	testing.Stub

	mu       sync.Mutex
	Results  map[string]Result
	commands []string
}

// NewFakeRunner returns a FakeRunner with no canned results; every command
// succeeds with empty output.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Results: map[string]Result{}}
}

// RunCommands implements runner.CommandRunner.
func (r *FakeRunner) RunCommands(run exec.RunParams) (*exec.ExecResponse, error) {
	args, err := shellquote.Split(run.Commands)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	line := strings.Join(args, " ")

	r.mu.Lock()
	r.commands = append(r.commands, line)
	res, ok := r.Results[line]
	if !ok {
		res = r.Results[args[0]]
	}
	r.mu.Unlock()

	callArgs := make([]interface{}, 0, len(args))
	for _, arg := range args[1:] {
		callArgs = append(callArgs, arg)
	}
	r.AddCall(args[0], callArgs...)
	if err := r.NextErr(); err != nil {
		return nil, err
	}
	return &exec.ExecResponse{
		Code:   res.Code,
		Stdout: []byte(res.Stdout),
		Stderr: []byte(res.Stderr),
	}, nil
}

// Commands returns the command lines run so far.
func (r *FakeRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}
