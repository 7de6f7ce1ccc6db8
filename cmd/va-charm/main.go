// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command va-charm is the Virtual Accelerator charm. Juju runs it for
// every hook and action, either through the dispatch script or through
// hooks/<name> and actions/<name> links to it.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/juju/cmd/v3"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("juju.va.cmd")

const commandName = "va-charm"

const (
	// exit_err is returned when the command line cannot be parsed.
	exit_err = 2
	// exit_panic is returned when we exit due to an unhandled panic.
	exit_panic = 3
)

func main() {
	os.Exit(Main(os.Args))
}

// Main is not redundant with main(), because it provides an entry point
// for testing with arbitrary command line arguments.
func Main(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Criticalf("Unhandled panic: \n%v\n%s", r, buf)
			code = exit_panic
		}
	}()

	ctx, err := cmd.DefaultContext()
	if err != nil {
		cmd.WriteError(os.Stderr, err)
		return exit_err
	}
	return cmd.Main(NewSuperCommand(os.Getenv, runtimeParams{}), ctx, commandArgs(args))
}

// commandArgs turns an invocation through a hook or action link into the
// dispatch sub-command.
func commandArgs(args []string) []string {
	if len(args) == 0 {
		return []string{"dispatch"}
	}
	if filepath.Base(args[0]) == commandName {
		return args[1:]
	}
	return append([]string{"dispatch", "--invoked-as", args[0]}, args[1:]...)
}

// NewSuperCommand returns the va-charm command with its sub-commands.
func NewSuperCommand(getenv func(string) string, params runtimeParams) *cmd.SuperCommand {
	super := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    commandName,
		Purpose: "Virtual Accelerator charm",
		Doc:     superDoc,
		Log:     &cmd.Log{},
	})
	super.Register(newDispatchCommand(getenv, params))
	super.Register(newHandlersCommand(params))
	super.Register(newStateCommand(getenv))
	return super
}

var superDoc = fmt.Sprintf(`
%s installs, configures and removes the Virtual Accelerator fast path on
an OpenStack compute node. Juju runs it through the charm's dispatch
script; the handlers and state sub-commands help inspect a unit.
`, commandName)
