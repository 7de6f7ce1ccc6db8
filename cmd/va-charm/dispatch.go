// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/charm-virtual-accelerator/core/status"
	"github.com/juju/charm-virtual-accelerator/internal/accelerator"
	"github.com/juju/charm-virtual-accelerator/internal/hookctx"
)

const dispatchDoc = `
dispatch runs the hook or action named by JUJU_DISPATCH_PATH, or by the
path the charm was invoked as. Hooks become lifecycle events; the restart
action restarts the product outside the lifecycle.
`

type dispatchCommand struct {
	cmd.CommandBase

	getenv    func(string) string
	params    runtimeParams
	invokedAs string
}

func newDispatchCommand(getenv func(string) string, params runtimeParams) cmd.Command {
	return &dispatchCommand{getenv: getenv, params: params}
}

// Info implements cmd.Command.
func (c *dispatchCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "dispatch",
		Purpose: "Run the current hook or action.",
		Doc:     dispatchDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *dispatchCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.invokedAs, "invoked-as", "", "path the charm was run as")
}

// Init implements cmd.Command.
func (c *dispatchCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *dispatchCommand) Run(ctx *cmd.Context) error {
	hctx, err := hookctx.FromEnv(c.getenv, c.invokedAs)
	if err != nil {
		return errors.Trace(err)
	}
	params := c.params
	if params.CharmDir == "" {
		params.CharmDir = hctx.CharmDir
	}
	if params.Settings.Product == "" {
		params.Settings = accelerator.DefaultSettings()
	}
	rt, err := newRuntime(params)
	if err != nil {
		return errors.Trace(err)
	}
	stop, err := forwardLogs(rt.tools, hctx.Debug)
	if err != nil {
		return errors.Trace(err)
	}
	defer stop()

	stdctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	release, err := acquireLock(stdctx, rt.lock, rt.clock)
	if err != nil {
		return errors.Trace(err)
	}
	defer release()

	switch hctx.Kind {
	case hookctx.Action:
		return c.runAction(stdctx, rt, hctx.Name)
	default:
		return c.runHook(stdctx, rt, hctx)
	}
}

func (c *dispatchCommand) runHook(ctx context.Context, rt *hookRuntime, hctx *hookctx.Context) error {
	config, err := rt.loadConfig()
	if err != nil {
		_ = rt.tools.SetStatus(status.StatusInfo{Status: status.Blocked, Message: err.Error()})
		return errors.Trace(err)
	}
	controller, err := rt.controller(config.StepTimeout)
	if err != nil {
		return errors.Trace(err)
	}
	defer rt.writeMetrics(config)

	ev, err := hctx.Event(rt.tools)
	if errors.Is(err, errors.NotSupported) {
		logger.Debugf("%v, only assessing status", err)
		return errors.Trace(controller.AssessStatus())
	} else if err != nil {
		return errors.Trace(err)
	}

	// A failed handler has already set its failure as the unit status;
	// the non-zero exit makes Juju retry the hook.
	if err := controller.Dispatch(ctx, ev); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(controller.AssessStatus())
}

func (c *dispatchCommand) runAction(ctx context.Context, rt *hookRuntime, name string) error {
	if name != accelerator.RestartHandler {
		return errors.Trace(rt.tools.ActionFail(errors.NotSupportedf("action %q", name).Error()))
	}
	config, err := rt.loadConfig()
	if err != nil {
		return errors.Trace(rt.tools.ActionFail(err.Error()))
	}
	controller, err := rt.controller(config.StepTimeout)
	if err != nil {
		return errors.Trace(err)
	}
	defer rt.writeMetrics(config)

	if err := controller.RunAction(ctx, accelerator.RestartHandler); err != nil {
		logger.Errorf("restart action failed: %v", err)
		return errors.Trace(rt.tools.ActionFail(err.Error()))
	}
	if err := rt.tools.ActionSet(map[string]string{"result": "restarted"}); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(rt.tools.SetStatus(status.StatusInfo{
		Status:  status.Active,
		Message: "Unit is ready",
	}))
}
