// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/charm-virtual-accelerator/internal/accelerator"
)

const handlersDoc = `
handlers lists the lifecycle handlers in priority order with their
guards and steps, followed by the pairs of handlers that can become
eligible for the same event.
`

type handlersCommand struct {
	cmd.CommandBase

	params runtimeParams
	out    cmd.Output
}

func newHandlersCommand(params runtimeParams) cmd.Command {
	return &handlersCommand{params: params}
}

// Info implements cmd.Command.
func (c *handlersCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "handlers",
		Purpose: "Show the lifecycle handler table.",
		Doc:     handlersDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *handlersCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters.Formatters())
}

// Init implements cmd.Command.
func (c *handlersCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

type handlerInfo struct {
	Name     string   `yaml:"name" json:"name"`
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	Forbids  []string `yaml:"forbids,omitempty" json:"forbids,omitempty"`
	Watches  []string `yaml:"watches,omitempty" json:"watches,omitempty"`
	Steps    []string `yaml:"steps" json:"steps"`
	Sets     []string `yaml:"sets,omitempty" json:"sets,omitempty"`
}

type handlerTable struct {
	Handlers []handlerInfo `yaml:"handlers" json:"handlers"`
	Overlaps [][2]string   `yaml:"overlaps,omitempty" json:"overlaps,omitempty"`
}

// Run implements cmd.Command.
func (c *handlersCommand) Run(ctx *cmd.Context) error {
	params := c.params
	if params.Settings.Product == "" {
		params.Settings = accelerator.DefaultSettings()
	}
	rt, err := newRuntime(params)
	if err != nil {
		return errors.Trace(err)
	}

	var table handlerTable
	for _, h := range rt.router.Handlers() {
		info := handlerInfo{
			Name:     h.Name,
			Requires: h.Requires,
			Forbids:  h.Forbids,
			Watches:  h.WatchFiles,
			Sets:     h.Sets,
		}
		for _, step := range h.Steps {
			info.Steps = append(info.Steps, step.Name)
		}
		table.Handlers = append(table.Handlers, info)
	}
	for _, overlap := range rt.router.Overlaps() {
		table.Overlaps = append(table.Overlaps, [2]string{overlap.First, overlap.Second})
	}
	return c.out.Write(ctx, table)
}
