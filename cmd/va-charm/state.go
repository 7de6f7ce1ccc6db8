// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"path/filepath"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/charm-virtual-accelerator/core/flags"
	"github.com/juju/charm-virtual-accelerator/internal/hookctx"
)

const stateDoc = `
state prints the lifecycle flags persisted for the unit, and the digests
of the watched files recorded when their handlers last completed.

The state file is found in the charm directory given by JUJU_CHARM_DIR,
unless --file is given.
`

type stateCommand struct {
	cmd.CommandBase

	getenv func(string) string
	path   string
	out    cmd.Output
}

func newStateCommand(getenv func(string) string) cmd.Command {
	return &stateCommand{getenv: getenv}
}

// Info implements cmd.Command.
func (c *stateCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "state",
		Purpose: "Show the persisted lifecycle flags.",
		Doc:     stateDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *stateCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.path, "file", "", "state file to read")
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters.Formatters())
}

// Init implements cmd.Command.
func (c *stateCommand) Init(args []string) error {
	if c.path == "" {
		dir := c.getenv(hookctx.EnvCharmDir)
		if dir == "" {
			dir = c.getenv(hookctx.EnvCharmDirAlt)
		}
		if dir == "" {
			return errors.Errorf("no state file: set %s or pass --file", hookctx.EnvCharmDir)
		}
		c.path = filepath.Join(dir, stateFile)
	}
	return cmd.CheckEmpty(args)
}

type stateInfo struct {
	Flags   []string          `yaml:"flags" json:"flags"`
	Digests map[string]string `yaml:"digests,omitempty" json:"digests,omitempty"`
}

// Run implements cmd.Command.
func (c *stateCommand) Run(ctx *cmd.Context) error {
	st, err := flags.NewStore(c.path).Read()
	if err != nil {
		return errors.Trace(err)
	}
	return c.out.Write(ctx, stateInfo{
		Flags:   st.Flags.Values(),
		Digests: st.Digests,
	})
}
