// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package lifecycle drives the install, configure, restart and departure
// transitions of a unit in response to events.
//
// A Controller owns the persistent flags of the unit. For every event it
// asks the Router for the highest priority handler whose guard holds,
// runs it through the Executor, records the flags the handler sets and
// asks again, until no handler is eligible. A handler that fails leaves
// the flags untouched, so the next qualifying event runs it again from its
// first step.
package lifecycle

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/charm-virtual-accelerator/core/flags"
	"github.com/juju/charm-virtual-accelerator/core/status"
)

var logger = loggo.GetLogger("juju.va.lifecycle")

// State is the coarse lifecycle state of the unit, derived from its flags.
type State string

const (
	Uninstalled State = "uninstalled"
	Installed   State = "installed"
	Configured  State = "configured"
	Restarting  State = "restarting"
	Departed    State = "departed"
)

// StateStore persists the unit's flags and watched file digests.
type StateStore interface {
	Read() (*flags.State, error)
	Write(*flags.State) error
}

// ControllerConfig holds the dependencies of a Controller.
type ControllerConfig struct {
	Router   *Router
	Executor *Executor
	Store    StateStore
	Status   status.StatusSetter

	// Configured reports whether the workload configuration has been
	// rendered. It distinguishes the Installed and Configured states.
	Configured func() (bool, error)

	// Digest returns the digest of a watched file. FileDigest is used
	// if nil.
	Digest func(path string) (string, error)
}

// Validate returns an error if the config cannot be used.
func (config ControllerConfig) Validate() error {
	if config.Router == nil {
		return errors.NotValidf("nil Router")
	}
	if config.Executor == nil {
		return errors.NotValidf("nil Executor")
	}
	if config.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if config.Status == nil {
		return errors.NotValidf("nil Status")
	}
	if config.Configured == nil {
		return errors.NotValidf("nil Configured")
	}
	return nil
}

// Controller runs handlers in response to events. It is not safe for
// concurrent use: events are processed one at a time, to completion.
type Controller struct {
	config  ControllerConfig
	watcher fileWatcher
	state   *flags.State
	running *Handler
}

// NewController returns a Controller with the state read from the store.
func NewController(config ControllerConfig) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	digest := config.Digest
	if digest == nil {
		digest = FileDigest
	}
	st, err := config.Store.Read()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Controller{
		config:  config,
		watcher: fileWatcher{digest: digest},
		state:   st,
	}, nil
}

// Flags returns the persistent flags of the unit.
func (c *Controller) Flags() flags.FlagSet {
	return c.state.Flags.Union(flags.FlagSet{})
}

// State returns the lifecycle state of the unit.
func (c *Controller) State() (State, error) {
	if c.running != nil && c.running.During != "" {
		return c.running.During, nil
	}
	switch f := c.state.Flags; {
	case f.Has(flags.Departed):
		return Departed, nil
	case !f.Has(flags.Installed):
		return Uninstalled, nil
	}
	configured, err := c.config.Configured()
	if err != nil {
		return "", errors.Trace(err)
	}
	if configured {
		return Configured, nil
	}
	return Installed, nil
}

// Dispatch processes ev to completion: every handler eligible at some
// point during the dispatch runs once, in priority order. It returns the
// first handler failure, as a *StepError.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return errors.Trace(err)
	}
	derived := ev.derivedFlags()
	watched := c.config.Router.WatchedFiles()
	done := set.NewStrings()
	logger.Debugf("dispatching %s event with flags %v and %v", ev.Kind, c.state.Flags, derived)

	for {
		changed, digests, err := c.watcher.changed(watched, c.state.Digests)
		if err != nil {
			return errors.Annotate(err, "checking watched files")
		}
		if ev.Kind == WatchedFileChanged {
			changed.Add(ev.Path)
		}

		view := c.state.Flags.Union(derived)
		h, err := c.config.Router.Next(view, changed, done)
		if errors.Is(err, ErrNoHandler) {
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		done.Add(h.Name)

		if err := c.run(ctx, h, digests); err != nil {
			return errors.Trace(err)
		}
	}
}

func (c *Controller) run(ctx context.Context, h Handler, digests map[string]string) error {
	logger.Infof("running handler %q", h.Name)
	c.running = &h
	defer func() { c.running = nil }()

	if err := c.config.Executor.Run(ctx, h); err != nil {
		logger.Errorf("handler %q failed: %v", h.Name, err)
		c.setStatus(status.Error, err.Error())
		return err
	}

	next := c.state.Copy()
	next.Flags = next.Flags.Add(h.Sets...)
	for _, path := range h.WatchFiles {
		next.Digests[path] = digests[path]
	}
	if err := c.config.Store.Write(next); err != nil {
		return errors.Annotatef(err, "recording completion of %q", h.Name)
	}
	c.state = next
	logger.Infof("handler %q completed, flags now %v", h.Name, next.Flags)
	return nil
}

// RunAction runs the steps of the named handler on operator request,
// regardless of its guard. The unit's flags are never changed by an
// action.
func (c *Controller) RunAction(ctx context.Context, name string) error {
	h, err := c.config.Router.Handler(name)
	if err != nil {
		return errors.Trace(err)
	}
	if !c.state.Flags.Has(flags.Installed) || c.state.Flags.Has(flags.Departed) {
		return errorf(ErrNotInstalled, "cannot run %q", name)
	}
	c.running = &h
	defer func() { c.running = nil }()
	return errors.Trace(c.config.Executor.Run(ctx, h))
}

// AssessStatus reports the status matching the lifecycle state.
func (c *Controller) AssessStatus() error {
	st, err := c.State()
	if err != nil {
		return errors.Trace(err)
	}
	var info status.StatusInfo
	switch st {
	case Uninstalled:
		info = status.StatusInfo{Status: status.Maintenance, Message: "Installation pending"}
	case Installed:
		info = status.StatusInfo{Status: status.Waiting, Message: "Waiting for configuration"}
	case Configured:
		info = status.StatusInfo{Status: status.Active, Message: "Unit is ready"}
	case Restarting:
		info = status.StatusInfo{Status: status.Maintenance, Message: "Restarting"}
	case Departed:
		info = status.StatusInfo{Status: status.Maintenance, Message: "Virtual Accelerator removed"}
	}
	return errors.Trace(c.config.Status.SetStatus(info))
}

func (c *Controller) setStatus(st status.Status, message string) {
	if err := c.config.Status.SetStatus(status.StatusInfo{Status: st, Message: message}); err != nil {
		logger.Warningf("cannot set status %s: %v", st, err)
	}
}
