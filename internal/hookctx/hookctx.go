// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hookctx reads the environment Juju sets up for a hook or action
// and turns it into a lifecycle event.
package hookctx

import (
	"path"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/names/v5"

	"github.com/juju/charm-virtual-accelerator/internal/lifecycle"
	"github.com/juju/charm-virtual-accelerator/internal/relation"
)

var logger = loggo.GetLogger("juju.va.hookctx")

// Environment variables set by the unit agent.
const (
	EnvDispatchPath  = "JUJU_DISPATCH_PATH"
	EnvHookName      = "JUJU_HOOK_NAME"
	EnvActionName    = "JUJU_ACTION_NAME"
	EnvUnitName      = "JUJU_UNIT_NAME"
	EnvRelation      = "JUJU_RELATION"
	EnvRemoteUnit    = "JUJU_REMOTE_UNIT"
	EnvDepartingUnit = "JUJU_DEPARTING_UNIT"
	EnvCharmDir      = "JUJU_CHARM_DIR"
	EnvCharmDirAlt   = "CHARM_DIR"
	EnvDebug         = "JUJU_DEBUG"
)

// Kind tells hooks and actions apart.
type Kind string

const (
	Hook   Kind = "hook"
	Action Kind = "action"
)

// Context describes the hook or action being run.
type Context struct {
	Kind Kind

	// Name is the hook or action name.
	Name string

	Unit          names.UnitTag
	CharmDir      string
	Relation      string
	RemoteUnit    string
	DepartingUnit string
	Debug         bool
}

// FromEnv builds a Context from the environment through getenv.
// invokedAs is the path the executable was run as; it names the hook or
// action when JUJU_DISPATCH_PATH is not set, as with hooks/<name>
// symlinks.
func FromEnv(getenv func(string) string, invokedAs string) (*Context, error) {
	unit := getenv(EnvUnitName)
	if !names.IsValidUnit(unit) {
		return nil, errors.NotValidf("unit name %q", unit)
	}
	ctx := &Context{
		Unit:          names.NewUnitTag(unit),
		CharmDir:      getenv(EnvCharmDir),
		Relation:      getenv(EnvRelation),
		RemoteUnit:    getenv(EnvRemoteUnit),
		DepartingUnit: getenv(EnvDepartingUnit),
		Debug:         getenv(EnvDebug) != "",
	}
	if ctx.CharmDir == "" {
		ctx.CharmDir = getenv(EnvCharmDirAlt)
	}

	dispatch := getenv(EnvDispatchPath)
	if dispatch == "" {
		dispatch = invokedAs
	}
	ctx.Kind, ctx.Name = parseDispatchPath(dispatch)
	switch {
	case ctx.Kind == "" && getenv(EnvActionName) != "":
		ctx.Kind, ctx.Name = Action, getenv(EnvActionName)
	case ctx.Kind == "" && getenv(EnvHookName) != "":
		ctx.Kind, ctx.Name = Hook, getenv(EnvHookName)
	case ctx.Kind == "":
		return nil, errors.NotValidf("dispatch path %q", dispatch)
	}
	logger.Debugf("running %s %q for %s", ctx.Kind, ctx.Name, ctx.Unit.Id())
	return ctx, nil
}

// parseDispatchPath splits paths like "hooks/install" or
// "/var/lib/juju/agents/unit-va-0/charm/actions/restart".
func parseDispatchPath(p string) (Kind, string) {
	dir, name := path.Split(path.Clean(p))
	switch path.Base(dir) {
	case "hooks":
		return Hook, name
	case "actions":
		return Action, name
	}
	return "", ""
}

// EventForHook returns the lifecycle event raised by the named hook. Hooks
// with no meaning for the lifecycle yield an error satisfying
// errors.IsNotSupported.
func EventForHook(hook string) (lifecycle.Event, error) {
	switch hook {
	case "install":
		return lifecycle.Event{Kind: lifecycle.UnitActivated}, nil
	case "config-changed", "upgrade-charm":
		return lifecycle.Event{Kind: lifecycle.ConfigurationChanged}, nil
	case "start", "update-status":
		return lifecycle.Event{Kind: lifecycle.UpdateStatus}, nil
	}
	for suffix, kind := range map[string]lifecycle.EventKind{
		"-relation-joined":   lifecycle.RelationConnected,
		"-relation-changed":  lifecycle.RelationConnected,
		"-relation-departed": lifecycle.RelationDeparted,
		"-relation-broken":   lifecycle.RelationDeparted,
	} {
		if endpoint := strings.TrimSuffix(hook, suffix); endpoint != hook && endpoint != "" {
			return lifecycle.Event{Kind: kind, Endpoint: endpoint}, nil
		}
	}
	return lifecycle.Event{}, errors.NotSupportedf("hook %q", hook)
}

// Event returns the lifecycle event for the running hook, with the
// connected relation endpoints filled in.
func (c *Context) Event(tools relation.Tools) (lifecycle.Event, error) {
	if c.Kind != Hook {
		return lifecycle.Event{}, errors.NotValidf("%s %q as a hook", c.Kind, c.Name)
	}
	ev, err := EventForHook(c.Name)
	if err != nil {
		return lifecycle.Event{}, errors.Trace(err)
	}
	connected, err := relation.ConnectedEndpoints(tools, c.DepartingUnit,
		relation.NeutronPluginEndpoint, relation.ServiceControlEndpoint)
	if err != nil {
		return lifecycle.Event{}, errors.Trace(err)
	}
	broken := strings.HasSuffix(c.Name, "-relation-broken")
	for _, endpoint := range connected {
		// A broken relation may still be listed while its last hook runs.
		if broken && endpoint == ev.Endpoint {
			continue
		}
		ev.Connected = append(ev.Connected, endpoint)
	}
	return ev, nil
}
