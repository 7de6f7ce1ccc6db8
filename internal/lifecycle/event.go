// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/charm-virtual-accelerator/core/flags"
)

// EventKind enumerates the external occurrences the controller reacts to.
type EventKind string

const (
	// UnitActivated is the first event a unit sees.
	UnitActivated EventKind = "unit-activated"

	// ConfigurationChanged fires when charm configuration may have changed.
	ConfigurationChanged EventKind = "configuration-changed"

	// RelationConnected fires when a peer joins or updates a relation.
	RelationConnected EventKind = "relation-connected"

	// RelationDeparted fires when a peer leaves a relation.
	RelationDeparted EventKind = "relation-departed"

	// WatchedFileChanged fires when a watched file is known to have
	// changed.
	WatchedFileChanged EventKind = "watched-file-changed"

	// UpdateStatus is a periodic event with no handler of its own. Guards
	// are still evaluated, so relation and file changes are picked up.
	UpdateStatus EventKind = "update-status"
)

// Event is an external occurrence together with a snapshot of the
// relations the unit currently participates in.
type Event struct {
	Kind EventKind

	// Endpoint names the relation endpoint for relation events.
	Endpoint string

	// Path names the file for WatchedFileChanged events.
	Path string

	// Connected holds the relation endpoints that have at least one
	// remote unit at the time of the event, excluding a departing unit.
	// The endpoint of a RelationConnected event is always considered
	// connected.
	Connected []string
}

// Validate returns an error if the event is missing the payload its kind
// requires.
func (ev Event) Validate() error {
	switch ev.Kind {
	case RelationConnected, RelationDeparted:
		if ev.Endpoint == "" {
			return errors.NotValidf("%q event without endpoint", ev.Kind)
		}
	case WatchedFileChanged:
		if ev.Path == "" {
			return errors.NotValidf("%q event without path", ev.Kind)
		}
	case UnitActivated, ConfigurationChanged, UpdateStatus:
	default:
		return errors.NotValidf("event kind %q", ev.Kind)
	}
	return nil
}

// derivedFlags returns the flags implied by the event. They are never
// persisted.
func (ev Event) derivedFlags() flags.FlagSet {
	connected := set.NewStrings(ev.Connected...)
	switch ev.Kind {
	case RelationConnected:
		connected.Add(ev.Endpoint)
	}
	names := make([]string, 0, connected.Size()+1)
	for _, endpoint := range connected.SortedValues() {
		names = append(names, flags.Connected(endpoint))
	}
	if ev.Kind == ConfigurationChanged {
		names = append(names, flags.ConfigChanged)
	}
	return flags.New(names...)
}
