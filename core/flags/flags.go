// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package flags holds the named lifecycle markers of a unit and their
// on-disk representation.
package flags

import (
	"strings"

	"github.com/juju/collections/set"
	"gopkg.in/yaml.v3"
)

const (
	// Installed is set once the product and its prerequisites are installed.
	Installed = "installed"

	// PluginConnectedOnce is set once the plugin configuration has been
	// pushed to a neutron-plugin peer.
	PluginConnectedOnce = "plugin-connected-once"

	// Departed is set once the product has been uninstalled after the
	// neutron-plugin peer went away. It is terminal.
	Departed = "departed"

	// ConfigChanged is derived from a configuration-changed event and is
	// never persisted.
	ConfigChanged = "config.changed"
)

// Connected returns the derived flag name marking that the relation
// endpoint has at least one remote unit.
func Connected(endpoint string) string {
	return endpoint + ".connected"
}

// FlagSet is a set of flag names. The zero value is an empty set ready
// for use.
type FlagSet struct {
	names set.Strings
}

// New returns a FlagSet holding the given names.
func New(names ...string) FlagSet {
	return FlagSet{names: set.NewStrings(names...)}
}

// Has reports whether every given flag is present.
func (f FlagSet) Has(names ...string) bool {
	for _, name := range names {
		if !f.names.Contains(name) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one of the given flags is present.
func (f FlagSet) HasAny(names ...string) bool {
	for _, name := range names {
		if f.names.Contains(name) {
			return true
		}
	}
	return false
}

// Add returns a copy of the set with the given flags added.
func (f FlagSet) Add(names ...string) FlagSet {
	return FlagSet{names: f.names.Union(set.NewStrings(names...))}
}

// Union returns a new set holding the flags of both sets.
func (f FlagSet) Union(other FlagSet) FlagSet {
	return FlagSet{names: f.names.Union(other.names)}
}

// Len returns the number of flags in the set.
func (f FlagSet) Len() int {
	return f.names.Size()
}

// Values returns the flag names in sorted order.
func (f FlagSet) Values() []string {
	if f.names == nil {
		return []string{}
	}
	return f.names.SortedValues()
}

// Equal reports whether both sets hold the same flags.
func (f FlagSet) Equal(other FlagSet) bool {
	if f.Len() != other.Len() {
		return false
	}
	return f.Has(other.Values()...)
}

// String implements fmt.Stringer.
func (f FlagSet) String() string {
	return "[" + strings.Join(f.Values(), " ") + "]"
}

// MarshalYAML implements yaml.Marshaler.
func (f FlagSet) MarshalYAML() (interface{}, error) {
	return f.Values(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *FlagSet) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return err
	}
	*f = New(names...)
	return nil
}
