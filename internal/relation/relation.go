// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package relation reads and publishes the relation data exchanged with
// the neutron-plugin and service-control peers.
package relation

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("juju.va.relation")

const (
	// NeutronPluginEndpoint is the subordinate relation to nova-compute.
	NeutronPluginEndpoint = "neutron-plugin"

	// ServiceControlEndpoint is the relation used to ask the principal
	// to restart services.
	ServiceControlEndpoint = "service-control"
)

// Tools is the subset of hook tools used on relations.
type Tools interface {
	RelationIDs(endpoint string) ([]string, error)
	RelationList(id string) ([]string, error)
	RelationSet(id string, settings map[string]string) error
}

// Endpoint gives access to every relation established on one endpoint.
type Endpoint struct {
	name  string
	tools Tools
}

// NewEndpoint returns the named endpoint.
func NewEndpoint(tools Tools, name string) *Endpoint {
	return &Endpoint{name: name, tools: tools}
}

// Name returns the endpoint name.
func (e *Endpoint) Name() string {
	return e.name
}

// RemoteUnits returns the remote units of all relations on the endpoint,
// leaving out the departing unit if any.
func (e *Endpoint) RemoteUnits(departing string) ([]string, error) {
	ids, err := e.tools.RelationIDs(e.name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	units := set.NewStrings()
	for _, id := range ids {
		members, err := e.tools.RelationList(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		units = units.Union(set.NewStrings(members...))
	}
	units.Remove(departing)
	return units.SortedValues(), nil
}

// Connected reports whether at least one remote unit other than the
// departing one is on the endpoint.
func (e *Endpoint) Connected(departing string) (bool, error) {
	units, err := e.RemoteUnits(departing)
	if err != nil {
		return false, errors.Trace(err)
	}
	return len(units) > 0, nil
}

// Publish sets settings on every relation of the endpoint and returns the
// number of relations updated.
func (e *Endpoint) Publish(settings map[string]string) (int, error) {
	ids, err := e.tools.RelationIDs(e.name)
	if err != nil {
		return 0, errors.Trace(err)
	}
	for _, id := range ids {
		if err := e.tools.RelationSet(id, settings); err != nil {
			return 0, errors.Trace(err)
		}
		logger.Debugf("published %d settings on %s", len(settings), id)
	}
	return len(ids), nil
}

// ConnectedEndpoints returns the endpoints among names that are connected
// once the departing unit has left.
func ConnectedEndpoints(tools Tools, departing string, names ...string) ([]string, error) {
	var connected []string
	for _, name := range names {
		ok, err := NewEndpoint(tools, name).Connected(departing)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if ok {
			connected = append(connected, name)
		}
	}
	return connected, nil
}
