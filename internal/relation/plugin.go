// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"encoding/json"

	"github.com/juju/errors"
)

// ConfigOption is a single key and value of a configuration file section.
// It is encoded as a two element JSON array.
type ConfigOption [2]string

// ConfigFile holds the options to set in a configuration file, by section.
type ConfigFile struct {
	Sections map[string][]ConfigOption `json:"sections"`
}

// SubordinateConfig maps a principal service name to the configuration
// files, by path, that the principal should render.
type SubordinateConfig map[string]map[string]ConfigFile

// NeutronPlugin publishes the plugin configuration to the nova-compute
// principal.
type NeutronPlugin struct {
	endpoint *Endpoint
}

// NewNeutronPlugin returns a NeutronPlugin using the neutron-plugin
// endpoint.
func NewNeutronPlugin(tools Tools) *NeutronPlugin {
	return &NeutronPlugin{endpoint: NewEndpoint(tools, NeutronPluginEndpoint)}
}

// ConfigurePlugin tells the principal which neutron plugin is in use and
// which configuration it must render on behalf of the subordinate.
func (p *NeutronPlugin) ConfigurePlugin(plugin string, config SubordinateConfig) error {
	data, err := json.Marshal(config)
	if err != nil {
		return errors.Trace(err)
	}
	n, err := p.endpoint.Publish(map[string]string{
		"neutron-plugin":            plugin,
		"subordinate_configuration": string(data),
	})
	if err != nil {
		return errors.Annotate(err, "configuring neutron plugin")
	}
	if n == 0 {
		return errors.NotFoundf("%q relation", NeutronPluginEndpoint)
	}
	logger.Infof("configured neutron plugin %q on %d relation(s)", plugin, n)
	return nil
}
