// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package accelerator

import (
	"github.com/juju/charm-virtual-accelerator/core/flags"
	"github.com/juju/charm-virtual-accelerator/internal/lifecycle"
	"github.com/juju/charm-virtual-accelerator/internal/relation"
)

// Handler names, also used as action names where an action reruns a
// handler.
const (
	InstallHandler         = "install"
	ConfigureHandler       = "configure"
	ConfigurePluginHandler = "configure-plugin"
	RestartHandler         = "restart"
	DepartHandler          = "depart"
)

// Handlers returns the handler table of the charm, highest priority
// first.
func (c *Charm) Handlers() []lifecycle.Handler {
	product := c.settings.Product
	pluginConnected := flags.Connected(relation.NeutronPluginEndpoint)
	controlConnected := flags.Connected(relation.ServiceControlEndpoint)

	return []lifecycle.Handler{{
		Name:    InstallHandler,
		Forbids: []string{flags.Installed, flags.Departed},
		Steps: []lifecycle.Step{
			{Name: "install-prerequisites", Message: "Installing prerequisites", Run: c.InstallPrerequisites},
			{Name: "delete-default-network", Message: "Cleaning libvirt default network", Run: c.DeleteDefaultNetwork},
			{Name: "install-credentials", Message: "Installing credentials", Run: c.InstallCredentials},
			{Name: "install-product", Message: "Installing " + product, Run: c.InstallProduct},
			{Name: "install-license", Message: "Installing license", Run: c.InstallLicense},
			{Name: "install-extensions", Message: "Installing OpenStack extensions", Run: c.InstallExtensions},
		},
		Sets: []string{flags.Installed},
	}, {
		Name:     ConfigureHandler,
		Requires: []string{flags.Installed, flags.ConfigChanged},
		Forbids:  []string{flags.Departed},
		Steps: []lifecycle.Step{
			{Name: "render-config", Message: "Generating " + c.settings.FastPathConfig, Run: c.RenderConfig},
		},
	}, {
		Name:     ConfigurePluginHandler,
		Requires: []string{flags.Installed, pluginConnected},
		Forbids:  []string{flags.Departed},
		Steps: []lifecycle.Step{
			{Name: "configure-plugin", Message: "Configuring neutron plugin", Run: c.ConfigurePlugin},
		},
		Sets: []string{flags.PluginConnectedOnce},
	}, {
		Name:       RestartHandler,
		Requires:   []string{flags.Installed, controlConnected},
		Forbids:    []string{flags.Departed},
		WatchFiles: []string{c.settings.FastPathConfig},
		Steps: []lifecycle.Step{
			{Name: "restart-product", Message: "Restarting " + product, Run: c.RestartProduct},
			{Name: "request-peer-restart", Message: "Requesting Open vSwitch restart", Run: c.RequestPeerRestart},
		},
		During: lifecycle.Restarting,
	}, {
		Name:     DepartHandler,
		Requires: []string{flags.Installed, flags.PluginConnectedOnce},
		Forbids:  []string{pluginConnected, flags.Departed},
		Steps: []lifecycle.Step{
			{Name: "stop-product", Message: "Stopping " + product, Run: c.StopProduct},
			{Name: "uninstall-extensions", Message: "Uninstalling OpenStack extensions", Run: c.UninstallExtensions},
			{Name: "uninstall-license", Message: "Uninstalling license", Run: c.UninstallLicense},
			{Name: "uninstall-product", Message: "Uninstalling " + product, Run: c.UninstallProduct},
		},
		Sets: []string{flags.Departed},
	}}
}
