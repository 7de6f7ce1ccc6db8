// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package libvirt manages libvirt networks through virsh.
package libvirt

import (
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/charm-virtual-accelerator/internal/runner"
)

var logger = loggo.GetLogger("juju.va.libvirt")

// DefaultNetwork is the NAT network libvirt creates on installation.
const DefaultNetwork = "default"

// NetworkInfo describes a libvirt network as reported by virsh net-info.
type NetworkInfo struct {
	Name       string
	Active     bool
	Persistent bool
	Bridge     string
}

// Networks runs virsh network commands.
type Networks struct {
	runner runner.CommandRunner
}

// NewNetworks returns a Networks using r.
func NewNetworks(r runner.CommandRunner) *Networks {
	return &Networks{runner: r}
}

// Info returns the named network, or an error satisfying
// errors.IsNotFound if libvirt does not know it.
func (n *Networks) Info(name string) (NetworkInfo, error) {
	out, err := runner.Run(n.runner, "virsh", "net-info", name)
	if runner.IsExitCode(err, 1) {
		return NetworkInfo{}, errors.NotFoundf("libvirt network %q", name)
	} else if err != nil {
		return NetworkInfo{}, errors.Trace(err)
	}
	return parseNetInfo(out), nil
}

// parseNetInfo parses output like
//
//	Name:           default
//	UUID:           0f0bd5d4-...
//	Active:         yes
//	Persistent:     yes
//	Autostart:      yes
//	Bridge:         virbr0
func parseNetInfo(out string) NetworkInfo {
	var info NetworkInfo
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Name":
			info.Name = value
		case "Active":
			info.Active = value == "yes"
		case "Persistent":
			info.Persistent = value == "yes"
		case "Bridge":
			info.Bridge = value
		}
	}
	return info
}

// Delete stops the named network if it is active and removes its
// definition. A missing network is not an error.
func (n *Networks) Delete(name string) error {
	info, err := n.Info(name)
	if errors.Is(err, errors.NotFound) {
		logger.Debugf("libvirt network %q already absent", name)
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("deleting libvirt network %q with bridge %q", name, info.Bridge)
	if info.Active {
		if _, err := runner.Run(n.runner, "virsh", "net-destroy", name); err != nil {
			return errors.Annotatef(err, "stopping libvirt network %q", name)
		}
	}
	if info.Persistent {
		if _, err := runner.Run(n.runner, "virsh", "net-undefine", name); err != nil {
			return errors.Annotatef(err, "undefining libvirt network %q", name)
		}
	}
	return nil
}
