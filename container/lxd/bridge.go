// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package lxd reattaches the host side of LXD container interfaces to
// their bridges after the fast path has taken the host interfaces down.
package lxd

import (
	"net/url"
	"path"
	"sort"
	"strings"

	lxdclient "github.com/canonical/lxd/client"
	"github.com/canonical/lxd/shared/api"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/vishvananda/netlink"
)

var logger = loggo.GetLogger("juju.va.container.lxd")

// Server is the subset of the LXD API used to find bridge ports.
type Server interface {
	GetNetworks() ([]api.Network, error)
	GetInstanceState(name string) (*api.InstanceState, string, error)
}

// Links enslaves host interfaces to bridges.
type Links interface {
	LinkByName(name string) (netlink.Link, error)
	LinkSetMaster(link, master netlink.Link) error
}

// ServerFactory connects to the local LXD daemon.
type ServerFactory func() (Server, error)

// ConnectLocal connects to LXD over its default unix socket.
func ConnectLocal() (Server, error) {
	return lxdclient.ConnectLXDUnix("", nil)
}

type netlinkLinks struct{}

func (netlinkLinks) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (netlinkLinks) LinkSetMaster(link, master netlink.Link) error {
	return netlink.LinkSetMaster(link, master)
}

// NetlinkLinks returns Links backed by the kernel's netlink API.
func NetlinkLinks() Links {
	return netlinkLinks{}
}

// BridgePorts re-adds container veths to LXD managed bridges.
type BridgePorts struct {
	connect ServerFactory
	links   Links
}

// NewBridgePorts returns a BridgePorts using connect to reach LXD and
// links to change interface masters.
func NewBridgePorts(connect ServerFactory, links Links) *BridgePorts {
	return &BridgePorts{connect: connect, links: links}
}

// Readd walks every LXD bridge and puts the host side of each attached
// instance interface back into it. A host without a reachable LXD daemon
// has nothing to re-add.
func (b *BridgePorts) Readd() ([]string, error) {
	server, err := b.connect()
	if err != nil {
		logger.Infof("LXD not available, no bridge ports to re-add: %v", err)
		return nil, nil
	}
	networks, err := server.GetNetworks()
	if err != nil {
		return nil, errors.Annotate(err, "listing LXD networks")
	}
	var added []string
	for _, network := range networks {
		if network.Type != "bridge" || len(network.UsedBy) == 0 {
			continue
		}
		bridge, err := b.links.LinkByName(network.Name)
		if err != nil {
			return added, errors.Annotatef(err, "finding bridge %q", network.Name)
		}
		for _, user := range network.UsedBy {
			instance, ok := instanceName(user)
			if !ok {
				continue
			}
			state, _, err := server.GetInstanceState(instance)
			if err != nil {
				return added, errors.Annotatef(err, "getting state of %q", instance)
			}
			for _, iface := range sortedInterfaces(state.Network) {
				hostName := state.Network[iface].HostName
				if hostName == "" {
					continue
				}
				if err := b.addPort(bridge, hostName); err != nil {
					return added, errors.Trace(err)
				}
				logger.Infof("added %s to bridge %s", hostName, network.Name)
				added = append(added, network.Name+":"+hostName)
			}
		}
	}
	return added, nil
}

func (b *BridgePorts) addPort(bridge netlink.Link, hostName string) error {
	link, err := b.links.LinkByName(hostName)
	if err != nil {
		return errors.Annotatef(err, "finding interface %q", hostName)
	}
	if err := b.links.LinkSetMaster(link, bridge); err != nil {
		return errors.Annotatef(err, "adding %q to bridge %q", hostName, bridge.Attrs().Name)
	}
	return nil
}

// instanceName extracts the instance name from a network's used-by URL,
// such as "/1.0/instances/juju-0a1b2c-0-lxd-1?project=default".
func instanceName(usedBy string) (string, bool) {
	u, err := url.Parse(usedBy)
	if err != nil {
		return "", false
	}
	dir, name := path.Split(u.Path)
	switch strings.TrimSuffix(dir, "/") {
	case "/1.0/instances", "/1.0/containers":
		return name, name != ""
	}
	return "", false
}

func sortedInterfaces(network map[string]api.InstanceStateNetwork) []string {
	names := make([]string, 0, len(network))
	for name := range network {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
