// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lxd_test

import (
	"github.com/canonical/lxd/shared/api"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/vishvananda/netlink"
	gc "gopkg.in/check.v1"

	"github.com/juju/charm-virtual-accelerator/container/lxd"
)

type stubServer struct {
	*testing.Stub
	networks []api.Network
	states   map[string]*api.InstanceState
}

func (s *stubServer) GetNetworks() ([]api.Network, error) {
	s.AddCall("GetNetworks")
	return s.networks, s.NextErr()
}

func (s *stubServer) GetInstanceState(name string) (*api.InstanceState, string, error) {
	s.AddCall("GetInstanceState", name)
	if err := s.NextErr(); err != nil {
		return nil, "", err
	}
	return s.states[name], "etag", nil
}

type stubLinks struct {
	*testing.Stub
}

func (s *stubLinks) LinkByName(name string) (netlink.Link, error) {
	s.AddCall("LinkByName", name)
	if err := s.NextErr(); err != nil {
		return nil, err
	}
	return &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: name}}, nil
}

func (s *stubLinks) LinkSetMaster(link, master netlink.Link) error {
	s.AddCall("LinkSetMaster", link.Attrs().Name, master.Attrs().Name)
	return s.NextErr()
}

type bridgeSuite struct {
	testing.IsolationSuite

	server *stubServer
	links  *stubLinks
	ports  *lxd.BridgePorts
}

var _ = gc.Suite(&bridgeSuite{})

func (s *bridgeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.server = &stubServer{
		Stub: &testing.Stub{},
		networks: []api.Network{{
			Name:   "lxdbr0",
			Type:   "bridge",
			UsedBy: []string{"/1.0/profiles/default", "/1.0/instances/juju-1?project=default"},
		}, {
			Name:   "eth0",
			Type:   "physical",
			UsedBy: []string{"/1.0/instances/juju-1"},
		}, {
			Name: "lxdbr1",
			Type: "bridge",
		}},
		states: map[string]*api.InstanceState{
			"juju-1": {
				Network: map[string]api.InstanceStateNetwork{
					"lo":   {},
					"eth1": {HostName: "veth5678"},
					"eth0": {HostName: "veth1234"},
				},
			},
		},
	}
	s.links = &stubLinks{Stub: &testing.Stub{}}
	s.ports = lxd.NewBridgePorts(func() (lxd.Server, error) {
		return s.server, nil
	}, s.links)
}

func (s *bridgeSuite) TestReadd(c *gc.C) {
	added, err := s.ports.Readd()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(added, jc.DeepEquals, []string{"lxdbr0:veth1234", "lxdbr0:veth5678"})

	s.server.CheckCallNames(c, "GetNetworks", "GetInstanceState")
	s.server.CheckCall(c, 1, "GetInstanceState", "juju-1")
	s.links.CheckCallNames(c, "LinkByName", "LinkByName", "LinkSetMaster", "LinkByName", "LinkSetMaster")
	s.links.CheckCall(c, 2, "LinkSetMaster", "veth1234", "lxdbr0")
	s.links.CheckCall(c, 4, "LinkSetMaster", "veth5678", "lxdbr0")
}

func (s *bridgeSuite) TestReaddWithoutLXD(c *gc.C) {
	ports := lxd.NewBridgePorts(func() (lxd.Server, error) {
		return nil, errors.New("dial unix /var/lib/lxd/unix.socket: no such file")
	}, s.links)
	added, err := ports.Readd()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(added, gc.HasLen, 0)
	s.links.CheckNoCalls(c)
}

func (s *bridgeSuite) TestReaddListError(c *gc.C) {
	s.server.SetErrors(errors.New("forbidden"))
	_, err := s.ports.Readd()
	c.Check(err, gc.ErrorMatches, "listing LXD networks: forbidden")
}

func (s *bridgeSuite) TestReaddSetMasterError(c *gc.C) {
	s.links.SetErrors(nil, nil, errors.New("operation not permitted"))
	added, err := s.ports.Readd()
	c.Check(err, gc.ErrorMatches, `adding "veth1234" to bridge "lxdbr0": operation not permitted`)
	c.Check(added, gc.HasLen, 0)
}
