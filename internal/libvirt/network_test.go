// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package libvirt_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/charm-virtual-accelerator/internal/libvirt"
	"github.com/juju/charm-virtual-accelerator/internal/runner/runnertesting"
)

type networkSuite struct {
	testing.IsolationSuite

	runner   *runnertesting.FakeRunner
	networks *libvirt.Networks
}

var _ = gc.Suite(&networkSuite{})

func (s *networkSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.runner = runnertesting.NewFakeRunner()
	s.networks = libvirt.NewNetworks(s.runner)
}

func (s *networkSuite) TestInfo(c *gc.C) {
	s.runner.Results["virsh net-info default"] = runnertesting.Result{Stdout: `Name:           default
UUID:           0f0bd5d4-7f0c-4b2e-9a43-0c1c2a8d8e55
Active:         yes
Persistent:     yes
Autostart:      no
Bridge:         virbr0
`}
	info, err := s.networks.Info(libvirt.DefaultNetwork)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info, jc.DeepEquals, libvirt.NetworkInfo{
		Name:       "default",
		Active:     true,
		Persistent: true,
		Bridge:     "virbr0",
	})
}

func (s *networkSuite) TestDeleteActive(c *gc.C) {
	s.runner.Results["virsh net-info default"] = runnertesting.Result{Stdout: `Name: default
Active: yes
Persistent: yes
`}
	err := s.networks.Delete(libvirt.DefaultNetwork)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.runner.Commands(), jc.DeepEquals, []string{
		"virsh net-info default",
		"virsh net-destroy default",
		"virsh net-undefine default",
	})
}

func (s *networkSuite) TestDeleteInactive(c *gc.C) {
	s.runner.Results["virsh net-info default"] = runnertesting.Result{Stdout: "Active: no\nPersistent: yes\n"}
	err := s.networks.Delete(libvirt.DefaultNetwork)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.runner.Commands(), jc.DeepEquals, []string{
		"virsh net-info default",
		"virsh net-undefine default",
	})
}

func (s *networkSuite) TestDeleteMissing(c *gc.C) {
	s.runner.Results["virsh net-info default"] = runnertesting.Result{
		Code:   1,
		Stderr: "error: failed to get network 'default'\nerror: Network not found: no network with matching name 'default'",
	}
	err := s.networks.Delete(libvirt.DefaultNetwork)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.runner.Commands(), gc.HasLen, 1)

	_, err = s.networks.Info(libvirt.DefaultNetwork)
	c.Check(err, jc.Satisfies, errors.IsNotFound)
}

func (s *networkSuite) TestDeleteFailure(c *gc.C) {
	s.runner.Results["virsh net-info default"] = runnertesting.Result{Stdout: "Active: yes\n"}
	s.runner.Results["virsh net-destroy default"] = runnertesting.Result{Code: 1, Stderr: "error: Failed to destroy network default"}
	err := s.networks.Delete(libvirt.DefaultNetwork)
	c.Check(err, gc.ErrorMatches, `stopping libvirt network "default": "virsh net-destroy default" exited with code 1: error: Failed to destroy network default`)
}
