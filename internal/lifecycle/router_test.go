// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle_test

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/charm-virtual-accelerator/core/flags"
	"github.com/juju/charm-virtual-accelerator/internal/lifecycle"
)

type routerSuite struct {
	log    *stepLog
	router *lifecycle.Router
}

var _ = gc.Suite(&routerSuite{})

const fastPath = "/usr/local/etc/fast-path.env"

func (s *routerSuite) SetUpTest(c *gc.C) {
	s.log = newStepLog()
	router, err := lifecycle.NewRouter(handlerTable(s.log, fastPath)...)
	c.Assert(err, jc.ErrorIsNil)
	s.router = router
}

func names(handlers []lifecycle.Handler) []string {
	result := make([]string, len(handlers))
	for i, h := range handlers {
		result[i] = h.Name
	}
	return result
}

func (s *routerSuite) TestEligibleEmpty(c *gc.C) {
	eligible := s.router.Eligible(flags.New(), set.NewStrings())
	c.Check(names(eligible), jc.DeepEquals, []string{"install"})
}

func (s *routerSuite) TestEligibleInPriorityOrder(c *gc.C) {
	view := flags.New(flags.Installed, flags.ConfigChanged, flags.Connected(pluginEndpoint), flags.Connected(controlEndpoint))
	eligible := s.router.Eligible(view, set.NewStrings(fastPath))
	c.Check(names(eligible), jc.DeepEquals, []string{"configure", "configure-plugin", "restart"})
}

func (s *routerSuite) TestWatchedFileMustChange(c *gc.C) {
	view := flags.New(flags.Installed, flags.Connected(controlEndpoint))
	c.Check(s.router.Eligible(view, set.NewStrings()), gc.HasLen, 0)
	c.Check(names(s.router.Eligible(view, set.NewStrings(fastPath))), jc.DeepEquals, []string{"restart"})
	c.Check(s.router.Eligible(view, set.NewStrings("/etc/other")), gc.HasLen, 0)
}

func (s *routerSuite) TestDepartedForbidsEverything(c *gc.C) {
	view := flags.New(
		flags.Installed, flags.PluginConnectedOnce, flags.Departed, flags.ConfigChanged,
		flags.Connected(pluginEndpoint), flags.Connected(controlEndpoint),
	)
	c.Check(s.router.Eligible(view, set.NewStrings(fastPath)), gc.HasLen, 0)
	c.Check(s.router.Eligible(flags.New(flags.Installed, flags.PluginConnectedOnce, flags.Departed), nil), gc.HasLen, 0)
}

func (s *routerSuite) TestNextSkipsDone(c *gc.C) {
	view := flags.New(flags.Installed, flags.ConfigChanged, flags.Connected(pluginEndpoint))
	h, err := s.router.Next(view, nil, set.NewStrings())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(h.Name, gc.Equals, "configure")

	h, err = s.router.Next(view, nil, set.NewStrings("configure"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(h.Name, gc.Equals, "configure-plugin")

	_, err = s.router.Next(view, nil, set.NewStrings("configure", "configure-plugin"))
	c.Check(errors.Is(err, lifecycle.ErrNoHandler), jc.IsTrue)
}

func (s *routerSuite) TestWatchedFiles(c *gc.C) {
	c.Check(s.router.WatchedFiles(), jc.DeepEquals, []string{fastPath})
}

func (s *routerSuite) TestHandlerLookup(c *gc.C) {
	h, err := s.router.Handler("restart")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(h.During, gc.Equals, lifecycle.Restarting)

	_, err = s.router.Handler("upgrade")
	c.Check(err, jc.Satisfies, errors.IsNotFound)
}

func (s *routerSuite) TestOverlaps(c *gc.C) {
	c.Check(s.router.Overlaps(), jc.DeepEquals, []lifecycle.Overlap{
		{First: "configure", Second: "configure-plugin"},
		{First: "configure", Second: "restart"},
		{First: "configure", Second: "depart"},
		{First: "configure-plugin", Second: "restart"},
		{First: "restart", Second: "depart"},
	})
}

func (s *routerSuite) TestGuardConflicts(c *gc.C) {
	noop := lifecycle.Step{Name: "noop", Run: func(context.Context) error { return nil }}
	for i, test := range []struct {
		about    string
		handlers []lifecycle.Handler
		err      string
	}{{
		about:    "requires and forbids",
		handlers: []lifecycle.Handler{{Name: "a", Requires: []string{"x"}, Forbids: []string{"x"}, Steps: []lifecycle.Step{noop}}},
		err:      `handler "a" requires and forbids \[x\]: guard conflict`,
	}, {
		about:    "duplicate",
		handlers: []lifecycle.Handler{{Name: "a", Steps: []lifecycle.Step{noop}}, {Name: "a", Steps: []lifecycle.Step{noop}}},
		err:      `duplicate handler "a": guard conflict`,
	}, {
		about:    "no steps",
		handlers: []lifecycle.Handler{{Name: "a"}},
		err:      `handler "a" has no steps: guard conflict`,
	}, {
		about:    "no name",
		handlers: []lifecycle.Handler{{Steps: []lifecycle.Step{noop}}},
		err:      `handler without name: guard conflict`,
	}, {
		about:    "incomplete step",
		handlers: []lifecycle.Handler{{Name: "a", Steps: []lifecycle.Step{{Name: "b"}}}},
		err:      `handler "a" step 0 is incomplete: guard conflict`,
	}} {
		c.Logf("test %d: %s", i, test.about)
		_, err := lifecycle.NewRouter(test.handlers...)
		c.Check(err, gc.ErrorMatches, test.err)
		c.Check(errors.Is(err, lifecycle.ErrGuardConflict), jc.IsTrue)
	}
}
