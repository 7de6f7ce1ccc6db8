// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package accelerator_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/charm-virtual-accelerator/internal/accelerator"
)

type releaseSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&releaseSuite{})

func (*releaseSuite) TestOpenStackRelease(c *gc.C) {
	for version, expected := range map[string]string{
		"2:12.0.4-0ubuntu1~cloud1": "liberty",
		"2:13.1.0-0ubuntu1":        "mitaka",
		"13.0.0":                   "mitaka",
		"2:17.0.13-0ubuntu5":       "queens",
	} {
		release, err := accelerator.OpenStackRelease(version)
		c.Check(err, jc.ErrorIsNil)
		c.Check(release, gc.Equals, expected, gc.Commentf("version %q", version))
	}
}

func (*releaseSuite) TestOpenStackReleaseErrors(c *gc.C) {
	_, err := accelerator.OpenStackRelease("banana")
	c.Check(err, jc.Satisfies, errors.IsNotValid)

	_, err = accelerator.OpenStackRelease("3:29.0.0-0ubuntu1")
	c.Check(err, jc.Satisfies, errors.IsNotSupported)
}

func (*releaseSuite) TestPluginConfigUnknownRelease(c *gc.C) {
	_, err := accelerator.PluginConfig("queens", accelerator.DefaultSettings().VIFDecorators)
	c.Check(err, gc.ErrorMatches, `OpenStack release "queens" not supported`)
}
