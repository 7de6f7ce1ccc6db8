// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package packaging

import (
	"github.com/juju/errors"
	"gopkg.in/ini.v1"
)

// LSBReleasePath is where the distribution release is described.
const LSBReleasePath = "/etc/lsb-release"

// DistroRelease returns DISTRIB_RELEASE, such as "22.04", from an
// lsb-release file.
func DistroRelease(path string) (string, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return "", errors.Annotatef(err, "reading %q", path)
	}
	release := cfg.Section(ini.DefaultSection).Key("DISTRIB_RELEASE").String()
	if release == "" {
		return "", errors.NotFoundf("DISTRIB_RELEASE in %q", path)
	}
	return release, nil
}
