// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package accelerator

import (
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/charm-virtual-accelerator/internal/relation"
)

// novaReleases maps the major version of the nova packages to the
// OpenStack release that shipped it.
var novaReleases = map[int]string{
	12: "liberty",
	13: "mitaka",
	14: "newton",
	15: "ocata",
	16: "pike",
	17: "queens",
}

// OpenStackRelease returns the release name for a nova package version
// such as "2:13.1.0-0ubuntu1".
func OpenStackRelease(version string) (string, error) {
	v := version
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	major, err := strconv.Atoi(strings.SplitN(v, ".", 2)[0])
	if err != nil {
		return "", errors.NotValidf("nova version %q", version)
	}
	release, ok := novaReleases[major]
	if !ok {
		return "", errors.NotSupportedf("nova version %q", version)
	}
	return release, nil
}

// PluginConfig returns the Nova configuration pushed to the
// neutron-plugin peer for release.
func PluginConfig(release string, decorators map[string]string) (relation.SubordinateConfig, error) {
	decorator, ok := decorators[release]
	if !ok {
		return nil, errors.NotSupportedf("OpenStack release %q", release)
	}
	return relation.SubordinateConfig{
		"nova-compute": {
			"/etc/nova/nova.conf": relation.ConfigFile{
				Sections: map[string][]relation.ConfigOption{
					"DEFAULT": {
						{"monkey_patch", "true"},
						{"monkey_patch_modules", "nova.virt.libvirt.vif:" + decorator},
					},
				},
			},
		},
	}, nil
}
