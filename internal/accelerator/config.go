// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package accelerator

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/schema"
)

// Charm config keys, as declared in config.yaml.
const (
	VMMemoryKey        = "VM_MEMORY"
	VersionKey         = "va-version"
	RepositoryURLKey   = "repository-url"
	StepTimeoutKey     = "step-timeout"
	MetricsTextfileKey = "metrics-textfile"
)

// DefaultVMMemory is the hugepage memory, in MiB, reserved for VMs when
// VM_MEMORY is not set.
const DefaultVMMemory = 1024

var configFields = schema.Fields{
	VMMemoryKey:        schema.ForceInt(),
	VersionKey:         schema.String(),
	RepositoryURLKey:   schema.String(),
	StepTimeoutKey:     schema.String(),
	MetricsTextfileKey: schema.String(),
}

var configDefaults = schema.Defaults{
	VMMemoryKey:        DefaultVMMemory,
	VersionKey:         "",
	RepositoryURLKey:   "",
	StepTimeoutKey:     "0s",
	MetricsTextfileKey: "",
}

var configChecker = schema.FieldMap(configFields, configDefaults)

// Config is the charm configuration.
type Config struct {
	VMMemory        int
	Version         string
	RepositoryURL   string
	StepTimeout     time.Duration
	MetricsTextfile string
}

// ParseConfig coerces the output of config-get. Unknown keys are ignored.
func ParseConfig(attrs map[string]interface{}) (Config, error) {
	known := make(map[string]interface{})
	for key, value := range attrs {
		if _, ok := configFields[key]; ok && value != nil {
			known[key] = value
		}
	}
	coerced, err := configChecker.Coerce(known, nil)
	if err != nil {
		return Config{}, errors.NewNotValid(err, "charm config")
	}
	values := coerced.(map[string]interface{})

	cfg := Config{
		VMMemory:        values[VMMemoryKey].(int),
		Version:         values[VersionKey].(string),
		RepositoryURL:   strings.TrimSpace(values[RepositoryURLKey].(string)),
		MetricsTextfile: values[MetricsTextfileKey].(string),
	}
	timeout := values[StepTimeoutKey].(string)
	if timeout != "" {
		cfg.StepTimeout, err = time.ParseDuration(timeout)
		if err != nil {
			return Config{}, errors.NotValidf("%s %q", StepTimeoutKey, timeout)
		}
	}
	if cfg.VMMemory <= 0 {
		return Config{}, errors.NotValidf("%s %d", VMMemoryKey, cfg.VMMemory)
	}
	if cfg.StepTimeout < 0 {
		return Config{}, errors.NotValidf("negative %s", StepTimeoutKey)
	}
	return cfg, nil
}

// RepositoryPackageURL expands the repository-url template. "{distro}",
// "{arch}", "{version}" and "{product}" are replaced.
func (c Config) RepositoryPackageURL(product, distro, arch string) (string, error) {
	if c.RepositoryURL == "" {
		return "", errors.NotValidf("empty %s", RepositoryURLKey)
	}
	if c.Version == "" {
		return "", errors.NotValidf("empty %s", VersionKey)
	}
	return strings.NewReplacer(
		"{product}", product,
		"{distro}", distro,
		"{arch}", arch,
		"{version}", c.Version,
	).Replace(c.RepositoryURL), nil
}
