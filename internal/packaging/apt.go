// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package packaging installs and removes Debian packages with apt and
// dpkg.
package packaging

import (
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/juju/charm-virtual-accelerator/internal/runner"
)

var logger = loggo.GetLogger("juju.va.packaging")

// aptGetCommand is the base apt-get invocation; with aptGetEnvOptions it
// never blocks waiting for a prompt.
var aptGetCommand = []string{"apt-get", "--assume-yes", "--quiet"}

var aptGetEnvOptions = []string{"DEBIAN_FRONTEND=noninteractive"}

// KeepConfig keeps locally modified configuration files on upgrade.
const KeepConfig = "--option=Dpkg::Options::=--force-confold"

// ReplaceConfig installs the package maintainer's configuration files.
const ReplaceConfig = "--option=Dpkg::Options::=--force-confnew"

// AllowDowngrades lets apt install an older version than the one present.
const AllowDowngrades = "--allow-downgrades"

// Messages printed by apt and dpkg when another process holds their lock.
var lockMessages = []string{
	"Could not get lock",
	"Unable to acquire the dpkg frontend lock",
	"dpkg status database is locked",
}

// Config holds the dependencies of an Apt.
type Config struct {
	Runner runner.CommandRunner
	Clock  clock.Clock

	// LockAttempts is the number of times a command failing because the
	// dpkg lock is held is run before giving up.
	LockAttempts int

	// LockDelay is the wait between two such attempts.
	LockDelay time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.LockAttempts < 1 {
		return errors.NotValidf("LockAttempts %d", config.LockAttempts)
	}
	if config.LockDelay <= 0 {
		return errors.NotValidf("LockDelay %v", config.LockDelay)
	}
	return nil
}

// DefaultConfig returns a Config retrying for about five minutes on a
// held dpkg lock.
func DefaultConfig(r runner.CommandRunner) Config {
	return Config{
		Runner:       r,
		Clock:        clock.WallClock,
		LockAttempts: 30,
		LockDelay:    10 * time.Second,
	}
}

// Apt runs apt, apt-mark, apt-cache, dpkg and dpkg-query.
type Apt struct {
	config Config
}

// NewApt returns an Apt with the given config.
func NewApt(config Config) (*Apt, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Apt{config: config}, nil
}

// isLockError reports whether err is a command failure caused by another
// process holding the dpkg lock.
func isLockError(err error) bool {
	var exitErr *runner.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	for _, message := range lockMessages {
		if strings.Contains(exitErr.Stderr, message) {
			return true
		}
	}
	return false
}

// run runs a package command, retrying while the dpkg lock is held.
func (a *Apt) run(name string, args ...string) (string, error) {
	var out string
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			out, err = runner.RunEnv(a.config.Runner, aptGetEnvOptions, name, args...)
			return err
		},
		IsFatalError: func(err error) bool {
			return !isLockError(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Infof("dpkg lock held, retrying %s (attempt %d)", name, attempt)
		},
		Attempts: a.config.LockAttempts,
		Delay:    a.config.LockDelay,
		Clock:    a.config.Clock,
	})
	if retry.IsAttemptsExceeded(err) {
		err = retry.LastError(err)
	}
	return out, errors.Trace(err)
}

func (a *Apt) aptGet(options []string, verb string, args ...string) error {
	cmdArgs := append([]string(nil), aptGetCommand[1:]...)
	cmdArgs = append(cmdArgs, options...)
	cmdArgs = append(cmdArgs, verb)
	cmdArgs = append(cmdArgs, args...)
	logger.Infof("running: %s %s", aptGetCommand[0], strings.Join(cmdArgs, " "))
	_, err := a.run(aptGetCommand[0], cmdArgs...)
	return errors.Trace(err)
}

// Install installs packages. options default to KeepConfig.
func (a *Apt) Install(options []string, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	if options == nil {
		options = []string{KeepConfig}
	}
	return errors.Annotatef(a.aptGet(options, "install", packages...), "installing %v", packages)
}

// Purge removes packages and their configuration. Package names may be
// dpkg patterns such as "vendor*". Only packages dpkg still knows about
// are passed to apt, so purging again after a partial uninstall, when the
// vendor indexes are gone, succeeds.
func (a *Apt) Purge(packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	present, err := a.Installed(packages...)
	if err != nil {
		return errors.Trace(err)
	}
	if len(present) == 0 {
		logger.Infof("%v not installed, nothing to purge", packages)
		return nil
	}
	return errors.Annotatef(a.aptGet(nil, "purge", present...), "purging %v", present)
}

// Installed returns the packages matching the given names or patterns
// that are installed or have configuration files left behind.
func (a *Apt) Installed(patterns ...string) ([]string, error) {
	var names []string
	for _, pattern := range patterns {
		out, err := a.run("dpkg-query", "--show", `--showformat=${db:Status-Abbrev} ${Package}\n`, pattern)
		if runner.IsExitCode(err, 1) {
			continue
		} else if err != nil {
			return nil, errors.Annotatef(err, "querying %q", pattern)
		}
		for _, line := range strings.Split(out, "\n") {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				continue
			}
			// The second letter of the abbreviated status is the current
			// state; "n" means not installed.
			if abbrev := fields[0]; len(abbrev) < 2 || abbrev[1] == 'n' {
				continue
			}
			names = append(names, fields[1])
		}
	}
	return names, nil
}

// Update refreshes the package indexes.
func (a *Apt) Update() error {
	return errors.Annotate(a.aptGet(nil, "update"), "updating package indexes")
}

// Autoremove removes packages no longer needed.
func (a *Apt) Autoremove() error {
	return errors.Annotate(a.aptGet(nil, "autoremove"), "removing unused packages")
}

// Hold prevents packages from being upgraded or removed.
func (a *Apt) Hold(packages ...string) error {
	_, err := a.run("apt-mark", append([]string{"hold"}, packages...)...)
	return errors.Annotatef(err, "holding %v", packages)
}

// Unhold reverts Hold.
func (a *Apt) Unhold(packages ...string) error {
	_, err := a.run("apt-mark", append([]string{"unhold"}, packages...)...)
	return errors.Annotatef(err, "unholding %v", packages)
}

// AvailableVersions returns the versions of pkg known to apt, most
// preferred first.
func (a *Apt) AvailableVersions(pkg string) ([]string, error) {
	out, err := a.run("apt-cache", "madison", pkg)
	if err != nil {
		return nil, errors.Annotatef(err, "listing versions of %q", pkg)
	}
	var versions []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		// openvswitch-switch | 2.9.2-0ubuntu0.18.04.3 | http://archive... Packages
		fields := strings.Split(line, "|")
		if len(fields) < 3 || strings.TrimSpace(fields[0]) != pkg {
			continue
		}
		version := strings.TrimSpace(fields[1])
		if !seen[version] {
			seen[version] = true
			versions = append(versions, version)
		}
	}
	return versions, nil
}

// InstallDeb installs a local package file.
func (a *Apt) InstallDeb(path string) error {
	_, err := a.run("dpkg", "-i", path)
	return errors.Annotatef(err, "installing %q", path)
}

// Architecture returns the dpkg architecture of the machine.
func (a *Apt) Architecture() (string, error) {
	out, err := a.run("dpkg", "--print-architecture")
	if err != nil {
		return "", errors.Trace(err)
	}
	return strings.TrimSpace(out), nil
}

// InstalledVersion returns the installed version of pkg, or an error
// satisfying errors.IsNotFound if it is not installed.
func (a *Apt) InstalledVersion(pkg string) (string, error) {
	out, err := a.run("dpkg-query", "--show", "--showformat=${Version}", pkg)
	if runner.IsExitCode(err, 1) {
		return "", errors.NotFoundf("package %q", pkg)
	} else if err != nil {
		return "", errors.Trace(err)
	}
	version := strings.TrimSpace(out)
	if version == "" {
		return "", errors.NotFoundf("package %q", pkg)
	}
	return version, nil
}
