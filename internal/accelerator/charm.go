// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package accelerator implements the steps that install, configure,
// restart and remove the Virtual Accelerator on a compute node, and the
// handler table that sequences them.
package accelerator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/charm-virtual-accelerator/downloader"
	"github.com/juju/charm-virtual-accelerator/internal/libvirt"
	"github.com/juju/charm-virtual-accelerator/internal/lifecycle"
	"github.com/juju/charm-virtual-accelerator/internal/packaging"
	"github.com/juju/charm-virtual-accelerator/internal/relation"
	"github.com/juju/charm-virtual-accelerator/internal/runner"
)

var logger = loggo.GetLogger("juju.va.accelerator")

// Packages installs and removes distribution packages.
type Packages interface {
	Install(options []string, packages ...string) error
	Purge(packages ...string) error
	Update() error
	Autoremove() error
	Hold(packages ...string) error
	Unhold(packages ...string) error
	AvailableVersions(pkg string) ([]string, error)
	InstallDeb(path string) error
	Architecture() (string, error)
	InstalledVersion(pkg string) (string, error)
}

// Networks removes libvirt networks.
type Networks interface {
	Delete(name string) error
}

// Services controls init system services.
type Services interface {
	Restart(ctx context.Context, services ...string) error
	Stop(ctx context.Context, services ...string) error
	Enable(ctx context.Context, services ...string) error
}

// BridgePorts puts container interfaces back into their bridges.
type BridgePorts interface {
	Readd() ([]string, error)
}

// Resources fetches charm resources.
type Resources interface {
	ResourceGet(name string) (string, error)
}

// Fetcher downloads a URL to a local file.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

// Plugin pushes configuration to the neutron-plugin peer.
type Plugin interface {
	ConfigurePlugin(plugin string, config relation.SubordinateConfig) error
}

// Peer asks the service-control peer to restart services.
type Peer interface {
	RequestRestart(services ...string) error
}

// CharmConfig holds the dependencies of a Charm.
type CharmConfig struct {
	Settings Settings

	// Config returns the current charm configuration.
	Config func() (Config, error)

	// Runner runs the fast path configuration tool.
	Runner runner.CommandRunner

	Packages  Packages
	Networks  Networks
	Services  Services
	Bridges   BridgePorts
	Resources Resources
	Plugin    Plugin
	Peer      Peer

	// NewFetcher returns a Fetcher authenticating with the repository
	// credentials. It is called after the credentials are installed.
	NewFetcher func(downloader.Credentials) (Fetcher, error)
}

// Validate returns an error if the config cannot be used.
func (config CharmConfig) Validate() error {
	if config.Config == nil {
		return errors.NotValidf("nil Config")
	}
	if config.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if config.Packages == nil {
		return errors.NotValidf("nil Packages")
	}
	if config.Networks == nil {
		return errors.NotValidf("nil Networks")
	}
	if config.Services == nil {
		return errors.NotValidf("nil Services")
	}
	if config.Bridges == nil {
		return errors.NotValidf("nil Bridges")
	}
	if config.Resources == nil {
		return errors.NotValidf("nil Resources")
	}
	if config.Plugin == nil {
		return errors.NotValidf("nil Plugin")
	}
	if config.Peer == nil {
		return errors.NotValidf("nil Peer")
	}
	if config.NewFetcher == nil {
		return errors.NotValidf("nil NewFetcher")
	}
	if config.Settings.Product == "" {
		return errors.NotValidf("empty Settings.Product")
	}
	return nil
}

// Charm performs the steps of the Virtual Accelerator lifecycle.
type Charm struct {
	config   CharmConfig
	settings Settings
}

// NewCharm returns a Charm with the given config.
func NewCharm(config CharmConfig) (*Charm, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Charm{config: config, settings: config.Settings}, nil
}

// Configured reports whether the fast path config has been rendered.
func (c *Charm) Configured() (bool, error) {
	_, err := os.Stat(c.settings.FastPathConfig)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

func (c *Charm) distro() (string, error) {
	release, err := packaging.DistroRelease(c.settings.LSBRelease)
	if err != nil {
		return "", errors.Trace(err)
	}
	return release, nil
}

func (c *Charm) resource(name string) (string, error) {
	path, err := c.config.Resources.ResourceGet(name)
	if errors.Is(err, errors.NotFound) {
		return "", errors.Annotatef(lifecycle.ErrResourceMissing, "%q", name)
	} else if err != nil {
		return "", errors.Trace(err)
	}
	return path, nil
}

// InstallPrerequisites installs the hypervisor packages, replacing any
// existing configuration files.
func (c *Charm) InstallPrerequisites(ctx context.Context) error {
	logger.Infof("installing %s", strings.Join(c.settings.Prerequisites, ", "))
	return c.config.Packages.Install([]string{packaging.ReplaceConfig}, c.settings.Prerequisites...)
}

// DeleteDefaultNetwork removes the default libvirt network, which would
// otherwise set up its own bridge and NAT rules.
func (c *Charm) DeleteDefaultNetwork(ctx context.Context) error {
	return errors.Trace(c.config.Networks.Delete(libvirt.DefaultNetwork))
}

// InstallCredentials installs the package providing the repository
// client certificates. The credentials resource is required.
func (c *Charm) InstallCredentials(ctx context.Context) error {
	path, err := c.resource(CredentialsResource)
	if err != nil {
		logger.Criticalf("missing required %s resource", CredentialsResource)
		return errors.Trace(err)
	}
	logger.Infof("installing repository credentials")
	return errors.Trace(c.config.Packages.InstallDeb(path))
}

// InstallProduct installs the vendor repository and the product from it.
func (c *Charm) InstallProduct(ctx context.Context) error {
	cfg, err := c.config.Config()
	if err != nil {
		return errors.Trace(err)
	}
	distro, err := c.distro()
	if err != nil {
		return errors.Trace(err)
	}
	arch, err := c.config.Packages.Architecture()
	if err != nil {
		return errors.Trace(err)
	}
	url, err := cfg.RepositoryPackageURL(c.settings.Product, distro, arch)
	if err != nil {
		return errors.Trace(err)
	}

	fetcher, err := c.config.NewFetcher(downloader.Credentials{
		CACert:     c.settings.CACert(),
		ClientCert: c.settings.ClientCert(),
		ClientKey:  c.settings.ClientKey(),
	})
	if err != nil {
		return errors.Annotate(err, "preparing repository client")
	}
	if err := os.MkdirAll(c.settings.DownloadDir, 0755); err != nil {
		return errors.Trace(err)
	}
	dest := filepath.Join(c.settings.DownloadDir, "repository.deb")
	logger.Infof("downloading %s repository package from %s", c.settings.Product, url)
	if err := fetcher.Download(ctx, url, dest); err != nil {
		return errors.Trace(err)
	}
	if err := c.config.Packages.InstallDeb(dest); err != nil {
		return errors.Trace(err)
	}
	if err := c.config.Packages.Update(); err != nil {
		return errors.Trace(err)
	}
	if err := c.config.Packages.Install(nil, c.settings.Product); err != nil {
		return errors.Trace(err)
	}
	if err := c.postInstall(ctx); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("holding %s so the patched version is kept", c.settings.OVSPackage)
	return errors.Trace(c.config.Packages.Hold(c.settings.OVSPackage))
}

func (c *Charm) postInstall(ctx context.Context) error {
	// Keep container network namespaces in sync with the VRF daemon.
	if err := sedFile(c.settings.StartupScript, `vrfd -s`, "vrfd -ls"); err != nil {
		return errors.Trace(err)
	}
	if err := sedFile(c.settings.CPUSetEnv, `.*CPUSET_ENABLE.*`, "CPUSET_ENABLE=0"); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.config.Services.Enable(ctx, c.settings.Product))
}

// InstallLicense copies the license resource into place. Without a
// license the product runs in its evaluation mode.
func (c *Charm) InstallLicense(ctx context.Context) error {
	path, err := c.resource(LicenseResource)
	if errors.Is(err, lifecycle.ErrResourceMissing) {
		logger.Infof("no license provided, %s will run unlicensed", c.settings.Product)
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	boilerplate, err := isBoilerplate(path, false)
	if err != nil {
		return errors.Trace(err)
	}
	if boilerplate {
		logger.Infof("ignoring placeholder license")
		return nil
	}
	logger.Infof("installing license into %s", c.settings.LicenseFile)
	return errors.Trace(copyFile(path, c.settings.LicenseFile, 0600))
}

// InstallExtensions installs the OpenStack extensions.
func (c *Charm) InstallExtensions(ctx context.Context) error {
	return errors.Trace(c.config.Packages.Install(nil, c.settings.Extensions...))
}

// RenderConfig generates the fast path config from the custom_fp_conf
// resource, or from the charm config when no custom file is provided.
func (c *Charm) RenderConfig(ctx context.Context) error {
	tmp, err := os.CreateTemp("", "fast-path-*.env")
	if err != nil {
		return errors.Trace(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if err := tmp.Close(); err != nil {
		return errors.Trace(err)
	}

	custom, err := c.customConfig()
	if err != nil {
		return errors.Trace(err)
	}
	if custom != "" {
		logger.Infof("using provided fast path config")
		if err := copyFile(custom, tmpPath, 0644); err != nil {
			return errors.Trace(err)
		}
	} else {
		cfg, err := c.config.Config()
		if err != nil {
			return errors.Trace(err)
		}
		content := fmt.Sprintf("%s=%d\n", VMMemoryKey, cfg.VMMemory)
		if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
			return errors.Trace(err)
		}
	}

	if _, err := runner.Run(c.config.Runner, c.settings.FPConfTool, "--update", "--file="+tmpPath); err != nil {
		return errors.Annotate(err, "updating fast path config")
	}
	logger.Debugf("fast path config sets %v", envAssignments(tmpPath))
	if err := os.MkdirAll(filepath.Dir(c.settings.FastPathConfig), 0755); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(copyFile(tmpPath, c.settings.FastPathConfig, 0644))
}

// customConfig returns the path of a usable custom_fp_conf resource, or
// "" if there is none.
func (c *Charm) customConfig() (string, error) {
	path, err := c.resource(FastPathConfResource)
	if errors.Is(err, lifecycle.ErrResourceMissing) {
		return "", nil
	} else if err != nil {
		return "", errors.Trace(err)
	}
	boilerplate, err := isBoilerplate(path, true)
	if err != nil {
		return "", errors.Trace(err)
	}
	if boilerplate {
		logger.Infof("placeholder fast path config, using charm config")
		return "", nil
	}
	return path, nil
}

// ConfigurePlugin tells the neutron-plugin peer to use Open vSwitch and
// to load the VIF decorator matching the installed Nova.
func (c *Charm) ConfigurePlugin(ctx context.Context) error {
	version, err := c.config.Packages.InstalledVersion(c.settings.NovaPackage)
	if err != nil {
		return errors.Trace(err)
	}
	release, err := OpenStackRelease(version)
	if err != nil {
		return errors.Trace(err)
	}
	config, err := PluginConfig(release, c.settings.VIFDecorators)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.config.Plugin.ConfigurePlugin("ovs", config))
}

// RestartProduct restarts the product, then libvirt so that it picks up
// the fast path hugepages.
func (c *Charm) RestartProduct(ctx context.Context) error {
	if err := c.config.Services.Restart(ctx, c.settings.Services...); err != nil {
		return errors.Trace(err)
	}
	if err := c.restartLibvirt(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.readdBridgePorts())
}

// RequestPeerRestart asks the service-control peer to restart Open
// vSwitch.
func (c *Charm) RequestPeerRestart(ctx context.Context) error {
	return errors.Trace(c.config.Peer.RequestRestart(c.settings.PeerRestartServices...))
}

// StopProduct stops the product and restores libvirt and container
// networking without it.
func (c *Charm) StopProduct(ctx context.Context) error {
	if err := c.config.Services.Stop(ctx, c.settings.Services...); err != nil {
		return errors.Trace(err)
	}
	if err := c.restartLibvirt(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.readdBridgePorts())
}

func (c *Charm) restartLibvirt(ctx context.Context) error {
	return errors.Trace(c.config.Services.Restart(ctx, c.settings.LibvirtService))
}

func (c *Charm) readdBridgePorts() error {
	// Restarting the fast path takes the host interfaces down, including
	// the container veths which nothing else brings back.
	added, err := c.config.Bridges.Readd()
	if err != nil {
		return errors.Annotate(err, "re-adding bridge ports")
	}
	logger.Debugf("re-added bridge ports %v", added)
	return nil
}

// UninstallExtensions purges the OpenStack extensions.
func (c *Charm) UninstallExtensions(ctx context.Context) error {
	return errors.Trace(c.config.Packages.Purge(c.settings.Extensions...))
}

// UninstallLicense removes the license file.
func (c *Charm) UninstallLicense(ctx context.Context) error {
	err := os.Remove(c.settings.LicenseFile)
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Trace(err)
}

// UninstallProduct removes the product with its repository and puts the
// distribution's Open vSwitch back.
func (c *Charm) UninstallProduct(ctx context.Context) error {
	distro, err := c.distro()
	if err != nil {
		return errors.Trace(err)
	}
	pkgs := c.config.Packages
	if err := pkgs.Purge(c.settings.expand(c.settings.RepositoryPackage, distro)); err != nil {
		return errors.Trace(err)
	}
	if err := pkgs.Update(); err != nil {
		return errors.Trace(err)
	}
	if err := pkgs.Purge(c.settings.Product); err != nil {
		return errors.Trace(err)
	}
	vendor := make([]string, len(c.settings.VendorPackages))
	for i, pattern := range c.settings.VendorPackages {
		vendor[i] = c.settings.expand(pattern, distro)
	}
	if err := pkgs.Purge(vendor...); err != nil {
		return errors.Trace(err)
	}
	if err := pkgs.Autoremove(); err != nil {
		return errors.Trace(err)
	}
	if err := c.reinstallOVS(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.restartLibvirt(ctx))
}

func (c *Charm) reinstallOVS() error {
	ovs := c.settings.OVSPackage
	pkgs := c.config.Packages
	if err := pkgs.Unhold(ovs); err != nil {
		return errors.Trace(err)
	}
	versions, err := pkgs.AvailableVersions(ovs)
	if err != nil {
		return errors.Trace(err)
	}
	for _, version := range versions {
		if tag := c.settings.VendorVersionTag; tag != "" && strings.Contains(version, tag) {
			continue
		}
		logger.Infof("reinstalling %s %s", ovs, version)
		return errors.Trace(pkgs.Install(
			[]string{packaging.KeepConfig, packaging.AllowDowngrades},
			ovs+"="+version,
		))
	}
	logger.Warningf("no distribution version of %s available", ovs)
	return nil
}
