// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mutex/v2"

	"github.com/juju/charm-virtual-accelerator/container/lxd"
	"github.com/juju/charm-virtual-accelerator/core/flags"
	"github.com/juju/charm-virtual-accelerator/downloader"
	"github.com/juju/charm-virtual-accelerator/internal/accelerator"
	"github.com/juju/charm-virtual-accelerator/internal/hooktools"
	"github.com/juju/charm-virtual-accelerator/internal/libvirt"
	"github.com/juju/charm-virtual-accelerator/internal/lifecycle"
	"github.com/juju/charm-virtual-accelerator/internal/metrics"
	"github.com/juju/charm-virtual-accelerator/internal/packaging"
	"github.com/juju/charm-virtual-accelerator/internal/relation"
	"github.com/juju/charm-virtual-accelerator/internal/runner"
	"github.com/juju/charm-virtual-accelerator/service/systemd"
)

// stateFile is where the unit's flags live, relative to the charm
// directory.
const stateFile = ".va-charm/state.yaml"

// runtimeParams holds what a runtime is built from. Unset collaborators
// are replaced with the real ones.
type runtimeParams struct {
	CharmDir string
	Runner   runner.CommandRunner
	Clock    clock.Clock
	Settings accelerator.Settings

	Services accelerator.Services
	Bridges  accelerator.BridgePorts

	// AcquireLock takes the machine-wide charm lock.
	AcquireLock func(mutex.Spec) (mutex.Releaser, error)
}

// hookRuntime is the fully wired charm for one hook or action invocation.
type hookRuntime struct {
	tools      *hooktools.Tools
	store      *flags.Store
	charm      *accelerator.Charm
	router     *lifecycle.Router
	collector  *metrics.Collector
	clock      clock.Clock
	lock       func(mutex.Spec) (mutex.Releaser, error)
	loadConfig func() (accelerator.Config, error)
}

func newRuntime(p runtimeParams) (*hookRuntime, error) {
	if p.Runner == nil {
		p.Runner = runner.DefaultRunner{}
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Services == nil {
		p.Services = systemd.NewManager(func(ctx context.Context) (systemd.DBusAPI, error) {
			if !systemd.IsRunning() {
				return nil, errors.NotSupportedf("service control without systemd")
			}
			return systemd.NewDBusAPI(ctx)
		})
	}
	if p.AcquireLock == nil {
		p.AcquireLock = mutex.Acquire
	}
	if p.Bridges == nil {
		p.Bridges = lxd.NewBridgePorts(lxd.ConnectLocal, lxd.NetlinkLinks())
	}
	tools := hooktools.New(p.Runner)

	apt, err := packaging.NewApt(packaging.DefaultConfig(p.Runner))
	if err != nil {
		return nil, errors.Trace(err)
	}

	var (
		once   sync.Once
		config accelerator.Config
		cfgErr error
	)
	loadConfig := func() (accelerator.Config, error) {
		once.Do(func() {
			attrs, err := tools.ConfigGet()
			if err != nil {
				cfgErr = errors.Trace(err)
				return
			}
			config, cfgErr = accelerator.ParseConfig(attrs)
		})
		return config, cfgErr
	}

	charm, err := accelerator.NewCharm(accelerator.CharmConfig{
		Settings:  p.Settings,
		Config:    loadConfig,
		Runner:    p.Runner,
		Packages:  apt,
		Networks:  libvirt.NewNetworks(p.Runner),
		Services:  p.Services,
		Bridges:   p.Bridges,
		Resources: tools,
		Plugin:    relation.NewNeutronPlugin(tools),
		Peer:      relation.NewServiceControl(tools),
		NewFetcher: func(creds downloader.Credentials) (accelerator.Fetcher, error) {
			client, err := downloader.NewClient(creds)
			if err != nil {
				return nil, errors.Trace(err)
			}
			d, err := downloader.New(downloader.Config{
				Client:   client,
				Clock:    p.Clock,
				Attempts: 5,
				Delay:    10 * time.Second,
			})
			if err != nil {
				return nil, errors.Trace(err)
			}
			return d, nil
		},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	router, err := lifecycle.NewRouter(charm.Handlers()...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &hookRuntime{
		tools:      tools,
		store:      flags.NewStore(filepath.Join(p.CharmDir, stateFile)),
		charm:      charm,
		router:     router,
		collector:  metrics.NewCollector(p.Clock),
		clock:      p.Clock,
		lock:       p.AcquireLock,
		loadConfig: loadConfig,
	}, nil
}

// controller returns a Controller whose steps are bounded by timeout.
func (rt *hookRuntime) controller(timeout time.Duration) (*lifecycle.Controller, error) {
	executor, err := lifecycle.NewExecutor(lifecycle.ExecutorConfig{
		Status:   rt.tools,
		Clock:    rt.clock,
		Timeout:  timeout,
		Recorder: rt.collector,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	controller, err := lifecycle.NewController(lifecycle.ControllerConfig{
		Router:     rt.router,
		Executor:   executor,
		Store:      rt.store,
		Status:     rt.tools,
		Configured: rt.charm.Configured,
	})
	return controller, errors.Trace(err)
}

// writeMetrics exports the step and handler metrics when the operator
// configured a textfile collector path.
func (rt *hookRuntime) writeMetrics(config accelerator.Config) {
	if config.MetricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(config.MetricsTextfile, rt.collector); err != nil {
		logger.Warningf("%v", err)
	}
}
