// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd restarts, stops and enables systemd services over
// D-Bus.
package systemd

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("juju.va.service.systemd")

// IsRunning returns whether or not systemd is the local init system.
func IsRunning() bool {
	return util.IsRunningSystemd()
}

// DBusAPI describes the systemd D-Bus methods used by Manager.
type DBusAPI interface {
	Close()
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	ReloadContext(ctx context.Context) error
}

// Type alias for a DBusAPI factory method.
type DBusAPIFactory = func(ctx context.Context) (DBusAPI, error)

// NewDBusAPI connects to the system bus.
var NewDBusAPI = func(ctx context.Context) (DBusAPI, error) {
	return dbus.NewWithContext(ctx)
}

var newChan = func() chan string {
	return make(chan string, 1)
}

// UnitName returns the systemd unit name of a service.
func UnitName(service string) string {
	if strings.Contains(service, ".") {
		return service
	}
	return service + ".service"
}

// Manager controls services through systemd.
type Manager struct {
	newDBus DBusAPIFactory
}

// NewManager returns a Manager connecting with newDBus for each
// operation.
func NewManager(newDBus DBusAPIFactory) *Manager {
	return &Manager{newDBus: newDBus}
}

func (m *Manager) withConn(ctx context.Context, f func(DBusAPI) error) error {
	conn, err := m.newDBus(ctx)
	if err != nil {
		return errors.Annotate(err, "connecting to systemd")
	}
	defer conn.Close()
	return f(conn)
}

func (m *Manager) unit(ctx context.Context, conn DBusAPI, service string) (dbus.UnitStatus, error) {
	name := UnitName(service)
	units, err := conn.ListUnitsByNamesContext(ctx, []string{name})
	if err != nil {
		return dbus.UnitStatus{}, errors.Annotatef(err, "querying %s", name)
	}
	if len(units) == 0 || units[0].LoadState == "not-found" {
		return dbus.UnitStatus{}, errors.NotFoundf("service %s", service)
	}
	return units[0], nil
}

// Restart restarts each service in turn, starting those not running.
func (m *Manager) Restart(ctx context.Context, services ...string) error {
	return m.withConn(ctx, func(conn DBusAPI) error {
		for _, service := range services {
			if _, err := m.unit(ctx, conn, service); err != nil {
				return errors.Trace(err)
			}
			statusCh := newChan()
			if _, err := conn.RestartUnitContext(ctx, UnitName(service), "replace", statusCh); err != nil {
				return errors.Annotatef(err, "dbus restart request for %s failed", service)
			}
			if err := wait(ctx, "restart", service, statusCh); err != nil {
				return errors.Trace(err)
			}
			logger.Infof("service %q restarted", service)
		}
		return nil
	})
}

// Stop stops each service. Services that are absent or not running are
// skipped.
func (m *Manager) Stop(ctx context.Context, services ...string) error {
	return m.withConn(ctx, func(conn DBusAPI) error {
		for _, service := range services {
			unit, err := m.unit(ctx, conn, service)
			if errors.Is(err, errors.NotFound) {
				logger.Debugf("service %q not installed", service)
				continue
			} else if err != nil {
				return errors.Trace(err)
			}
			if unit.ActiveState == "inactive" {
				logger.Debugf("service %q not running", service)
				continue
			}
			statusCh := newChan()
			if _, err := conn.StopUnitContext(ctx, UnitName(service), "replace", statusCh); err != nil {
				return errors.Annotatef(err, "dbus stop request for %s failed", service)
			}
			if err := wait(ctx, "stop", service, statusCh); err != nil {
				return errors.Trace(err)
			}
			logger.Infof("service %q stopped", service)
		}
		return nil
	})
}

// Enable makes the services start at boot.
func (m *Manager) Enable(ctx context.Context, services ...string) error {
	files := make([]string, len(services))
	for i, service := range services {
		files[i] = UnitName(service)
	}
	return m.withConn(ctx, func(conn DBusAPI) error {
		if _, _, err := conn.EnableUnitFilesContext(ctx, files, false, true); err != nil {
			return errors.Annotatef(err, "enabling %v", services)
		}
		return errors.Annotate(conn.ReloadContext(ctx), "reloading systemd")
	})
}

func wait(ctx context.Context, op, service string, statusCh chan string) error {
	select {
	case status := <-statusCh:
		if status != "done" {
			return errors.Errorf("failed to %s %s (API status %q)", op, service, status)
		}
		return nil
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "waiting to %s %s", op, service)
	}
}
