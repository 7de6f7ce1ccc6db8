// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd_test

import (
	"context"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/testing"
)

type StubDbusAPI struct {
	*testing.Stub

	Units  []dbus.UnitStatus
	Result string
}

func (fda *StubDbusAPI) AddUnit(name, status string) {
	load := "loaded"
	if status == "not-found" {
		load = status
		status = "inactive"
	}
	fda.Units = append(fda.Units, dbus.UnitStatus{
		Name:        name,
		ActiveState: status,
		LoadState:   load,
	})
}

func (fda *StubDbusAPI) ListUnitsByNamesContext(_ context.Context, names []string) ([]dbus.UnitStatus, error) {
	fda.Stub.AddCall("ListUnitsByNames", names)
	var units []dbus.UnitStatus
	for _, unit := range fda.Units {
		for _, name := range names {
			if unit.Name == name {
				units = append(units, unit)
			}
		}
	}
	return units, fda.NextErr()
}

func (fda *StubDbusAPI) result(ch chan<- string) {
	result := fda.Result
	if result == "" {
		result = "done"
	}
	ch <- result
}

func (fda *StubDbusAPI) RestartUnitContext(_ context.Context, name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("RestartUnit", name, mode)
	if err := fda.NextErr(); err != nil {
		return 0, err
	}
	fda.result(ch)
	return 1, nil
}

func (fda *StubDbusAPI) StopUnitContext(_ context.Context, name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("StopUnit", name, mode)
	if err := fda.NextErr(); err != nil {
		return 0, err
	}
	fda.result(ch)
	return 1, nil
}

func (fda *StubDbusAPI) EnableUnitFilesContext(_ context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error) {
	fda.Stub.AddCall("EnableUnitFiles", files, runtime, force)
	return false, nil, fda.NextErr()
}

func (fda *StubDbusAPI) ReloadContext(context.Context) error {
	fda.Stub.AddCall("Reload")
	return fda.NextErr()
}

func (fda *StubDbusAPI) Close() {
	fda.Stub.AddCall("Close")
}
