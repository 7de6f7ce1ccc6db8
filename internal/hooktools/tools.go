// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hooktools calls the Juju hook tools available to a charm while
// a hook or action runs.
package hooktools

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/charm-virtual-accelerator/core/status"
	"github.com/juju/charm-virtual-accelerator/internal/runner"
)

var logger = loggo.GetLogger("juju.va.hooktools")

// Tools runs hook tools through a CommandRunner.
type Tools struct {
	runner runner.CommandRunner
}

// New returns Tools using the given runner.
func New(r runner.CommandRunner) *Tools {
	return &Tools{runner: r}
}

func (t *Tools) run(name string, args ...string) (string, error) {
	out, err := runner.Run(t.runner, name, args...)
	return out, errors.Trace(err)
}

func (t *Tools) runJSON(result interface{}, name string, args ...string) error {
	out, err := t.run(name, append([]string{"--format=json"}, args...)...)
	if err != nil {
		return errors.Trace(err)
	}
	if strings.TrimSpace(out) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(out), result); err != nil {
		return errors.Annotatef(err, "cannot parse %s output", name)
	}
	return nil
}

// SetStatus sets the workload status of the unit. It implements
// status.StatusSetter.
func (t *Tools) SetStatus(info status.StatusInfo) error {
	st := info.Status.WorkloadStatus()
	if !st.KnownWorkloadStatus() {
		return errors.NotValidf("workload status %q", info.Status)
	}
	_, err := t.run("status-set", st.String(), info.Message)
	return errors.Annotate(err, "cannot set status")
}

// Log writes a message to the Juju log of the unit.
func (t *Tools) Log(level loggo.Level, message string) error {
	_, err := t.run("juju-log", "--log-level", level.String(), message)
	return errors.Trace(err)
}

// ConfigGet returns all charm configuration settings.
func (t *Tools) ConfigGet() (map[string]interface{}, error) {
	settings := map[string]interface{}{}
	if err := t.runJSON(&settings, "config-get", "--all"); err != nil {
		return nil, errors.Annotate(err, "cannot read charm config")
	}
	return settings, nil
}

// ResourceGet returns the local path of the named resource. A resource
// that has not been provided yields a NotFound error.
func (t *Tools) ResourceGet(name string) (string, error) {
	out, err := t.run("resource-get", name)
	if runner.IsExitCode(err, 1) {
		logger.Debugf("resource %q not available: %v", name, err)
		return "", errors.NotFoundf("resource %q", name)
	} else if err != nil {
		return "", errors.Trace(err)
	}
	path := strings.TrimSpace(out)
	if path == "" {
		return "", errors.NotFoundf("resource %q", name)
	}
	return path, nil
}

// RelationIDs returns the ids of the relations established on endpoint.
func (t *Tools) RelationIDs(endpoint string) ([]string, error) {
	var ids []string
	if err := t.runJSON(&ids, "relation-ids", endpoint); err != nil {
		return nil, errors.Annotatef(err, "cannot list %q relations", endpoint)
	}
	return ids, nil
}

// RelationList returns the remote units participating in relation id.
func (t *Tools) RelationList(id string) ([]string, error) {
	var units []string
	if err := t.runJSON(&units, "relation-list", "-r", id); err != nil {
		return nil, errors.Annotatef(err, "cannot list units of relation %q", id)
	}
	return units, nil
}

// RelationSet publishes the given settings to relation id.
func (t *Tools) RelationSet(id string, settings map[string]string) error {
	args := []string{"-r", id}
	args = append(args, keyValues(settings)...)
	_, err := t.run("relation-set", args...)
	return errors.Annotatef(err, "cannot set settings on relation %q", id)
}

// ActionSet records results for the running action.
func (t *Tools) ActionSet(results map[string]string) error {
	if len(results) == 0 {
		return nil
	}
	_, err := t.run("action-set", keyValues(results)...)
	return errors.Trace(err)
}

// ActionFail marks the running action as failed with message.
func (t *Tools) ActionFail(message string) error {
	_, err := t.run("action-fail", message)
	return errors.Trace(err)
}

func keyValues(settings map[string]string) []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, k+"="+settings[k])
	}
	return args
}
