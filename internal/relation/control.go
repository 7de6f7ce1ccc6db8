// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"github.com/google/uuid"
	"github.com/juju/errors"
)

// ServiceControl asks the principal charm to restart its services.
type ServiceControl struct {
	endpoint *Endpoint
	newID    func() string
}

// NewServiceControl returns a ServiceControl using the service-control
// endpoint.
func NewServiceControl(tools Tools) *ServiceControl {
	return &ServiceControl{
		endpoint: NewEndpoint(tools, ServiceControlEndpoint),
		newID:    uuid.NewString,
	}
}

// RestartTriggerKey returns the relation key that triggers a restart of
// service on the remote side.
func RestartTriggerKey(service string) string {
	return "restart-trigger-" + service
}

// RequestRestart publishes a fresh trigger for each service. It does
// nothing when no service-control relation exists.
func (s *ServiceControl) RequestRestart(services ...string) error {
	settings := make(map[string]string, len(services))
	for _, service := range services {
		settings[RestartTriggerKey(service)] = s.newID()
	}
	n, err := s.endpoint.Publish(settings)
	if err != nil {
		return errors.Annotatef(err, "requesting restart of %v", services)
	}
	if n == 0 {
		logger.Infof("no %s relation, not requesting restart of %v", ServiceControlEndpoint, services)
	}
	return nil
}
