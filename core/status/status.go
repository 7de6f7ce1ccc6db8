// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

// Status is the coarse workload status of the unit.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// StatusInfo holds a Status and its human readable message.
type StatusInfo struct {
	Status  Status
	Message string
}

// StatusSetter represents a type whose status can be set.
type StatusSetter interface {
	SetStatus(StatusInfo) error
}

const (
	// Maintenance is set while the unit performs lifecycle steps.
	Maintenance Status = "maintenance"

	// Waiting means the unit is waiting on something outside its control,
	// typically configuration or a relation.
	Waiting Status = "waiting"

	// Blocked means the unit needs operator intervention.
	Blocked Status = "blocked"

	// Active means the workload is ready.
	Active Status = "active"
)

const (
	// Error means the last handler failed. It is retried on the next
	// qualifying event.
	Error Status = "error"
)

// KnownWorkloadStatus reports whether the status is one a charm may set
// on itself.
func (s Status) KnownWorkloadStatus() bool {
	switch s {
	case Maintenance, Waiting, Blocked, Active:
		return true
	}
	return false
}

// WorkloadStatus maps the status onto one a charm may set on itself.
// Error becomes Blocked: Juju reserves the error status for failed hooks.
func (s Status) WorkloadStatus() Status {
	if s == Error {
		return Blocked
	}
	return s
}
