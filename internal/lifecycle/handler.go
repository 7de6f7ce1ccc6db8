// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"context"

	"github.com/juju/collections/set"

	"github.com/juju/charm-virtual-accelerator/core/flags"
)

// Step is one externally visible action of a handler. Steps hold no state
// of their own and must tolerate being run again after a failure of a
// later step.
type Step struct {
	// Name identifies the step in errors and metrics.
	Name string

	// Message is reported as maintenance status while the step runs.
	Message string

	// Run performs the step.
	Run func(ctx context.Context) error
}

// Handler is a guarded transition: when every Requires flag is present,
// no Forbids flag is present and, if WatchFiles is not empty, one of the
// watched files changed, its Steps run in order and Sets is added to the
// unit's flags.
type Handler struct {
	Name       string
	Requires   []string
	Forbids    []string
	WatchFiles []string
	Steps      []Step
	Sets       []string

	// During is the lifecycle state reported while the handler runs.
	// Empty means the state derived from flags.
	During State
}

// guard evaluates the handler's guard against the flags in view and the
// set of changed watched files.
func (h Handler) guard(view flags.FlagSet, changed set.Strings) bool {
	if !view.Has(h.Requires...) || view.HasAny(h.Forbids...) {
		return false
	}
	if len(h.WatchFiles) == 0 {
		return true
	}
	for _, path := range h.WatchFiles {
		if changed.Contains(path) {
			return true
		}
	}
	return false
}

// validate checks that the guard of the handler can ever be satisfied and
// that it does something.
func (h Handler) validate() error {
	if h.Name == "" {
		return errorf(ErrGuardConflict, "handler without name")
	}
	if len(h.Steps) == 0 {
		return errorf(ErrGuardConflict, "handler %q has no steps", h.Name)
	}
	both := set.NewStrings(h.Requires...).Intersection(set.NewStrings(h.Forbids...))
	if !both.IsEmpty() {
		return errorf(ErrGuardConflict, "handler %q requires and forbids %v", h.Name, both.SortedValues())
	}
	for i, step := range h.Steps {
		if step.Name == "" || step.Run == nil {
			return errorf(ErrGuardConflict, "handler %q step %d is incomplete", h.Name, i)
		}
	}
	return nil
}

// disjoint reports whether the guards of a and b can never hold at the
// same time, because one requires a flag the other forbids.
func disjoint(a, b Handler) bool {
	aRequires, bRequires := set.NewStrings(a.Requires...), set.NewStrings(b.Requires...)
	aForbids, bForbids := set.NewStrings(a.Forbids...), set.NewStrings(b.Forbids...)
	return !aRequires.Intersection(bForbids).IsEmpty() || !bRequires.Intersection(aForbids).IsEmpty()
}
