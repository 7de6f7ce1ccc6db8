// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/charm-virtual-accelerator/core/flags"
)

// Router selects the handler to run for the current flags.
//
// Handlers are kept in the order they were given, which is their
// priority: when several guards hold at once, the earliest handler is
// returned first. The controller re-evaluates after every handler, so
// every eligible handler runs within one dispatch, highest priority first.
type Router struct {
	handlers []Handler
}

// NewRouter returns a router over the given handler table, or an error
// satisfying errors.Is(err, ErrGuardConflict) if the table is invalid.
func NewRouter(handlers ...Handler) (*Router, error) {
	seen := set.NewStrings()
	for _, h := range handlers {
		if err := h.validate(); err != nil {
			return nil, errors.Trace(err)
		}
		if seen.Contains(h.Name) {
			return nil, errorf(ErrGuardConflict, "duplicate handler %q", h.Name)
		}
		seen.Add(h.Name)
	}
	return &Router{handlers: handlers}, nil
}

// Handlers returns the handler table in priority order.
func (r *Router) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// Handler returns the named handler.
func (r *Router) Handler(name string) (Handler, error) {
	for _, h := range r.handlers {
		if h.Name == name {
			return h, nil
		}
	}
	return Handler{}, errors.NotFoundf("handler %q", name)
}

// WatchedFiles returns every file watched by any handler.
func (r *Router) WatchedFiles() []string {
	paths := set.NewStrings()
	for _, h := range r.handlers {
		paths = paths.Union(set.NewStrings(h.WatchFiles...))
	}
	return paths.SortedValues()
}

// Eligible returns every handler whose guard holds, in priority order.
func (r *Router) Eligible(view flags.FlagSet, changed set.Strings) []Handler {
	var eligible []Handler
	for _, h := range r.handlers {
		if h.guard(view, changed) {
			eligible = append(eligible, h)
		}
	}
	return eligible
}

// Next returns the highest priority eligible handler whose name is not in
// done. It returns ErrNoHandler if there is none.
func (r *Router) Next(view flags.FlagSet, changed, done set.Strings) (Handler, error) {
	for _, h := range r.Eligible(view, changed) {
		if !done.Contains(h.Name) {
			return h, nil
		}
	}
	return Handler{}, ErrNoHandler
}

// Overlap names two handlers whose guards can hold at the same time.
type Overlap struct {
	First, Second string
}

// Overlaps returns every pair of handlers whose guards are not made
// mutually exclusive by their flags. Pairs are ordered by priority.
func (r *Router) Overlaps() []Overlap {
	var overlaps []Overlap
	for i, a := range r.handlers {
		for _, b := range r.handlers[i+1:] {
			if !disjoint(a, b) {
				overlaps = append(overlaps, Overlap{First: a.Name, Second: b.Name})
			}
		}
	}
	return overlaps
}
