// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package flags

import (
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"gopkg.in/yaml.v3"
)

var logger = loggo.GetLogger("juju.va.flags")

// State is the persistent local state of the unit.
type State struct {
	// Flags holds the lifecycle flags set by successful handlers.
	Flags FlagSet `yaml:"flags"`

	// Digests maps watched file paths to the digest recorded the last
	// time a handler watching them completed.
	Digests map[string]string `yaml:"digests,omitempty"`
}

// Copy returns an independent copy of the state.
func (st *State) Copy() *State {
	digests := make(map[string]string, len(st.Digests))
	for path, digest := range st.Digests {
		digests[path] = digest
	}
	return &State{
		Flags:   st.Flags.Union(FlagSet{}),
		Digests: digests,
	}
}

// Store reads and writes State to a YAML file.
type Store struct {
	path string
}

// NewStore returns a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the state file.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored state. A missing file yields an empty state,
// which is how a unit starts its life.
func (s *Store) Read() (*State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		logger.Debugf("no state file at %q, starting empty", s.path)
		return &State{Digests: map[string]string{}}, nil
	} else if err != nil {
		return nil, errors.Annotatef(err, "reading state file %q", s.path)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Annotatef(err, "cannot parse state file %q", s.path)
	}
	if st.Digests == nil {
		st.Digests = map[string]string{}
	}
	return &st, nil
}

// Write atomically replaces the stored state with st.
func (s *Store) Write(st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Trace(err)
	}
	if err := renameio.WriteFile(s.path, data, 0600); err != nil {
		return errors.Annotatef(err, "writing state file %q", s.path)
	}
	return nil
}
