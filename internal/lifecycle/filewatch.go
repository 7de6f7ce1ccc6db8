// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// FileDigest returns the hex encoded SHA-256 digest of the file at path.
// A missing file has an empty digest.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Trace(err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Annotatef(err, "reading %q", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// fileWatcher compares watched files with the digests recorded the last
// time a handler watching them completed.
type fileWatcher struct {
	digest func(path string) (string, error)
}

// changed returns the paths whose current digest differs from the
// recorded one, together with the current digests of all paths.
func (w fileWatcher) changed(paths []string, recorded map[string]string) (set.Strings, map[string]string, error) {
	changed := set.NewStrings()
	current := make(map[string]string, len(paths))
	for _, path := range paths {
		digest, err := w.digest(path)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		current[path] = digest
		if digest != recorded[path] {
			changed.Add(path)
		}
	}
	return changed, current, nil
}
