// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package accelerator

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/google/renameio"
	"github.com/juju/errors"
	"gopkg.in/ini.v1"
)

// boilerplateMarker identifies placeholder resources uploaded only
// because Juju requires every resource to have a revision.
const boilerplateMarker = "BOILERPLATE"

// isBoilerplate reports whether the file is a placeholder. With firstLine
// set only the first line is inspected.
func isBoilerplate(path string, firstLine bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Trace(err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if strings.Contains(line, boilerplateMarker) {
			return true, nil
		}
		if err != nil && err != io.EOF {
			return false, errors.Annotatef(err, "reading %q", path)
		}
		if err == io.EOF || firstLine {
			return false, nil
		}
	}
}

// sedFile replaces every match of pattern on each line of the file.
func sedFile(path, pattern, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.Trace(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Trace(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Trace(err)
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = re.ReplaceAllString(line, replacement)
	}
	return errors.Annotatef(
		renameio.WriteFile(path, []byte(strings.Join(lines, "\n")), info.Mode().Perm()),
		"editing %q", path,
	)
}

// copyFile atomically replaces dest with the contents of src.
func copyFile(src, dest string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(renameio.WriteFile(dest, data, perm), "writing %q", dest)
}

// shellName matches the variable names a shell assignment can set.
var shellName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// envAssignments returns the variables assigned by plain KEY=value lines
// of the shell fragment at path. Other shell constructs are ignored, and a
// file that cannot be parsed at all yields no names.
func envAssignments(path string) []string {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
		KeyValueDelimiters:      "=",
	}, path)
	if err != nil {
		logger.Debugf("cannot list assignments in %q: %v", path, err)
		return nil
	}
	var names []string
	for _, section := range cfg.Sections() {
		for _, key := range section.KeyStrings() {
			if shellName.MatchString(key) {
				names = append(names, key)
			}
		}
	}
	return names
}
