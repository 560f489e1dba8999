// Package bundle assembles a relocatable Python runtime archive: it decides
// which package files belong in the bundle, where each one lands inside it,
// and streams them into a gzipped tar with their dynamic-linking metadata
// pointed back at the bundle root.
package bundle

import (
	"fmt"
	"strings"
)

// ShouldCopy reports whether a package file belongs in the bundle. We want
// the actual interpreter binaries and the files under the lib/lib64 roots;
// everything in /var, /etc and friends is of no use to a relocated package.
// Locale data takes a lot of space and is never used once relocated, and
// .build-id entries are symlinks to binaries captured through their real
// paths, so both subtrees are dropped. The path must be absolute; anything
// else is a malformed package listing.
func ShouldCopy(path string) (bool, error) {
	// A package with no files lists a single empty line.
	if path == "" {
		return false, nil
	}

	// Python ships two binaries, one of them compiled with a specialized
	// malloc (python3.Xm). No need for it.
	if strings.HasPrefix(path, "/usr/bin/python3.") {
		return !strings.HasSuffix(path, "m"), nil
	}

	// The loader is staged by the interpreter fixup, not copied as a
	// package file.
	if strings.HasPrefix(path, "/lib64/ld-linux") {
		return false, nil
	}

	if !strings.HasPrefix(path, "/") {
		return false, fmt.Errorf("unexpected path: not absolute: %s", path)
	}

	parts := segments(path)
	if len(parts) > 0 && parts[0] == "usr" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return false, nil
	}

	if parts[0] != "lib" && parts[0] != "lib64" {
		return false, nil
	}
	parts = parts[1:]

	if len(parts) > 0 && (parts[0] == "locale" || parts[0] == ".build-id") {
		return false, nil
	}
	return true, nil
}

// Dest returns the path of a library file inside the bundle. Python installs
// in both /usr/lib and /usr/lib64 without it meaning the package is for the
// wrong architecture, so /usr is merged into the root and the lib root into
// lib64; the closure is resolved for a single architecture, which makes the
// merge safe. A path fitting neither root can't be placed, and skipping it
// silently could produce a bundle missing a required library, so it is an
// error.
func Dest(path string) (string, error) {
	if strings.HasPrefix(path, "/usr/") {
		path = path[len("/usr"):]
	}

	switch {
	case strings.HasPrefix(path, "/lib/"):
		return "lib64/" + path[len("/lib/"):], nil
	case strings.HasPrefix(path, "/lib64/"):
		return "lib64/" + path[len("/lib64/"):], nil
	default:
		return "", fmt.Errorf("unexpected path: don't know what to do with %s", path)
	}
}

// segments splits an absolute path, ignoring repeated separators.
func segments(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if len(part) == 0 {
			continue
		}
		out = append(out, part)
	}
	return out
}
