// Package rpmx queries the installed RPM database through repoquery and rpm.
// Every query runs against the local cache only, so a run sees a consistent
// view of the system regardless of repository state.
package rpmx

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// tooBasicPackages lists prefixes of packages that are present on any base
// system image. repoquery will, correctly, report them as dependencies of
// about everything; bundling them would only add noise.
var tooBasicPackages = []string{
	"filesystem",
	"tzdata",
	"chkconfig",
	"basesystem",
	"coreutils",
	"fedora-release",
	"fedora-repos",
	"fedora-gpg-keys",
	"glibc-minimal-langpack",
	"glibc-all-langpacks",
}

// TooBasic reports whether the package is part of the base system and should
// be dropped from dependency closures.
func TooBasic(name string) bool {
	for _, prefix := range tooBasicPackages {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DB queries the installed package database for a single architecture. The
// architecture is fixed at construction and threaded through every query, so
// nothing reads the environment behind the caller's back.
type DB struct {
	arch string

	// exec runs a command and returns its standard output. Overridable in
	// tests.
	exec func(name string, args ...string) ([]byte, error)
}

// New return a DB scoped to the given machine architecture.
func New(arch string) *DB {
	return &DB{
		arch: arch,
		exec: run,
	}
}

// Resolve returns the transitive runtime dependency closure of the given
// packages, restricted to noarch plus the DB's architecture: architectures
// like x86_64 also carry packages for their 32-bit counterpart, and mixing
// those in would defeat the single library root of the bundle. Base-system
// packages are dropped, but the requested packages themselves are always part
// of the closure, filter or not.
func (db *DB) Resolve(packages []string) ([]string, error) {
	args := []string{
		"--archlist=noarch," + db.arch,
		"--cacheonly",
		"--installed",
		"--resolve",
		"--requires",
		"--recursive",
	}
	out, err := db.exec("repoquery", append(args, packages...)...)
	if err != nil {
		return nil, err
	}

	var closure []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		closure = append(closure, name)
	}

	for _, name := range lines(out) {
		if TooBasic(name) {
			continue
		}
		add(name)
	}
	for _, name := range packages {
		add(name)
	}

	return closure, nil
}

// ListFiles returns every file owned by the given packages, unfiltered. The
// listing is queried for the whole closure at once: repoquery's recursive
// resolve output doesn't include the files of the requested packages
// themselves, so resolution and listing are two separate steps.
func (db *DB) ListFiles(packages []string) ([]string, error) {
	args := []string{
		"--installed",
		"--cacheonly",
		"--list",
	}
	out, err := db.exec("repoquery", append(args, packages...)...)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// ListDocs returns the documentation and license files owned by the given
// package.
func (db *DB) ListDocs(pkg string) ([]string, error) {
	out, err := db.exec("rpm", "-qd", pkg)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// run executes the command and returns its standard output, folding the
// standard error into the returned error so a failing query can be diagnosed.
func run(name string, args ...string) ([]byte, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(exit.Stderr))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// lines splits raw command output into trimmed, non-empty lines.
func lines(raw []byte) []string {
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
