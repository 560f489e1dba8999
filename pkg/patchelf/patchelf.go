// Package patchelf shells out to the patchelf utility to rewrite the
// dynamic-linking metadata of ELF binaries.
package patchelf

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Tool invokes a patchelf binary. The zero value looks patchelf up in PATH.
type Tool struct {
	// Path of the patchelf binary to run.
	Path string
}

// SetRPath rewrites the binary's dynamic-library search path in place.
func (t Tool) SetRPath(path, rpath string) error {
	out, err := exec.Command(t.path(), "--set-rpath", rpath, path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("patchelf --set-rpath %s: %w: %s", path, err, bytes.TrimSpace(out))
	}
	return nil
}

// Interpreter returns the dynamic loader the binary requests.
func (t Tool) Interpreter(path string) (string, error) {
	out, err := exec.Command(t.path(), "--print-interpreter", path).Output()
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return "", fmt.Errorf("patchelf --print-interpreter %s: %w: %s", path, err, bytes.TrimSpace(exit.Stderr))
		}
		return "", fmt.Errorf("patchelf --print-interpreter %s: %w", path, err)
	}

	interp, _, _ := strings.Cut(string(out), "\n")
	interp = strings.TrimSpace(interp)
	if len(interp) == 0 {
		return "", fmt.Errorf("patchelf --print-interpreter %s: empty output", path)
	}
	return interp, nil
}

func (t Tool) path() string {
	if t.Path == "" {
		return "patchelf"
	}
	return t.Path
}
