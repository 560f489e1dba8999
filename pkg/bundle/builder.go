package bundle

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/inconshreveable/log15"
)

// thunk is the launcher script placed at bin/<python>. A relocated
// interpreter can't be started through the system loader, which would resolve
// libraries against the system paths before the patched RUNPATH applies, so
// the script execs the bundled loader on the bundled binary directly,
// forwarding argv[0] and every argument.
const thunk = `#!/bin/bash
x="$(readlink -f "$0")"
b="$(basename "$x")"
d="$(dirname "$x")/.."
ldso="$d/libexec/ld.so"
realexe="$d/libexec/$b.bin"
exec -a "$0" "$ldso" "$realexe" "$@"
`

// Patcher rewrites the dynamic-linking metadata of ELF binaries. Implemented
// by patchelf.Tool.
type Patcher interface {
	SetRPath(path, rpath string) error
	Interpreter(path string) (string, error)
}

// Builder streams the bundle archive. Files are added one at a time in the
// order given by the caller, and each file produces its entries exactly once.
type Builder struct {
	patcher Patcher
	log     log15.Logger

	root  string
	check bool

	count *countingWriter
	gzip  *gzip.Writer
	tar   *tar.Writer

	loaderStaged bool
	pythonLinked bool

	provided map[string]struct{}
	needed   map[string][]string
}

// Option configures a Builder.
type Option interface {
	apply(*Builder)
}

type rootOption string

func (o rootOption) apply(b *Builder) { b.root = string(o) }

// WithRoot re-roots all filesystem access under dir, as if dir were /. Meant
// for tests working on synthetic trees.
func WithRoot(dir string) Option { return rootOption(dir) }

type checkOption struct{}

func (checkOption) apply(b *Builder) { b.check = true }

// WithImportCheck enables reporting of libraries that bundled binaries need
// but that never made it into the bundle.
func WithImportCheck() Option { return checkOption{} }

// NewBuilder returns a Builder streaming a gzipped tar to w.
func NewBuilder(w io.Writer, patcher Patcher, log log15.Logger, opts ...Option) *Builder {
	b := &Builder{
		patcher:  patcher,
		log:      log,
		provided: make(map[string]struct{}),
		needed:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt.apply(b)
	}

	b.count = &countingWriter{w: w}
	b.gzip = gzip.NewWriter(b.count)
	b.tar = tar.NewWriter(b.gzip)
	return b
}

// Size returns the number of compressed bytes written so far.
func (b *Builder) Size() int64 {
	return b.count.n
}

// Close flushes the archive streams and, if enabled, reports the libraries
// that bundled binaries need but that were never added.
func (b *Builder) Close() error {
	if b.check {
		b.report()
	}

	err := b.tar.Close()
	if err != nil {
		return err
	}
	return b.gzip.Close()
}

// Add places one package file into the archive. The path is the absolute
// source path as listed by the package database; the destination and the
// handling are derived from it.
func (b *Builder) Add(path string) error {
	if strings.HasPrefix(path, "/usr/bin/python") {
		return b.addPython(path)
	}

	dest, err := Dest(path)
	if err != nil {
		return err
	}

	info, err := os.Lstat(b.rooted(path))
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(b.rooted(path))
		if err != nil {
			return err
		}

		// A link inside its own directory survives the layout
		// unscathed and is kept as a link. Anything traversing
		// directories would break once /usr and /lib are merged away,
		// so the real file is copied under the link's name instead.
		if target == filepath.Base(target) {
			return b.addSymlink(dest, target, info)
		}

		real, err := filepath.EvalSymlinks(b.rooted(path))
		if err != nil {
			return err
		}
		return b.addFile(real, dest)

	case strings.HasSuffix(filepath.Dir(path), "lib-dynload"):
		// Loadable extensions sit one directory below the library
		// root once relocated.
		return b.addRelocated(b.rooted(path), dest, `$ORIGIN/../../`)

	default:
		// A directory entry owned by a package is added as a bare
		// directory, never its contents: packages we are not bundling
		// may have put their own files in it.
		return b.addFile(b.rooted(path), dest)
	}
}

// addPython stages the interpreter: a launcher thunk at bin/<name>, the
// patched binary at libexec/<name>.bin, and the loader the binary requests at
// libexec/ld.so.
func (b *Builder) addPython(path string) error {
	name := filepath.Base(path)
	b.log.Debug("staging interpreter", "binary", path)

	err := b.writeThunk(name)
	if err != nil {
		return err
	}

	patched, err := b.relocate(b.rooted(path), `$ORIGIN/../lib64/`)
	if err != nil {
		return err
	}
	defer os.Remove(patched)

	if !b.loaderStaged {
		interp, err := b.patcher.Interpreter(patched)
		if err != nil {
			return err
		}

		real, err := filepath.EvalSymlinks(b.rooted(interp))
		if err != nil {
			return err
		}

		err = b.addFile(real, "libexec/ld.so")
		if err != nil {
			return err
		}
		b.loaderStaged = true
	}

	return b.addFile(patched, "libexec/"+name+".bin")
}

// writeThunk emits the launcher script for the named interpreter binary, and
// the bin/python3 convenience link on the first call.
func (b *Builder) writeThunk(name string) error {
	err := b.tar.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     "bin/" + name,
		Mode:     0755,
		Size:     int64(len(thunk)),
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(b.tar, thunk)
	if err != nil {
		return err
	}

	if b.pythonLinked {
		return nil
	}
	b.pythonLinked = true
	return b.tar.WriteHeader(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     "bin/python3",
		Linkname: name,
	})
}

// relocate produces a private patched copy of the binary with its RUNPATH
// pointing back into the bundle; the original is never touched. The caller
// removes the returned file once archived. It's a pity patchelf has to patch
// an actual file.
func (b *Builder) relocate(path, rpath string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "relopy-*")
	if err != nil {
		return "", err
	}

	src, err := os.Open(path)
	if err == nil {
		_, err = io.Copy(tmp, src)
		src.Close()
	}
	if err == nil {
		err = tmp.Chmod(info.Mode().Perm())
	}
	if err1 := tmp.Close(); err == nil {
		err = err1
	}

	// An unpatched binary must never make it into the bundle: it would
	// silently resolve against the system libraries at run time instead
	// of failing loudly.
	if err == nil {
		err = b.patcher.SetRPath(tmp.Name(), rpath)
	}

	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// addRelocated patches the binary's RUNPATH and archives the patched copy
// under dest.
func (b *Builder) addRelocated(path, dest, rpath string) error {
	b.log.Debug("relocating", "file", path, "rpath", rpath)

	patched, err := b.relocate(path, rpath)
	if err != nil {
		return err
	}
	defer os.Remove(patched)

	return b.addFile(patched, dest)
}

// addFile writes a single filesystem entry under the given archive name. A
// directory produces only its header, never its contents.
func (b *Builder) addFile(path, dest string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = dest
	if info.IsDir() {
		hdr.Name += "/"
	}

	err = b.tar.WriteHeader(hdr)
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(b.tar, f)
	if err != nil {
		return err
	}

	if b.check {
		b.record(path, dest)
	}
	return nil
}

// addSymlink writes a symlink entry under the given archive name.
func (b *Builder) addSymlink(dest, target string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, target)
	if err != nil {
		return err
	}
	hdr.Name = dest

	if b.check {
		// The link name satisfies DT_NEEDED lookups just as well as
		// the file it points to.
		b.provided[filepath.Base(dest)] = struct{}{}
	}
	return b.tar.WriteHeader(hdr)
}

// rooted translates an absolute system path to the builder's filesystem root.
func (b *Builder) rooted(path string) string {
	if b.root == "" {
		return path
	}
	return filepath.Join(b.root, path)
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	n int64
	w io.Writer
}

func (c *countingWriter) Write(data []byte) (n int, err error) {
	n, err = c.w.Write(data)
	c.n += int64(n)
	return n, err
}
