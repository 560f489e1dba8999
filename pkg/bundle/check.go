package bundle

import (
	"debug/elf"
	"path/filepath"
	"sort"
	"strings"
)

// record notes what a bundled file provides to and needs from the rest of the
// bundle. Non-ELF files provide their name and need nothing.
func (b *Builder) record(path, dest string) {
	b.provided[filepath.Base(dest)] = struct{}{}

	if !strings.HasPrefix(dest, "lib64/") && !strings.HasPrefix(dest, "libexec/") {
		return
	}

	f, err := elf.Open(path)
	if err != nil {
		// Not an ELF file, nothing to check.
		return
	}
	defer f.Close()

	needed, err := f.ImportedLibraries()
	if err != nil {
		b.log.Warn("reading needed libraries", "file", dest, "err", err)
		return
	}
	if len(needed) > 0 {
		b.needed[dest] = needed
	}
}

// report logs every library that a bundled binary needs but that was never
// added under the bundle's library roots. This is static coverage reporting,
// not a guarantee that the bundle runs: a hit here means the closure is
// incomplete.
func (b *Builder) report() {
	binaries := make([]string, 0, len(b.needed))
	for binary := range b.needed {
		binaries = append(binaries, binary)
	}
	sort.Strings(binaries)

	for _, binary := range binaries {
		for _, lib := range b.needed[binary] {
			if _, ok := b.provided[lib]; ok {
				continue
			}
			b.log.Warn("needed library not bundled", "binary", binary, "needs", lib)
		}
	}
}
