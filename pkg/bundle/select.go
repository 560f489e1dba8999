package bundle

import "sort"

// PackageDB is the part of the package database needed to list the files of
// a resolved closure. Implemented by rpmx.DB.
type PackageDB interface {
	ListFiles(packages []string) ([]string, error)
	ListDocs(pkg string) ([]string, error)
}

// Select returns the files of the closure that belong in the bundle, sorted.
// The documentation files of the entry packages come from package metadata
// and aren't told apart in the full listing, so they are subtracted
// explicitly. A file owned by several packages appears once.
func Select(db PackageDB, entries, closure []string) ([]string, error) {
	excluded := make(map[string]struct{})
	for _, pkg := range entries {
		docs, err := db.ListDocs(pkg)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			excluded[doc] = struct{}{}
		}
	}

	candidates, err := db.ListFiles(closure)
	if err != nil {
		return nil, err
	}

	var files []string
	seen := make(map[string]struct{})
	for _, file := range candidates {
		if _, ok := excluded[file]; ok {
			continue
		}
		if _, ok := seen[file]; ok {
			continue
		}
		seen[file] = struct{}{}

		ok, err := ShouldCopy(file)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, file)
		}
	}

	// The bundle layout doesn't depend on the order, but a deterministic
	// order makes runs comparable.
	sort.Strings(files)
	return files, nil
}
