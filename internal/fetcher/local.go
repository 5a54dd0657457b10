package fetcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// LocalSource reads scans from a directory tree, typically a mounted
// network share the scale house writes into.
type LocalSource struct {
	root       string
	extensions map[string]bool
}

// NewLocalSource creates a LocalSource rooted at dir. Extensions default
// to .pdf when none are given.
func NewLocalSource(dir string, extensions ...string) *LocalSource {
	exts := make(map[string]bool)
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	if len(exts) == 0 {
		exts[".pdf"] = true
	}
	return &LocalSource{root: dir, extensions: exts}
}

// List walks the tree and returns root-relative paths of matching files,
// sorted so runs over the same drop are deterministic.
func (s *LocalSource) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !s.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: walk %s", s.root)
	}
	sort.Strings(names)
	return names, nil
}

// Stage resolves the name against the root. Local files need no copy.
func (s *LocalSource) Stage(_ context.Context, name string) (string, error) {
	return filepath.Join(s.root, name), nil
}
