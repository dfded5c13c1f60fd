package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DirArchive serves an extracted baseline directory.
type DirArchive struct {
	root       string
	paths      []string
	classifier Classifier
}

// OpenDir lists the regular files below root. Symlinks are not followed.
func OpenDir(root string, classifier Classifier) (*DirArchive, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if normalized, ok := NormalizePath(rel); ok {
			paths = append(paths, normalized)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan pristine directory %s: %w", root, err)
	}
	sort.Strings(paths)
	return &DirArchive{root: root, paths: paths, classifier: classifier}, nil
}

// Len returns the number of files.
func (d *DirArchive) Len() int { return len(d.paths) }

// Walk reads every file and hands it to fn, stopping at the first error.
func (d *DirArchive) Walk(ctx context.Context, fn func(Entry) error) error {
	for _, p := range d.paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(p)))
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if err := fn(Entry{Path: p, Kind: d.classifier.Classify(p), Content: content}); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (d *DirArchive) Close() error { return nil }
