// Package archive reads pristine source baselines, either from a zip/jar file
// or from an already-extracted directory.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
)

// Kind says which subtree of the working tree an entry belongs to.
type Kind string

const (
	KindSource   Kind = "source"
	KindResource Kind = "resource"
)

// Entry is one pristine file.
type Entry struct {
	// Path is archive-root-relative, "/"-separated and normalised.
	Path    string
	Kind    Kind
	Content []byte
}

// Archive yields pristine entries in lexical path order.
type Archive interface {
	Walk(ctx context.Context, fn func(Entry) error) error
	Len() int
	Close() error
}

// Classifier decides whether an entry is a source or a resource.
type Classifier struct {
	// SourceExtensions lists extensions (with the dot) treated as sources.
	SourceExtensions []string
	// ResourceGlobs are doublestar patterns forcing a match to be a resource.
	ResourceGlobs []string
}

// DefaultClassifier treats .java files as sources.
func DefaultClassifier() Classifier {
	return Classifier{SourceExtensions: []string{".java"}}
}

// Validate checks every glob pattern.
func (c Classifier) Validate() error {
	for _, glob := range c.ResourceGlobs {
		if !doublestar.ValidatePattern(glob) {
			return fmt.Errorf("invalid resource glob %q", glob)
		}
	}
	return nil
}

// Classify returns the kind of the normalised path p.
func (c Classifier) Classify(p string) Kind {
	for _, glob := range c.ResourceGlobs {
		if ok, _ := doublestar.Match(glob, p); ok {
			return KindResource
		}
	}
	extensions := lo.Map(c.SourceExtensions, func(ext string, _ int) string { return strings.ToLower(ext) })
	if lo.Contains(extensions, strings.ToLower(path.Ext(p))) {
		return KindSource
	}
	return KindResource
}

// Open returns a DirArchive when p is a directory and a ZipArchive otherwise.
func Open(p string, classifier Classifier) (Archive, error) {
	if err := classifier.Validate(); err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("open pristine archive: %w", err)
	}
	if info.IsDir() {
		return OpenDir(p, classifier)
	}
	return OpenZip(p, classifier)
}

// NormalizePath converts an entry name into a "/"-separated relative path with
// no drive letter, leading slash, "." or ".." segments. Segments that would
// climb above the root are dropped. It reports false for names that reduce to
// nothing.
func NormalizePath(name string) (string, bool) {
	s := filepath.ToSlash(name)
	s = strings.ReplaceAll(s, "\\", "/")
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	s = strings.Join(stack, "/")
	return s, s != ""
}
