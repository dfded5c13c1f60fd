// Package patchindex maps pristine paths to the patch files overlaying them.
package patchindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"

	"github.com/asynkron/forkpatch/internal/archive"
	"github.com/asynkron/forkpatch/internal/report"
	"github.com/asynkron/forkpatch/pkg/patch"
)

// DefaultSuffix marks patch files.
const DefaultSuffix = ".patch"

// Options configure a scan.
type Options struct {
	// Suffix identifies patch files; defaults to ".patch".
	Suffix string
	// Ignore lists doublestar patterns, relative to the root, for files that
	// are neither patches nor worth a warning.
	Ignore []string
}

func (o *Options) setDefaults() {
	if o.Suffix == "" {
		o.Suffix = DefaultSuffix
	}
}

// Record is one patch file.
type Record struct {
	// Target is the pristine path the patch applies to.
	Target string
	// PatchPath is the absolute path of the patch file.
	PatchPath string
	Raw       []byte
	Diff      *patch.FileDiff
}

// DuplicateTargetError reports two patch files resolving to one target.
type DuplicateTargetError struct {
	Target string
	First  string
	Second string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("duplicate patch target %s: %s and %s", e.Target, e.First, e.Second)
}

// Index is built once per run. Claim and Remaining are safe for concurrent use.
type Index struct {
	root     string
	suffix   string
	mu       sync.Mutex
	records  map[string]Record
	pending  map[string]struct{}
	warnings []report.Diagnostic
}

// Scan walks root and parses every patch file. A missing root yields an
// empty index. Malformed diffs and duplicate targets are fatal.
func Scan(root string, opts Options) (*Index, error) {
	opts.setDefaults()
	for _, glob := range opts.Ignore {
		if !doublestar.ValidatePattern(glob) {
			return nil, fmt.Errorf("invalid ignore pattern %q", glob)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve patch root %s: %w", root, err)
	}
	idx := &Index{
		root:    absRoot,
		suffix:  opts.Suffix,
		records: make(map[string]Record),
		pending: make(map[string]struct{}),
	}

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == absRoot && errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !strings.HasSuffix(rel, opts.Suffix) {
			if !ignored(opts.Ignore, rel) {
				idx.warnings = append(idx.warnings, report.Diagnostic{
					Severity:  report.SeverityWarning,
					Code:      report.CodeNonPatchFile,
					PatchPath: p,
					Message:   fmt.Sprintf("%s does not end with %s and was ignored", rel, opts.Suffix),
				})
			}
			return nil
		}
		return idx.add(p, rel)
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) add(p, rel string) error {
	target, ok := archive.NormalizePath(strings.TrimSuffix(rel, idx.suffix))
	if !ok {
		return fmt.Errorf("patch file %s has no target name", p)
	}
	if existing, dup := idx.records[target]; dup {
		return &DuplicateTargetError{Target: target, First: existing.PatchPath, Second: p}
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("read patch %s: %w", p, err)
	}
	d, err := patch.Parse(raw)
	if err != nil {
		var pe *patch.Error
		if errors.As(err, &pe) {
			pe.RelativePath = rel
		}
		return fmt.Errorf("parse patch %s: %w", p, err)
	}
	idx.records[target] = Record{Target: target, PatchPath: p, Raw: raw, Diff: d}
	idx.pending[target] = struct{}{}
	return nil
}

func ignored(patterns []string, rel string) bool {
	return lo.ContainsBy(patterns, func(glob string) bool {
		ok, _ := doublestar.Match(glob, rel)
		return ok
	})
}

// Root returns the absolute patch root.
func (idx *Index) Root() string { return idx.root }

// Suffix returns the patch file suffix.
func (idx *Index) Suffix() string { return idx.suffix }

// PatchPathFor returns where the patch for target lives or would live.
func (idx *Index) PatchPathFor(target string) string {
	return filepath.Join(idx.root, filepath.FromSlash(target)+idx.suffix)
}

// Len returns the number of records.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.records)
}

// Lookup returns the record for target without claiming it.
func (idx *Index) Lookup(target string) (Record, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	r, ok := idx.records[target]
	return r, ok
}

// Claim marks the record for target as consumed and returns it. Only the
// first claim of a target succeeds.
func (idx *Index) Claim(target string) (Record, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.pending[target]; !ok {
		return Record{}, false
	}
	delete(idx.pending, target)
	return idx.records[target], true
}

// Remaining returns unclaimed records sorted by target.
func (idx *Index) Remaining() []Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]Record, 0, len(idx.pending))
	for target := range idx.pending {
		out = append(out, idx.records[target])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Records returns every record sorted by target.
func (idx *Index) Records() []Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := lo.Values(idx.records)
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Warnings returns the diagnostics collected while scanning.
func (idx *Index) Warnings() []report.Diagnostic {
	return append([]report.Diagnostic(nil), idx.warnings...)
}
