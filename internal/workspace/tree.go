package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Tree is the destination of a materialize run. Paths are "/"-separated and
// relative to the tree root.
type Tree interface {
	WriteFile(rel string, content []byte) error
	Remove(rel string) error
	// Reset deletes the given subtrees and recreates them empty.
	Reset(dirs ...string) error
}

// FSTree writes below a directory on disk. Parent directories are created
// once and remembered, so concurrent writers never race on MkdirAll.
type FSTree struct {
	root string
	mu   sync.Mutex
	dirs map[string]struct{}
}

// NewFSTree returns a tree rooted at root.
func NewFSTree(root string) *FSTree {
	return &FSTree{root: root, dirs: make(map[string]struct{})}
}

// Root returns the directory the tree writes to.
func (t *FSTree) Root() string { return t.root }

func (t *FSTree) abs(rel string) string {
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

func (t *FSTree) ensureDir(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.dirs[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	t.dirs[dir] = struct{}{}
	return nil
}

// WriteFile replaces the file at rel.
func (t *FSTree) WriteFile(rel string, content []byte) error {
	full := t.abs(rel)
	if err := t.ensureDir(filepath.Dir(full)); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Remove deletes rel; a missing file is not an error.
func (t *FSTree) Remove(rel string) error {
	if err := os.Remove(t.abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

// Reset deletes and recreates each directory.
func (t *FSTree) Reset(dirs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Remembered directories may be among the deleted ones.
	t.dirs = make(map[string]struct{})
	for _, dir := range dirs {
		full := t.abs(dir)
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		t.dirs[full] = struct{}{}
	}
	return nil
}

// MemoryTree keeps written files in memory. It backs dry runs.
type MemoryTree struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryTree returns an empty tree.
func NewMemoryTree() *MemoryTree {
	return &MemoryTree{files: make(map[string][]byte)}
}

func (t *MemoryTree) WriteFile(rel string, content []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path.Clean(rel)] = append([]byte(nil), content...)
	return nil
}

func (t *MemoryTree) Remove(rel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, path.Clean(rel))
	return nil
}

func (t *MemoryTree) Reset(dirs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, dir := range dirs {
		prefix := path.Clean(dir) + "/"
		for name := range t.files {
			if strings.HasPrefix(name, prefix) {
				delete(t.files, name)
			}
		}
	}
	return nil
}

// File returns the content written at rel.
func (t *MemoryTree) File(rel string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	content, ok := t.files[path.Clean(rel)]
	return content, ok
}

// Paths lists every file, sorted.
func (t *MemoryTree) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.files))
	for name := range t.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
