package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ZipArchive reads entries from a zip or jar file.
type ZipArchive struct {
	reader     *zip.ReadCloser
	files      []zipEntry
	classifier Classifier
}

type zipEntry struct {
	path string
	file *zip.File
}

// OpenZip opens the zip file at p. Directory entries are skipped; when two
// names normalise to the same path the first one in the central directory wins.
func OpenZip(p string, classifier Classifier) (*ZipArchive, error) {
	reader, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", p, err)
	}
	seen := make(map[string]struct{}, len(reader.File))
	files := make([]zipEntry, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		normalized, ok := NormalizePath(f.Name)
		if !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		files = append(files, zipEntry{path: normalized, file: f})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return &ZipArchive{reader: reader, files: files, classifier: classifier}, nil
}

// Len returns the number of file entries.
func (z *ZipArchive) Len() int { return len(z.files) }

// Walk reads every entry and hands it to fn, stopping at the first error.
func (z *ZipArchive) Walk(ctx context.Context, fn func(Entry) error) error {
	for _, entry := range z.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := readZipFile(entry.file)
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.path, err)
		}
		if err := fn(Entry{Path: entry.path, Kind: z.classifier.Classify(entry.path), Content: content}); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying file.
func (z *ZipArchive) Close() error {
	return z.reader.Close()
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
