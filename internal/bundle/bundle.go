// Package bundle packs the resolved configuration and every patch into a
// reproducible zip, so a fork's overlay can be shipped as one file.
//
// Layout:
//
//	config.json
//	patches/<target><suffix>
//
// Entries are sorted and stamped with FixedZipTime; the same inputs always
// produce the same bytes.
package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/asynkron/forkpatch/internal/archive"
	"github.com/asynkron/forkpatch/internal/config"
	"github.com/asynkron/forkpatch/internal/patchindex"
)

// FixedZipTime is the modification time of every entry (1980-01-01 UTC).
var FixedZipTime = time.Unix(315532800, 0).UTC()

// ConfigEntry is the name of the configuration entry.
const ConfigEntry = "config.json"

// PatchDir is the directory holding the patch entries.
const PatchDir = "patches"

// Write streams the bundle to w.
func Write(w io.Writer, cfg config.Config, idx *patchindex.Index) error {
	zw := zip.NewWriter(w)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", ConfigEntry, err)
	}
	if err := writeEntry(zw, ConfigEntry, append(data, '\n')); err != nil {
		return err
	}

	for _, record := range idx.Records() {
		if err := writeEntry(zw, EntryName(record.Target, idx.Suffix()), record.Raw); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish bundle: %w", err)
	}
	return nil
}

// WriteFile writes the bundle to p, creating parent directories.
func WriteFile(p string, cfg config.Config, idx *patchindex.Index) (err error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(f, cfg, idx)
}

// EntryName returns the bundle path of the patch for target.
func EntryName(target, suffix string) string {
	return path.Join(PatchDir, target+suffix)
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	clean, ok := archive.NormalizePath(name)
	if !ok {
		return fmt.Errorf("invalid bundle entry %q", name)
	}
	h := &zip.FileHeader{Name: clean, Method: zip.Deflate}
	h.SetMode(0o644)
	h.Modified = FixedZipTime
	w, err := zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
