package patch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RejectSuffix is appended to a target path to name its reject file.
const RejectSuffix = ".rej"

// ApplyFile applies d to the file at path, resolved against opts.WorkingDir,
// and rewrites it in place preserving its permissions. A missing file is
// treated as empty when the diff creates it (old side /dev/null). When
// opts.Partial is set and hunks were rejected they are written to
// "<path>.rej".
func ApplyFile(ctx context.Context, path string, d *FileDiff, opts FilesystemOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, rel, err := resolvePath(opts.WorkingDir, path)
	if err != nil {
		return nil, err
	}

	var (
		content []byte
		mode    fs.FileMode = 0o644
	)
	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, fmt.Errorf("cannot patch directory %s", rel)
		}
		mode = info.Mode()
		content, err = os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
	case errors.Is(err, fs.ErrNotExist) && d != nil && d.OldName == "/dev/null":
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: file does not exist", rel)
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	result, err := Apply(content, d, opts.Options)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.RelativePath = rel
		}
		return nil, err
	}

	if err := writeFile(abs, result.Content, mode); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", rel, err)
	}

	rejectPath := abs + RejectSuffix
	if reject := RejectDiff(d, result.Rejected); reject != nil {
		if err := writeFile(rejectPath, []byte(reject.Format()), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s%s: %w", rel, RejectSuffix, err)
		}
	} else if err := os.Remove(rejectPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale %s%s: %w", rel, RejectSuffix, err)
	}
	return result, nil
}

func writeFile(path string, content []byte, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	perm := mode & fs.ModePerm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return err
	}
	// WriteFile leaves the mode of an existing file untouched and honours the
	// umask for new ones, so restore the recorded bits explicitly.
	special := mode & (fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode()&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky) != perm|special {
		return os.Chmod(path, perm|special)
	}
	return nil
}

func resolvePath(workingDir, relative string) (string, string, error) {
	rel := strings.TrimSpace(relative)
	if rel == "" {
		return "", "", fmt.Errorf("invalid patch path")
	}
	workingDir = strings.TrimSpace(workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		workingDir = wd
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return cleaned, cleaned, nil
	}
	return filepath.Join(workingDir, cleaned), cleaned, nil
}
