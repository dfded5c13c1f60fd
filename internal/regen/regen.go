// Package regen rebuilds the patch directory from the working tree: every
// source file is diffed against its pristine baseline and the patch file is
// created, rewritten or removed to match.
package regen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asynkron/forkpatch/internal/archive"
	"github.com/asynkron/forkpatch/internal/config"
	"github.com/asynkron/forkpatch/internal/logging"
	"github.com/asynkron/forkpatch/internal/metrics"
	"github.com/asynkron/forkpatch/internal/patchindex"
	"github.com/asynkron/forkpatch/internal/report"
	"github.com/asynkron/forkpatch/pkg/patch"
)

// Entry outcomes recorded in metrics.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeDeleted   = "deleted"
	OutcomeClean     = "clean"
	OutcomeInvalid   = "invalid"
)

// Options configure a regenerate run.
type Options struct {
	Layout config.Layout
	// ContextLines is the number of unchanged lines around each change. Zero
	// is honoured and yields hunks without context; patch.DefaultContextLines
	// matches the configuration default.
	ContextLines int
	// Prune deletes patches whose target left the archive.
	Prune bool
}

// Regenerator writes patch files for the edits found under Workspace.
type Regenerator struct {
	// Workspace is the working tree root; sources live in Layout.Sources below it.
	Workspace string
	Options   Options
	Logger    logging.Logger
	Metrics   metrics.Metrics
}

// New returns a regenerator with no-op logging and metrics.
func New(workspace string, opts Options) *Regenerator {
	return &Regenerator{
		Workspace: workspace,
		Options:   opts,
		Logger:    &logging.NoOpLogger{},
		Metrics:   &metrics.NoOpMetrics{},
	}
}

// Run diffs every source entry of src against the working tree and updates
// the patch files under idx.Root(). A diff that does not reproduce the working
// file is never written; the run then ends with *report.VerificationFailedError.
func (r *Regenerator) Run(ctx context.Context, src archive.Archive, idx *patchindex.Index) (*report.Summary, error) {
	if r.Logger == nil {
		r.Logger = &logging.NoOpLogger{}
	}
	if r.Metrics == nil {
		r.Metrics = &metrics.NoOpMetrics{}
	}
	if r.Options.Layout.Sources == "" {
		r.Options.Layout.Sources = "sources"
	}
	started := time.Now()
	defer func() { r.Metrics.RecordPhase(metrics.PhaseRegenerate, time.Since(started)) }()

	summary := report.NewSummary("regenerate")
	for _, w := range idx.Warnings() {
		summary.Add(w)
	}

	sourcesRoot := filepath.Join(r.Workspace, filepath.FromSlash(r.Options.Layout.Sources))
	sources := make(map[string]struct{})
	present := make(map[string]struct{})
	var unverified []string

	err := src.Walk(ctx, func(entry archive.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		present[entry.Path] = struct{}{}
		if entry.Kind != archive.KindSource {
			return nil
		}
		sources[entry.Path] = struct{}{}

		entryStarted := time.Now()
		outcome, err := r.regenerate(ctx, entry, sourcesRoot, idx, summary)
		if err != nil {
			return err
		}
		if outcome == OutcomeInvalid {
			unverified = append(unverified, entry.Path)
		}
		r.Metrics.RecordEntry(outcome, time.Since(entryStarted))
		summary.Update(func(c *report.Counts) {
			c.Entries++
			switch outcome {
			case OutcomeCreated:
				c.Created++
			case OutcomeUpdated:
				c.Updated++
			case OutcomeUnchanged:
				c.Unchanged++
			case OutcomeDeleted:
				c.Deleted++
			}
		})
		return nil
	})
	if err != nil {
		return summary, err
	}

	if err := r.reportOrphans(ctx, idx, sources, present, summary); err != nil {
		return summary, err
	}
	if err := r.reportUntracked(sourcesRoot, sources, summary); err != nil {
		return summary, err
	}
	summary.Finish()

	counts, _ := summary.Snapshot()
	r.Logger.Info(ctx, "Regenerated patches",
		logging.Field("created", counts.Created),
		logging.Field("updated", counts.Updated),
		logging.Field("unchanged", counts.Unchanged),
		logging.Field("deleted", counts.Deleted))
	if len(unverified) > 0 {
		return summary, &report.VerificationFailedError{Targets: unverified}
	}
	return summary, nil
}

func (r *Regenerator) regenerate(ctx context.Context, entry archive.Entry, sourcesRoot string, idx *patchindex.Index, summary *report.Summary) (string, error) {
	patchPath := idx.PatchPathFor(entry.Path)
	workingPath := filepath.Join(sourcesRoot, filepath.FromSlash(entry.Path))

	working, err := os.ReadFile(workingPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		working = nil
		summary.Add(report.Diagnostic{
			Severity:   report.SeverityWarning,
			Code:       report.CodeWorkingFileMissing,
			TargetPath: entry.Path,
			PatchPath:  patchPath,
			Message:    fmt.Sprintf("Working file %s is missing; treating it as empty.", workingPath),
		})
	default:
		return "", fmt.Errorf("read working file %s: %w", workingPath, err)
	}

	diff := patch.Generate(entry.Path, entry.Content, working, r.Options.ContextLines)
	if diff == nil {
		removed, err := removePatch(patchPath, idx.Root())
		if err != nil {
			return "", err
		}
		if !removed {
			return OutcomeClean, nil
		}
		r.Logger.Info(ctx, "Removed patch for unmodified file", logging.Field("patch", patchPath))
		return OutcomeDeleted, nil
	}

	if err := verify(entry.Content, working, diff); err != nil {
		summary.Add(report.Diagnostic{
			Severity:   report.SeverityError,
			Code:       report.CodePatchVerifyFailed,
			TargetPath: entry.Path,
			PatchPath:  patchPath,
			Message:    fmt.Sprintf("Generated patch for %s does not reproduce the working file.", entry.Path),
			Detail:     err.Error(),
		})
		r.Logger.Error(ctx, "Generated patch failed verification", err, logging.Field("target", entry.Path))
		return OutcomeInvalid, nil
	}

	stats := patch.Stats(entry.Content, working)
	summary.Update(func(c *report.Counts) {
		c.LinesAdded += stats.Added
		c.LinesRemoved += stats.Removed
	})
	summary.Add(report.Diagnostic{
		Severity:   report.SeverityInfo,
		Code:       report.CodePatchChanged,
		TargetPath: entry.Path,
		PatchPath:  patchPath,
		Message:    fmt.Sprintf("%s changed %s lines.", entry.Path, stats),
	})

	formatted := []byte(diff.Format())
	existing, err := os.ReadFile(patchPath)
	outcome := OutcomeUpdated
	switch {
	case err == nil && bytes.Equal(existing, formatted):
		return OutcomeUnchanged, nil
	case errors.Is(err, fs.ErrNotExist):
		outcome = OutcomeCreated
	case err != nil:
		return "", fmt.Errorf("read patch %s: %w", patchPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(patchPath), 0o755); err != nil {
		return "", fmt.Errorf("create patch directory for %s: %w", patchPath, err)
	}
	if err := os.WriteFile(patchPath, formatted, 0o644); err != nil {
		return "", fmt.Errorf("write patch %s: %w", patchPath, err)
	}
	r.Logger.Debug(ctx, "Wrote patch", logging.Field("patch", patchPath), logging.Field("outcome", outcome))
	return outcome, nil
}

// verify applies diff to pristine at its exact position and compares the
// result with the working content.
func verify(pristine, working []byte, diff *patch.FileDiff) error {
	result, err := patch.Apply(pristine, diff, patch.Options{})
	if err != nil {
		return err
	}
	if !bytes.Equal(result.Content, working) {
		return fmt.Errorf("applying the patch yields %d bytes, the working file has %d", len(result.Content), len(working))
	}
	return nil
}

// reportOrphans handles patches whose target is not a source entry. Patches on
// resources are kept as they are; only targets gone from the archive are
// orphans and eligible for pruning.
func (r *Regenerator) reportOrphans(ctx context.Context, idx *patchindex.Index, sources, present map[string]struct{}, summary *report.Summary) error {
	for _, record := range idx.Records() {
		if _, ok := sources[record.Target]; ok {
			continue
		}
		if _, ok := present[record.Target]; ok {
			summary.Add(report.Diagnostic{
				Severity:   report.SeverityInfo,
				Code:       report.CodeResourcePatch,
				TargetPath: record.Target,
				PatchPath:  record.PatchPath,
				Message:    fmt.Sprintf("Patch %s targets resource %s; it is kept but not regenerated.", record.PatchPath, record.Target),
			})
			continue
		}
		if !r.Options.Prune {
			summary.Update(func(c *report.Counts) { c.Orphaned++ })
			summary.Add(report.Diagnostic{
				Severity:   report.SeverityWarning,
				Code:       report.CodePatchTargetMissing,
				TargetPath: record.Target,
				PatchPath:  record.PatchPath,
				Message:    fmt.Sprintf("Patch %s has no pristine source %s.", record.PatchPath, record.Target),
			})
			continue
		}
		if _, err := removePatch(record.PatchPath, idx.Root()); err != nil {
			return err
		}
		summary.Update(func(c *report.Counts) { c.Deleted++ })
		summary.Add(report.Diagnostic{
			Severity:   report.SeverityInfo,
			Code:       report.CodePatchTargetMissing,
			TargetPath: record.Target,
			PatchPath:  record.PatchPath,
			Message:    fmt.Sprintf("Pruned patch %s; %s is no longer in the archive.", record.PatchPath, record.Target),
		})
		r.Logger.Info(ctx, "Pruned orphaned patch", logging.Field("patch", record.PatchPath))
	}
	return nil
}

// reportUntracked flags working files without a pristine counterpart. Reject
// files left by update mode are not working files.
func (r *Regenerator) reportUntracked(sourcesRoot string, sources map[string]struct{}, summary *report.Summary) error {
	err := filepath.WalkDir(sourcesRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == sourcesRoot && errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(p, patch.RejectSuffix) {
			return nil
		}
		rel, err := filepath.Rel(sourcesRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, ok := sources[rel]; ok {
			return nil
		}
		summary.Update(func(c *report.Counts) { c.Untracked++ })
		summary.Add(report.Diagnostic{
			Severity:   report.SeverityWarning,
			Code:       report.CodeUntrackedFile,
			TargetPath: rel,
			Message:    fmt.Sprintf("%s has no pristine counterpart; new files cannot be expressed as patches.", rel),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan working sources %s: %w", sourcesRoot, err)
	}
	return nil
}

// removePatch deletes a patch file and then every directory it leaves empty,
// stopping at root. It reports whether a file was removed.
func removePatch(patchPath, root string) (bool, error) {
	if err := os.Remove(patchPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove patch %s: %w", patchPath, err)
	}
	root = filepath.Clean(root)
	for dir := filepath.Dir(patchPath); dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			// Not empty, or gone already.
			break
		}
	}
	return true, nil
}
