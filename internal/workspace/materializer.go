// Package workspace builds the editable working tree: every pristine entry is
// copied into its subtree, with its overlay patch applied when one exists.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

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
	OutcomeCopied  = "copied"
	OutcomeApplied = string(patch.OutcomeApplied)
	OutcomeOffset  = string(patch.OutcomeOffset)
	OutcomePartial = string(patch.OutcomePartial)
	OutcomeFailed  = string(patch.OutcomeFailed)
)

// Progress receives one tick per processed entry.
type Progress interface {
	Add(n int) error
	Finish() error
}

// Options configure a materialize run.
type Options struct {
	Layout    config.Layout
	MaxOffset int
	Workers   int
	// Clean empties both subtrees before writing.
	Clean bool
	// OnFailure is config.OnFailurePristine or config.OnFailureSkip.
	OnFailure string
	// Update applies the hunks that can be located and writes the rest to a
	// ".rej" file instead of failing the entry.
	Update bool
}

func (o *Options) setDefaults() {
	if o.Layout.Sources == "" {
		o.Layout.Sources = "sources"
	}
	if o.Layout.Resources == "" {
		o.Layout.Resources = "resources"
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.OnFailure == "" {
		o.OnFailure = config.OnFailurePristine
	}
}

// Materializer writes a working tree from an archive and a patch index.
type Materializer struct {
	Tree     Tree
	Options  Options
	Logger   logging.Logger
	Metrics  metrics.Metrics
	Progress Progress
}

// New returns a materializer with no-op logging and metrics.
func New(tree Tree, opts Options) *Materializer {
	return &Materializer{
		Tree:    tree,
		Options: opts,
		Logger:  &logging.NoOpLogger{},
		Metrics: &metrics.NoOpMetrics{},
	}
}

// Destination returns the tree-relative path of an entry.
func (o Options) Destination(entry archive.Entry) string {
	if entry.Kind == archive.KindSource {
		return path.Join(o.Layout.Sources, entry.Path)
	}
	return path.Join(o.Layout.Resources, entry.Path)
}

// Run processes every entry of src. Each patch is claimed by at most one
// entry; patches left unclaimed are reported as orphans. When any patch failed
// the summary is returned together with *report.ApplicationFailedError.
func (m *Materializer) Run(ctx context.Context, src archive.Archive, idx *patchindex.Index) (*report.Summary, error) {
	m.Options.setDefaults()
	if m.Logger == nil {
		m.Logger = &logging.NoOpLogger{}
	}
	if m.Metrics == nil {
		m.Metrics = &metrics.NoOpMetrics{}
	}
	started := time.Now()
	defer func() { m.Metrics.RecordPhase(metrics.PhaseMaterialize, time.Since(started)) }()

	summary := report.NewSummary("materialize")
	for _, w := range idx.Warnings() {
		summary.Add(w)
	}

	layout := m.Options.Layout
	if m.Options.Clean {
		m.Logger.Info(ctx, "Cleaning working tree before materializing",
			logging.Field("sources", layout.Sources),
			logging.Field("resources", layout.Resources))
		if err := m.Tree.Reset(layout.Sources, layout.Resources); err != nil {
			return summary, err
		}
	} else {
		m.Logger.Info(ctx, "Overwriting working tree files in place; stale files are kept",
			logging.Field("sources", layout.Sources),
			logging.Field("resources", layout.Resources))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.Options.Workers)
	walkErr := src.Walk(groupCtx, func(entry archive.Entry) error {
		if err := groupCtx.Err(); err != nil {
			return err
		}
		group.Go(func() error {
			return m.process(groupCtx, entry, idx, summary)
		})
		return nil
	})
	waitErr := group.Wait()
	if err := errors.Join(waitErr, ignoreCanceled(walkErr, waitErr)); err != nil {
		return summary, err
	}

	for _, orphan := range idx.Remaining() {
		summary.Update(func(c *report.Counts) { c.Orphaned++ })
		summary.Add(report.Diagnostic{
			Severity:   report.SeverityWarning,
			Code:       report.CodePatchTargetMissing,
			TargetPath: orphan.Target,
			PatchPath:  orphan.PatchPath,
			Message:    fmt.Sprintf("Patch %s has no pristine file %s to apply to.", orphan.PatchPath, orphan.Target),
		})
		m.Logger.Warn(ctx, "Orphaned patch", logging.Field("patch", orphan.PatchPath), logging.Field("target", orphan.Target))
	}
	if m.Progress != nil {
		_ = m.Progress.Finish()
	}
	summary.Finish()

	counts, _ := summary.Snapshot()
	m.Logger.Info(ctx, "Materialized working tree",
		logging.Field("entries", counts.Entries),
		logging.Field("applied", counts.Applied+counts.Offset),
		logging.Field("failed", counts.Failed),
		logging.Field("orphaned", counts.Orphaned))
	if counts.Failed > 0 {
		return summary, &report.ApplicationFailedError{
			Failed: counts.Failed,
			Total:  counts.Failed + counts.Applied + counts.Offset + counts.Partial,
		}
	}
	return summary, nil
}

// ignoreCanceled drops the walk error that only echoes a worker failure.
func ignoreCanceled(walkErr, waitErr error) error {
	if waitErr != nil && errors.Is(walkErr, context.Canceled) {
		return nil
	}
	return walkErr
}

func (m *Materializer) process(ctx context.Context, entry archive.Entry, idx *patchindex.Index, summary *report.Summary) error {
	started := time.Now()
	outcome, err := m.materialize(ctx, entry, idx, summary)
	if err != nil {
		return err
	}
	m.Metrics.RecordEntry(outcome, time.Since(started))
	summary.Update(func(c *report.Counts) {
		c.Entries++
		switch outcome {
		case OutcomeCopied:
			c.Copied++
		case OutcomeApplied:
			c.Applied++
		case OutcomeOffset:
			c.Offset++
		case OutcomePartial:
			c.Partial++
		case OutcomeFailed:
			c.Failed++
		}
	})
	if m.Progress != nil {
		_ = m.Progress.Add(1)
	}
	return nil
}

func (m *Materializer) materialize(ctx context.Context, entry archive.Entry, idx *patchindex.Index, summary *report.Summary) (string, error) {
	dest := m.Options.Destination(entry)
	record, ok := idx.Claim(entry.Path)
	if !ok {
		m.Logger.Debug(ctx, "Copying pristine file", logging.Field("path", dest))
		return OutcomeCopied, m.Tree.WriteFile(dest, entry.Content)
	}

	result, err := patch.Apply(entry.Content, record.Diff, patch.Options{
		MaxOffset: m.Options.MaxOffset,
		Partial:   m.Options.Update,
	})
	if err != nil {
		var patchErr *patch.Error
		if !errors.As(err, &patchErr) {
			return "", fmt.Errorf("apply %s: %w", record.PatchPath, err)
		}
		return OutcomeFailed, m.fail(ctx, entry, dest, record, patchErr, summary)
	}

	if err := m.Tree.WriteFile(dest, result.Content); err != nil {
		return "", err
	}
	switch result.Outcome {
	case patch.OutcomeOffset:
		summary.Add(report.Diagnostic{
			Severity:   report.SeverityInfo,
			Code:       report.CodePatchOffset,
			TargetPath: entry.Path,
			PatchPath:  record.PatchPath,
			Message:    fmt.Sprintf("Patch %s applied with offset: %s", record.PatchPath, describeOffsets(result.Hunks)),
		})
	case patch.OutcomePartial:
		return OutcomePartial, m.reject(ctx, entry, dest, record, result, summary)
	}
	if m.Options.Update {
		if err := m.Tree.Remove(dest + patch.RejectSuffix); err != nil {
			return "", err
		}
	}
	m.Logger.Debug(ctx, "Applied patch", logging.Field("path", dest), logging.Field("outcome", string(result.Outcome)))
	return string(result.Outcome), nil
}

func (m *Materializer) fail(ctx context.Context, entry archive.Entry, dest string, record patchindex.Record, patchErr *patch.Error, summary *report.Summary) error {
	hunk := 0
	if patchErr.FailedHunk != nil {
		hunk = patchErr.FailedHunk.Number
	}
	brief := *patchErr
	brief.RelativePath = entry.Path
	brief.OriginalContent = ""
	summary.Add(report.Diagnostic{
		Severity:   report.SeverityWarning,
		Code:       report.CodePatchFailed,
		TargetPath: entry.Path,
		PatchPath:  record.PatchPath,
		Message:    fmt.Sprintf("Applying patch %s to %s failed at hunk %d.", record.PatchPath, entry.Path, hunk),
		Detail:     patch.FormatError(&brief),
	})
	m.Logger.Warn(ctx, "Patch failed to apply",
		logging.Field("patch", record.PatchPath),
		logging.Field("target", entry.Path),
		logging.Field("hunk", hunk))

	if m.Options.OnFailure == config.OnFailureSkip {
		return nil
	}
	return m.Tree.WriteFile(dest, entry.Content)
}

func (m *Materializer) reject(ctx context.Context, entry archive.Entry, dest string, record patchindex.Record, result *patch.Result, summary *report.Summary) error {
	rejects := patch.RejectDiff(record.Diff, result.Rejected)
	if err := m.Tree.WriteFile(dest+patch.RejectSuffix, []byte(rejects.Format())); err != nil {
		return err
	}
	summary.Add(report.Diagnostic{
		Severity:   report.SeverityWarning,
		Code:       report.CodePatchPartial,
		TargetPath: entry.Path,
		PatchPath:  record.PatchPath,
		Message: fmt.Sprintf("Patch %s applied partially; %d hunk(s) written to %s%s.",
			record.PatchPath, len(result.Rejected), dest, patch.RejectSuffix),
		Detail: rejects.Format(),
	})
	m.Logger.Warn(ctx, "Patch applied partially",
		logging.Field("patch", record.PatchPath),
		logging.Field("target", entry.Path),
		logging.Field("rejected", len(result.Rejected)))
	return nil
}

func describeOffsets(statuses []patch.HunkStatus) string {
	out := ""
	for _, status := range statuses {
		if status.Status != "offset" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("hunk %d by %+d", status.Number, status.Offset)
	}
	return out
}
