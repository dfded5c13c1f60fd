package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/asynkron/forkpatch/internal/logging"
	"github.com/asynkron/forkpatch/internal/patchindex"
	"github.com/asynkron/forkpatch/internal/report"
	"github.com/asynkron/forkpatch/pkg/patch"
)

type listEntry struct {
	Target    string `json:"target"`
	PatchPath string `json:"patchPath"`
	Hunks     int    `json:"hunks"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the patches and the files they modify",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			idx, err := a.scan(ctx)
			if err != nil {
				return err
			}
			for _, w := range idx.Warnings() {
				a.logger.Warn(ctx, w.Message, logging.Field("code", w.Code))
			}
			entries := lo.Map(idx.Records(), func(r patchindex.Record, _ int) listEntry {
				added, removed := lineCounts(r.Diff)
				return listEntry{
					Target:    r.Target,
					PatchPath: r.PatchPath,
					Hunks:     len(r.Diff.Hunks),
					Added:     added,
					Removed:   removed,
				}
			})
			return a.printList(idx, entries)
		},
	}
	cmd.Flags().String("patches", "", "patch directory")
	return cmd
}

func (a *app) printList(idx *patchindex.Index, entries []listEntry) error {
	switch a.output {
	case report.FormatJSON:
		encoder := json.NewEncoder(a.stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case report.FormatMarkdown:
		fmt.Fprintln(a.stdout, "| Target | Hunks | Added | Removed | Patch |")
		fmt.Fprintln(a.stdout, "|---|---:|---:|---:|---|")
		for _, e := range entries {
			fmt.Fprintf(a.stdout, "| %s | %d | %d | %d | %s |\n", e.Target, e.Hunks, e.Added, e.Removed, relativeTo(idx.Root(), e.PatchPath))
		}
		return nil
	}

	table := tablewriter.NewWriter(a.stdout)
	table.SetHeader([]string{"Target", "Hunks", "Added", "Removed", "Patch"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	for _, e := range entries {
		table.Append([]string{
			e.Target,
			fmt.Sprintf("%d", e.Hunks),
			fmt.Sprintf("+%d", e.Added),
			fmt.Sprintf("-%d", e.Removed),
			relativeTo(idx.Root(), e.PatchPath),
		})
	}
	table.Render()
	fmt.Fprintf(a.stdout, "%d patch(es) in %s\n", len(entries), idx.Root())
	return nil
}

func lineCounts(d *patch.FileDiff) (added, removed int) {
	for _, hunk := range d.Hunks {
		for _, line := range hunk.Lines {
			switch line.Kind {
			case patch.LineAdded:
				added++
			case patch.LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

func relativeTo(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
