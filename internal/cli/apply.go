package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/asynkron/forkpatch/internal/report"
	"github.com/asynkron/forkpatch/pkg/patch"
)

type applyOutput struct {
	Target    string             `json:"target"`
	Outcome   patch.Outcome      `json:"outcome"`
	MaxOffset int                `json:"maxOffset"`
	Hunks     []patch.HunkStatus `json:"hunks"`
	Rejected  int                `json:"rejected"`
}

func newApplyCmd(a *app) *cobra.Command {
	var patchFile string
	cmd := &cobra.Command{
		Use:   "apply --patch FILE TARGET",
		Short: "Apply one unified diff to one file in place",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("%s takes exactly one TARGET, got %d", cmd.CommandPath(), len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(patchFile)
			if err != nil {
				return fmt.Errorf("read patch: %w", err)
			}
			diff, err := patch.Parse(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", patchFile, err)
			}
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}

			target := args[0]
			result, err := patch.ApplyFile(cmd.Context(), target, diff, patch.FilesystemOptions{
				Options:    patch.Options{MaxOffset: a.cfg.MaxOffset, Partial: a.cfg.Update},
				WorkingDir: cwd,
			})
			if err != nil {
				var patchErr *patch.Error
				if errors.As(err, &patchErr) {
					patchErr.OriginalContent = ""
					fmt.Fprintln(a.stderr, patch.FormatError(patchErr))
				}
				return err
			}

			out := applyOutput{
				Target:    target,
				Outcome:   result.Outcome,
				MaxOffset: result.MaxOffset,
				Hunks:     result.Hunks,
				Rejected:  len(result.Rejected),
			}
			if a.output == report.FormatJSON {
				encoder := json.NewEncoder(a.stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(out)
			}
			switch result.Outcome {
			case patch.OutcomeOffset:
				fmt.Fprintf(a.stdout, "Patched %s (hunks moved by up to %d lines)\n", target, result.MaxOffset)
			case patch.OutcomePartial:
				fmt.Fprintf(a.stdout, "Patched %s partially; %d hunk(s) written to %s%s\n", target, out.Rejected, target, patch.RejectSuffix)
			default:
				fmt.Fprintf(a.stdout, "Patched %s\n", target)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&patchFile, "patch", "", "unified diff to apply")
	cmd.Flags().Int("max-offset", 0, "lines a hunk may drift from its declared position (default from config: 50)")
	cmd.Flags().Bool("update", false, "apply the hunks that match and write the rest to TARGET.rej")
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}
