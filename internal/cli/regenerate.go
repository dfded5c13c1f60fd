package cli

import (
	"github.com/spf13/cobra"

	"github.com/asynkron/forkpatch/internal/logging"
	"github.com/asynkron/forkpatch/internal/regen"
)

func newRegenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rewrite the patches from the edited working tree",
		Long: `Diff every pristine source file against its working copy and create, update
or delete the matching patch file. Every generated patch is verified against
the pristine file before it is written.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, idx, err := a.openInputs(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			r := regen.New(a.cfg.Workspace, regen.Options{
				Layout:       a.cfg.Layout,
				ContextLines: a.cfg.ContextLines,
				Prune:        a.cfg.Prune,
			})
			r.Logger = a.logger.WithFields(logging.Field("command", cmd.Name()))
			r.Metrics = a.metrics

			summary, runErr := r.Run(ctx, src, idx)
			if summary != nil {
				if err := a.render(summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	inputFlags(cmd)
	cmd.Flags().String("workspace", "", "working tree directory")
	cmd.Flags().Int("context", 0, "context lines around each change (default from config: 3)")
	cmd.Flags().Bool("prune", false, "delete patches whose target is no longer in the archive")
	return cmd
}
