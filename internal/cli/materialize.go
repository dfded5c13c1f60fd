package cli

import (
	"github.com/spf13/cobra"

	"github.com/asynkron/forkpatch/internal/config"
	"github.com/asynkron/forkpatch/internal/logging"
	"github.com/asynkron/forkpatch/internal/workspace"
)

func newMaterializeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Build the working tree from the pristine archive and the patches",
		Long: `Copy every pristine entry into the working tree, applying its patch when one
exists. Sources land under the sources subtree, everything else under resources.

Patches that cannot be applied are reported and the run exits with status 1
after the whole archive has been processed.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.materialize(cmd, workspace.NewFSTree(a.cfg.Workspace))
		},
	}
	inputFlags(cmd)
	applyModeFlags(cmd)
	cmd.Flags().String("workspace", "", "working tree directory")
	cmd.Flags().Bool("clean", false, "remove the sources and resources subtrees before writing")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Apply every patch in memory and report, writing nothing",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.materialize(cmd, workspace.NewMemoryTree())
		},
	}
	inputFlags(cmd)
	applyModeFlags(cmd)
	return cmd
}

func applyModeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-offset", 0, "lines a hunk may drift from its declared position (default from config: 50)")
	cmd.Flags().Int("workers", 0, "entries processed concurrently")
	cmd.Flags().String("on-failure", "", "what to write when a patch fails: pristine or skip")
	cmd.Flags().Bool("update", false, "apply the hunks that match and write the rest to .rej files")
}

func (a *app) materialize(cmd *cobra.Command, tree workspace.Tree) error {
	ctx := cmd.Context()
	src, idx, err := a.openInputs(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	m := workspace.New(tree, workspace.Options{
		Layout:    a.cfg.Layout,
		MaxOffset: a.cfg.MaxOffset,
		Workers:   a.cfg.Workers,
		Clean:     a.cfg.Clean,
		OnFailure: a.cfg.OnFailure,
		Update:    a.cfg.Update,
	})
	m.Logger = a.logger.WithFields(logging.Field("command", cmd.Name()))
	m.Metrics = a.metrics
	m.Progress = a.progressFor(src.Len(), cmd.Name())

	if a.cfg.OnFailure == config.OnFailureSkip {
		m.Logger.Debug(ctx, "Failed patches leave their destination untouched")
	}
	summary, runErr := m.Run(ctx, src, idx)
	if summary != nil {
		if err := a.render(summary); err != nil {
			return err
		}
	}
	return runErr
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}
