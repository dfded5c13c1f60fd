package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asynkron/forkpatch/internal/bundle"
	"github.com/asynkron/forkpatch/internal/logging"
)

func newBundleCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "bundle -o OUT.zip",
		Short: "Pack the configuration and every patch into a reproducible zip",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			idx, err := a.scan(ctx)
			if err != nil {
				return err
			}
			if err := bundle.WriteFile(output, a.cfg, idx); err != nil {
				return fmt.Errorf("write bundle %s: %w", output, err)
			}
			a.logger.Info(ctx, "Wrote bundle", logging.Field("path", output), logging.Field("patches", idx.Len()))
			fmt.Fprintf(a.stdout, "Wrote %s with %d patch(es)\n", output, idx.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "bundle file to write")
	cmd.Flags().String("patches", "", "patch directory")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
