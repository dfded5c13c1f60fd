package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/asynkron/forkpatch/internal/archive"
	"github.com/asynkron/forkpatch/internal/config"
	"github.com/asynkron/forkpatch/internal/logging"
	"github.com/asynkron/forkpatch/internal/metrics"
	"github.com/asynkron/forkpatch/internal/patchindex"
	"github.com/asynkron/forkpatch/internal/progress"
	"github.com/asynkron/forkpatch/internal/report"
	"github.com/asynkron/forkpatch/internal/workspace"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
	format     string
	logLevel   string
	noColor    bool

	cfg     config.Config
	output  report.Format
	logger  logging.Logger
	metrics *metrics.InMemoryMetrics
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		getenv:  os.Getenv,
		logger:  &logging.NoOpLogger{},
		metrics: metrics.NewInMemoryMetrics(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forkpatch",
		Short: "Maintain a fork as patches over a pristine source archive",
		Long: `forkpatch keeps local modifications to a third-party source tree as a
directory of unified diffs, one per modified file, mirroring the archive layout.

  materialize  build the working tree from the archive and the patches
  regenerate   rewrite the patches from the edited working tree
  check        apply every patch in memory and report, writing nothing`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "configuration file (default: forkpatch.yaml in the working directory); relative paths inside it resolve against its directory")
	flags.StringVar(&a.format, "format", "", "summary format: text, markdown or json")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(
		newMaterializeCmd(a),
		newCheckCmd(a),
		newRegenerateCmd(a),
		newApplyCmd(a),
		newListCmd(a),
		newBundleCmd(a),
	)
	return cmd
}

// setup resolves the configuration: defaults, then the config file and the
// environment, then the flags the user actually set.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, path, err := config.Load(config.LoadOptions{Path: a.configPath, Getenv: a.getenv})
	if err != nil {
		return err
	}
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err: err}
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return &usageError{err: err}
	}
	output, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return &usageError{err: err}
	}

	a.cfg = cfg
	a.output = output
	a.logger = logging.NewStdLogger(level, a.stderr, logging.Options{Color: a.colorOn(a.stderr)})

	ctx := logging.WithRunID(cmd.Context(), logging.NewRunID())
	cmd.SetContext(ctx)
	if path != "" {
		a.logger.Debug(ctx, "Loaded configuration", logging.Field("path", path))
	}
	return nil
}

// applyFlags copies explicitly set flags onto cfg. Flags left at their
// defaults never override the file or the environment.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	stringFlags := map[string]*string{
		"archive":    &cfg.Archive,
		"patches":    &cfg.Patches,
		"workspace":  &cfg.Workspace,
		"on-failure": &cfg.OnFailure,
		"format":     &cfg.Format,
		"log-level":  &cfg.LogLevel,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	ints := map[string]*int{
		"max-offset": &cfg.MaxOffset,
		"workers":    &cfg.Workers,
		"context":    &cfg.ContextLines,
	}
	for name, dst := range ints {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	bools := map[string]*bool{
		"clean":  &cfg.Clean,
		"update": &cfg.Update,
		"prune":  &cfg.Prune,
	}
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func (a *app) colorOn(w io.Writer) bool {
	if a.noColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && progress.IsTerminal(f)
}

// inputFlags registers the flags naming the pristine archive and patch root.
func inputFlags(cmd *cobra.Command) {
	cmd.Flags().String("archive", "", "pristine archive (.zip/.jar) or extracted directory")
	cmd.Flags().String("patches", "", "patch directory")
}

// openInputs opens the pristine archive and scans the patch directory.
func (a *app) openInputs(ctx context.Context) (archive.Archive, *patchindex.Index, error) {
	if a.cfg.Archive == "" {
		return nil, nil, usagef("no pristine archive configured; pass --archive or set archive in forkpatch.yaml")
	}
	idx, err := a.scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	src, err := archive.Open(a.cfg.Archive, archive.Classifier{
		SourceExtensions: a.cfg.SourceExtensions,
		ResourceGlobs:    a.cfg.ResourceGlobs,
	})
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug(ctx, "Opened pristine archive", logging.Field("archive", a.cfg.Archive), logging.Field("entries", src.Len()))
	return src, idx, nil
}

func (a *app) scan(ctx context.Context) (*patchindex.Index, error) {
	timer := startTimer()
	idx, err := patchindex.Scan(a.cfg.Patches, patchindex.Options{Suffix: a.cfg.Suffix, Ignore: a.cfg.Ignore})
	a.metrics.RecordPhase(metrics.PhaseIndex, timer())
	if err != nil {
		return nil, err
	}
	a.logger.Debug(ctx, "Scanned patch directory", logging.Field("root", idx.Root()), logging.Field("patches", idx.Len()))
	return idx, nil
}

// progressFor returns a progress bar when stderr is a terminal.
func (a *app) progressFor(total int, description string) workspace.Progress {
	f, ok := a.stderr.(*os.File)
	if !ok || !progress.IsTerminal(f) {
		return nil
	}
	return progress.New(a.stderr, total, description)
}

func (a *app) render(summary *report.Summary) error {
	snapshot := a.metrics.GetSnapshot()
	if err := report.Render(a.stdout, summary, report.RenderOptions{
		Format:  a.output,
		Color:   a.colorOn(a.stdout),
		Width:   100,
		Metrics: &snapshot,
	}); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}

func startTimer() func() time.Duration {
	started := time.Now()
	return func() time.Duration { return time.Since(started) }
}
