package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/trainprep/pkg/config"
	"github.com/ajitpratap0/trainprep/pkg/dataset"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/export"
	"github.com/ajitpratap0/trainprep/pkg/fetch"
	"github.com/ajitpratap0/trainprep/pkg/logger"
	"github.com/ajitpratap0/trainprep/pkg/observability"
)

// envPrefix prefixes every environment override, e.g. TRAINPREP_LOG_LEVEL
const envPrefix = "TRAINPREP"

// newViper reads TRAINPREP_* overrides, with dashes in flag names mapped
// to underscores
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCmd() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:   "trainprep",
		Short: "trainprep - training input preparation",
		Long: `trainprep loads pre-processed event containers, attaches the scaling
statistics of every trainable feature and hands labelled event matrices to
a training job.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("trace", false, "Write OpenTelemetry spans to stderr")
	root.PersistentFlags().String("staging-dir", "", "Directory for downloaded s3:// and gs:// inputs")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trainprep v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newInspectCmd(v), newExportCmd(v))
	return root
}

func newInspectCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load a container and describe its samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDataset(cmd, v, func(ctx context.Context, r *run, ds *dataset.Dataset) error {
				printDataset(cmd.OutOrStdout(), ds, v.GetBool("verbose"))
				if v.GetBool("resources") {
					return printResources(cmd.OutOrStdout())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("input", "i", "", "Input container (path, s3:// or gs:// URI)")
	cmd.Flags().BoolP("verbose", "v", false, "List trainable features with their scaling parameters")
	cmd.Flags().Bool("resources", false, "Report process memory after loading")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newExportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every sample as a .npy matrix plus a JSON manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDataset(cmd, v, func(ctx context.Context, r *run, ds *dataset.Dataset) error {
				m, err := export.Write(ds, export.Options{
					Dir:         r.cfg.Export.Directory,
					Prefix:      r.cfg.Export.Prefix,
					Standardize: v.GetBool("standardize"),
					Input:       r.input,
					Logger:      r.log,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d samples to %s\n", len(m.Samples), r.cfg.Export.Directory)
				return nil
			})
		},
	}
	cmd.Flags().StringP("input", "i", "", "Input container (path, s3:// or gs:// URI)")
	cmd.Flags().StringP("output", "o", "", "Output file name prefix")
	cmd.Flags().String("dir", "", "Output directory")
	cmd.Flags().Bool("standardize", false, "Write (x - mean) / scale instead of raw values")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// run carries the resolved settings of one command invocation
type run struct {
	cfg   *config.Config
	log   *zap.Logger
	input string
}

// resolveConfig applies file, environment and flag settings, in that
// order of increasing precedence, on top of the defaults
func resolveConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewConfig("trainprep")
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load configuration")
		}
		cfg = loaded
	}

	if lvl := v.GetString("log-level"); lvl != "" {
		cfg.Observability.LogLevel = lvl
	}
	if v.GetBool("trace") {
		cfg.Observability.EnableTracing = true
	}
	if dir := v.GetString("dir"); dir != "" {
		cfg.Export.Directory = dir
	}
	if prefix := v.GetString("output"); prefix != "" {
		cfg.Export.Prefix = prefix
	}
	if staging := v.GetString("staging-dir"); staging != "" {
		cfg.Remote.StagingDir = staging
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	return cfg, nil
}

// withDataset resolves configuration, stages and loads the input, then
// calls fn. The dataset and any downloaded copy are released afterwards.
func withDataset(cmd *cobra.Command, v *viper.Viper, fn func(context.Context, *run, *dataset.Dataset) error) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind flags")
	}
	cfg, err := resolveConfig(v)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create logger")
	}
	logger.Set(log)
	defer func() { _ = log.Sync() }()

	tracing := observability.DefaultConfig()
	tracing.Enabled = cfg.Observability.EnableTracing
	tracing.SamplingRate = cfg.Observability.TracingSampleRate
	tracing.ServiceVersion = version
	tracing.Writer = cmd.ErrOrStderr()
	if err := observability.Init(tracing); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize tracing")
	}
	defer func() { _ = observability.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = context.WithValue(ctx, logger.RunIDKey, uuid.NewString())

	input := v.GetString("input")
	stager := fetch.NewStager(fetch.WithRemoteConfig(cfg.Remote), fetch.WithLogger(log))
	defer func() { _ = stager.Close() }()

	staged, err := stager.Stage(ctx, input)
	if err != nil {
		return err
	}
	defer func() {
		if err := staged.Cleanup(); err != nil {
			log.Warn("failed to remove staged input", zap.Error(err))
		}
	}()

	ds, err := dataset.NewLoader(dataset.WithConfig(cfg), dataset.WithLogger(log)).Load(ctx, staged.Path)
	if err != nil {
		return err
	}
	defer ds.Release()

	return fn(ctx, &run{cfg: cfg, log: log, input: input}, ds)
}

func printDataset(w io.Writer, ds *dataset.Dataset, verbose bool) {
	cat := ds.Catalog
	fmt.Fprintf(w, "features: %d trainable of %d (excluded: %s)\n",
		cat.Len(), len(cat.RawFeatureList()), strings.Join(cat.Excluded(), ", "))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SAMPLE\tLABEL\tEVENTS\tFEATURES")
	for _, s := range ds.Samples {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Name(), s.ClassLabel(), s.NumEvents(), s.NumFeatures())
	}
	_ = tw.Flush()

	if !verbose {
		return
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tMEAN\tSCALE\tVAR")
	mean, scale, variance := cat.Mean(), cat.Scale(), cat.Var()
	for i, name := range cat.FeatureList() {
		fmt.Fprintf(tw, "%s\t%g\t%g\t%g\n", name, mean[i], scale[i], variance[i])
	}
	_ = tw.Flush()
}

func printResources(w io.Writer) error {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to inspect process")
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to read process memory")
	}
	fmt.Fprintf(w, "rss: %.1f MB\n", float64(memInfo.RSS)/1024/1024)

	// System memory is informational; some sandboxes hide it
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(w, "system memory used: %.1f%% (%.1f MB available)\n",
			vm.UsedPercent, float64(vm.Available)/1024/1024)
	}
	return nil
}
