// Package dataset loads training inputs from a pre-processed container
// file into labelled float64 matrices.
//
// # Overview
//
// A load runs in one pass over the container:
//   - The scaling table is read once into a catalog.Catalog
//   - Every sub-group of the samples group becomes one sample.Sample
//   - Sample fields are selected in catalog feature order and converted
//     with a checked per-field copy
//
// Any failure aborts the whole load. Samples assembled before the failure
// are released and no partial Dataset is returned. Errors carry one of the
// kinds in pkg/errors so callers can tell a malformed file from a bad
// sample.
//
// # Basic Usage
//
//	loader := dataset.NewLoader(
//	    dataset.WithConfig(cfg),
//	    dataset.WithLogger(logger),
//	)
//
//	ds, err := loader.Load(ctx, "inputs.zip")
//	if err != nil {
//	    return err
//	}
//	defer ds.Release()
//
//	for _, s := range ds.Samples {
//	    fmt.Println(s.Name(), s.ClassLabel(), s.Shape())
//	}
package dataset

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/trainprep/pkg/catalog"
	"github.com/ajitpratap0/trainprep/pkg/config"
	"github.com/ajitpratap0/trainprep/pkg/container"
	"github.com/ajitpratap0/trainprep/pkg/container/archive"
	"github.com/ajitpratap0/trainprep/pkg/convert"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/logger"
	"github.com/ajitpratap0/trainprep/pkg/metrics"
	"github.com/ajitpratap0/trainprep/pkg/observability"
	"github.com/ajitpratap0/trainprep/pkg/sample"
)

const tracerName = "github.com/ajitpratap0/trainprep/pkg/dataset"

// Loader reads containers laid out as described by its config. A Loader
// holds no per-load state and may be reused.
type Loader struct {
	cfg     *config.Config
	logger  *zap.Logger
	opener  container.Opener
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// Option configures a Loader
type Option func(*Loader)

// WithConfig sets layout names and feature exclusions
func WithConfig(cfg *config.Config) Option {
	return func(l *Loader) { l.cfg = cfg }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) { l.logger = log }
}

// WithOpener replaces archive.Open as the container reader
func WithOpener(open container.Opener) Option {
	return func(l *Loader) { l.opener = open }
}

// WithMetrics records loads on c
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Loader) { l.metrics = c }
}

// WithTracer sets the tracer for load spans
func WithTracer(t trace.Tracer) Option {
	return func(l *Loader) { l.tracer = t }
}

// NewLoader creates a loader. Without options it reads archives with the
// default layout, excludes eventweight and logs to the global logger.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.cfg == nil {
		l.cfg = config.NewConfig("trainprep")
	}
	if l.logger == nil {
		l.logger = logger.Get()
	}
	if l.opener == nil {
		l.opener = archive.Open
	}
	if l.metrics == nil && l.cfg.Observability.EnableMetrics {
		l.metrics = metrics.Default()
	}
	if l.tracer == nil {
		l.tracer = observability.Tracer(tracerName)
	}
	return l
}

// Load reads the container at path with a default Loader
func Load(ctx context.Context, path string) (*Dataset, error) {
	return NewLoader().Load(ctx, path)
}

// Load reads every sample of the container at inputPath. ctx carries
// logging and tracing values only; a load is not cancelled midway.
func (l *Loader) Load(ctx context.Context, inputPath string) (ds *Dataset, err error) {
	ctx = context.WithValue(ctx, logger.InputPathKey, inputPath)
	log := logger.FromContext(ctx, l.logger)
	timer := metrics.NewTimer()

	ctx, span := observability.StartSpan(ctx, l.tracer, "dataset.load")
	span.SetAttribute("input_path", inputPath)
	defer func() {
		if ds != nil {
			span.SetAttribute("samples", len(ds.Samples))
		}
		span.Finish(err)
		if l.metrics != nil {
			l.metrics.ObserveLoad(timer.Stop(), err)
		}
		if err != nil {
			log.Error("failed to load dataset",
				zap.String("kind", string(errors.TypeOf(err))),
				zap.Error(err))
		}
	}()

	if err := checkInput(inputPath); err != nil {
		return nil, err
	}

	f, err := l.opener(inputPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn("failed to close input", zap.Error(closeErr))
		}
	}()

	cat, err := l.loadCatalog(ctx, f)
	if err != nil {
		return nil, err
	}

	samples, err := l.loadSamples(ctx, f, cat)
	if err != nil {
		return nil, err
	}

	ds = &Dataset{Samples: samples, Catalog: cat}
	for _, s := range samples {
		log.Info("loaded sample",
			zap.String("sample", s.Name()),
			zap.Int("label", s.ClassLabel()),
			zap.Int("events", s.NumEvents()))
	}
	log.Info("dataset loaded",
		zap.Int("samples", len(samples)),
		zap.Int("events", ds.NumEvents()),
		zap.Duration("duration", timer.Stop()))
	return ds, nil
}

func checkInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeMissingFile,
			fmt.Sprintf("input file %s does not exist", path)).
			WithDetail("path", path)
	}
	if !info.Mode().IsRegular() {
		return errors.Newf(errors.ErrorTypeMissingFile, "input %s is not a regular file", path).
			WithDetail("path", path)
	}
	return nil
}

func (l *Loader) loadCatalog(ctx context.Context, f container.File) (cat *catalog.Catalog, err error) {
	_, span := observability.StartSpan(ctx, l.tracer, "dataset.catalog")
	defer func() { span.Finish(err) }()

	layout := l.cfg.Layout
	g, err := f.Group(layout.ScalingGroup)
	if err != nil {
		return nil, errors.Annotate(err, "scaling statistics")
	}
	rec, err := g.Table(layout.ScalingTable)
	if err != nil {
		return nil, errors.Annotate(err, "scaling statistics")
	}
	defer rec.Release()

	cat, err = catalog.FromRecord(rec, l.cfg.Features.Ignore)
	if err != nil {
		return nil, errors.Annotate(err, layout.ScalingPath())
	}

	raw := len(cat.RawFeatureList())
	span.SetAttribute("features", cat.FeatureList())
	span.SetAttribute("raw_features", raw)
	if l.metrics != nil {
		l.metrics.RecordCatalog(raw, cat.Len())
	}

	logger.FromContext(ctx, l.logger).Info(
		fmt.Sprintf("found %d features to train on (there were %d total)", cat.Len(), raw),
		zap.Strings("features", cat.FeatureList()),
		zap.Strings("excluded", cat.Excluded()))
	return cat, nil
}

func (l *Loader) loadSamples(ctx context.Context, f container.File, cat *catalog.Catalog) ([]*sample.Sample, error) {
	parent, err := f.Group(l.cfg.Layout.SamplesGroup)
	if err != nil {
		return nil, errors.Annotate(err, "training samples")
	}

	var tracker *metrics.ThroughputTracker
	if l.metrics != nil {
		tracker = metrics.NewThroughputTracker(l.metrics)
	}

	names := parent.Groups()
	samples := make([]*sample.Sample, 0, len(names))
	for _, name := range names {
		s, err := l.loadSample(ctx, parent, name, cat)
		if err != nil {
			for _, built := range samples {
				built.Release()
			}
			return nil, err
		}
		samples = append(samples, s)

		if l.metrics != nil {
			l.metrics.RecordSample(fmt.Sprint(s.ClassLabel()), s.NumEvents())
			tracker.Increment(int64(s.NumEvents()))
		}
	}

	if tracker != nil {
		tracker.GetAndReset()
	}
	return samples, nil
}

func (l *Loader) loadSample(ctx context.Context, parent container.Group, name string, cat *catalog.Catalog) (s *sample.Sample, err error) {
	ctx = context.WithValue(ctx, logger.SampleKey, name)
	_, span := observability.StartSpan(ctx, l.tracer, "dataset.sample")
	span.SetAttribute("sample", name)
	defer func() { span.Finish(err) }()

	where := fmt.Sprintf("sample %s", name)
	layout := l.cfg.Layout

	g, err := parent.Group(name)
	if err != nil {
		return nil, errors.Annotate(err, where)
	}

	label, err := g.Attrs().Int(layout.LabelAttribute)
	if err != nil {
		return nil, errors.Annotate(err, where)
	}
	if int64(int(label)) != label {
		return nil, errors.Newf(errors.ErrorTypeInvalidLabel,
			"sample %q: class label %d overflows int", name, label).
			WithDetail("sample", name)
	}

	rec, err := g.Table(layout.FeaturesTable)
	if err != nil {
		return nil, errors.Annotate(err, where)
	}
	defer rec.Release()

	if l.cfg.Features.Strict {
		if err := checkFields(rec.Schema().Fields(), cat); err != nil {
			return nil, errors.Annotate(err, where)
		}
	}

	features := cat.FeatureList()
	sel, err := convert.Select(rec, features)
	if err != nil {
		return nil, errors.Annotate(err, where)
	}
	defer sel.Release()

	data, err := convert.Convert(sel, features)
	if err != nil {
		return nil, errors.Annotate(err, where)
	}
	defer data.Release()
	span.AddEvent("converted",
		attribute.Int64("rows", data.Shape()[0]),
		attribute.Int64("columns", data.Shape()[1]))

	s, err = sample.New(name, int(label), data)
	if err != nil {
		return nil, err
	}

	span.SetAttribute("label", s.ClassLabel())
	span.SetAttribute("events", s.NumEvents())
	logger.FromContext(ctx, l.logger).Debug("converted sample",
		zap.Int("events", s.NumEvents()),
		zap.Int("features", s.NumFeatures()))
	return s, nil
}
