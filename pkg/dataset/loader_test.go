package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/trainprep/pkg/config"
	"github.com/ajitpratap0/trainprep/pkg/container"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/metrics"
	"github.com/ajitpratap0/trainprep/pkg/testutil"
)

// memoryLoader loads c regardless of path; path must still exist on disk
func memoryLoader(t *testing.T, c *container.Memory, opts ...Option) (*Loader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.zip")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg := config.NewConfig(t.Name())
	cfg.Observability.EnableMetrics = false
	base := []Option{
		WithConfig(cfg),
		WithLogger(testutil.TestLogger(t)),
		WithOpener(func(string) (container.File, error) { return c, nil }),
	}
	return NewLoader(append(base, opts...)...), path
}

func loadErr(t *testing.T, c *container.Memory) error {
	t.Helper()
	l, path := memoryLoader(t, c)
	ds, err := l.Load(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, ds)
	return err
}

func TestLoadExample(t *testing.T) {
	path := testutil.WriteArchive(t, testutil.ExampleContainer(t))
	cfg := config.NewConfig("example")
	cfg.Observability.EnableMetrics = false

	ds, err := NewLoader(WithConfig(cfg), WithLogger(testutil.TestLogger(t))).
		Load(context.Background(), path)
	require.NoError(t, err)
	defer ds.Release()

	assert.Equal(t, []string{"pt", "eta"}, ds.Catalog.FeatureList())
	assert.Equal(t, []string{"pt", "eta", "eventweight"}, ds.Catalog.RawFeatureList())
	require.Len(t, ds.Samples, 1)

	s := ds.Samples[0]
	assert.Equal(t, "signal", s.Name())
	assert.Equal(t, 1, s.ClassLabel())
	assert.Equal(t, [2]int{3, 2}, s.Shape())
	assert.Equal(t, []float64{41.5, -1.2}, s.Row(0))
	assert.Equal(t, []float64{52.25, 2.1}, s.Row(2))

	assert.Equal(t, []string{"signal"}, ds.Names())
	assert.Equal(t, []int{1}, ds.Labels())
	assert.Equal(t, 3, ds.NumEvents())
}

func TestLoadOrdersColumnsByCatalog(t *testing.T) {
	scaling := testutil.ScalingRecord(t, []string{"pt", "eta", "eventweight"}, nil, nil, nil)
	shuffled := testutil.Record(t,
		testutil.Float64s("eventweight", 1, 1),
		testutil.Float64s("eta", 0.5, -0.5),
		testutil.Column{Name: "pt", Values: []float32{30, 40}},
	)
	other := testutil.Record(t,
		testutil.Float64s("pt", 10),
		testutil.Float64s("eta", 0),
		testutil.Float64s("eventweight", 2),
	)
	c := testutil.NewContainer(t, scaling,
		testutil.Sample{Name: "ttbar", Label: 0, Features: shuffled},
		testutil.Sample{Name: "signal", Label: int64(1), Features: other},
	)

	l, path := memoryLoader(t, c)
	ds, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	defer ds.Release()

	assert.Equal(t, []string{"ttbar", "signal"}, ds.Names())
	assert.Equal(t, []int{0, 1}, ds.Labels())
	assert.Equal(t, []float64{30, 0.5}, ds.Samples[0].Row(0))
	assert.Equal(t, []float64{40, -0.5}, ds.Samples[0].Row(1))

	s, ok := ds.Sample("signal")
	require.True(t, ok)
	assert.Equal(t, 1, s.NumEvents())
	_, ok = ds.Sample("data")
	assert.False(t, ok)
}

func TestLoadEmptySamplesGroup(t *testing.T) {
	scaling := testutil.ScalingRecord(t, []string{"pt"}, nil, nil, nil)
	c := testutil.NewContainer(t, scaling, []testutil.Sample{}...)

	l, path := memoryLoader(t, c)
	ds, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, ds.Samples)
	assert.Equal(t, []string{"pt"}, ds.Catalog.FeatureList())
}

func TestLoadMissingFile(t *testing.T) {
	l := NewLoader(WithLogger(testutil.TestLogger(t)))

	ds, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "absent.zip"))
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingFile))
	assert.True(t, errors.IsStructural(err))

	_, err = l.Load(context.Background(), t.TempDir())
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingFile))
}

func TestLoadNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.h5")
	require.NoError(t, os.WriteFile(path, []byte("not a container"), 0o600))

	_, err := NewLoader(WithLogger(testutil.TestLogger(t))).Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestLoadStructuralErrors(t *testing.T) {
	features := func() *testutil.Sample {
		return &testutil.Sample{
			Name:  "signal",
			Label: 1,
			Features: testutil.Record(t,
				testutil.Float64s("pt", 1),
				testutil.Float64s("eventweight", 1),
			),
		}
	}

	tests := []struct {
		name  string
		build func() *container.Memory
		want  errors.ErrorType
		text  string
	}{
		{
			name: "missing samples group",
			build: func() *container.Memory {
				return testutil.NewContainer(t, testutil.ScalingRecord(t, []string{"pt", "eventweight"}, nil, nil, nil))
			},
			want: errors.ErrorTypeMissingStructure,
			text: "samples",
		},
		{
			name: "missing scaling group",
			build: func() *container.Memory {
				return testutil.NewContainer(t, nil, *features())
			},
			want: errors.ErrorTypeMissingStructure,
			text: "scaling",
		},
		{
			name: "missing scaling table",
			build: func() *container.Memory {
				c := testutil.NewContainer(t, nil, *features())
				c.AddGroup("scaling")
				return c
			},
			want: errors.ErrorTypeMissingStructure,
			text: "scaling_data",
		},
		{
			name: "missing label",
			build: func() *container.Memory {
				s := features()
				s.Label = nil
				return testutil.NewContainer(t, testutil.ScalingRecord(t, []string{"pt", "eventweight"}, nil, nil, nil), *s)
			},
			want: errors.ErrorTypeMissingStructure,
			text: "training_label",
		},
		{
			name: "missing features table",
			build: func() *container.Memory {
				s := features()
				s.Features = nil
				return testutil.NewContainer(t, testutil.ScalingRecord(t, []string{"pt", "eventweight"}, nil, nil, nil), *s)
			},
			want: errors.ErrorTypeMissingStructure,
			text: "train_features",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loadErr(t, tt.build())
			assert.Equal(t, tt.want, errors.TypeOf(err))
			assert.True(t, errors.IsStructural(err))
			assert.Contains(t, err.Error(), tt.text)
		})
	}
}

func TestLoadSampleErrors(t *testing.T) {
	scalingNames := []string{"pt", "eta", "eventweight"}
	good := func() testutil.Sample {
		return testutil.Sample{
			Name:  "signal",
			Label: 1,
			Features: testutil.Record(t,
				testutil.Float64s("pt", 1, 2),
				testutil.Float64s("eta", 0, 1),
				testutil.Float64s("eventweight", 1, 1),
			),
		}
	}

	tests := []struct {
		name   string
		sample func() testutil.Sample
		want   errors.ErrorType
	}{
		{
			name:   "float label",
			sample: func() testutil.Sample { s := good(); s.Label = 1.5; return s },
			want:   errors.ErrorTypeTypeMismatch,
		},
		{
			name:   "string label",
			sample: func() testutil.Sample { s := good(); s.Label = "signal"; return s },
			want:   errors.ErrorTypeTypeMismatch,
		},
		{
			name:   "negative label",
			sample: func() testutil.Sample { s := good(); s.Label = -1; return s },
			want:   errors.ErrorTypeInvalidLabel,
		},
		{
			name: "field without scaling entry",
			sample: func() testutil.Sample {
				s := good()
				s.Features = testutil.Record(t,
					testutil.Float64s("pt", 1),
					testutil.Float64s("eta", 0),
					testutil.Float64s("eventweight", 1),
					testutil.Float64s("mass", 91.2),
				)
				return s
			},
			want: errors.ErrorTypeSchemaMismatch,
		},
		{
			name: "missing trainable field",
			sample: func() testutil.Sample {
				s := good()
				s.Features = testutil.Record(t, testutil.Float64s("pt", 1))
				return s
			},
			want: errors.ErrorTypeSchemaMismatch,
		},
		{
			name: "string field",
			sample: func() testutil.Sample {
				s := good()
				s.Features = testutil.Record(t,
					testutil.Float64s("pt", 1),
					testutil.Column{Name: "eta", Values: []string{"central"}},
				)
				return s
			},
			want: errors.ErrorTypeTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok := good()
			ok.Name = "background"
			c := testutil.NewContainer(t,
				testutil.ScalingRecord(t, scalingNames, nil, nil, nil),
				ok, tt.sample(),
			)
			err := loadErr(t, c)
			assert.Equal(t, tt.want, errors.TypeOf(err))
			assert.False(t, errors.IsStructural(err))
			assert.Contains(t, err.Error(), "signal")
		})
	}
}

func TestLoadLenientFields(t *testing.T) {
	features := testutil.Record(t,
		testutil.Float64s("pt", 1),
		testutil.Float64s("mass", 91.2),
	)
	c := testutil.NewContainer(t,
		testutil.ScalingRecord(t, []string{"pt"}, nil, nil, nil),
		testutil.Sample{Name: "signal", Label: 3, Features: features},
	)

	cfg := config.NewConfig("lenient")
	cfg.Features.Strict = false
	cfg.Observability.EnableMetrics = false
	l, path := memoryLoader(t, c, WithConfig(cfg))

	ds, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	defer ds.Release()
	assert.Equal(t, [2]int{1, 1}, ds.Samples[0].Shape())
	assert.Equal(t, 3, ds.Samples[0].ClassLabel())
}

func TestLoadCustomLayout(t *testing.T) {
	c := container.NewMemory("custom")
	defer c.Close()
	c.AddGroup("norm").SetTable("stats", testutil.ScalingRecord(t, []string{"pt", "w"}, nil, nil, nil))
	c.AddGroup("procs/zjets").
		SetAttr("class", 2).
		SetTable("events", testutil.Record(t, testutil.Float64s("pt", 5), testutil.Float64s("w", 1)))

	cfg := config.NewConfig("custom")
	cfg.Layout = config.LayoutConfig{
		ScalingGroup:   "norm",
		ScalingTable:   "stats",
		SamplesGroup:   "procs",
		FeaturesTable:  "events",
		LabelAttribute: "class",
	}
	cfg.Features.Ignore = []string{"w"}
	cfg.Observability.EnableMetrics = false
	require.NoError(t, cfg.Validate())

	l, path := memoryLoader(t, c, WithConfig(cfg))
	ds, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	defer ds.Release()

	assert.Equal(t, []string{"zjets"}, ds.Names())
	assert.Equal(t, []int{2}, ds.Labels())
	assert.Equal(t, []float64{5}, ds.Samples[0].Row(0))
}

func TestLoadRecordsMetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	l, path := memoryLoader(t, testutil.ExampleContainer(t),
		WithMetrics(metrics.NewCollector(reg)),
		WithTracer(tp.Tracer("test")),
	)
	ds, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	ds.Release()

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if m := f.GetMetric(); len(m) > 0 && m[0].GetCounter() != nil {
			values[f.GetName()] = m[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, values["trainprep_samples_loaded_total"])
	assert.Equal(t, 3.0, values["trainprep_events_loaded_total"])

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"dataset.catalog", "dataset.sample", "dataset.load"}, names)

	events := recorder.Ended()[1].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "converted", events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.Int64("rows", 3))
	assert.Contains(t, events[0].Attributes, attribute.Int64("columns", 2))
}

func TestLoadFailureRecordsErrorKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := testutil.NewContainer(t, testutil.ScalingRecord(t, []string{"pt"}, nil, nil, nil))

	l, path := memoryLoader(t, c, WithMetrics(metrics.NewCollector(reg)))
	_, err := l.Load(context.Background(), path)
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var kind string
	for _, f := range families {
		if f.GetName() == "trainprep_load_errors_total" {
			for _, lp := range f.GetMetric()[0].GetLabel() {
				kind = lp.GetValue()
			}
		}
	}
	assert.Equal(t, "missing_structure", kind)
}
