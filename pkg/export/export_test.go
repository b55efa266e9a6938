package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ajitpratap0/trainprep/pkg/config"
	"github.com/ajitpratap0/trainprep/pkg/dataset"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/testutil"
)

func loadExample(t *testing.T) *dataset.Dataset {
	t.Helper()
	path := testutil.WriteArchive(t, testutil.ExampleContainer(t))
	cfg := config.NewConfig("export")
	cfg.Observability.EnableMetrics = false

	ds, err := dataset.NewLoader(dataset.WithConfig(cfg), dataset.WithLogger(testutil.TestLogger(t))).
		Load(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(ds.Release)
	return ds
}

func TestWriteRaw(t *testing.T) {
	ds := loadExample(t)
	dir := filepath.Join(t.TempDir(), "out")

	m, err := Write(ds, Options{Dir: dir, Prefix: "test", Input: "input.zip", Logger: testutil.TestLogger(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"pt", "eta"}, m.Features)
	assert.Equal(t, []string{"eventweight"}, m.Excluded)
	require.Len(t, m.Samples, 1)
	assert.Equal(t, SampleEntry{Name: "signal", Label: 1, Events: 3, Features: 2, Shape: []int{3, 2}, File: "test_signal.npy"}, m.Samples[0])

	got, err := ReadMatrix(filepath.Join(dir, "test_signal.npy"))
	require.NoError(t, err)
	want := mat.NewDense(3, 2, []float64{
		41.5, -1.2,
		60, 0.3,
		52.25, 2.1,
	})
	assert.True(t, mat.Equal(want, got))

	read, err := ReadManifest(filepath.Join(dir, ManifestName("test")))
	require.NoError(t, err)
	assert.Equal(t, m.Samples, read.Samples)
	assert.Equal(t, []float64{50, 0}, read.Mean)
	assert.Equal(t, "input.zip", read.Input)
	assert.False(t, read.Standardized)
}

func TestWriteStandardized(t *testing.T) {
	ds := loadExample(t)
	dir := t.TempDir()

	_, err := Write(ds, Options{Dir: dir, Prefix: "std", Standardize: true, Logger: testutil.TestLogger(t)})
	require.NoError(t, err)

	got, err := ReadMatrix(filepath.Join(dir, SampleFileName("std", "signal")))
	require.NoError(t, err)
	assert.InDelta(t, -0.85, got.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, got.At(1, 0), 1e-12)
	assert.InDelta(t, 2.1, got.At(2, 1), 1e-12)
}

func TestWriteEmptySample(t *testing.T) {
	scaling := testutil.ScalingRecord(t, []string{"pt", "eta", "eventweight"}, nil, nil, nil)
	empty := testutil.Record(t,
		testutil.Float64s("pt"),
		testutil.Float64s("eta"),
		testutil.Float64s("eventweight"),
	)
	src := testutil.NewContainer(t, scaling, testutil.Sample{Name: "background", Label: 0, Features: empty})
	path := testutil.WriteArchive(t, src)

	cfg := config.NewConfig("export")
	cfg.Observability.EnableMetrics = false
	ds, err := dataset.NewLoader(dataset.WithConfig(cfg), dataset.WithLogger(testutil.TestLogger(t))).
		Load(context.Background(), path)
	require.NoError(t, err)
	defer ds.Release()

	dir := t.TempDir()
	m, err := Write(ds, Options{Dir: dir, Prefix: "test", Standardize: true})
	require.NoError(t, err)
	require.Len(t, m.Samples, 1)

	entry := m.Samples[0]
	assert.Equal(t, 0, entry.Events)
	assert.Equal(t, 2, entry.Features)
	assert.Equal(t, []int{0}, entry.Shape)

	read, err := ReadManifest(filepath.Join(dir, ManifestName("test")))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, read.Samples[0].Shape)

	got, err := ReadMatrix(filepath.Join(dir, entry.File))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWriteRequiresPrefix(t *testing.T) {
	_, err := Write(loadExample(t), Options{Dir: t.TempDir()})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestReadMissing(t *testing.T) {
	_, err := ReadMatrix(filepath.Join(t.TempDir(), "absent.npy"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingFile))

	_, err = ReadManifest(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingFile))
}
