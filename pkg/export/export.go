// Package export writes a loaded dataset to NumPy files: one matrix per
// sample plus a JSON manifest carrying labels, the feature order and the
// scaling vectors.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sbinet/npyio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ajitpratap0/trainprep/pkg/dataset"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	jsonpool "github.com/ajitpratap0/trainprep/pkg/json"
	"github.com/ajitpratap0/trainprep/pkg/logger"
	"github.com/ajitpratap0/trainprep/pkg/sample"
)

// Options controls an export
type Options struct {
	// Dir receives the files
	Dir string
	// Prefix starts every file name
	Prefix string
	// Standardize writes (x - mean) / scale instead of raw values
	Standardize bool
	// Input is recorded in the manifest
	Input  string
	Logger *zap.Logger
}

// SampleEntry describes one exported matrix. Events and Features give the
// logical [events, features] shape; Shape is the array shape stored in File,
// which is (0,) for a sample without events.
type SampleEntry struct {
	Name     string `json:"name"`
	Label    int    `json:"label"`
	Events   int    `json:"events"`
	Features int    `json:"features"`
	Shape    []int  `json:"shape"`
	File     string `json:"file"`
}

// Manifest is written next to the matrices
type Manifest struct {
	Input        string        `json:"input,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	Standardized bool          `json:"standardized"`
	Features     []string      `json:"features"`
	Excluded     []string      `json:"excluded"`
	Mean         []float64     `json:"mean"`
	Scale        []float64     `json:"scale"`
	Var          []float64     `json:"var"`
	Samples      []SampleEntry `json:"samples"`
}

// ManifestName returns the manifest file name for prefix
func ManifestName(prefix string) string {
	return prefix + "_manifest.json"
}

// SampleFileName returns the matrix file name of a sample
func SampleFileName(prefix, sampleName string) string {
	return fmt.Sprintf("%s_%s.npy", prefix, sampleName)
}

// Write exports every sample of ds and the manifest
func Write(ds *dataset.Dataset, opts Options) (*Manifest, error) {
	if opts.Prefix == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "export prefix is required")
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create export directory").
			WithDetail("dir", opts.Dir)
	}

	cat := ds.Catalog
	m := &Manifest{
		Input:        opts.Input,
		CreatedAt:    time.Now().UTC(),
		Standardized: opts.Standardize,
		Features:     cat.FeatureList(),
		Excluded:     cat.Excluded(),
		Mean:         cat.Mean(),
		Scale:        cat.Scale(),
		Var:          cat.Var(),
		Samples:      make([]SampleEntry, 0, len(ds.Samples)),
	}

	for _, s := range ds.Samples {
		name := SampleFileName(opts.Prefix, s.Name())
		shape, err := writeSample(filepath.Join(opts.Dir, name), s, ds, opts.Standardize)
		if err != nil {
			return nil, err
		}
		m.Samples = append(m.Samples, SampleEntry{
			Name:     s.Name(),
			Label:    s.ClassLabel(),
			Events:   s.NumEvents(),
			Features: s.NumFeatures(),
			Shape:    shape,
			File:     name,
		})
		log.Debug("exported sample", zap.String("sample", s.Name()), zap.String("file", name))
	}

	data, err := jsonpool.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode manifest")
	}
	manifest := filepath.Join(opts.Dir, ManifestName(opts.Prefix))
	if err := os.WriteFile(manifest, data, 0o644); err != nil { //nolint:gosec
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to write manifest").
			WithDetail("path", manifest)
	}

	log.Info("exported dataset",
		zap.String("dir", opts.Dir),
		zap.Int("samples", len(m.Samples)),
		zap.Bool("standardized", opts.Standardize))
	return m, nil
}

// writeSample writes one matrix and returns the array shape stored in it
func writeSample(path string, s *sample.Sample, ds *dataset.Dataset, standardize bool) (shape []int, err error) {
	f, err := os.Create(path) //nolint:gosec // G304: path is built from the export options
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create matrix file").
			WithDetail("path", path)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Wrap(closeErr, errors.ErrorTypeFile, "failed to close matrix file")
		}
	}()

	// gonum has no empty matrices; an empty sample is written as a flat
	// zero-length array
	dense := s.Dense()
	if dense == nil {
		if err := npyio.Write(f, []float64{}); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to write matrix").
				WithDetail("path", path)
		}
		return []int{0}, nil
	}

	var out mat.Matrix = dense
	if standardize {
		std, err := ds.Catalog.Standardize(dense)
		if err != nil {
			return nil, errors.Annotate(err, fmt.Sprintf("sample %s", s.Name()))
		}
		out = std
	}

	if err := npyio.Write(f, out); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to write matrix").
			WithDetail("path", path)
	}
	r, c := out.Dims()
	return []int{r, c}, nil
}

// ReadMatrix reads an exported matrix. A file holding no elements, as
// written for a sample without events, reads as nil.
func ReadMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMissingFile, "failed to open matrix").
			WithDetail("path", path)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read matrix header").
			WithDetail("path", path)
	}
	n := 1
	for _, d := range r.Header.Descr.Shape {
		n *= d
	}
	if n == 0 {
		return nil, nil
	}

	var m mat.Dense
	if err := r.Read(&m); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read matrix").
			WithDetail("path", path)
	}
	return &m, nil
}

// ReadManifest reads a manifest written by Write
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMissingFile, "failed to read manifest").
			WithDetail("path", path)
	}
	var m Manifest
	if err := jsonpool.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed manifest").
			WithDetail("path", path)
	}
	return &m, nil
}
