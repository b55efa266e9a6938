// Package catalog holds the per-feature scaling statistics written by the
// pre-processing stage.
//
// A Catalog keeps two views of the scaling table: the raw feature list,
// exactly as enumerated in the source, and the trainable feature list with
// the excluded names removed. The mean, scale and variance vectors are
// positionally aligned with the trainable list.
package catalog

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"gonum.org/v1/gonum/mat"

	"github.com/ajitpratap0/trainprep/pkg/errors"
)

// Column names of a scaling table
const (
	NameColumn  = "name"
	MeanColumn  = "mean"
	ScaleColumn = "scale"
	VarColumn   = "var"
)

// DefaultIgnore lists features that are never trained on
var DefaultIgnore = []string{"eventweight"}

// Params are the standardization statistics of one feature
type Params struct {
	Mean  float64 `json:"mean"`
	Scale float64 `json:"scale"`
	Var   float64 `json:"var"`
}

// Entry is one scaling record in source order
type Entry struct {
	Name string
	Params
}

// Catalog is immutable after construction and safe for concurrent reads
type Catalog struct {
	raw      []string
	features []string
	excluded []string
	mean     []float64
	scale    []float64
	variance []float64
	params   map[string]Params
	index    map[string]int
}

// New builds a catalog from scaling entries. Names listed in ignore are
// kept in the raw list but dropped everywhere else.
func New(entries []Entry, ignore []string) (*Catalog, error) {
	// First pass: raw order plus a lookup of every triad
	raw := make([]string, 0, len(entries))
	all := make(map[string]Params, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
				"scaling record %d has an empty feature name", i)
		}
		if _, dup := all[e.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
				"feature %q appears twice in the scaling table", e.Name).
				WithDetail("feature", e.Name)
		}
		raw = append(raw, e.Name)
		all[e.Name] = e.Params
	}

	skip := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		skip[name] = struct{}{}
	}

	// Second pass: filter and emit the aligned vectors
	c := &Catalog{
		raw:    raw,
		params: make(map[string]Params, len(raw)),
		index:  make(map[string]int, len(raw)),
	}
	for _, name := range raw {
		if _, ok := skip[name]; ok {
			c.excluded = append(c.excluded, name)
			continue
		}
		p := all[name]
		c.index[name] = len(c.features)
		c.features = append(c.features, name)
		c.mean = append(c.mean, p.Mean)
		c.scale = append(c.scale, p.Scale)
		c.variance = append(c.variance, p.Var)
		c.params[name] = p
	}
	return c, nil
}

// FromRecord builds a catalog from a scaling table with name, mean, scale
// and var columns
func FromRecord(rec arrow.Record, ignore []string) (*Catalog, error) {
	if rec == nil {
		return nil, errors.New(errors.ErrorTypeMissingStructure, "scaling table is empty")
	}

	names, err := stringColumn(rec, NameColumn)
	if err != nil {
		return nil, err
	}
	means, err := floatColumn(rec, MeanColumn)
	if err != nil {
		return nil, err
	}
	scales, err := floatColumn(rec, ScaleColumn)
	if err != nil {
		return nil, err
	}
	vars, err := floatColumn(rec, VarColumn)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(names))
	for i := range names {
		entries[i] = Entry{
			Name:   names[i],
			Params: Params{Mean: means[i], Scale: scales[i], Var: vars[i]},
		}
	}
	return New(entries, ignore)
}

func column(rec arrow.Record, name string) (arrow.Array, error) {
	idx := rec.Schema().FieldIndices(name)
	switch len(idx) {
	case 0:
		return nil, errors.Newf(errors.ErrorTypeMissingStructure,
			"scaling table has no %q column", name)
	case 1:
		return rec.Column(idx[0]), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
			"scaling table has %d %q columns", len(idx), name)
	}
}

func stringColumn(rec arrow.Record, name string) ([]string, error) {
	col, err := column(rec, name)
	if err != nil {
		return nil, err
	}

	out := make([]string, col.Len())
	switch arr := col.(type) {
	case *array.String:
		for i := range out {
			if arr.IsNull(i) {
				return nil, nullCell(name, i)
			}
			out[i] = arr.Value(i)
		}
	case *array.LargeString:
		for i := range out {
			if arr.IsNull(i) {
				return nil, nullCell(name, i)
			}
			out[i] = arr.Value(i)
		}
	case *array.Binary:
		for i := range out {
			if arr.IsNull(i) {
				return nil, nullCell(name, i)
			}
			out[i] = string(arr.Value(i))
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeTypeMismatch,
			"scaling column %q has type %s, want string", name, col.DataType())
	}
	return out, nil
}

// maxExact is the largest integer magnitude a float64 holds exactly
const maxExact = 1 << 53

func floatColumn(rec arrow.Record, name string) ([]float64, error) {
	col, err := column(rec, name)
	if err != nil {
		return nil, err
	}

	out := make([]float64, col.Len())
	for i := range out {
		if col.IsNull(i) {
			return nil, nullCell(name, i)
		}
		var v float64
		switch arr := col.(type) {
		case *array.Float64:
			v = arr.Value(i)
		case *array.Float32:
			v = float64(arr.Value(i))
		case *array.Int64:
			x := arr.Value(i)
			if x > maxExact || x < -maxExact {
				return nil, errors.Newf(errors.ErrorTypeTypeMismatch,
					"scaling column %q row %d: %d is not exact as float64", name, i, x)
			}
			v = float64(x)
		case *array.Int32:
			v = float64(arr.Value(i))
		case *array.Int16:
			v = float64(arr.Value(i))
		case *array.Int8:
			v = float64(arr.Value(i))
		default:
			return nil, errors.Newf(errors.ErrorTypeTypeMismatch,
				"scaling column %q has type %s, want float64", name, col.DataType())
		}
		out[i] = v
	}
	return out, nil
}

func nullCell(name string, row int) error {
	return errors.Newf(errors.ErrorTypeData, "scaling column %q row %d is null", name, row).
		WithDetail("column", name)
}

// RawFeatureList returns every feature name in source order, excluded ones
// included
func (c *Catalog) RawFeatureList() []string {
	return append([]string(nil), c.raw...)
}

// FeatureList returns the trainable features in source order
func (c *Catalog) FeatureList() []string {
	return append([]string(nil), c.features...)
}

// Excluded returns the raw features that were dropped
func (c *Catalog) Excluded() []string {
	return append([]string(nil), c.excluded...)
}

// Len is the number of trainable features
func (c *Catalog) Len() int {
	return len(c.features)
}

// Index returns the position of a trainable feature
func (c *Catalog) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Mean returns the means aligned with FeatureList
func (c *Catalog) Mean() []float64 {
	return append([]float64(nil), c.mean...)
}

// Scale returns the scales aligned with FeatureList
func (c *Catalog) Scale() []float64 {
	return append([]float64(nil), c.scale...)
}

// Var returns the variances aligned with FeatureList
func (c *Catalog) Var() []float64 {
	return append([]float64(nil), c.variance...)
}

// ScalingDict returns the parameters of every trainable feature
func (c *Catalog) ScalingDict() map[string]Params {
	out := make(map[string]Params, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// GetParams looks up a trainable feature
func (c *Catalog) GetParams(name string) (Params, error) {
	p, ok := c.params[name]
	if !ok {
		return Params{}, errors.Newf(errors.ErrorTypeUnknownFeature,
			"feature %q is not a trainable feature", name).
			WithDetail("feature", name)
	}
	return p, nil
}

// Standardize returns (x - mean) / scale applied per column. m must have
// one column per trainable feature.
func (c *Catalog) Standardize(m *mat.Dense) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "cannot standardize an empty matrix")
	}
	if cols != len(c.features) {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"matrix has %d columns, catalog has %d features", cols, len(c.features))
	}
	for j, s := range c.scale {
		if s == 0 || math.IsNaN(s) {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"feature %q has scale %v", c.features[j], s)
		}
	}

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - c.mean[j]) / c.scale[j]
	}, m)
	return out, nil
}

// String summarizes the catalog for logs
func (c *Catalog) String() string {
	return fmt.Sprintf("catalog(%d trainable of %d)", len(c.features), len(c.raw))
}
