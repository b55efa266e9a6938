// Package convert turns structured event records into dense float64
// matrices.
//
// Every cell is copied through a checked per-type conversion; nothing is
// reinterpreted in place. Column j of the output always holds the record
// field named features[j], whatever the field order in the record.
package convert

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/tensor"

	"github.com/ajitpratap0/trainprep/pkg/errors"
)

// DimNames label the two tensor dimensions
var DimNames = []string{"event", "feature"}

// maxExact is the largest integer magnitude a float64 holds exactly
const maxExact = 1 << 53

// Mapping resolves feature names to record column indices
func Mapping(schema *arrow.Schema, features []string) ([]int, error) {
	cols := make([]int, len(features))
	seen := make(map[string]struct{}, len(features))
	for j, name := range features {
		if _, dup := seen[name]; dup {
			return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
				"feature %q requested twice", name).
				WithDetail("feature", name)
		}
		seen[name] = struct{}{}

		idx := schema.FieldIndices(name)
		switch len(idx) {
		case 0:
			return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
				"record has no field %q", name).
				WithDetail("feature", name)
		case 1:
			cols[j] = idx[0]
		default:
			return nil, errors.Newf(errors.ErrorTypeSchemaMismatch,
				"record has %d fields named %q", len(idx), name).
				WithDetail("feature", name)
		}
	}
	return cols, nil
}

// Convert copies the named fields of rec into a row-major
// [rec.NumRows(), len(features)] float64 tensor
func Convert(rec arrow.Record, features []string) (*tensor.Float64, error) {
	if rec == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "record is nil")
	}
	cols, err := Mapping(rec.Schema(), features)
	if err != nil {
		return nil, err
	}

	rows := int(rec.NumRows())
	k := len(features)
	buf := make([]float64, rows*k)
	for j, c := range cols {
		if err := copyColumn(buf, j, k, rec.Column(c), features[j]); err != nil {
			return nil, err
		}
	}
	return newTensor(buf, rows, k), nil
}

func newTensor(buf []float64, rows, k int) *tensor.Float64 {
	data := array.NewData(
		arrow.PrimitiveTypes.Float64, len(buf),
		[]*memory.Buffer{nil, memory.NewBufferBytes(arrow.Float64Traits.CastToBytes(buf))},
		nil, 0, 0,
	)
	defer data.Release()
	return tensor.NewFloat64(data, []int64{int64(rows), int64(k)}, nil, DimNames)
}

// copyColumn writes column col into position j of every row of buf
func copyColumn(buf []float64, j, k int, col arrow.Array, name string) error {
	n := col.Len()
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			return errors.Newf(errors.ErrorTypeData, "field %q is null at event %d", name, i).
				WithDetail("feature", name)
		}
	}

	out := func(i int) *float64 { return &buf[i*k+j] }
	switch arr := col.(type) {
	case *array.Float64:
		for i := 0; i < n; i++ {
			*out(i) = arr.Value(i)
		}
	case *array.Float32:
		for i := 0; i < n; i++ {
			*out(i) = float64(arr.Value(i))
		}
	case *array.Int8:
		for i := 0; i < n; i++ {
			*out(i) = float64(arr.Value(i))
		}
	case *array.Int16:
		for i := 0; i < n; i++ {
			*out(i) = float64(arr.Value(i))
		}
	case *array.Int32:
		for i := 0; i < n; i++ {
			*out(i) = float64(arr.Value(i))
		}
	case *array.Int64:
		for i := 0; i < n; i++ {
			v := arr.Value(i)
			if v > maxExact || v < -maxExact {
				return inexact(name, i, col.DataType())
			}
			*out(i) = float64(v)
		}
	case *array.Uint8:
		for i := 0; i < n; i++ {
			*out(i) = float64(arr.Value(i))
		}
	case *array.Uint16:
		for i := 0; i < n; i++ {
			*out(i) = float64(arr.Value(i))
		}
	case *array.Uint32:
		for i := 0; i < n; i++ {
			*out(i) = float64(arr.Value(i))
		}
	case *array.Uint64:
		for i := 0; i < n; i++ {
			v := arr.Value(i)
			if v > maxExact {
				return inexact(name, i, col.DataType())
			}
			*out(i) = float64(v)
		}
	case *array.Boolean:
		for i := 0; i < n; i++ {
			if arr.Value(i) {
				*out(i) = 1
			}
		}
	default:
		return errors.Newf(errors.ErrorTypeTypeMismatch,
			"field %q has type %s, which has no numeric conversion", name, col.DataType()).
			WithDetail("feature", name)
	}
	return nil
}

func inexact(name string, row int, dt arrow.DataType) error {
	return errors.Newf(errors.ErrorTypeTypeMismatch,
		"field %q (%s) at event %d is not exactly representable as float64", name, dt, row).
		WithDetail("feature", name)
}

// Select projects rec onto exactly the named fields, in the given order.
// The caller releases the result.
func Select(rec arrow.Record, features []string) (arrow.Record, error) {
	if rec == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "record is nil")
	}
	cols, err := Mapping(rec.Schema(), features)
	if err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(cols))
	arrs := make([]arrow.Array, len(cols))
	for j, c := range cols {
		fields[j] = rec.Schema().Field(c)
		arrs[j] = rec.Column(c)
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrs, rec.NumRows()), nil
}
