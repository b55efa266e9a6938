// Package sample provides TrainingSample, one labelled event matrix ready
// for training.
package sample

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/tensor"
	"gonum.org/v1/gonum/mat"

	"github.com/ajitpratap0/trainprep/pkg/errors"
)

// Sample is a named [events, features] float64 matrix with its class
// label. The matrix is a private copy; nothing reachable from a Sample
// can change it after New.
type Sample struct {
	name  string
	label int
	data  *tensor.Float64
}

// New validates and assembles a sample. data must be a 2-D float64 tensor
// and classLabel must not be negative. The values of data are copied, so
// the caller keeps ownership of data and may release or reuse it.
func New(name string, classLabel int, data tensor.Interface) (*Sample, error) {
	f64, ok := data.(*tensor.Float64)
	if !ok || f64 == nil {
		return nil, errors.Newf(errors.ErrorTypeTypeMismatch,
			"sample %q: data must be float64, got %s", name, typeName(data)).
			WithDetail("sample", name)
	}
	if classLabel < 0 {
		return nil, errors.Newf(errors.ErrorTypeInvalidLabel,
			"sample %q: class label %d is negative", name, classLabel).
			WithDetail("sample", name)
	}
	if f64.NumDims() != 2 {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"sample %q: data has %d dimensions, want 2", name, f64.NumDims()).
			WithDetail("sample", name)
	}

	return &Sample{name: name, label: classLabel, data: clone(f64)}, nil
}

// typeName describes data for error messages. A nil interface and a typed
// nil tensor both read as "nothing".
func typeName(data tensor.Interface) string {
	if data == nil {
		return "nothing"
	}
	if f64, ok := data.(*tensor.Float64); ok && f64 == nil {
		return "nothing"
	}
	if dt := data.DataType(); dt != nil {
		return dt.String()
	}
	return "unknown"
}

// clone copies src into a new row-major tensor backed by its own buffer
func clone(src *tensor.Float64) *tensor.Float64 {
	shape := src.Shape()
	rows, cols := shape[0], shape[1]
	buf := make([]float64, rows*cols)

	if vals := src.Float64Values(); src.IsRowMajor() && int64(len(vals)) >= rows*cols {
		copy(buf, vals)
	} else {
		idx := make([]int64, 2)
		for i := int64(0); i < rows; i++ {
			for j := int64(0); j < cols; j++ {
				idx[0], idx[1] = i, j
				buf[i*cols+j] = src.Value(idx)
			}
		}
	}

	data := array.NewData(
		arrow.PrimitiveTypes.Float64, len(buf),
		[]*memory.Buffer{nil, memory.NewBufferBytes(arrow.Float64Traits.CastToBytes(buf))},
		nil, 0, 0,
	)
	defer data.Release()
	names := append([]string(nil), src.DimNames()...)
	return tensor.NewFloat64(data, []int64{rows, cols}, nil, names)
}

// Name is the sample group name
func (s *Sample) Name() string { return s.name }

// ClassLabel is the integer training label
func (s *Sample) ClassLabel() int { return s.label }

// Data returns a copy of the event matrix, or nil after Release. The
// caller releases the copy.
func (s *Sample) Data() *tensor.Float64 {
	if s.data == nil {
		return nil
	}
	return clone(s.data)
}

// DataType is always float64
func (s *Sample) DataType() arrow.DataType { return arrow.PrimitiveTypes.Float64 }

// NumEvents is the number of rows
func (s *Sample) NumEvents() int { return int(s.data.Shape()[0]) }

// NumFeatures is the number of columns
func (s *Sample) NumFeatures() int { return int(s.data.Shape()[1]) }

// Shape returns {events, features}
func (s *Sample) Shape() [2]int {
	return [2]int{s.NumEvents(), s.NumFeatures()}
}

// At returns event i, feature j
func (s *Sample) At(i, j int) float64 {
	return s.data.Value([]int64{int64(i), int64(j)})
}

// Row copies the features of event i
func (s *Sample) Row(i int) []float64 {
	k := s.NumFeatures()
	out := make([]float64, k)
	for j := range out {
		out[j] = s.At(i, j)
	}
	return out
}

// Dense copies the matrix into a gonum matrix. It returns nil when the
// sample has no events or no features.
func (s *Sample) Dense() *mat.Dense {
	r, c := s.NumEvents(), s.NumFeatures()
	if r == 0 || c == 0 {
		return nil
	}
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, s.At(i, j))
		}
	}
	return m
}

// Release drops the sample's reference to its data. The sample must not
// be read afterwards.
func (s *Sample) Release() {
	if s.data != nil {
		s.data.Release()
		s.data = nil
	}
}
