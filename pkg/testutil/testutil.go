// Package testutil provides testing utilities for trainprep: loggers,
// Arrow record builders and ready-made input containers.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/trainprep/pkg/container"
	"github.com/ajitpratap0/trainprep/pkg/container/archive"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Column is one named column of a test record. Values is a slice of
// float64, float32, int32, int64, uint64, bool or string.
type Column struct {
	Name   string
	Values interface{}
}

// Float64s is shorthand for a float64 column
func Float64s(name string, v ...float64) Column {
	return Column{Name: name, Values: v}
}

// Record builds a record from cols. It is released when the test ends.
func Record(t testing.TB, cols ...Column) arrow.Record {
	t.Helper()

	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		dt, err := columnType(c.Values)
		require.NoError(t, err, c.Name)
		fields[i] = arrow.Field{Name: c.Name, Type: dt}
	}

	b := array.NewRecordBuilder(memory.NewGoAllocator(), arrow.NewSchema(fields, nil))
	defer b.Release()

	for i, c := range cols {
		switch v := c.Values.(type) {
		case []float64:
			b.Field(i).(*array.Float64Builder).AppendValues(v, nil)
		case []float32:
			b.Field(i).(*array.Float32Builder).AppendValues(v, nil)
		case []int32:
			b.Field(i).(*array.Int32Builder).AppendValues(v, nil)
		case []int64:
			b.Field(i).(*array.Int64Builder).AppendValues(v, nil)
		case []uint64:
			b.Field(i).(*array.Uint64Builder).AppendValues(v, nil)
		case []bool:
			b.Field(i).(*array.BooleanBuilder).AppendValues(v, nil)
		case []string:
			b.Field(i).(*array.StringBuilder).AppendValues(v, nil)
		}
	}

	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func columnType(values interface{}) (arrow.DataType, error) {
	switch values.(type) {
	case []float64:
		return arrow.PrimitiveTypes.Float64, nil
	case []float32:
		return arrow.PrimitiveTypes.Float32, nil
	case []int32:
		return arrow.PrimitiveTypes.Int32, nil
	case []int64:
		return arrow.PrimitiveTypes.Int64, nil
	case []uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case []bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case []string:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("unsupported column values %T", values)
	}
}

// ScalingRecord builds a scaling table. Means, scales and variances
// default to 0, 1 and 1 when the slices are nil.
func ScalingRecord(t testing.TB, names []string, mean, scale, variance []float64) arrow.Record {
	t.Helper()
	fill := func(v []float64, def float64) []float64 {
		if v != nil {
			return v
		}
		out := make([]float64, len(names))
		for i := range out {
			out[i] = def
		}
		return out
	}
	return Record(t,
		Column{Name: "name", Values: names},
		Float64s("mean", fill(mean, 0)...),
		Float64s("scale", fill(scale, 1)...),
		Float64s("var", fill(variance, 1)...),
	)
}

// Sample describes one samples/<Name> group. A nil Label leaves the
// training_label attribute unset; a nil Features leaves the table out.
type Sample struct {
	Name     string
	Label    interface{}
	Features arrow.Record
}

// NewContainer assembles an in-memory container with the default layout.
// A nil scaling record leaves the scaling group out.
func NewContainer(t testing.TB, scaling arrow.Record, samples ...Sample) *container.Memory {
	t.Helper()

	c := container.NewMemory(t.Name())
	if scaling != nil {
		c.AddGroup("scaling").SetTable("scaling_data", scaling)
	}
	if samples != nil {
		group := c.AddGroup("samples")
		for _, s := range samples {
			g := group.AddGroup(s.Name)
			if s.Label != nil {
				g.SetAttr("training_label", s.Label)
			}
			if s.Features != nil {
				g.SetTable("train_features", s.Features)
			}
		}
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ExampleContainer is the three-event signal sample over pt, eta and
// eventweight
func ExampleContainer(t testing.TB) *container.Memory {
	t.Helper()
	scaling := ScalingRecord(t,
		[]string{"pt", "eta", "eventweight"},
		[]float64{50, 0, 1},
		[]float64{10, 1, 1},
		[]float64{100, 1, 1},
	)
	features := Record(t,
		Float64s("pt", 41.5, 60, 52.25),
		Float64s("eta", -1.2, 0.3, 2.1),
		Float64s("eventweight", 1, 1, 0.5),
	)
	return NewContainer(t, scaling, Sample{Name: "signal", Label: 1, Features: features})
}

// WriteArchive saves src as an archive in a temporary directory and
// returns its path
func WriteArchive(t testing.TB, src container.File, opts ...archive.Option) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.zip")
	require.NoError(t, archive.Save(path, src, opts...))
	return path
}
