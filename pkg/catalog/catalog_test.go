package catalog

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ajitpratap0/trainprep/pkg/errors"
)

func entries() []Entry {
	return []Entry{
		{Name: "pt", Params: Params{Mean: 50, Scale: 10, Var: 100}},
		{Name: "eventweight", Params: Params{Mean: 1, Scale: 1, Var: 1}},
		{Name: "eta", Params: Params{Mean: 0, Scale: 1, Var: 1}},
		{Name: "phi", Params: Params{Mean: 0.1, Scale: 1.8, Var: 3.24}},
	}
}

func TestNewExcludesIgnored(t *testing.T) {
	c, err := New(entries(), DefaultIgnore)
	require.NoError(t, err)

	assert.Equal(t, []string{"pt", "eventweight", "eta", "phi"}, c.RawFeatureList())
	assert.Equal(t, []string{"pt", "eta", "phi"}, c.FeatureList())
	assert.Equal(t, []string{"eventweight"}, c.Excluded())
	assert.Equal(t, []float64{50, 0, 0.1}, c.Mean())
	assert.Equal(t, []float64{10, 1, 1.8}, c.Scale())
	assert.Equal(t, []float64{100, 1, 3.24}, c.Var())
	assert.Equal(t, 3, c.Len())

	_, ok := c.ScalingDict()["eventweight"]
	assert.False(t, ok)

	i, ok := c.Index("eta")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = c.Index("eventweight")
	assert.False(t, ok)
}

func TestAlignment(t *testing.T) {
	c, err := New(entries(), []string{"eventweight", "phi"})
	require.NoError(t, err)

	features := c.FeatureList()
	mean, scale, variance := c.Mean(), c.Scale(), c.Var()
	dict := c.ScalingDict()

	require.Len(t, mean, len(features))
	require.Len(t, scale, len(features))
	require.Len(t, variance, len(features))
	require.Len(t, dict, len(features))

	for i, f := range features {
		assert.Equal(t, Params{Mean: mean[i], Scale: scale[i], Var: variance[i]}, dict[f], f)
	}
}

func TestGetParams(t *testing.T) {
	c, err := New(entries(), DefaultIgnore)
	require.NoError(t, err)

	p, err := c.GetParams("pt")
	require.NoError(t, err)
	assert.Equal(t, Params{Mean: 50, Scale: 10, Var: 100}, p)

	for _, name := range []string{"eventweight", "mass", ""} {
		_, err := c.GetParams(name)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownFeature), name)
	}
}

func TestNewRejectsBadNames(t *testing.T) {
	_, err := New([]Entry{{Name: "pt"}, {Name: "pt"}}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch))

	_, err = New([]Entry{{Name: ""}}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch))
}

func TestEmptyAndFullyExcluded(t *testing.T) {
	c, err := New(nil, DefaultIgnore)
	require.NoError(t, err)
	assert.Empty(t, c.FeatureList())
	assert.Empty(t, c.RawFeatureList())

	c, err = New([]Entry{{Name: "eventweight"}}, DefaultIgnore)
	require.NoError(t, err)
	assert.Equal(t, []string{"eventweight"}, c.RawFeatureList())
	assert.Equal(t, 0, c.Len())
}

func TestAccessorsReturnCopies(t *testing.T) {
	c, err := New(entries(), DefaultIgnore)
	require.NoError(t, err)

	c.FeatureList()[0] = "changed"
	c.RawFeatureList()[0] = "changed"
	c.Mean()[0] = -1
	c.ScalingDict()["pt"] = Params{}

	assert.Equal(t, "pt", c.FeatureList()[0])
	assert.Equal(t, "pt", c.RawFeatureList()[0])
	assert.Equal(t, 50.0, c.Mean()[0])
	p, err := c.GetParams("pt")
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.Mean)
}

func scalingRecord(t *testing.T, meanType arrow.DataType, withNull bool) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: NameColumn, Type: arrow.BinaryTypes.String},
		{Name: MeanColumn, Type: meanType, Nullable: withNull},
		{Name: ScaleColumn, Type: arrow.PrimitiveTypes.Float64},
		{Name: VarColumn, Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()

	b.Field(0).(*array.StringBuilder).AppendValues([]string{"pt", "eta", "eventweight"}, nil)
	valid := []bool{true, !withNull, true}
	switch mb := b.Field(1).(type) {
	case *array.Float64Builder:
		mb.AppendValues([]float64{50, 0, 1}, valid)
	case *array.Float32Builder:
		mb.AppendValues([]float32{50, 0.5, 1}, valid)
	case *array.Int32Builder:
		mb.AppendValues([]int32{50, 0, 1}, valid)
	default:
		t.Fatalf("unexpected builder %T", mb)
	}
	b.Field(2).(*array.Float64Builder).AppendValues([]float64{10, 1, 1}, nil)
	b.Field(3).(*array.Float64Builder).AppendValues([]float64{100, 1, 1}, nil)
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func TestFromRecord(t *testing.T) {
	c, err := FromRecord(scalingRecord(t, arrow.PrimitiveTypes.Float64, false), DefaultIgnore)
	require.NoError(t, err)
	assert.Equal(t, []string{"pt", "eta"}, c.FeatureList())
	assert.Equal(t, []string{"pt", "eta", "eventweight"}, c.RawFeatureList())
	assert.Equal(t, []float64{10, 1}, c.Scale())

	c, err = FromRecord(scalingRecord(t, arrow.PrimitiveTypes.Float32, false), DefaultIgnore)
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 0.5}, c.Mean())

	c, err = FromRecord(scalingRecord(t, arrow.PrimitiveTypes.Int32, false), DefaultIgnore)
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 0}, c.Mean())
}

func TestFromRecordErrors(t *testing.T) {
	_, err := FromRecord(scalingRecord(t, arrow.PrimitiveTypes.Float64, true), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	_, err = FromRecord(nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingStructure))

	schema := arrow.NewSchema([]arrow.Field{
		{Name: NameColumn, Type: arrow.BinaryTypes.String},
		{Name: MeanColumn, Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).Append("pt")
	b.Field(1).(*array.Float64Builder).Append(1)
	rec := b.NewRecord()
	defer rec.Release()

	_, err = FromRecord(rec, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingStructure))
	assert.Contains(t, err.Error(), ScaleColumn)

	schema = arrow.NewSchema([]arrow.Field{
		{Name: NameColumn, Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	b2 := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b2.Release()
	b2.Field(0).(*array.Int64Builder).Append(1)
	rec2 := b2.NewRecord()
	defer rec2.Release()

	_, err = FromRecord(rec2, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch))
}

func TestStandardize(t *testing.T) {
	c, err := New(entries(), []string{"eventweight", "phi"})
	require.NoError(t, err)

	m := mat.NewDense(2, 2, []float64{
		60, 1.5,
		40, -2,
	})
	out, err := c.Standardize(m)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1.5}, mat.Row(nil, 0, out))
	assert.Equal(t, []float64{-1, -2}, mat.Row(nil, 1, out))
	assert.Equal(t, 60.0, m.At(0, 0))

	_, err = c.Standardize(mat.NewDense(1, 3, nil))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	zero, err := New([]Entry{{Name: "flat", Params: Params{Mean: 1}}}, nil)
	require.NoError(t, err)
	_, err = zero.Standardize(mat.NewDense(1, 1, []float64{1}))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
