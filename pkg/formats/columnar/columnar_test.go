package columnar

import (
	"bytes"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "pt", Type: arrow.PrimitiveTypes.Float64},
	{Name: "eta", Type: arrow.PrimitiveTypes.Float32},
	{Name: "njets", Type: arrow.PrimitiveTypes.Int32},
	{Name: "run", Type: arrow.PrimitiveTypes.Int64},
	{Name: "trigger", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "tag", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func generateEventRecord(mem memory.Allocator, n int) arrow.Record {
	b := array.NewRecordBuilder(mem, eventSchema)
	defer b.Release()

	for i := 0; i < n; i++ {
		b.Field(0).(*array.Float64Builder).Append(10.5 + float64(i))
		b.Field(1).(*array.Float32Builder).Append(float32(i) / 4)
		b.Field(2).(*array.Int32Builder).Append(int32(i % 7))
		b.Field(3).(*array.Int64Builder).Append(int64(300000 + i))
		b.Field(4).(*array.BooleanBuilder).Append(i%2 == 0)
		if i%3 == 0 {
			b.Field(5).AppendNull()
		} else {
			b.Field(5).(*array.StringBuilder).Append("tag")
		}
	}
	return b.NewRecord()
}

func encode(tb testing.TB, rec arrow.Record, cfg *WriterConfig) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, cfg)
	require.NoError(tb, err)
	require.NoError(tb, w.Write(rec))
	require.NoError(tb, w.Close())
	assert.Equal(tb, rec.NumRows(), w.RowsWritten())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := generateEventRecord(mem, 25)
	defer rec.Release()

	tests := []struct {
		format      Format
		compression string
	}{
		{Arrow, "none"},
		{Arrow, "lz4"},
		{Arrow, "zstd"},
		{Parquet, "none"},
		{Parquet, "snappy"},
		{Parquet, "zstd"},
		{Avro, "null"},
		{Avro, "deflate"},
		{Avro, "snappy"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format)+"/"+tt.compression, func(t *testing.T) {
			data := encode(t, rec, &WriterConfig{
				Format:      tt.format,
				Schema:      eventSchema,
				Compression: tt.compression,
				BatchSize:   10,
				Allocator:   mem,
			})

			r, err := NewReader(bytes.NewReader(data), &ReaderConfig{Format: tt.format, BatchSize: 10, Allocator: mem})
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, tt.format, r.Format())

			got, err := ReadAll(r, mem)
			require.NoError(t, err)
			defer got.Release()

			require.Equal(t, rec.NumRows(), got.NumRows())
			require.Equal(t, rec.NumCols(), got.NumCols())
			for i := 0; i < int(rec.NumCols()); i++ {
				assert.Equal(t, rec.ColumnName(i), got.ColumnName(i))
				assert.True(t, array.Equal(rec.Column(i), got.Column(i)), "column %s differs", rec.ColumnName(i))
			}
		})
	}
}

func TestReaderBuffersStreams(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := generateEventRecord(mem, 4)
	defer rec.Release()

	for _, format := range []Format{Arrow, Parquet} {
		t.Run(string(format), func(t *testing.T) {
			data := encode(t, rec, &WriterConfig{Format: format, Schema: eventSchema, Allocator: mem})

			// io.MultiReader hides ReadAt and Seek
			r, err := NewReader(io.MultiReader(bytes.NewReader(data)), &ReaderConfig{Format: format, Allocator: mem})
			require.NoError(t, err)
			defer r.Close()

			got, err := ReadAll(r, mem)
			require.NoError(t, err)
			defer got.Release()
			assert.Equal(t, rec.NumRows(), got.NumRows())
		})
	}
}

func TestSeekable(t *testing.T) {
	br := bytes.NewReader([]byte("ARROW1"))
	ras, err := seekable(br)
	require.NoError(t, err)
	assert.Same(t, br, ras)

	ras, err = seekable(io.MultiReader(bytes.NewReader([]byte("ARROW1"))))
	require.NoError(t, err)
	n, err := ras.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestProjection(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := generateEventRecord(mem, 5)
	defer rec.Release()

	for _, format := range []Format{Arrow, Parquet, Avro} {
		t.Run(string(format), func(t *testing.T) {
			data := encode(t, rec, &WriterConfig{Format: format, Schema: eventSchema})

			r, err := NewReader(bytes.NewReader(data), &ReaderConfig{Format: format, Projection: []string{"run", "pt"}})
			require.NoError(t, err)
			defer r.Close()

			require.Equal(t, 2, r.Schema().NumFields())
			assert.Equal(t, "run", r.Schema().Field(0).Name)

			got, err := ReadAll(r, mem)
			require.NoError(t, err)
			defer got.Release()

			assert.Equal(t, int64(300004), got.Column(0).(*array.Int64).Value(4))
			assert.Equal(t, 14.5, got.Column(1).(*array.Float64).Value(4))
		})
	}
}

func TestProjectionUnknownColumn(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := generateEventRecord(mem, 1)
	defer rec.Release()

	data := encode(t, rec, &WriterConfig{Format: Arrow, Schema: eventSchema})
	_, err := NewReader(bytes.NewReader(data), &ReaderConfig{Format: Arrow, Projection: []string{"phi"}})
	assert.ErrorContains(t, err, "phi")
}

func TestReadAllEmpty(t *testing.T) {
	mem := memory.NewGoAllocator()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, &WriterConfig{Format: Arrow, Schema: eventSchema})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, &ReaderConfig{Format: Arrow})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)

	got, err := ReadAll(r, mem)
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, int64(0), got.NumRows())
	assert.True(t, got.Schema().Equal(eventSchema))
}

func TestWriterRejectsOtherSchema(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := generateEventRecord(mem, 2)
	defer rec.Release()

	other, err := Project(rec, []string{"pt"})
	require.NoError(t, err)
	defer other.Release()

	for _, format := range []Format{Arrow, Parquet, Avro} {
		w, err := NewWriter(io.Discard, &WriterConfig{Format: format, Schema: eventSchema})
		require.NoError(t, err)
		assert.Error(t, w.Write(other), format)
	}
}

func TestUnsupported(t *testing.T) {
	_, err := NewWriter(io.Discard, &WriterConfig{Format: "orc", Schema: eventSchema})
	assert.ErrorContains(t, err, "unsupported columnar format")

	_, err = NewWriter(io.Discard, &WriterConfig{Format: Arrow})
	assert.ErrorContains(t, err, "schema is required")

	_, err = NewWriter(io.Discard, &WriterConfig{Format: Parquet, Schema: eventSchema, Compression: "lzo"})
	assert.Error(t, err)

	listSchema := arrow.NewSchema([]arrow.Field{{Name: "l", Type: arrow.ListOf(arrow.PrimitiveTypes.Int8)}}, nil)
	_, err = NewWriter(io.Discard, &WriterConfig{Format: Avro, Schema: listSchema})
	assert.ErrorContains(t, err, "unsupported Arrow type")
}

func TestProject(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := generateEventRecord(mem, 3)
	defer rec.Release()

	got, err := Project(rec, []string{"eta", "pt"})
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, "eta", got.ColumnName(0))
	assert.Equal(t, "pt", got.ColumnName(1))
	assert.Equal(t, int64(3), got.NumRows())

	_, err = Project(rec, []string{"missing"})
	assert.Error(t, err)
}

func TestFormatForFile(t *testing.T) {
	tests := map[string]Format{
		"samples/signal/train_features.arrow": Arrow,
		"scaling/scaling_data.parquet":        Parquet,
		"samples/bkg/train_features.AVRO":     Avro,
	}
	for name, want := range tests {
		got, ok := FormatForFile(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := FormatForFile("samples/.attrs.json")
	assert.False(t, ok)
	assert.Nil(t, GetFormatInfo("orc"))
}
