// Package columnar provides the table codecs used for container members.
// Every format reads into and writes from Arrow record batches so callers
// never see format-specific row representations.
package columnar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Format represents a columnar storage format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// Arrow is the Apache Arrow IPC file format
	Arrow Format = "arrow"
	// Avro is Apache Avro object container format
	Avro Format = "avro"
)

// Writer writes Arrow record batches in a columnar format
type Writer interface {
	// Write appends one record batch; the schema must match the writer's
	Write(rec arrow.Record) error
	// Close flushes buffered data and writes any footer
	Close() error
	// Format returns the columnar format
	Format() Format
	// RowsWritten returns the number of rows written so far
	RowsWritten() int64
}

// Reader reads Arrow record batches from a columnar source
type Reader interface {
	// Schema returns the schema of the batches, after projection
	Schema() *arrow.Schema
	// Read returns the next batch or io.EOF. The caller releases it.
	Read() (arrow.Record, error)
	// Close releases reader resources
	Close() error
	// Format returns the columnar format
	Format() Format
}

// WriterConfig configures columnar writers
type WriterConfig struct {
	Format         Format
	Schema         *arrow.Schema
	Compression    string
	BatchSize      int
	PageSize       int
	RowGroupSize   int
	DictionarySize int
	EnableStats    bool
	// SchemaName names the Avro record type
	SchemaName string
	Allocator  memory.Allocator
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:         Arrow,
		Compression:    "none",
		BatchSize:      10000,
		PageSize:       1024 * 1024,
		RowGroupSize:   64 * 1024,
		DictionarySize: 0,
		EnableStats:    true,
		SchemaName:     "table",
	}
}

// ReaderConfig configures columnar readers
type ReaderConfig struct {
	Format     Format
	BatchSize  int
	Projection []string // Column projection, in output order
	Allocator  memory.Allocator
}

// DefaultReaderConfig returns default reader configuration
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		Format:    Arrow,
		BatchSize: 10000,
	}
}

// NewWriter creates a new columnar writer
func NewWriter(w io.Writer, config *WriterConfig) (Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}
	if config.Schema == nil {
		return nil, fmt.Errorf("schema is required for %s writer", config.Format)
	}
	if config.Allocator == nil {
		config.Allocator = memory.NewGoAllocator()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWriterConfig().BatchSize
	}

	switch config.Format {
	case Parquet:
		return newParquetWriter(w, config)
	case Arrow:
		return newArrowWriter(w, config)
	case Avro:
		return newAvroWriter(w, config)
	default:
		return nil, fmt.Errorf("unsupported columnar format: %s", config.Format)
	}
}

// NewReader creates a new columnar reader. Sources that are not seekable
// are buffered in memory first.
func NewReader(r io.Reader, config *ReaderConfig) (Reader, error) {
	if config == nil {
		config = DefaultReaderConfig()
	}
	if config.Allocator == nil {
		config.Allocator = memory.NewGoAllocator()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultReaderConfig().BatchSize
	}

	switch config.Format {
	case Parquet:
		ras, err := seekable(r)
		if err != nil {
			return nil, err
		}
		return newParquetReader(ras, config)
	case Arrow:
		ras, err := seekable(r)
		if err != nil {
			return nil, err
		}
		return newArrowReader(ras, config)
	case Avro:
		return newAvroReader(r, config)
	default:
		return nil, fmt.Errorf("unsupported columnar format: %s", config.Format)
	}
}

// ReadAll drains a reader and concatenates its batches into one record.
// A source with no batches yields an empty record with the reader's schema.
func ReadAll(r Reader, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	var batches []arrow.Record
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, rec)
	}

	schema := r.Schema()
	switch len(batches) {
	case 0:
		return emptyRecord(schema, mem), nil
	case 1:
		batches[0].Retain()
		return batches[0], nil
	}

	cols := make([]arrow.Array, schema.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	var rows int64
	for _, b := range batches {
		rows += b.NumRows()
	}
	for i := range cols {
		parts := make([]arrow.Array, len(batches))
		for j, b := range batches {
			parts[j] = b.Column(i)
		}
		col, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, fmt.Errorf("failed to concatenate column %s: %w", schema.Field(i).Name, err)
		}
		cols[i] = col
	}

	return array.NewRecord(schema, cols, rows), nil
}

// Project returns a record holding only the named columns, in the given
// order. The columns are shared with rec, not copied.
func Project(rec arrow.Record, names []string) (arrow.Record, error) {
	schema := rec.Schema()
	fields := make([]arrow.Field, len(names))
	cols := make([]arrow.Array, len(names))
	for i, name := range names {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("column %q not found", name)
		}
		if len(idx) > 1 {
			return nil, fmt.Errorf("column %q is ambiguous", name)
		}
		fields[i] = schema.Field(idx[0])
		cols[i] = rec.Column(idx[0])
	}
	md := schema.Metadata()
	return array.NewRecord(arrow.NewSchema(fields, &md), cols, rec.NumRows()), nil
}

func projectSchema(schema *arrow.Schema, names []string) (*arrow.Schema, error) {
	if len(names) == 0 {
		return schema, nil
	}
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		idx := schema.FieldIndices(name)
		if len(idx) != 1 {
			return nil, fmt.Errorf("projected column %q not found", name)
		}
		fields[i] = schema.Field(idx[0])
	}
	md := schema.Metadata()
	return arrow.NewSchema(fields, &md), nil
}

func applyProjection(rec arrow.Record, names []string) (arrow.Record, error) {
	if len(names) == 0 {
		return rec, nil
	}
	defer rec.Release()
	return Project(rec, names)
}

func emptyRecord(schema *arrow.Schema, mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	return b.NewRecord()
}

// seekable returns r when it can already seek, so both the Arrow file
// reader and the Parquet reader can use it
func seekable(r io.Reader) (ipc.ReadAtSeeker, error) {
	if ras, ok := r.(ipc.ReadAtSeeker); ok {
		return ras, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer columnar data: %w", err)
	}
	return bytes.NewReader(data), nil
}

// FormatInfo provides information about columnar formats
type FormatInfo struct {
	Format           Format
	Name             string
	Description      string
	FileExtension    string
	MIMEType         string
	SupportsCompress bool
}

// GetFormatInfo returns information about a columnar format
func GetFormatInfo(format Format) *FormatInfo {
	switch format {
	case Parquet:
		return &FormatInfo{
			Format:           Parquet,
			Name:             "Apache Parquet",
			Description:      "Columnar storage format optimized for analytics",
			FileExtension:    ".parquet",
			MIMEType:         "application/x-parquet",
			SupportsCompress: true,
		}
	case Arrow:
		return &FormatInfo{
			Format:           Arrow,
			Name:             "Apache Arrow",
			Description:      "In-memory columnar format",
			FileExtension:    ".arrow",
			MIMEType:         "application/vnd.apache.arrow.file",
			SupportsCompress: true,
		}
	case Avro:
		return &FormatInfo{
			Format:           Avro,
			Name:             "Apache Avro",
			Description:      "Row-oriented data serialization format",
			FileExtension:    ".avro",
			MIMEType:         "application/avro",
			SupportsCompress: true,
		}
	default:
		return nil
	}
}

// FormatForFile picks the format from a file name's extension
func FormatForFile(name string) (Format, bool) {
	ext := strings.ToLower(path.Ext(name))
	for _, f := range []Format{Arrow, Parquet, Avro} {
		if GetFormatInfo(f).FileExtension == ext {
			return f, true
		}
	}
	return "", false
}
