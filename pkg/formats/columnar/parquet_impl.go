package columnar

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// parquetWriter implements Writer for Parquet format
type parquetWriter struct {
	config      *WriterConfig
	fileWriter  *pqarrow.FileWriter
	rowsWritten int64
	mu          sync.Mutex
}

func newParquetWriter(w io.Writer, config *WriterConfig) (*parquetWriter, error) {
	codec, err := getParquetCompression(config.Compression)
	if err != nil {
		return nil, err
	}

	opts := []parquet.WriterProperty{
		parquet.WithAllocator(config.Allocator),
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(config.DictionarySize > 0),
		parquet.WithStats(config.EnableStats),
	}
	if config.PageSize > 0 {
		opts = append(opts, parquet.WithDataPageSize(int64(config.PageSize)))
	}
	if config.RowGroupSize > 0 {
		opts = append(opts, parquet.WithMaxRowGroupLength(int64(config.RowGroupSize)))
	}
	if config.DictionarySize > 0 {
		opts = append(opts, parquet.WithDictionaryPageSizeLimit(int64(config.DictionarySize)))
	}

	// Storing the Arrow schema keeps narrow integer and unsigned types on read
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(config.Allocator),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(config.Schema, w, parquet.NewWriterProperties(opts...), arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	return &parquetWriter{config: config, fileWriter: fw}, nil
}

func (pw *parquetWriter) Write(rec arrow.Record) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !rec.Schema().Equal(pw.config.Schema) {
		return fmt.Errorf("record schema does not match writer schema")
	}
	if err := pw.fileWriter.WriteBuffered(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	pw.rowsWritten += rec.NumRows()
	return nil
}

func (pw *parquetWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if err := pw.fileWriter.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}

func (pw *parquetWriter) Format() Format {
	return Parquet
}

func (pw *parquetWriter) RowsWritten() int64 {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.rowsWritten
}

// parquetReader implements Reader for Parquet format. The file is decoded
// into a table up front and then sliced into batches.
type parquetReader struct {
	config      *ReaderConfig
	table       arrow.Table
	tableReader *array.TableReader
	schema      *arrow.Schema
	mu          sync.Mutex
}

func newParquetReader(r parquet.ReaderAtSeeker, config *ReaderConfig) (*parquetReader, error) {
	table, err := pqarrow.ReadTable(
		context.Background(),
		r,
		parquet.NewReaderProperties(config.Allocator),
		pqarrow.ArrowReadProperties{BatchSize: int64(config.BatchSize)},
		config.Allocator,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read Parquet data: %w", err)
	}

	schema, err := projectSchema(table.Schema(), config.Projection)
	if err != nil {
		table.Release()
		return nil, err
	}

	return &parquetReader{
		config:      config,
		table:       table,
		tableReader: array.NewTableReader(table, int64(config.BatchSize)),
		schema:      schema,
	}, nil
}

func (pr *parquetReader) Schema() *arrow.Schema {
	return pr.schema
}

func (pr *parquetReader) Read() (arrow.Record, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if !pr.tableReader.Next() {
		if err := pr.tableReader.Err(); err != nil {
			return nil, fmt.Errorf("failed to read Parquet batch: %w", err)
		}
		return nil, io.EOF
	}

	rec := pr.tableReader.Record()
	rec.Retain()
	return applyProjection(rec, pr.config.Projection)
}

func (pr *parquetReader) Close() error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.tableReader != nil {
		pr.tableReader.Release()
		pr.tableReader = nil
	}
	if pr.table != nil {
		pr.table.Release()
		pr.table = nil
	}
	return nil
}

func (pr *parquetReader) Format() Format {
	return Parquet
}

func getParquetCompression(compression string) (compress.Compression, error) {
	switch compression {
	case "", "none":
		return compress.Codecs.Uncompressed, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported Parquet compression: %s", compression)
	}
}
