package columnar

import (
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// arrowWriter implements Writer for the Arrow IPC file format
type arrowWriter struct {
	config      *WriterConfig
	fileWriter  *ipc.FileWriter
	rowsWritten int64
	mu          sync.Mutex
}

func newArrowWriter(w io.Writer, config *WriterConfig) (*arrowWriter, error) {
	opts := []ipc.Option{ipc.WithSchema(config.Schema), ipc.WithAllocator(config.Allocator)}
	switch config.Compression {
	case "", "none":
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	default:
		return nil, fmt.Errorf("unsupported Arrow compression: %s", config.Compression)
	}

	fw, err := ipc.NewFileWriter(w, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow writer: %w", err)
	}

	return &arrowWriter{config: config, fileWriter: fw}, nil
}

func (aw *arrowWriter) Write(rec arrow.Record) error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if !rec.Schema().Equal(aw.config.Schema) {
		return fmt.Errorf("record schema does not match writer schema")
	}
	if err := aw.fileWriter.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	aw.rowsWritten += rec.NumRows()
	return nil
}

func (aw *arrowWriter) Close() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if err := aw.fileWriter.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	return nil
}

func (aw *arrowWriter) Format() Format {
	return Arrow
}

func (aw *arrowWriter) RowsWritten() int64 {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.rowsWritten
}

// arrowReader implements Reader for the Arrow IPC file format
type arrowReader struct {
	config     *ReaderConfig
	fileReader *ipc.FileReader
	schema     *arrow.Schema
	batchIndex int
	mu         sync.Mutex
}

func newArrowReader(r ipc.ReadAtSeeker, config *ReaderConfig) (*arrowReader, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(config.Allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader: %w", err)
	}

	schema, err := projectSchema(fr.Schema(), config.Projection)
	if err != nil {
		fr.Close()
		return nil, err
	}

	return &arrowReader{
		config:     config,
		fileReader: fr,
		schema:     schema,
	}, nil
}

func (ar *arrowReader) Schema() *arrow.Schema {
	return ar.schema
}

func (ar *arrowReader) Read() (arrow.Record, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if ar.batchIndex >= ar.fileReader.NumRecords() {
		return nil, io.EOF
	}

	rec, err := ar.fileReader.Record(ar.batchIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to read Arrow batch %d: %w", ar.batchIndex, err)
	}
	ar.batchIndex++

	// Record is only valid until the next call on the file reader
	rec.Retain()
	return applyProjection(rec, ar.config.Projection)
}

func (ar *arrowReader) Close() error {
	return ar.fileReader.Close()
}

func (ar *arrowReader) Format() Format {
	return Arrow
}
