package columnar

import (
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/linkedin/goavro/v2"

	jsonpool "github.com/ajitpratap0/trainprep/pkg/json"
)

// avroWriter implements Writer for Avro object container files
type avroWriter struct {
	config      *WriterConfig
	ocfWriter   *goavro.OCFWriter
	fieldTypes  []string
	nullable    []bool
	rowsWritten int64
	mu          sync.Mutex
}

func newAvroWriter(w io.Writer, config *WriterConfig) (*avroWriter, error) {
	avroSchema, fieldTypes, err := arrowToAvroSchema(config.Schema, config.SchemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}

	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create Avro codec: %w", err)
	}

	compression, err := getAvroCompression(config.Compression)
	if err != nil {
		return nil, err
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: compression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Avro writer: %w", err)
	}

	nullable := make([]bool, config.Schema.NumFields())
	for i, f := range config.Schema.Fields() {
		nullable[i] = f.Nullable
	}

	return &avroWriter{
		config:     config,
		ocfWriter:  ocfWriter,
		fieldTypes: fieldTypes,
		nullable:   nullable,
	}, nil
}

func (aw *avroWriter) Write(rec arrow.Record) error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if !rec.Schema().Equal(aw.config.Schema) {
		return fmt.Errorf("record schema does not match writer schema")
	}

	names := make([]string, rec.NumCols())
	for i := range names {
		names[i] = rec.ColumnName(i)
	}

	block := make([]interface{}, 0, aw.config.BatchSize)
	for row := 0; row < int(rec.NumRows()); row++ {
		native := make(map[string]interface{}, len(names))
		for i, name := range names {
			value, err := arrowValueToAvro(rec.Column(i), row)
			if err != nil {
				return fmt.Errorf("field %s row %d: %w", name, row, err)
			}
			if value == nil && !aw.nullable[i] {
				return fmt.Errorf("field %s row %d: null in non-nullable field", name, row)
			}
			if aw.nullable[i] && value != nil {
				value = goavro.Union(aw.fieldTypes[i], value)
			}
			native[name] = value
		}
		block = append(block, native)

		if len(block) >= aw.config.BatchSize {
			if err := aw.ocfWriter.Append(block); err != nil {
				return fmt.Errorf("failed to write Avro block: %w", err)
			}
			block = block[:0]
		}
	}

	if len(block) > 0 {
		if err := aw.ocfWriter.Append(block); err != nil {
			return fmt.Errorf("failed to write Avro block: %w", err)
		}
	}

	aw.rowsWritten += rec.NumRows()
	return nil
}

func (aw *avroWriter) Close() error {
	// OCF blocks are flushed on every Append
	return nil
}

func (aw *avroWriter) Format() Format {
	return Avro
}

func (aw *avroWriter) RowsWritten() int64 {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.rowsWritten
}

// avroReader implements Reader for Avro object container files
type avroReader struct {
	config     *ReaderConfig
	ocfReader  *goavro.OCFReader
	fullSchema *arrow.Schema
	schema     *arrow.Schema
	fieldTypes []string
	done       bool
	mu         sync.Mutex
}

func newAvroReader(r io.Reader, config *ReaderConfig) (*avroReader, error) {
	ocfReader, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create Avro reader: %w", err)
	}

	fullSchema, fieldTypes, err := avroToArrowSchema(ocfReader.Codec().Schema())
	if err != nil {
		return nil, fmt.Errorf("failed to convert Avro schema: %w", err)
	}

	schema, err := projectSchema(fullSchema, config.Projection)
	if err != nil {
		return nil, err
	}

	return &avroReader{
		config:     config,
		ocfReader:  ocfReader,
		fullSchema: fullSchema,
		schema:     schema,
		fieldTypes: fieldTypes,
	}, nil
}

func (ar *avroReader) Schema() *arrow.Schema {
	return ar.schema
}

func (ar *avroReader) Read() (arrow.Record, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if ar.done {
		return nil, io.EOF
	}

	b := array.NewRecordBuilder(ar.config.Allocator, ar.fullSchema)
	defer b.Release()

	rows := 0
	for rows < ar.config.BatchSize && ar.ocfReader.Scan() {
		datum, err := ar.ocfReader.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read Avro datum: %w", err)
		}
		m, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected Avro datum %T", datum)
		}
		for i, f := range ar.fullSchema.Fields() {
			if err := appendAvroValue(b.Field(i), m[f.Name], ar.fieldTypes[i]); err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		rows++
	}
	if err := ar.ocfReader.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan Avro blocks: %w", err)
	}

	if rows < ar.config.BatchSize {
		ar.done = true
	}
	if rows == 0 {
		return nil, io.EOF
	}

	return applyProjection(b.NewRecord(), ar.config.Projection)
}

func (ar *avroReader) Close() error {
	// OCF reader doesn't need explicit close
	return nil
}

func (ar *avroReader) Format() Format {
	return Avro
}

// Schema conversion helpers

func arrowToAvroSchema(schema *arrow.Schema, name string) (string, []string, error) {
	if name == "" {
		name = "table"
	}

	fields := make([]map[string]interface{}, 0, schema.NumFields())
	types := make([]string, 0, schema.NumFields())

	for _, field := range schema.Fields() {
		avroType, err := arrowToAvroType(field.Type)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", field.Name, err)
		}

		avroField := map[string]interface{}{
			"name": field.Name,
			"type": avroType,
		}
		if field.Nullable {
			avroField["type"] = []interface{}{"null", avroType}
		}

		fields = append(fields, avroField)
		types = append(types, avroType)
	}

	schemaBytes, err := jsonpool.Marshal(map[string]interface{}{
		"type":   "record",
		"name":   name,
		"fields": fields,
	})
	if err != nil {
		return "", nil, err
	}
	return string(schemaBytes), types, nil
}

func arrowToAvroType(dt arrow.DataType) (string, error) {
	switch dt.ID() {
	case arrow.STRING:
		return "string", nil
	case arrow.FLOAT64:
		return "double", nil
	case arrow.FLOAT32:
		return "float", nil
	case arrow.INT64, arrow.UINT32:
		return "long", nil
	case arrow.INT32, arrow.INT16, arrow.INT8, arrow.UINT16, arrow.UINT8:
		return "int", nil
	case arrow.BOOL:
		return "boolean", nil
	default:
		return "", fmt.Errorf("unsupported Arrow type for Avro: %s", dt)
	}
}

func avroToArrowSchema(avroSchema string) (*arrow.Schema, []string, error) {
	var schemaMap map[string]interface{}
	if err := jsonpool.Unmarshal([]byte(avroSchema), &schemaMap); err != nil {
		return nil, nil, err
	}
	if schemaMap["type"] != "record" {
		return nil, nil, fmt.Errorf("top-level Avro schema must be a record")
	}

	fieldsData, _ := schemaMap["fields"].([]interface{})
	fields := make([]arrow.Field, 0, len(fieldsData))
	types := make([]string, 0, len(fieldsData))

	for _, fieldData := range fieldsData {
		fieldMap, ok := fieldData.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("malformed Avro field %v", fieldData)
		}
		name, _ := fieldMap["name"].(string)

		avroType, nullable, err := avroFieldType(fieldMap["type"])
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", name, err)
		}
		dt, err := avroToArrowType(avroType)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", name, err)
		}

		fields = append(fields, arrow.Field{Name: name, Type: dt, Nullable: nullable})
		types = append(types, avroType)
	}

	return arrow.NewSchema(fields, nil), types, nil
}

// avroFieldType unwraps ["null", T] unions
func avroFieldType(avroType interface{}) (string, bool, error) {
	switch t := avroType.(type) {
	case string:
		return t, false, nil
	case map[string]interface{}:
		// {"type": "double"} form
		if inner, ok := t["type"].(string); ok {
			return inner, false, nil
		}
	case []interface{}:
		var found string
		nullable := false
		for _, unionType := range t {
			str, ok := unionType.(string)
			if !ok {
				return "", false, fmt.Errorf("unsupported union member %v", unionType)
			}
			if str == "null" {
				nullable = true
				continue
			}
			if found != "" {
				return "", false, fmt.Errorf("unions of more than one non-null type are not supported")
			}
			found = str
		}
		if found != "" {
			return found, nullable, nil
		}
	}
	return "", false, fmt.Errorf("unsupported Avro type %v", avroType)
}

func avroToArrowType(avroType string) (arrow.DataType, error) {
	switch avroType {
	case "string":
		return arrow.BinaryTypes.String, nil
	case "double":
		return arrow.PrimitiveTypes.Float64, nil
	case "float":
		return arrow.PrimitiveTypes.Float32, nil
	case "long":
		return arrow.PrimitiveTypes.Int64, nil
	case "int":
		return arrow.PrimitiveTypes.Int32, nil
	case "boolean":
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, fmt.Errorf("unsupported Avro type %q", avroType)
	}
}

func getAvroCompression(compression string) (string, error) {
	switch compression {
	case "", "none", "null":
		return goavro.CompressionNullLabel, nil
	case "deflate":
		return goavro.CompressionDeflateLabel, nil
	case "snappy":
		return goavro.CompressionSnappyLabel, nil
	default:
		return "", fmt.Errorf("unsupported Avro compression: %s", compression)
	}
}

func arrowValueToAvro(col arrow.Array, row int) (interface{}, error) {
	if col.IsNull(row) {
		return nil, nil
	}

	switch c := col.(type) {
	case *array.String:
		return c.Value(row), nil
	case *array.Float64:
		return c.Value(row), nil
	case *array.Float32:
		return c.Value(row), nil
	case *array.Int64:
		return c.Value(row), nil
	case *array.Uint32:
		return int64(c.Value(row)), nil
	case *array.Int32:
		return c.Value(row), nil
	case *array.Int16:
		return int32(c.Value(row)), nil
	case *array.Int8:
		return int32(c.Value(row)), nil
	case *array.Uint16:
		return int32(c.Value(row)), nil
	case *array.Uint8:
		return int32(c.Value(row)), nil
	case *array.Boolean:
		return c.Value(row), nil
	default:
		return nil, fmt.Errorf("unsupported column type %s", col.DataType())
	}
}

func appendAvroValue(builder array.Builder, value interface{}, avroType string) error {
	if value == nil {
		builder.AppendNull()
		return nil
	}
	// Nullable fields decode as map[type]value
	if m, ok := value.(map[string]interface{}); ok {
		inner, ok := m[avroType]
		if !ok {
			return fmt.Errorf("union value %v does not carry %s", m, avroType)
		}
		value = inner
	}

	switch b := builder.(type) {
	case *array.StringBuilder:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		b.Append(v)
	case *array.Float64Builder:
		v, ok := value.(float64)
		if !ok {
			return fmt.Errorf("expected double, got %T", value)
		}
		b.Append(v)
	case *array.Float32Builder:
		v, ok := value.(float32)
		if !ok {
			return fmt.Errorf("expected float, got %T", value)
		}
		b.Append(v)
	case *array.Int64Builder:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("expected long, got %T", value)
		}
		b.Append(v)
	case *array.Int32Builder:
		v, ok := value.(int32)
		if !ok {
			return fmt.Errorf("expected int, got %T", value)
		}
		b.Append(v)
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
		b.Append(v)
	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}
	return nil
}
