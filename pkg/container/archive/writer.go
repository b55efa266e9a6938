package archive

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/ajitpratap0/trainprep/pkg/container"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/formats/columnar"
	jsonpool "github.com/ajitpratap0/trainprep/pkg/json"
)

// Method selects how archive members are compressed
type Method uint16

const (
	// Store writes members uncompressed so they can be read from the mapping
	Store Method = Method(zip.Store)
	// Deflate compresses members with deflate
	Deflate Method = Method(zip.Deflate)
	// Zstd compresses members with zstd (WinZip method 93)
	Zstd Method = zstd.ZipMethodWinZip
)

type writerOptions struct {
	method           Method
	tableFormat      columnar.Format
	tableCompression string
}

// Option configures a Writer
type Option func(*writerOptions)

// WithMethod sets the member compression method (default Store)
func WithMethod(m Method) Option {
	return func(o *writerOptions) { o.method = m }
}

// WithTableFormat sets the codec used for tables (default Arrow)
func WithTableFormat(f columnar.Format) Option {
	return func(o *writerOptions) { o.tableFormat = f }
}

// WithTableCompression sets the codec-level compression, e.g. "zstd" for
// Arrow or "snappy" for Parquet
func WithTableCompression(c string) Option {
	return func(o *writerOptions) { o.tableCompression = c }
}

// Writer builds an archive file
type Writer struct {
	path   string
	file   *os.File
	zw     *zip.Writer
	opts   writerOptions
	groups map[string]bool
	tables map[string]bool
	attrs  map[string]bool
	closed bool
}

// Create creates or truncates the archive at path
func Create(path string, opts ...Option) (*Writer, error) {
	o := writerOptions{method: Store, tableFormat: columnar.Arrow}
	for _, opt := range opts {
		opt(&o)
	}
	if columnar.GetFormatInfo(o.tableFormat) == nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported table format %q", o.tableFormat)
	}
	switch o.method {
	case Store, Deflate, Zstd:
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported member method %d", o.method)
	}

	f, err := os.Create(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create archive").
			WithDetail("path", path)
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	return &Writer{
		path:   path,
		file:   f,
		zw:     zw,
		opts:   o,
		groups: make(map[string]bool),
		tables: make(map[string]bool),
		attrs:  make(map[string]bool),
	}, nil
}

// AddGroup writes the directory entries for p and its parents. Groups
// enumerate in the order they are added.
func (w *Writer) AddGroup(p string) error {
	if w.closed {
		return errors.New(errors.ErrorTypeFile, "archive writer is closed")
	}

	current := ""
	for _, elem := range container.SplitPath(p) {
		current = container.JoinPath(current, elem)
		if w.groups[current] {
			continue
		}
		if _, err := w.zw.CreateHeader(&zip.FileHeader{Name: current + "/", Method: zip.Store}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write group entry").
				WithDetail("group", current)
		}
		w.groups[current] = true
	}
	return nil
}

// WriteTable encodes rec as table name of group g
func (w *Writer) WriteTable(g, name string, rec arrow.Record) error {
	if err := w.AddGroup(g); err != nil {
		return err
	}

	key := container.JoinPath(g, name)
	if w.tables[key] {
		return errors.Newf(errors.ErrorTypeValidation, "table %q already written", key)
	}

	// Encode first so a codec failure leaves no partial member behind
	var buf bytes.Buffer
	cw, err := columnar.NewWriter(&buf, &columnar.WriterConfig{
		Format:      w.opts.tableFormat,
		Schema:      rec.Schema(),
		Compression: w.opts.tableCompression,
		BatchSize:   columnar.DefaultWriterConfig().BatchSize,
		EnableStats: true,
		SchemaName:  name,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create table encoder").
			WithDetail("table", key)
	}
	if err := cw.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode table").
			WithDetail("table", key)
	}
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to finish table").
			WithDetail("table", key)
	}

	member := key + columnar.GetFormatInfo(w.opts.tableFormat).FileExtension
	if err := w.writeMember(member, buf.Bytes()); err != nil {
		return err
	}
	w.tables[key] = true
	return nil
}

// WriteAttrs stores scalar attributes for group g. Values must be
// integers, floats, strings or booleans.
func (w *Writer) WriteAttrs(g string, attrs map[string]interface{}) error {
	if err := w.AddGroup(g); err != nil {
		return err
	}

	key := container.JoinPath(g)
	if w.attrs[key] {
		return errors.Newf(errors.ErrorTypeValidation, "attributes for group %q already written", key)
	}

	names := make([]string, 0, len(attrs))
	for name, v := range attrs {
		switch v.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64,
			float32, float64, string, bool, jsonpool.Number:
		default:
			return errors.Newf(errors.ErrorTypeValidation,
				"attribute %q on group %q has unsupported type %T", name, key, v)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	buf := jsonpool.GetBuffer()
	defer jsonpool.PutBuffer(buf)

	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := jsonpool.Marshal(name)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode attribute name")
		}
		v, err := jsonpool.Marshal(attrs[name])
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("failed to encode attribute %s", name))
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')

	if err := w.writeMember(container.JoinPath(key, AttrsMember), buf.Bytes()); err != nil {
		return err
	}
	w.attrs[key] = true
	return nil
}

func (w *Writer) writeMember(name string, data []byte) error {
	if w.closed {
		return errors.New(errors.ErrorTypeFile, "archive writer is closed")
	}
	mw, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: uint16(w.opts.method)})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create archive member").
			WithDetail("member", name)
	}
	if _, err := mw.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write archive member").
			WithDetail("member", name)
	}
	return nil
}

// Close writes the central directory and closes the file
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.zw.Close()
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish archive").
			WithDetail("path", w.path)
	}
	return nil
}

// Save writes every group, table and attribute of src into a new archive
// at path, preserving group order
func Save(path string, src container.File, opts ...Option) (err error) {
	w, err := Create(path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
	}()

	for _, name := range src.Groups() {
		g, err := src.Group(name)
		if err != nil {
			return err
		}
		if err := w.copyGroup(g); err != nil {
			return err
		}
	}
	return nil
}

type rawAttributes interface {
	Values() map[string]interface{}
}

func (w *Writer) copyGroup(g container.Group) error {
	if err := w.AddGroup(g.Path()); err != nil {
		return err
	}

	attrs := g.Attrs()
	if names := attrs.Names(); len(names) > 0 {
		values, err := attributeValues(attrs)
		if err != nil {
			return err
		}
		if err := w.WriteAttrs(g.Path(), values); err != nil {
			return err
		}
	}

	for _, name := range g.Tables() {
		rec, err := g.Table(name)
		if err != nil {
			return err
		}
		err = w.WriteTable(g.Path(), name, rec)
		rec.Release()
		if err != nil {
			return err
		}
	}

	for _, name := range g.Groups() {
		child, err := g.Group(name)
		if err != nil {
			return err
		}
		if err := w.copyGroup(child); err != nil {
			return err
		}
	}
	return nil
}

func attributeValues(attrs container.Attributes) (map[string]interface{}, error) {
	if raw, ok := attrs.(rawAttributes); ok {
		return raw.Values(), nil
	}

	values := make(map[string]interface{})
	for _, name := range attrs.Names() {
		if i, err := attrs.Int(name); err == nil {
			values[name] = i
		} else if f, err := attrs.Float(name); err == nil {
			values[name] = f
		} else if s, err := attrs.String(name); err == nil {
			values[name] = s
		} else {
			return nil, errors.Newf(errors.ErrorTypeValidation, "attribute %q has no supported value", name)
		}
	}
	return values, nil
}
