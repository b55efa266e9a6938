package archive

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/ajitpratap0/trainprep/pkg/container"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/formats/columnar"
	jsonpool "github.com/ajitpratap0/trainprep/pkg/json"
	"github.com/ajitpratap0/trainprep/pkg/mmap"
)

// AttrsMember is the per-group attribute sidecar name
const AttrsMember = ".attrs.json"

// File is an open archive. It implements container.File.
type File struct {
	path   string
	mm     *mmap.Reader
	zr     *zip.Reader
	root   *group
	mem    memory.Allocator
	closed bool
	mu     sync.RWMutex
}

type group struct {
	file   *File
	name   string
	path   string
	groups []*group
	tables []string
	member map[string]*zip.File
	format map[string]columnar.Format
	attrs  *container.AttributeSet
}

// Open maps the archive at path read-only and indexes its groups. Tables
// are decoded on demand.
func Open(path string) (container.File, error) {
	return OpenWithAllocator(path, memory.NewGoAllocator())
}

// OpenWithAllocator is Open with an explicit allocator for decoded tables
func OpenWithAllocator(path string, mem memory.Allocator) (*File, error) {
	mm, err := mmap.NewReader(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to map container").
			WithDetail("path", path)
	}

	zr, err := zip.NewReader(mm, mm.Size())
	if err != nil {
		mm.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "not a container archive").
			WithDetail("path", path)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	f := &File{path: path, mm: mm, zr: zr, mem: mem}
	f.root = f.newGroup("", "")
	if err := f.index(); err != nil {
		mm.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) newGroup(name, p string) *group {
	return &group{
		file:   f,
		name:   name,
		path:   p,
		member: make(map[string]*zip.File),
		format: make(map[string]columnar.Format),
		attrs:  container.NewAttributeSet(p, nil, nil),
	}
}

func (f *File) index() error {
	for _, zf := range f.zr.File {
		name := zf.Name
		if strings.HasSuffix(name, "/") {
			f.ensure(name)
			continue
		}

		dir, base := path.Split(name)
		g := f.ensure(dir)

		if base == AttrsMember {
			attrs, err := f.readAttrs(zf, g.path)
			if err != nil {
				return err
			}
			g.attrs = attrs
			continue
		}

		format, ok := columnar.FormatForFile(base)
		if !ok {
			return errors.Newf(errors.ErrorTypeFile, "unrecognized archive member %q", name).
				WithDetail("path", f.path)
		}
		table := strings.TrimSuffix(base, path.Ext(base))
		if _, dup := g.member[table]; dup {
			return errors.Newf(errors.ErrorTypeFile, "table %q stored twice in group %q", table, g.path).
				WithDetail("path", f.path)
		}
		g.member[table] = zf
		g.format[table] = format
		g.tables = append(g.tables, table)
	}
	return nil
}

func (f *File) ensure(dir string) *group {
	g := f.root
	for _, elem := range container.SplitPath(dir) {
		var next *group
		for _, c := range g.groups {
			if c.name == elem {
				next = c
				break
			}
		}
		if next == nil {
			next = f.newGroup(elem, container.JoinPath(g.path, elem))
			g.groups = append(g.groups, next)
		}
		g = next
	}
	return g
}

func (f *File) readAttrs(zf *zip.File, owner string) (*container.AttributeSet, error) {
	data, err := f.memberBytes(zf)
	if err != nil {
		return nil, err
	}

	var values map[string]interface{}
	if err := jsonpool.UnmarshalNumbers(data, &values); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed attributes").
			WithDetail("group", owner)
	}
	for name, v := range values {
		switch v.(type) {
		case string, bool, jsonpool.Number:
		default:
			return nil, errors.Newf(errors.ErrorTypeData,
				"attribute %q on group %q is not a scalar", name, owner).
				WithDetail("group", owner)
		}
	}

	// Attribute names enumerate alphabetically
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return container.NewAttributeSet(owner, names, values), nil
}

// memberBytes returns the decompressed member contents. Stored members
// are sliced from the mapping without copying.
func (f *File) memberBytes(zf *zip.File) ([]byte, error) {
	if zf.Method == zip.Store && zf.UncompressedSize64 > 0 {
		off, err := zf.DataOffset()
		if err == nil {
			return f.mm.ReadRange(off, int64(zf.UncompressedSize64))
		}
	}

	rc, err := zf.Open()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open archive member").
			WithDetail("member", zf.Name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decompress archive member").
			WithDetail("member", zf.Name)
	}
	return data, nil
}

// Path returns the archive location
func (f *File) Path() string {
	return f.path
}

// HasGroup reports whether a group exists at path
func (f *File) HasGroup(p string) bool {
	_, err := f.Group(p)
	return err == nil
}

// Group resolves a group by path
func (f *File) Group(p string) (container.Group, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, errors.New(errors.ErrorTypeFile, "container is closed")
	}

	g := f.root
	for _, elem := range container.SplitPath(p) {
		next := g.child(elem)
		if next == nil {
			return nil, errors.Newf(errors.ErrorTypeMissingStructure, "group %q not found", p).
				WithDetail("group", p).
				WithDetail("path", f.path)
		}
		g = next
	}
	return g, nil
}

// Groups lists top-level groups in entry order
func (f *File) Groups() []string {
	return f.root.Groups()
}

// Stats reports how many bytes were read from the mapping
func (f *File) Stats() (bytesRead, pagesRead int64) {
	return f.mm.Stats()
}

// Close unmaps the archive. Records already returned stay valid.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.mm.Close()
}

func (g *group) child(name string) *group {
	for _, c := range g.groups {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (g *group) Name() string { return g.name }

func (g *group) Path() string { return g.path }

func (g *group) Groups() []string {
	names := make([]string, len(g.groups))
	for i, c := range g.groups {
		names[i] = c.name
	}
	return names
}

func (g *group) HasGroup(name string) bool {
	return g.child(name) != nil
}

func (g *group) Group(name string) (container.Group, error) {
	c := g.child(name)
	if c == nil {
		p := container.JoinPath(g.path, name)
		return nil, errors.Newf(errors.ErrorTypeMissingStructure, "group %q not found", p).
			WithDetail("group", p).
			WithDetail("path", g.file.path)
	}
	return c, nil
}

func (g *group) Tables() []string {
	return append([]string(nil), g.tables...)
}

func (g *group) HasTable(name string) bool {
	_, ok := g.member[name]
	return ok
}

func (g *group) Attrs() container.Attributes {
	return g.attrs
}

// Table decodes the named member into a single record
func (g *group) Table(name string) (arrow.Record, error) {
	f := g.file
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, errors.New(errors.ErrorTypeFile, "container is closed")
	}

	zf, ok := g.member[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeMissingStructure,
			"table %q not found in group %q", name, g.path).
			WithDetail("group", g.path).
			WithDetail("table", name)
	}

	data, err := f.memberBytes(zf)
	if err != nil {
		return nil, err
	}

	rec, err := decodeTable(data, g.format[name], f.mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("failed to decode table %s/%s", g.path, name)).
			WithDetail("group", g.path).
			WithDetail("table", name)
	}
	return rec, nil
}

func decodeTable(data []byte, format columnar.Format, mem memory.Allocator) (arrow.Record, error) {
	r, err := columnar.NewReader(bytes.NewReader(data), &columnar.ReaderConfig{
		Format:    format,
		Allocator: mem,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return columnar.ReadAll(r, mem)
}
