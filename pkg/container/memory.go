package container

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/trainprep/pkg/errors"
)

// Memory is an in-memory container. Groups, tables and attributes are
// enumerated in insertion order. It is used to assemble inputs in tests
// and as the source for archive.Save.
type Memory struct {
	path   string
	root   *MemoryGroup
	closed bool
	mu     sync.RWMutex
}

// MemoryGroup is a group of a Memory container and its builder
type MemoryGroup struct {
	file   *Memory
	name   string
	path   string
	groups []*MemoryGroup
	tables []string
	data   map[string]arrow.Record
	attrs  []string
	values map[string]interface{}
}

// NewMemory creates an empty in-memory container reporting path as its location
func NewMemory(path string) *Memory {
	m := &Memory{path: path}
	m.root = m.newGroup("", "")
	return m
}

func (m *Memory) newGroup(name, path string) *MemoryGroup {
	return &MemoryGroup{
		file:   m,
		name:   name,
		path:   path,
		data:   make(map[string]arrow.Record),
		values: make(map[string]interface{}),
	}
}

// AddGroup returns the group at path, creating it and any missing parents
func (m *Memory) AddGroup(path string) *MemoryGroup {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.root
	for _, elem := range SplitPath(path) {
		g = g.child(elem, true)
	}
	return g
}

// Path returns the location reported for the container
func (m *Memory) Path() string {
	return m.path
}

// HasGroup reports whether a group exists at path
func (m *Memory) HasGroup(path string) bool {
	_, err := m.Group(path)
	return err == nil
}

// Group resolves a group by path
func (m *Memory) Group(path string) (Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errors.New(errors.ErrorTypeFile, "container is closed")
	}

	g := m.root
	for _, elem := range SplitPath(path) {
		next := g.child(elem, false)
		if next == nil {
			return nil, errors.Newf(errors.ErrorTypeMissingStructure, "group %q not found", path).
				WithDetail("group", path)
		}
		g = next
	}
	return g, nil
}

// Groups lists top-level groups
func (m *Memory) Groups() []string {
	return m.root.Groups()
}

// Close releases every table held by the container
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.root.release()
	return nil
}

func (g *MemoryGroup) child(name string, create bool) *MemoryGroup {
	for _, c := range g.groups {
		if c.name == name {
			return c
		}
	}
	if !create {
		return nil
	}
	c := g.file.newGroup(name, JoinPath(g.path, name))
	g.groups = append(g.groups, c)
	return c
}

func (g *MemoryGroup) release() {
	for _, rec := range g.data {
		rec.Release()
	}
	g.data = map[string]arrow.Record{}
	g.tables = nil
	for _, c := range g.groups {
		c.release()
	}
}

// AddGroup returns the sub-group name, creating it if needed
func (g *MemoryGroup) AddGroup(name string) *MemoryGroup {
	g.file.mu.Lock()
	defer g.file.mu.Unlock()

	out := g
	for _, elem := range SplitPath(name) {
		out = out.child(elem, true)
	}
	return out
}

// SetTable stores rec under name, replacing any previous table. The group
// retains rec; the caller keeps its own reference.
func (g *MemoryGroup) SetTable(name string, rec arrow.Record) *MemoryGroup {
	g.file.mu.Lock()
	defer g.file.mu.Unlock()

	rec.Retain()
	if old, ok := g.data[name]; ok {
		old.Release()
	} else {
		g.tables = append(g.tables, name)
	}
	g.data[name] = rec
	return g
}

// SetAttr stores a scalar attribute
func (g *MemoryGroup) SetAttr(name string, value interface{}) *MemoryGroup {
	g.file.mu.Lock()
	defer g.file.mu.Unlock()

	if _, ok := g.values[name]; !ok {
		g.attrs = append(g.attrs, name)
	}
	g.values[name] = value
	return g
}

// Name is the last path element
func (g *MemoryGroup) Name() string { return g.name }

// Path is the full group path
func (g *MemoryGroup) Path() string { return g.path }

// Groups lists sub-groups in insertion order
func (g *MemoryGroup) Groups() []string {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()

	names := make([]string, len(g.groups))
	for i, c := range g.groups {
		names[i] = c.name
	}
	return names
}

// HasGroup reports whether a direct sub-group exists
func (g *MemoryGroup) HasGroup(name string) bool {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()
	return g.child(name, false) != nil
}

// Group returns a direct sub-group
func (g *MemoryGroup) Group(name string) (Group, error) {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()

	c := g.child(name, false)
	if c == nil {
		p := JoinPath(g.path, name)
		return nil, errors.Newf(errors.ErrorTypeMissingStructure, "group %q not found", p).
			WithDetail("group", p)
	}
	return c, nil
}

// Tables lists tables in insertion order
func (g *MemoryGroup) Tables() []string {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()
	return append([]string(nil), g.tables...)
}

// HasTable reports whether a table exists
func (g *MemoryGroup) HasTable(name string) bool {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()
	_, ok := g.data[name]
	return ok
}

// Table returns a new reference to the stored record
func (g *MemoryGroup) Table(name string) (arrow.Record, error) {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()

	if g.file.closed {
		return nil, errors.New(errors.ErrorTypeFile, "container is closed")
	}
	rec, ok := g.data[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeMissingStructure,
			"table %q not found in group %q", name, g.path).
			WithDetail("group", g.path).
			WithDetail("table", name)
	}
	rec.Retain()
	return rec, nil
}

// Attrs returns a snapshot of the group attributes
func (g *MemoryGroup) Attrs() Attributes {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()
	return NewAttributeSet(g.path, g.attrs, g.values)
}
