// Package container defines the read-only view of a hierarchical input
// file: named groups holding sub-groups, record tables and attributes.
//
// Paths use "/" as separator and are relative to the file root, e.g.
// "samples/signal". Lookups of absent groups, tables or attributes fail
// with errors.ErrorTypeMissingStructure; attributes of the wrong kind fail
// with errors.ErrorTypeTypeMismatch.
package container

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// File is an open container
type File interface {
	// Path returns the location the file was opened from
	Path() string
	// HasGroup reports whether a group exists at path
	HasGroup(path string) bool
	// Group resolves a group by path
	Group(path string) (Group, error)
	// Groups lists top-level groups in native enumeration order
	Groups() []string
	// Close releases the file and every table it still holds
	Close() error
}

// Group is a node in the container hierarchy
type Group interface {
	// Name is the last path element
	Name() string
	// Path is the full path from the file root
	Path() string
	// Groups lists sub-group names in native enumeration order
	Groups() []string
	HasGroup(name string) bool
	Group(name string) (Group, error)
	// Tables lists table names in native enumeration order
	Tables() []string
	HasTable(name string) bool
	// Table decodes a table. The caller releases the returned record.
	Table(name string) (arrow.Record, error)
	Attrs() Attributes
}

// Attributes are scalar metadata attached to a group
type Attributes interface {
	Names() []string
	Has(name string) bool
	// Int returns an integer attribute; non-integer values are a type mismatch
	Int(name string) (int64, error)
	Float(name string) (float64, error)
	String(name string) (string, error)
}

// Opener opens a container file read-only
type Opener func(path string) (File, error)

// SplitPath splits a group path into its elements, ignoring empty ones
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath joins path elements with "/"
func JoinPath(elem ...string) string {
	return strings.Join(SplitPath(strings.Join(elem, "/")), "/")
}
