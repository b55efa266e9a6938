package container

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ajitpratap0/trainprep/pkg/errors"
	jsonpool "github.com/ajitpratap0/trainprep/pkg/json"
)

// AttributeSet is an ordered, immutable Attributes implementation.
// Supported values are integers, floats, strings, booleans and
// json.Number.
type AttributeSet struct {
	owner  string
	names  []string
	values map[string]interface{}
}

// NewAttributeSet builds attributes for the group at owner. Names are kept
// in the order given; order may be nil, in which case no order is implied.
func NewAttributeSet(owner string, order []string, values map[string]interface{}) *AttributeSet {
	a := &AttributeSet{
		owner:  owner,
		values: make(map[string]interface{}, len(values)),
	}
	seen := make(map[string]struct{}, len(values))
	for _, name := range order {
		if v, ok := values[name]; ok {
			if _, dup := seen[name]; !dup {
				a.names = append(a.names, name)
				a.values[name] = v
				seen[name] = struct{}{}
			}
		}
	}
	for name, v := range values {
		if _, ok := seen[name]; !ok {
			a.names = append(a.names, name)
			a.values[name] = v
		}
	}
	return a
}

// Names returns attribute names
func (a *AttributeSet) Names() []string {
	return append([]string(nil), a.names...)
}

// Has reports whether the attribute exists
func (a *AttributeSet) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Values returns a copy of the raw attribute values
func (a *AttributeSet) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

func (a *AttributeSet) get(name string) (interface{}, error) {
	v, ok := a.values[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeMissingStructure,
			"attribute %q not found on group %q", name, a.owner).
			WithDetail("group", a.owner).
			WithDetail("attribute", name)
	}
	return v, nil
}

func (a *AttributeSet) mismatch(name, want string, v interface{}) error {
	got := fmt.Sprintf("%T", v)
	if n, ok := v.(jsonpool.Number); ok {
		got = "number " + n.String()
	}
	return errors.Newf(errors.ErrorTypeTypeMismatch,
		"attribute %q on group %q is %s, want %s", name, a.owner, got, want).
		WithDetail("group", a.owner).
		WithDetail("attribute", name)
}

// Int returns an integer attribute
func (a *AttributeSet) Int(name string) (int64, error) {
	v, err := a.get(name)
	if err != nil {
		return 0, err
	}

	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, a.mismatch(name, "int64", v)
		}
		return int64(n), nil
	case jsonpool.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return 0, a.mismatch(name, "integer", n)
		}
		return i, nil
	default:
		return 0, a.mismatch(name, "integer", v)
	}
}

// Float returns a floating point attribute; integer values are widened
func (a *AttributeSet) Float(name string) (float64, error) {
	v, err := a.get(name)
	if err != nil {
		return 0, err
	}

	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case jsonpool.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, a.mismatch(name, "float", v)
		}
		return f, nil
	}

	i, err := a.Int(name)
	if err != nil {
		return 0, a.mismatch(name, "float", v)
	}
	return float64(i), nil
}

// String returns a string attribute
func (a *AttributeSet) String(name string) (string, error) {
	v, err := a.get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", a.mismatch(name, "string", v)
	}
	return s, nil
}
