// Package query implements the selector language used to filter documents,
// along with the find options (sort, skip, limit, projection) that shape a
// result set.
//
// A Selector is an opaque structural predicate from the point of view of the
// publication layer. Only this package and the db package interpret it.
package query

import (
	"fmt"
	"sort"
)

// IDField is the primary key field present on every stored document
const IDField = "_id"

// Selector is a structural document predicate, e.g. {"status": "open"}
type Selector map[string]any

// Document is a stored record or a set of fields of a record
type Document map[string]any

// IsEmpty reports whether the selector matches everything
func (s Selector) IsEmpty() bool {
	return len(s) == 0
}

// And reduces an ordered filter list into a single selector.
// Zero filters yield an empty selector, one filter is returned verbatim and
// several filters are combined with $and in the given order.
func And(filters []Selector) Selector {
	switch len(filters) {
	case 0:
		return Selector{}
	case 1:
		return filters[0]
	default:
		clauses := make([]any, len(filters))
		for i, f := range filters {
			clauses[i] = f
		}
		return Selector{"$and": clauses}
	}
}

// AsSelector converts a loosely typed value into a Selector.
// It returns false when the value is not an object.
func AsSelector(v any) (Selector, bool) {
	switch t := v.(type) {
	case nil:
		return Selector{}, true
	case Selector:
		if t == nil {
			return Selector{}, true
		}
		return t, true
	case map[string]any:
		if t == nil {
			return Selector{}, true
		}
		return Selector(t), true
	case Document:
		return Selector(t), true
	default:
		return nil, false
	}
}

// ID returns the document identifier, or "" when the document has none
func (d Document) ID() string {
	switch id := d[IDField].(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// Clone returns a deep copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// WithoutID returns a copy of the document with the _id field removed
func (d Document) WithoutID() Document {
	out := d.Clone()
	delete(out, IDField)
	return out
}

// Keys returns the document field names in lexical order
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
