package query

import (
	"fmt"
	"sort"
	"strings"
)

// SortField is one key of a sort specification
type SortField struct {
	Path       string
	Descending bool
}

// FindOptions shapes a result set. The zero value returns every match
// ordered by _id with all fields.
type FindOptions struct {
	Sort   []SortField
	Skip   int
	Limit  int             // 0 = unlimited
	Fields map[string]bool // projection; true = include, false = exclude
}

// ParseFindOptions extracts the store-specific options from a loose options
// bag. Keys the store does not understand are ignored.
func ParseFindOptions(bag map[string]any) (FindOptions, error) {
	var opts FindOptions

	if raw, ok := bag["sort"]; ok && raw != nil {
		spec, err := parseSort(raw)
		if err != nil {
			return opts, err
		}
		opts.Sort = spec
	}

	if raw, ok := bag["skip"]; ok && raw != nil {
		n, err := nonNegativeInt("skip", raw)
		if err != nil {
			return opts, err
		}
		opts.Skip = n
	}

	if raw, ok := bag["limit"]; ok && raw != nil {
		n, err := nonNegativeInt("limit", raw)
		if err != nil {
			return opts, err
		}
		opts.Limit = n
	}

	if raw, ok := bag["fields"]; ok && raw != nil {
		fields, err := parseFields(raw)
		if err != nil {
			return opts, err
		}
		opts.Fields = fields
	}

	return opts, nil
}

func nonNegativeInt(name string, raw any) (int, error) {
	f, ok := toFloat(raw)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %v", name, raw)
	}
	return int(f), nil
}

func parseSort(raw any) ([]SortField, error) {
	switch spec := raw.(type) {
	case []any:
		out := make([]SortField, 0, len(spec))
		for _, item := range spec {
			switch v := item.(type) {
			case string:
				if strings.HasPrefix(v, "-") {
					out = append(out, SortField{Path: v[1:], Descending: true})
				} else {
					out = append(out, SortField{Path: v})
				}
			case []any:
				if len(v) != 2 {
					return nil, fmt.Errorf("sort pair must have two elements")
				}
				path, ok := v[0].(string)
				if !ok {
					return nil, fmt.Errorf("sort field must be a string")
				}
				desc, err := parseDirection(v[1])
				if err != nil {
					return nil, err
				}
				out = append(out, SortField{Path: path, Descending: desc})
			default:
				return nil, fmt.Errorf("unsupported sort element %v", item)
			}
		}
		return out, nil
	default:
		m := asMap(raw)
		if m == nil {
			return nil, fmt.Errorf("sort must be an array or an object")
		}
		// Go maps carry no key order; object sorts apply keys lexically.
		out := make([]SortField, 0, len(m))
		for _, k := range Document(m).Keys() {
			desc, err := parseDirection(m[k])
			if err != nil {
				return nil, err
			}
			out = append(out, SortField{Path: k, Descending: desc})
		}
		return out, nil
	}
}

func parseDirection(v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending":
			return false, nil
		case "desc", "descending":
			return true, nil
		}
		return false, fmt.Errorf("invalid sort direction %q", s)
	}
	if f, ok := toFloat(v); ok {
		switch f {
		case 1:
			return false, nil
		case -1:
			return true, nil
		}
	}
	return false, fmt.Errorf("invalid sort direction %v", v)
}

func parseFields(raw any) (map[string]bool, error) {
	m := asMap(raw)
	if m == nil {
		return nil, fmt.Errorf("fields must be an object")
	}

	fields := make(map[string]bool, len(m))
	include, exclude := false, false
	for k, v := range m {
		on := truthy(v)
		fields[k] = on
		if k == IDField {
			continue
		}
		if on {
			include = true
		} else {
			exclude = true
		}
	}
	if include && exclude {
		return nil, fmt.Errorf("fields projection cannot mix inclusion and exclusion")
	}
	return fields, nil
}

// SortDocuments orders docs in place by the sort spec, falling back to _id
func SortDocuments(docs []Document, spec []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range spec {
			c := Compare(sortKey(docs[i], f), sortKey(docs[j], f))
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID() < docs[j].ID()
	})
}

// sortKey picks the value a document sorts by. Array fields sort by their
// smallest element ascending and largest element descending.
func sortKey(doc Document, f SortField) any {
	values, found := lookup(doc, f.Path)
	if !found || len(values) == 0 {
		return nil
	}
	cands := values
	if len(values) == 1 {
		if arr, ok := values[0].([]any); ok && len(arr) > 0 {
			cands = arr
		}
	}
	best := cands[0]
	for _, v := range cands[1:] {
		c := Compare(v, best)
		if (f.Descending && c > 0) || (!f.Descending && c < 0) {
			best = v
		}
	}
	return best
}

// Window applies skip and limit
func (o FindOptions) Window(docs []Document) []Document {
	if o.Skip > 0 {
		if o.Skip >= len(docs) {
			return docs[:0]
		}
		docs = docs[o.Skip:]
	}
	if o.Limit > 0 && o.Limit < len(docs) {
		docs = docs[:o.Limit]
	}
	return docs
}

// Project applies the fields projection to a document, returning a copy
func (o FindOptions) Project(doc Document) Document {
	if len(o.Fields) == 0 {
		return doc.Clone()
	}

	inclusive := false
	for k, on := range o.Fields {
		if k != IDField && on {
			inclusive = true
			break
		}
	}

	out := Document{}
	if inclusive {
		for k, on := range o.Fields {
			if !on {
				continue
			}
			if v, ok := doc[topLevel(k)]; ok {
				out[topLevel(k)] = cloneValue(v)
			}
		}
	} else {
		for k, v := range doc {
			if on, listed := o.Fields[k]; listed && !on {
				continue
			}
			out[k] = cloneValue(v)
		}
	}

	if on, listed := o.Fields[IDField]; !listed || on {
		if id, ok := doc[IDField]; ok {
			out[IDField] = id
		}
	} else {
		delete(out, IDField)
	}
	return out
}

// topLevel trims a dotted path to its first segment. Projections act on
// top-level fields only.
func topLevel(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
