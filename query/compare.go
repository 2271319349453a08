package query

import (
	"strings"
)

// Type ordering used when comparing values of different kinds.
// Mirrors the usual document-store ordering: null < numbers < strings <
// objects < arrays < booleans.
const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBool
	rankOther
)

// toFloat normalizes any Go numeric type to float64
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func rank(v any) int {
	if v == nil {
		return rankNull
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case string:
		return rankString
	case map[string]any, Document, Selector:
		return rankObject
	case []any:
		return rankArray
	case bool:
		return rankBool
	default:
		return rankOther
	}
}

// Compare orders two values. Values of different kinds are ordered by kind.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNull:
		return 0
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case rankArray:
		aa, ab := a.([]any), b.([]any)
		for i := 0; i < len(aa) && i < len(ab); i++ {
			if c := Compare(aa[i], ab[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(aa), len(ab))
	case rankObject:
		ma, mb := asMap(a), asMap(b)
		ka, kb := Document(ma).Keys(), Document(mb).Keys()
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if c := strings.Compare(ka[i], kb[i]); c != 0 {
				return c
			}
			if c := Compare(ma[ka[i]], mb[kb[i]]); c != 0 {
				return c
			}
		}
		return compareInts(len(ka), len(kb))
	}
	return 0
}

// Equal reports deep equality with numeric normalization
func Equal(a, b any) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return false
	}
	switch ra {
	case rankArray:
		aa, ab := a.([]any), b.([]any)
		if len(aa) != len(ab) {
			return false
		}
		for i := range aa {
			if !Equal(aa[i], ab[i]) {
				return false
			}
		}
		return true
	case rankObject:
		ma, mb := asMap(a), asMap(b)
		if len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	case rankOther:
		return a == b
	default:
		return Compare(a, b) == 0
	}
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func asMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case Document:
		return t
	case Selector:
		return t
	}
	return nil
}

// lookup resolves a dotted path against a document.
// Arrays along the path fan out, so a single path can yield several values.
func lookup(doc map[string]any, path string) ([]any, bool) {
	parts := strings.Split(path, ".")
	return lookupParts(doc, parts)
}

func lookupParts(v any, parts []string) ([]any, bool) {
	if len(parts) == 0 {
		return []any{v}, true
	}

	switch t := v.(type) {
	case map[string]any, Document, Selector:
		child, ok := asMap(t)[parts[0]]
		if !ok {
			return nil, false
		}
		return lookupParts(child, parts[1:])
	case []any:
		var out []any
		found := false
		for _, elem := range t {
			if vals, ok := lookupParts(elem, parts); ok {
				out = append(out, vals...)
				found = true
			}
		}
		return out, found
	default:
		return nil, false
	}
}
