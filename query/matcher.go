package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	jsoniter "github.com/json-iterator/go"
)

// matcherCacheSize bounds the number of compiled selectors kept around.
// Publications tend to reuse a handful of selector shapes per client.
const matcherCacheSize = 1024

var (
	json         = jsoniter.ConfigCompatibleWithStandardLibrary
	matcherCache *lru.Cache[uint64, Matcher]
)

func init() {
	var err error
	matcherCache, err = lru.New[uint64, Matcher](matcherCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create matcher cache: %v", err))
	}
}

// Matcher tests documents against a compiled selector
type Matcher interface {
	Match(doc Document) bool
}

type matchFunc func(doc map[string]any) bool

func (f matchFunc) Match(doc Document) bool {
	return f(doc)
}

// valuePredicate tests a field. found is false when the path is absent.
type valuePredicate func(values []any, found bool) bool

// Compile turns a selector into a Matcher. Results are cached by the
// canonical encoding of the selector.
func Compile(sel Selector) (Matcher, error) {
	key, cacheable := selectorKey(sel)
	if cacheable {
		if m, ok := matcherCache.Get(key); ok {
			return m, nil
		}
	}

	fn, err := compileSelector(sel)
	if err != nil {
		return nil, err
	}

	if cacheable {
		matcherCache.Add(key, fn)
	}
	return fn, nil
}

// selectorKey hashes the canonical JSON encoding (sorted keys) of a selector
func selectorKey(sel Selector) (uint64, bool) {
	data, err := json.Marshal(sel)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}

func compileSelector(sel map[string]any) (matchFunc, error) {
	if len(sel) == 0 {
		return func(map[string]any) bool { return true }, nil
	}

	clauses := make([]matchFunc, 0, len(sel))
	for _, key := range Document(sel).Keys() {
		cond := sel[key]

		if strings.HasPrefix(key, "$") {
			fn, err := compileLogical(key, cond)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, fn)
			continue
		}

		pred, err := compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		path := key
		clauses = append(clauses, func(doc map[string]any) bool {
			values, found := lookup(doc, path)
			return pred(values, found)
		})
	}

	return func(doc map[string]any) bool {
		for _, c := range clauses {
			if !c(doc) {
				return false
			}
		}
		return true
	}, nil
}

func compileLogical(op string, cond any) (matchFunc, error) {
	list, ok := cond.([]any)
	if !ok {
		if sels, ok := cond.([]Selector); ok {
			list = make([]any, len(sels))
			for i, s := range sels {
				list[i] = s
			}
		} else {
			return nil, fmt.Errorf("%s expects an array of selectors", op)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s expects a non-empty array", op)
	}

	subs := make([]matchFunc, 0, len(list))
	for i, item := range list {
		m := asMap(item)
		if m == nil {
			return nil, fmt.Errorf("%s[%d] must be an object", op, i)
		}
		fn, err := compileSelector(m)
		if err != nil {
			return nil, err
		}
		subs = append(subs, fn)
	}

	switch op {
	case "$and":
		return func(doc map[string]any) bool {
			for _, s := range subs {
				if !s(doc) {
					return false
				}
			}
			return true
		}, nil
	case "$or":
		return func(doc map[string]any) bool {
			for _, s := range subs {
				if s(doc) {
					return true
				}
			}
			return false
		}, nil
	case "$nor":
		return func(doc map[string]any) bool {
			for _, s := range subs {
				if s(doc) {
					return false
				}
			}
			return true
		}, nil
	default:
		return nil, fmt.Errorf("unknown top-level operator %s", op)
	}
}

// isOperatorObject reports whether every key of m is a $-operator
func isOperatorObject(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func compileCondition(cond any) (valuePredicate, error) {
	if m := asMap(cond); m != nil && isOperatorObject(m) {
		return compileOperators(m)
	}
	return equalsPredicate(cond), nil
}

func compileOperators(ops map[string]any) (valuePredicate, error) {
	preds := make([]valuePredicate, 0, len(ops))

	for _, op := range Document(ops).Keys() {
		arg := ops[op]
		var pred valuePredicate

		switch op {
		case "$eq":
			pred = equalsPredicate(arg)
		case "$ne":
			eq := equalsPredicate(arg)
			pred = func(values []any, found bool) bool { return !eq(values, found) }
		case "$gt", "$gte", "$lt", "$lte":
			pred = rangePredicate(op, arg)
		case "$in":
			in, err := inPredicate(arg)
			if err != nil {
				return nil, err
			}
			pred = in
		case "$nin":
			in, err := inPredicate(arg)
			if err != nil {
				return nil, err
			}
			pred = func(values []any, found bool) bool { return !in(values, found) }
		case "$exists":
			want := truthy(arg)
			pred = func(_ []any, found bool) bool { return found == want }
		case "$not":
			m := asMap(arg)
			if m == nil || !isOperatorObject(m) {
				return nil, fmt.Errorf("$not expects an operator object")
			}
			inner, err := compileOperators(m)
			if err != nil {
				return nil, err
			}
			pred = func(values []any, found bool) bool { return !inner(values, found) }
		case "$size":
			n, ok := toFloat(arg)
			if !ok {
				return nil, fmt.Errorf("$size expects a number")
			}
			pred = func(values []any, _ bool) bool {
				for _, v := range values {
					if arr, ok := v.([]any); ok && float64(len(arr)) == n {
						return true
					}
				}
				return false
			}
		case "$all":
			want, ok := arg.([]any)
			if !ok {
				return nil, fmt.Errorf("$all expects an array")
			}
			pred = func(values []any, _ bool) bool {
				cands := candidates(values)
				for _, w := range want {
					if !containsEqual(cands, w) {
						return false
					}
				}
				return len(want) > 0
			}
		case "$regex":
			re, err := compileRegex(arg, ops["$options"])
			if err != nil {
				return nil, err
			}
			pred = stringPredicate(re.MatchString)
		case "$options":
			// consumed by $regex
			continue
		case "$glob":
			pattern, ok := arg.(string)
			if !ok {
				return nil, fmt.Errorf("$glob expects a string pattern")
			}
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			pred = stringPredicate(g.Match)
		default:
			return nil, fmt.Errorf("unknown operator %s", op)
		}

		preds = append(preds, pred)
	}

	if _, hasOptions := ops["$options"]; hasOptions {
		if _, hasRegex := ops["$regex"]; !hasRegex {
			return nil, fmt.Errorf("$options without $regex")
		}
	}

	return func(values []any, found bool) bool {
		for _, p := range preds {
			if !p(values, found) {
				return false
			}
		}
		return true
	}, nil
}

// candidates flattens one level of arrays so {tags: "a"} matches tags: ["a"]
func candidates(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
		}
	}
	return out
}

func containsEqual(values []any, want any) bool {
	for _, v := range values {
		if Equal(v, want) {
			return true
		}
	}
	return false
}

func equalsPredicate(want any) valuePredicate {
	return func(values []any, found bool) bool {
		if !found {
			// a missing field equals null
			return want == nil
		}
		return containsEqual(candidates(values), want)
	}
}

func rangePredicate(op string, bound any) valuePredicate {
	return func(values []any, found bool) bool {
		if !found {
			return false
		}
		for _, v := range candidates(values) {
			if rank(v) != rank(bound) {
				continue
			}
			c := Compare(v, bound)
			switch op {
			case "$gt":
				if c > 0 {
					return true
				}
			case "$gte":
				if c >= 0 {
					return true
				}
			case "$lt":
				if c < 0 {
					return true
				}
			case "$lte":
				if c <= 0 {
					return true
				}
			}
		}
		return false
	}
}

func inPredicate(arg any) (valuePredicate, error) {
	list, ok := arg.([]any)
	if !ok {
		return nil, fmt.Errorf("$in/$nin expects an array")
	}
	return func(values []any, found bool) bool {
		for _, want := range list {
			if equalsPredicate(want)(values, found) {
				return true
			}
		}
		return false
	}, nil
}

func stringPredicate(match func(string) bool) valuePredicate {
	return func(values []any, found bool) bool {
		if !found {
			return false
		}
		for _, v := range candidates(values) {
			if s, ok := v.(string); ok && match(s) {
				return true
			}
		}
		return false
	}
}

func compileRegex(pattern, options any) (*regexp.Regexp, error) {
	expr, ok := pattern.(string)
	if !ok {
		return nil, fmt.Errorf("$regex expects a string")
	}
	if options != nil {
		flags, ok := options.(string)
		if !ok {
			return nil, fmt.Errorf("$options expects a string")
		}
		var prefix strings.Builder
		for _, f := range flags {
			switch f {
			case 'i', 'm', 's':
				prefix.WriteRune(f)
			default:
				return nil, fmt.Errorf("unsupported regex option %q", f)
			}
		}
		if prefix.Len() > 0 {
			expr = "(?" + prefix.String() + ")" + expr
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", expr, err)
	}
	return re, nil
}

// truthy applies loose truthiness to option values
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// Truthy reports whether an option value counts as set
func Truthy(v any) bool {
	return truthy(v)
}
