package ddp

import (
	jsoniter "github.com/json-iterator/go"
)

// Params are the positional arguments of a subscription
type Params []jsoniter.RawMessage

// Len returns the number of params supplied
func (p Params) Len() int {
	return len(p)
}

// Object decodes param i as a JSON object. A missing or null param yields an
// empty object; any other non-object value fails with ErrMatchFailed.
func (p Params) Object(i int) (map[string]any, error) {
	// A null element decodes to an empty RawMessage
	if i < 0 || i >= len(p) || len(p[i]) == 0 {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(p[i], &v); err != nil {
		return nil, ErrMatchFailed
	}
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	default:
		return nil, ErrMatchFailed
	}
}
