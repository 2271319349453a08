package publisher

import (
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/query"
)

// Mode selects how a subscription is served
type Mode int

const (
	// ModeSnapshot fetches matches once
	ModeSnapshot Mode = iota
	// ModeReactive follows the cursor until the subscription stops
	ModeReactive
)

func (m Mode) String() string {
	if m == ModeReactive {
		return "reactive"
	}
	return "non-reactive"
}

// Options is the loose options bag a client subscribes with. Besides the
// reactive and debug flags it carries store options (sort, skip, limit,
// fields) that are passed through to the cursor.
type Options map[string]any

// Reactive reports whether the reactive flag is set
func (o Options) Reactive() bool {
	return query.Truthy(o["reactive"])
}

// Debug reports whether the debug flag is set
func (o Options) Debug() bool {
	return query.Truthy(o["debug"])
}

// Mode resolves the serving mode from the reactive flag
func (o Options) Mode() Mode {
	if o.Reactive() {
		return ModeReactive
	}
	return ModeSnapshot
}

// FindOptions extracts the store options
func (o Options) FindOptions() (query.FindOptions, error) {
	return query.ParseFindOptions(o)
}

// Clone returns a shallow copy safe for hooks to modify
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// DynamicFiltersFunc computes per-subscription filters. The result must be
// an object (a map, or nil for none).
type DynamicFiltersFunc func(sub ddp.Subscription) (any, error)

// TransformFiltersFunc may rewrite the ordered filter list
type TransformFiltersFunc func(sub ddp.Subscription, filters []query.Selector, opts Options) []query.Selector

// TransformOptionsFunc may rewrite the options; it sees the filters after
// TransformFiltersFunc ran.
type TransformOptionsFunc func(sub ddp.Subscription, filters []query.Selector, opts Options) Options

// Settings configures a publication. Zero values fall back to defaults:
// Name and ClientCollection to the source name, Filters to {}, and nil
// hooks to identity.
type Settings struct {
	Name             string
	ClientCollection string
	Filters          any
	DynamicFilters   DynamicFiltersFunc
	TransformFilters TransformFiltersFunc
	TransformOptions TransformOptionsFunc
}

// MarkerField is the field set on every document a subscription publishes
func MarkerField(subID string) string {
	return "sub_" + subID
}

// CountKey is the id of the count record of a subscription
func CountKey(subID string) string {
	return "sub_count_" + subID
}
