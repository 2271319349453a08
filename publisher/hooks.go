package publisher

import (
	"fmt"
	"sync"

	"github.com/bhunjadi/pagination/cfg"
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/query"
)

// DefaultMaxLimit is the page size enforced by the limit_cap hook
const DefaultMaxLimit = 1000

// Hooks maps hook names used in the config file to functions
type Hooks struct {
	mu               sync.RWMutex
	dynamicFilters   map[string]DynamicFiltersFunc
	transformFilters map[string]TransformFiltersFunc
	transformOptions map[string]TransformOptionsFunc
}

// NewHooks creates an empty hook registry
func NewHooks() *Hooks {
	return &Hooks{
		dynamicFilters:   make(map[string]DynamicFiltersFunc),
		transformFilters: make(map[string]TransformFiltersFunc),
		transformOptions: make(map[string]TransformOptionsFunc),
	}
}

// DefaultHooks returns a registry with the built-in hooks:
//
//   - dynamic filters "owner": documents whose owner is the subscriber
//   - options transform "limit_cap": limit clamped to DefaultMaxLimit
func DefaultHooks() *Hooks {
	h := NewHooks()
	h.RegisterDynamicFilters("owner", OwnerFilter("owner"))
	h.RegisterTransformOptions("limit_cap", LimitCap(DefaultMaxLimit))
	return h
}

// RegisterDynamicFilters makes fn available as dynamic_filters = name
func (h *Hooks) RegisterDynamicFilters(name string, fn DynamicFiltersFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dynamicFilters[name] = fn
}

// RegisterTransformFilters makes fn available as transform_filters = name
func (h *Hooks) RegisterTransformFilters(name string, fn TransformFiltersFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transformFilters[name] = fn
}

// RegisterTransformOptions makes fn available as transform_options = name
func (h *Hooks) RegisterTransformOptions(name string, fn TransformOptionsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transformOptions[name] = fn
}

// SettingsFromConfig resolves a configured publication against hooks.
// dynamic_filters must name a registered function; anything else fails with
// ErrInvalidDynamicFilters.
func SettingsFromConfig(pc cfg.PublicationConfiguration, hooks *Hooks) (Settings, error) {
	if hooks == nil {
		hooks = NewHooks()
	}
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()

	settings := Settings{
		Name:             pc.Name,
		ClientCollection: pc.ClientCollection,
		Filters:          pc.Filters,
	}

	if pc.DynamicFilters != nil {
		name, ok := pc.DynamicFilters.(string)
		if !ok {
			return Settings{}, ErrInvalidDynamicFilters
		}
		fn, ok := hooks.dynamicFilters[name]
		if !ok {
			return Settings{}, ErrInvalidDynamicFilters.WithDetails(fmt.Sprintf("unknown dynamic filters %q", name))
		}
		settings.DynamicFilters = fn
	}

	if pc.TransformFilters != "" {
		fn, ok := hooks.transformFilters[pc.TransformFilters]
		if !ok {
			return Settings{}, fmt.Errorf("unknown transform_filters hook %q", pc.TransformFilters)
		}
		settings.TransformFilters = fn
	}

	if pc.TransformOptions != "" {
		fn, ok := hooks.transformOptions[pc.TransformOptions]
		if !ok {
			return Settings{}, fmt.Errorf("unknown transform_options hook %q", pc.TransformOptions)
		}
		settings.TransformOptions = fn
	}

	return settings, nil
}

// OwnerFilter restricts documents to those whose field equals the
// subscriber's user id. Anonymous subscribers match nothing.
func OwnerFilter(field string) DynamicFiltersFunc {
	return func(sub ddp.Subscription) (any, error) {
		userID := sub.UserID()
		if userID == "" {
			return query.Selector{query.IDField: map[string]any{"$in": []any{}}}, nil
		}
		return query.Selector{field: userID}, nil
	}
}

// LimitCap bounds the page size. A missing, zero or larger limit becomes max.
func LimitCap(max int) TransformOptionsFunc {
	return func(_ ddp.Subscription, _ []query.Selector, opts Options) Options {
		out := opts.Clone()
		limit, err := query.ParseFindOptions(map[string]any{"limit": opts["limit"]})
		if err != nil || limit.Limit == 0 || limit.Limit > max {
			out["limit"] = max
		}
		return out
	}
}
