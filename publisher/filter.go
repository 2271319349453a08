package publisher

import (
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/query"
)

// compose builds the effective query and options of one activation.
// Filters are collected in a fixed order (caller query, static filters,
// dynamic filters) so the caller can only narrow what the server allows.
func (p *publication) compose(sub ddp.Subscription, callerQuery query.Selector, opts Options) (query.Selector, Options, error) {
	filters := make([]query.Selector, 0, 3)

	if !callerQuery.IsEmpty() {
		filters = append(filters, callerQuery)
	}

	if !p.filters.IsEmpty() {
		filters = append(filters, p.filters)
	}

	raw, err := p.dynamicFilters(sub)
	if err != nil {
		return nil, nil, err
	}
	dynamic, ok := query.AsSelector(raw)
	if !ok {
		return nil, nil, ErrInvalidDynamicFiltersResult
	}
	if !dynamic.IsEmpty() {
		filters = append(filters, dynamic)
	}

	if p.transformFilters != nil {
		filters = p.transformFilters(sub, filters, opts)
	}

	if p.transformOptions != nil {
		opts = p.transformOptions(sub, filters, opts)
	}
	if opts == nil {
		opts = Options{}
	}

	return query.And(filters), opts, nil
}
