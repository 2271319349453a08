package publisher

import (
	"fmt"

	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/query"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidFilters rejects static filters that are not an object
	ErrInvalidFilters = ddp.NewError(4001, "Invalid filters provided. Server side filters need to be an object!")

	// ErrInvalidDynamicFilters rejects a dynamic filters setting that does
	// not name a function
	ErrInvalidDynamicFilters = ddp.NewError(4002, "Invalid dynamic filters provided. Server side dynamic filters needs to be a function!")

	// ErrInvalidDynamicFiltersResult fails an activation whose dynamic
	// filters are not an object
	ErrInvalidDynamicFiltersResult = ddp.NewError(4002, "Invalid dynamic filters return type. Server side dynamic filters needs to be a function that returns an object!")
)

// Registrar accepts publication handlers; *ddp.Server implements it
type Registrar interface {
	Publish(name string, handler ddp.Handler) error
}

// publication is a registered, validated set of settings
type publication struct {
	name             string
	clientCollection string
	source           Source
	filters          query.Selector
	dynamicFilters   DynamicFiltersFunc
	transformFilters TransformFiltersFunc
	transformOptions TransformOptionsFunc
}

func emptyDynamicFilters(ddp.Subscription) (any, error) {
	return query.Selector{}, nil
}

// newPublication applies defaults and validates settings
func newPublication(source Source, settings Settings) (*publication, error) {
	filters, ok := query.AsSelector(settings.Filters)
	if !ok {
		return nil, ErrInvalidFilters
	}

	p := &publication{
		name:             settings.Name,
		clientCollection: settings.ClientCollection,
		source:           source,
		filters:          filters,
		dynamicFilters:   settings.DynamicFilters,
		transformFilters: settings.TransformFilters,
		transformOptions: settings.TransformOptions,
	}
	if p.name == "" {
		p.name = source.Name()
	}
	if p.clientCollection == "" {
		p.clientCollection = source.Name()
	}
	if p.dynamicFilters == nil {
		p.dynamicFilters = emptyDynamicFilters
	}
	return p, nil
}

// Register validates settings and publishes source under settings.Name.
// Invalid static filters fail here, so a misconfigured publication never
// becomes subscribable.
func Register(reg Registrar, source Source, settings Settings) error {
	if reg == nil {
		return fmt.Errorf("registrar is required")
	}
	if source == nil {
		return fmt.Errorf("source is required")
	}

	p, err := newPublication(source, settings)
	if err != nil {
		return err
	}

	if err := reg.Publish(p.name, p.handle); err != nil {
		return fmt.Errorf("failed to register publication %s: %w", p.name, err)
	}

	log.Info().
		Str("publication", p.name).
		Str("collection", source.Name()).
		Str("client_collection", p.clientCollection).
		Msg("Pagination publication registered")
	return nil
}
