package publisher

import (
	"github.com/bhunjadi/pagination/db"
	"github.com/bhunjadi/pagination/query"
)

// Source is a queryable collection
type Source interface {
	Name() string
	Find(sel query.Selector, opts query.FindOptions) (Cursor, error)
}

// Cursor is a query result that can be fetched, counted and observed
type Cursor interface {
	FetchResults() ([]db.Result, error)
	Count() (int, error)
	ObserveChanges(cb db.ObserveCallbacks) (db.Handle, error)
}

// collectionSourceAdapter adapts db.Collection to Source
type collectionSourceAdapter struct {
	collection *db.Collection
}

// CollectionSource exposes a store collection as a publication source
func CollectionSource(c *db.Collection) Source {
	if c == nil {
		return nil
	}
	return &collectionSourceAdapter{collection: c}
}

func (a *collectionSourceAdapter) Name() string {
	return a.collection.Name()
}

func (a *collectionSourceAdapter) Find(sel query.Selector, opts query.FindOptions) (Cursor, error) {
	cur, err := a.collection.Find(sel, opts)
	if err != nil {
		return nil, err
	}
	return cur, nil
}
