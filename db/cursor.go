package db

import (
	"github.com/bhunjadi/pagination/query"
)

// Cursor is a lazily evaluated query over one collection. Every Fetch, Count
// and poll reads the backend afresh.
type Cursor struct {
	collection *Collection
	selector   query.Selector
	options    query.FindOptions
	matcher    query.Matcher
}

// entry is a result row: the document id next to its projected fields
type entry struct {
	id  string
	doc query.Document
}

// Collection returns the name of the queried collection
func (c *Cursor) Collection() string {
	return c.collection.name
}

// Selector returns the selector the cursor was built from
func (c *Cursor) Selector() query.Selector {
	return c.selector
}

// Options returns the find options the cursor was built from
func (c *Cursor) Options() query.FindOptions {
	return c.options
}

// Result is one fetched document next to its id. The id is kept even when
// the projection drops _id from Doc.
type Result struct {
	ID  string
	Doc query.Document
}

// FetchResults is Fetch with the document ids carried alongside
func (c *Cursor) FetchResults() ([]Result, error) {
	entries, err := c.results()
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(entries))
	for i, e := range entries {
		out[i] = Result{ID: e.id, Doc: e.doc}
	}
	return out, nil
}

// Fetch returns matching documents sorted, windowed and projected
func (c *Cursor) Fetch() ([]query.Document, error) {
	entries, err := c.results()
	if err != nil {
		return nil, err
	}
	docs := make([]query.Document, len(entries))
	for i, e := range entries {
		docs[i] = e.doc
	}
	return docs, nil
}

// Count returns the number of matching documents, ignoring skip and limit
func (c *Cursor) Count() (int, error) {
	n := 0
	err := c.collection.scan(func(doc query.Document) error {
		if c.matcher.Match(doc) {
			n++
		}
		return nil
	})
	return n, err
}

func (c *Cursor) results() ([]entry, error) {
	var matched []query.Document
	err := c.collection.scan(func(doc query.Document) error {
		if c.matcher.Match(doc) {
			matched = append(matched, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	query.SortDocuments(matched, c.options.Sort)
	matched = c.options.Window(matched)

	entries := make([]entry, len(matched))
	for i, doc := range matched {
		entries[i] = entry{id: doc.ID(), doc: c.options.Project(doc)}
	}
	return entries, nil
}
