package db

import (
	"errors"
	"fmt"

	"github.com/bhunjadi/pagination/encoding"
	"github.com/bhunjadi/pagination/id"
	"github.com/bhunjadi/pagination/query"
	"github.com/bhunjadi/pagination/telemetry"
	"github.com/rs/zerolog/log"
)

// Collection is a named set of documents inside a Store
type Collection struct {
	name  string
	store *Store
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// Insert stores a new document and returns its id. A missing or empty _id is
// generated; inserting an id that already exists fails.
func (c *Collection) Insert(doc query.Document) (string, error) {
	if err := validateCollection(c.name); err != nil {
		return "", err
	}

	doc = doc.Clone()
	docID := doc.ID()
	if docID == "" {
		docID = id.Next()
		doc[query.IDField] = docID
	}

	c.store.writeMu.Lock()
	defer c.store.writeMu.Unlock()

	if _, err := c.store.backend.Get(c.name, docID); err == nil {
		return "", fmt.Errorf("%w %q in collection %s", ErrDuplicateID, docID, c.name)
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if err := c.put(docID, doc); err != nil {
		return "", err
	}
	c.written("insert")
	return docID, nil
}

// Update merges fields into an existing document. A nil value removes the
// field. The _id field cannot be changed.
func (c *Collection) Update(docID string, set map[string]any) error {
	c.store.writeMu.Lock()
	defer c.store.writeMu.Unlock()

	doc, err := c.get(docID)
	if err != nil {
		return err
	}

	for k, v := range set {
		if k == query.IDField {
			continue
		}
		if v == nil {
			delete(doc, k)
		} else {
			doc[k] = v
		}
	}

	if err := c.put(docID, doc); err != nil {
		return err
	}
	c.written("update")
	return nil
}

// Replace upserts a whole document by its _id
func (c *Collection) Replace(doc query.Document) error {
	if err := validateCollection(c.name); err != nil {
		return err
	}
	docID := doc.ID()
	if docID == "" {
		return fmt.Errorf("replace requires an _id")
	}

	c.store.writeMu.Lock()
	defer c.store.writeMu.Unlock()

	if err := c.put(docID, doc.Clone()); err != nil {
		return err
	}
	c.written("replace")
	return nil
}

// Remove deletes a document and reports whether it existed
func (c *Collection) Remove(docID string) (bool, error) {
	c.store.writeMu.Lock()
	defer c.store.writeMu.Unlock()

	existed, err := c.store.backend.Delete(c.name, docID)
	if err != nil {
		return false, err
	}
	if existed {
		c.written("remove")
	}
	return existed, nil
}

// FindOne loads a document by id
func (c *Collection) FindOne(docID string) (query.Document, error) {
	return c.get(docID)
}

// Find returns a cursor over documents matching sel. The selector is
// compiled up front so malformed selectors fail here rather than on fetch.
func (c *Collection) Find(sel query.Selector, opts query.FindOptions) (*Cursor, error) {
	matcher, err := query.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}
	return &Cursor{
		collection: c,
		selector:   sel,
		options:    opts,
		matcher:    matcher,
	}, nil
}

func (c *Collection) get(docID string) (query.Document, error) {
	data, err := c.store.backend.Get(c.name, docID)
	if err != nil {
		return nil, err
	}
	doc, err := encoding.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", c.name, docID, err)
	}
	return query.Document(doc), nil
}

func (c *Collection) put(docID string, doc query.Document) error {
	data, err := encoding.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", c.name, docID, err)
	}
	return c.store.backend.Put(c.name, docID, data)
}

// scan decodes every document of the collection
func (c *Collection) scan(fn func(doc query.Document) error) error {
	return c.store.backend.Scan(c.name, func(docID string, data []byte) error {
		doc, err := encoding.DecodeDocument(data)
		if err != nil {
			return fmt.Errorf("failed to decode %s/%s: %w", c.name, docID, err)
		}
		if _, ok := doc[query.IDField]; !ok {
			doc[query.IDField] = docID
		}
		return fn(doc)
	})
}

func (c *Collection) written(op string) {
	telemetry.StoreWritesTotal.With(c.name, op).Inc()
	log.Trace().Str("collection", c.name).Str("op", op).Msg("Document written")
	c.store.hub.Signal(c.name)
}
