package admin

import (
	"net/http"
	"strconv"

	"github.com/bhunjadi/pagination/query"
	"github.com/go-chi/chi/v5"
)

// handleListCollections handles GET /admin/collections
func (h *AdminHandlers) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.Collections()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSONResponse(w, http.StatusOK, names)
}

// parseFind reads ?selector=<json>&sort=<json>&skip=&limit= into a query
func parseFind(r *http.Request) (query.Selector, query.FindOptions, error) {
	sel := query.Selector{}
	if raw := r.URL.Query().Get("selector"); raw != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, query.FindOptions{}, err
		}
		sel = query.Selector(m)
	}

	bag := map[string]any{}
	if raw := r.URL.Query().Get("sort"); raw != "" {
		var spec any
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			return nil, query.FindOptions{}, err
		}
		bag["sort"] = spec
	}
	for _, key := range []string{"skip", "limit"} {
		if raw := r.URL.Query().Get(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, query.FindOptions{}, err
			}
			bag[key] = n
		}
	}

	opts, err := query.ParseFindOptions(bag)
	return sel, opts, err
}

// handleFind handles GET /admin/collections/{collection}
func (h *AdminHandlers) handleFind(w http.ResponseWriter, r *http.Request) {
	sel, opts, err := parseFind(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	cursor, err := h.store.Collection(chi.URLParam(r, "collection")).Find(sel, opts)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	docs, err := cursor.Fetch()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if docs == nil {
		docs = []query.Document{}
	}
	writeJSONResponse(w, http.StatusOK, docs)
}

// handleCount handles GET /admin/collections/{collection}/count
func (h *AdminHandlers) handleCount(w http.ResponseWriter, r *http.Request) {
	sel, _, err := parseFind(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	cursor, err := h.store.Collection(chi.URLParam(r, "collection")).Find(sel, query.FindOptions{})
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := cursor.Count()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"count": n})
}

// handleInsert handles POST /admin/collections/{collection}
func (h *AdminHandlers) handleInsert(w http.ResponseWriter, r *http.Request) {
	doc, err := readJSONObject(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	docID, err := h.store.Collection(chi.URLParam(r, "collection")).Insert(query.Document(doc))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]interface{}{"_id": docID})
}

// handleGet handles GET /admin/collections/{collection}/{id}
func (h *AdminHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Collection(chi.URLParam(r, "collection")).FindOne(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, doc)
}

// handleUpdate handles PATCH /admin/collections/{collection}/{id}.
// The body is merged into the document; null values remove fields.
func (h *AdminHandlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	set, err := readJSONObject(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Collection(chi.URLParam(r, "collection")).Update(chi.URLParam(r, "id"), set); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReplace handles PUT /admin/collections/{collection}/{id}
func (h *AdminHandlers) handleReplace(w http.ResponseWriter, r *http.Request) {
	doc, err := readJSONObject(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	doc[query.IDField] = chi.URLParam(r, "id")

	if err := h.store.Collection(chi.URLParam(r, "collection")).Replace(query.Document(doc)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemove handles DELETE /admin/collections/{collection}/{id}
func (h *AdminHandlers) handleRemove(w http.ResponseWriter, r *http.Request) {
	existed, err := h.store.Collection(chi.URLParam(r, "collection")).Remove(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !existed {
		writeErrorResponse(w, http.StatusNotFound, "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
