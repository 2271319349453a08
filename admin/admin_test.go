package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bhunjadi/pagination/cfg"
	"github.com/bhunjadi/pagination/db"
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/notify"
	"github.com/bhunjadi/pagination/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	store   *db.Store
	server  *ddp.Server
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := db.NewStore(db.NewMemoryBackend(), notify.NewHub(1), 0)
	server := ddp.NewServer(ddp.Options{})
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(server, store))
	return &testAPI{store: store, server: server, handler: mux}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestAdmin_DocumentLifecycle(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/admin/collections/orders/", `{"_id":"o1","status":"open","total":10}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "o1", body["data"].(map[string]any)["_id"])

	code, _ = api.do(t, http.MethodPost, "/admin/collections/orders/", `{"_id":"o1"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, body = api.do(t, http.MethodGet, "/admin/collections/orders/o1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "open", body["data"].(map[string]any)["status"])

	code, _ = api.do(t, http.MethodPatch, "/admin/collections/orders/o1", `{"status":"closed","total":null}`)
	require.Equal(t, http.StatusNoContent, code)

	doc, err := api.store.Collection("orders").FindOne("o1")
	require.NoError(t, err)
	assert.Equal(t, "closed", doc["status"])
	assert.NotContains(t, doc, "total")

	code, _ = api.do(t, http.MethodPut, "/admin/collections/orders/o1", `{"status":"archived"}`)
	require.Equal(t, http.StatusNoContent, code)
	doc, err = api.store.Collection("orders").FindOne("o1")
	require.NoError(t, err)
	assert.Equal(t, query.Document{"_id": "o1", "status": "archived"}, doc)

	code, _ = api.do(t, http.MethodDelete, "/admin/collections/orders/o1", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = api.do(t, http.MethodDelete, "/admin/collections/orders/o1", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(t, http.MethodGet, "/admin/collections/orders/o1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdmin_FindAndCount(t *testing.T) {
	api := newTestAPI(t)
	orders := api.store.Collection("orders")
	for _, doc := range []query.Document{
		{"_id": "o1", "status": "open", "total": 10},
		{"_id": "o2", "status": "closed", "total": 20},
		{"_id": "o3", "status": "open", "total": 30},
	} {
		_, err := orders.Insert(doc)
		require.NoError(t, err)
	}

	code, body := api.do(t, http.MethodGet, `/admin/collections/orders/?selector={"status":"open"}&sort={"total":-1}&limit=1`, "")
	require.Equal(t, http.StatusOK, code)
	docs := body["data"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "o3", docs[0].(map[string]any)["_id"])

	code, body = api.do(t, http.MethodGet, `/admin/collections/orders/count?selector={"status":"open"}&limit=1`, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["data"].(map[string]any)["count"])

	code, _ = api.do(t, http.MethodGet, "/admin/collections/orders/?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodGet, `/admin/collections/orders/?selector={"total":{"$bogus":1}}`, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = api.do(t, http.MethodGet, "/admin/collections/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"orders"}, body["data"])
}

func TestAdmin_RejectsBadBodies(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(t, http.MethodPost, "/admin/collections/orders/", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPost, "/admin/collections/orders/", `{`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPatch, "/admin/collections/orders/missing", `{"a":1}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdmin_Stats(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.server.Publish("orders", func(sub ddp.Subscription, _ ddp.Params) error {
		sub.Ready()
		return nil
	}))

	code, body := api.do(t, http.MethodGet, "/admin/publications", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"orders"}, body["data"])

	code, body = api.do(t, http.MethodGet, "/admin/sessions", "")
	require.Equal(t, http.StatusOK, code)
	sessions := body["data"].(map[string]any)
	assert.EqualValues(t, 0, sessions["count"])
	assert.Equal(t, []any{}, sessions["sessions"])

	code, body = api.do(t, http.MethodGet, "/admin/stats", "")
	require.Equal(t, http.StatusOK, code)
	stats := body["data"].(map[string]any)
	assert.EqualValues(t, 1, stats["publications"])
	assert.EqualValues(t, 0, stats["observers"])
}

func TestAuthMiddleware(t *testing.T) {
	prev := cfg.Config.Admin.Secret
	cfg.Config.Admin.Secret = "s3cret"
	defer func() { cfg.Config.Admin.Secret = prev }()

	api := newTestAPI(t)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"psk header", SecretHeader, "s3cret", http.StatusOK},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK},
		{"wrong scheme", "Authorization", "Basic s3cret", http.StatusUnauthorized},
		{"wrong secret", SecretHeader, "nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			api.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
