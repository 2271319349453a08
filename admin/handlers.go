package admin

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bhunjadi/pagination/db"
	"github.com/bhunjadi/pagination/ddp"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps request bodies of document writes
const maxBodyBytes = 1 << 20

// AdminHandlers serves introspection and document maintenance endpoints
type AdminHandlers struct {
	server *ddp.Server
	store  *db.Store
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(server *ddp.Server, store *db.Store) *AdminHandlers {
	return &AdminHandlers{
		server: server,
		store:  store,
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON error response")
	}
}

// writeStoreError maps store errors to HTTP statuses
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrDuplicateID):
		writeErrorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrInvalidCollection):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	default:
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

// readJSONObject decodes the request body as a JSON object
func readJSONObject(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("body must be a JSON object")
	}
	return obj, nil
}
