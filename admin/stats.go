package admin

import (
	"net/http"

	"github.com/bhunjadi/pagination/ddp"
)

// handlePublications handles GET /admin/publications
func (h *AdminHandlers) handlePublications(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.server.Publications())
}

// handleSessions handles GET /admin/sessions
func (h *AdminHandlers) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.server.Sessions()
	if sessions == nil {
		sessions = []ddp.SessionInfo{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// handleStats handles GET /admin/stats
func (h *AdminHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"sessions":     h.server.SessionCount(),
		"publications": len(h.server.Publications()),
		"observers":    h.store.ObserverCount(),
		"subscribers":  h.store.Hub().SubscriberCount(),
	})
}
