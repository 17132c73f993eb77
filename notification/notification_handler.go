package notification

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Handler serves the notification feed over HTTP
type Handler struct {
	manager *Manager
	log     zerolog.Logger
}

// NewHandler creates a handler for manager
func NewHandler(manager *Manager, log zerolog.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

// RegisterRoutes registers notification routes with mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// GET  /api/notifications[?unread=true|type=...|symbol=...]
	// POST /api/notifications
	mux.HandleFunc("/api/notifications", h.handleNotifications)
	// POST /api/notifications/{id}/read, DELETE /api/notifications/{id}
	mux.HandleFunc("/api/notifications/", h.handleNotificationActions)
	mux.HandleFunc("/api/notifications/read-all", h.handleReadAll)
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		var notifications []Notification
		switch {
		case q.Get("unread") == "true":
			notifications = h.manager.Unread()
		case q.Get("type") != "":
			notifications = h.manager.ByType(Type(q.Get("type")))
		case q.Get("symbol") != "":
			notifications = h.manager.BySymbol(q.Get("symbol"))
		default:
			notifications = h.manager.List()
		}
		h.writeJSON(w, http.StatusOK, notifications)

	case http.MethodPost:
		var n Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			h.log.Debug().Err(err).Msg("invalid notification body")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		n = h.manager.Add(n)
		h.writeJSON(w, http.StatusCreated, map[string]string{
			"message": "Notification created successfully",
			"id":      n.ID,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleNotificationActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/notifications/"), "/")
	id := parts[0]
	if id == "" {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodPost && len(parts) >= 2 && parts[1] == "read":
		if !h.manager.MarkAsRead(id) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read", "id": id})

	case r.Method == http.MethodDelete:
		if !h.manager.Delete(id) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted", "id": id})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleReadAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.manager.MarkAllAsRead()
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}
