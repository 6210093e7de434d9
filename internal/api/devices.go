package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/devicesync-core/internal/auth"
	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
)

// defaultHistoryLimit bounds GET /devices/{key}/commands.
const defaultHistoryLimit = 50

type registerRequest struct {
	Serial string `json:"serial"`
}

type updateDeviceRequest struct {
	Name *string `json:"name"`
}

type dashboardRequest struct {
	Kind catalog.DashboardKind `json:"kind"`
}

type commandRequest struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

type channelsRequest struct {
	Channels map[string]bool `json:"channels"`
}

// currentUser returns the caller's user ID, writing 401 when there is none.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := auth.ResolveCurrentUser(r.Context())
	if err != nil {
		writeUnauthorized(w, "authentication required")
		return "", false
	}
	return id.UserID, true
}

// decodeBody decodes a JSON request body, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// handleListDevices returns every device view of the caller.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	views, err := s.reconciler.Views(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleRegister claims a serial for the caller and creates its devices.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Serial == "" {
		writeBadRequest(w, "serial is required")
		return
	}

	res, err := s.devices.Register(r.Context(), userID, req.Serial)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleGetDevice returns one device view.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	view, err := s.reconciler.View(r.Context(), userID, chi.URLParam(r, "key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpdateDevice renames a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var req updateDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == nil {
		writeBadRequest(w, "name is required")
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.devices.Rename(r.Context(), userID, key, *req.Name); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondWithView(w, r, http.StatusOK, userID, key)
}

// handleDeleteDevice removes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.devices.Remove(r.Context(), userID, key); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.reconciler.Forget(userID, key)
	w.WriteHeader(http.StatusNoContent)
}

// handleAssignDashboard sets the dashboard kind of a device.
func (s *Server) handleAssignDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var req dashboardRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.devices.AssignDashboard(r.Context(), userID, key, req.Kind); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondWithView(w, r, http.StatusOK, userID, key)
}

// handleCommand sets a device attribute. The response carries the
// optimistic view; telemetry confirms it later.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var req commandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Attribute == "" {
		writeBadRequest(w, "attribute is required")
		return
	}

	view, err := s.reconciler.IssueCommand(r.Context(), userID, chi.URLParam(r, "key"), req.Attribute, req.Value)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleAction sends a maintenance action to the board of a device.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	action := chi.URLParam(r, "action")
	if err := s.reconciler.SendCommand(r.Context(), userID, chi.URLParam(r, "key"), action); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"action": action, "status": "sent"})
}

// handleSetChannels switches several channels of one board.
func (s *Server) handleSetChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var req channelsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Channels) == 0 {
		writeBadRequest(w, "channels are required")
		return
	}

	if err := s.reconciler.SetChannels(r.Context(), userID, chi.URLParam(r, "serial"), req.Channels); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	views, err := s.reconciler.Views(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"devices": views})
}

// handleCommandHistory returns recent commands of a device.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	key := chi.URLParam(r, "key")
	if _, err := s.reconciler.View(r.Context(), userID, key); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	entries, err := s.history.GetHistory(r.Context(), userID, key, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []device.CommandLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": entries})
}

// respondWithView writes the current view of a device.
func (s *Server) respondWithView(w http.ResponseWriter, r *http.Request, status int, userID, key string) {
	view, err := s.reconciler.View(r.Context(), userID, key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
