package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/devicesync-core/internal/audit"
)

// handleAuditList returns the caller's account activity, newest first.
//
// Query parameters: action, serial, device, limit, offset.
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:    audit.Action(q.Get("action")),
		Serial:    q.Get("serial"),
		DeviceKey: q.Get("device"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), userID, filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
