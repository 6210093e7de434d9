package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/devicesync-core/internal/catalog"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// No auth required
		r.Get("/health", s.handleHealth)
		r.Get("/catalog", s.handleCatalog)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/ws/ticket", s.handleWSTicket)
			r.Get("/bridge", s.handleBridgeStatus)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/register", s.handleRegister)

				r.Route("/{key}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Put("/dashboard", s.handleAssignDashboard)
					r.Post("/command", s.handleCommand)
					r.Post("/actions/{action}", s.handleAction)
					r.Get("/commands", s.handleCommandHistory)
				})
			})

			r.Post("/boards/{serial}/channels", s.handleSetChannels)
			r.Get("/audit", s.handleAuditList)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// catalogResponse is the body of GET /catalog.
type catalogResponse struct {
	DeviceTypes   []catalog.TypeConfig      `json:"deviceTypes"`
	Dashboards    []catalog.DashboardKind   `json:"dashboards"`
	HardwareTypes []catalog.HardwareProfile `json:"hardwareTypes"`
}

// handleCatalog returns the device type catalog.
func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	types := catalog.HardwareTypes()
	profiles := make([]catalog.HardwareProfile, 0, len(types))
	for _, t := range types {
		p, _ := catalog.Profile(t)
		profiles = append(profiles, p)
	}
	writeJSON(w, http.StatusOK, catalogResponse{
		DeviceTypes:   catalog.DeviceTypes(),
		Dashboards:    catalog.AllDashboardKinds(),
		HardwareTypes: profiles,
	})
}
