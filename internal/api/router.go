package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
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

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get(s.wsPath(), s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/state", s.handleGetState)

		r.Route("/universal-settings", func(r chi.Router) {
			r.Get("/", s.handleGetUniversal)
			r.Post("/", s.handleUpdateUniversal)
		})

		r.Route("/inverter-types", func(r chi.Router) {
			r.Get("/", s.handleListInverterTypes)
			r.Post("/", s.handleCreateInverterType)
			r.Put("/{type}", s.handleUpdateInverterType)
			r.Delete("/{type}", s.handleDeleteInverterType)
		})

		r.Route("/inverter-settings", func(r chi.Router) {
			r.Get("/", s.handleGetInverterSettings)
			r.Post("/", s.handleSelectInverter)
		})

		r.Route("/automation-rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
			})
		})

		r.Route("/scheduled-settings", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Post("/", s.handleCreateSchedule)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSchedule)
				r.Put("/", s.handleUpdateSchedule)
				r.Delete("/", s.handleDeleteSchedule)
			})
		})

		r.Post("/mqtt", s.handlePublish)
	})

	// Dashboard build, when configured
	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return r
}

// wsPath is the WebSocket endpoint, "/ws" unless configured.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	mqttStatus := "disconnected"
	if s.bus != nil && s.bus.IsConnected() {
		mqttStatus = "connected"
	} else {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"mqtt":    mqttStatus,
		"version": s.version,
	})
}

// handleGetState returns the current system state snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}
