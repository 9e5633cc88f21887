package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/icetech/icetray/internal/commissioning/sheetimport"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/icecubes", func(r chi.Router) {
			r.With(bodySizeLimit(sheetimport.MaxFileSize)).Post("/import", s.handleImportSheet)

			r.Group(func(r chi.Router) {
				r.Use(bodySizeLimit(maxRequestBodySize))

				r.Get("/", s.handleListIceCubes)
				r.Post("/", s.handleBuildIceCube)
				r.Post("/validate", s.handleValidateIceCube)

				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetIceCube)
					r.Delete("/", s.handleDeleteIceCube)
					r.Get("/db", s.handleGetDB)
					r.Get("/proto", s.handleGetProto)
					r.Get("/document", s.handleGetDocument)
					r.Get("/sheet", s.handleExportSheet)
					r.Get("/builds", s.handleListBuilds)
				})
			})
		})
	})

	return r
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	IceCubes   int               `json:"icecubes"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports "ok", or "degraded" with 503 when any component
// check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.version,
		IceCubes: s.registry.Count(),
	}

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	if len(names) > 0 {
		resp.Components = make(map[string]string, len(names))
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	writeJSON(w, status, resp)
}
