package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/nerrad567/remotelink-core/internal/infrastructure/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(cors.Handler(s.corsOptions()))
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/discovery", func(r chi.Router) {
			r.Get("/", s.handleDiscover)
			r.Post("/scan", s.handleScan)
			r.Post("/stop", s.handleStopDiscovery)
			r.Get("/recent", s.handleRecentDevices)
			r.Get("/paired", s.handlePairedDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		if s.audit != nil {
			r.Get("/audit", s.handleListAudit)
		}

		// Routes that act on a television require an entitled caller
		// when the entitlement gate is on.
		r.Group(func(r chi.Router) {
			r.Use(s.entitlementMiddleware)

			r.Route("/pairing", func(r chi.Router) {
				r.Post("/pin", s.handlePairPIN)
				r.Post("/qr", s.handlePairQR)
				r.Delete("/{deviceId}", s.handleUnpair)
				if s.pairingCfg.ExposePIN {
					r.Get("/generate-pin/{deviceId}", s.handleGeneratePIN)
				}
			})

			r.Post("/connection/{deviceId}/disconnect", s.handleDisconnect)

			r.Route("/control", func(r chi.Router) {
				r.Post("/{kind}", s.handleControl)
			})
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// corsOptions maps the CORS config onto go-chi/cors.
func (s *Server) corsOptions() cors.Options {
	c := s.cfg.CORS
	origins := c.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := c.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	headers := c.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         c.MaxAge,
	}
}

func (s *Server) wsPath() string {
	p := s.wsCfg.Path
	if p == "" {
		return "/ws"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
