package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/bulles-portal/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Get("/health", s.handleHealth)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)

		// Auth via single-use ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermProfileRead)).Get("/profile", s.handleProfile)
			r.With(s.requirePermission(auth.PermResultsReadOwn)).Get("/results", s.handleResults)
			r.Post("/logout", s.handleLogout)
			r.Post("/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermAnalyticsRead)).Get("/analytics", s.handleAnalytics)
			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
			r.With(s.requirePermission(auth.PermMetricsRead)).Get("/metrics", s.handleMetrics)
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeNotFound(w, "Route inconnue")
		})
	})

	if s.cfg.StaticDir != "" {
		r.Handle("/*", s.staticHandler(s.cfg.StaticDir))
	}

	return r
}
