/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Metrics:    Prometheus request counter + latency (when wired)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/projects/*        Projects and their dependent entities
  /api/invoices/*        Invoice lifecycle and payments
  /api/totals            Cached global aggregates
  /api/consolidation/*   Legacy import runs
  /api/scenarios/*       Demo scenarios
  /api/cache/stats       Cache counters
  /api/reset             Database reset (dev only)
  /metrics               Prometheus scrape endpoint
  /healthz               Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. metrics
// may be nil (no /metrics endpoint, no request instrumentation).
func NewRouter(h *Handler, metrics *Metrics) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if metrics != nil {
		r.Use(metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Project routes, with dependent entities nested under the
		// owning project.
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetProject)
				r.Put("/", h.UpdateProject)
				r.Delete("/", h.DeleteProject)
				r.Get("/totals", h.GetProjectTotals)

				r.Get("/scope", h.GetScope)
				r.Put("/scope", h.UpsertScope)

				r.Get("/estimates", h.ListEstimates)
				r.Post("/estimates", h.CreateEstimate)
				r.Delete("/estimates/{estimateID}", h.DeleteEstimate)

				r.Get("/cues", h.ListCues)
				r.Post("/cues", h.CreateCue)
				r.Put("/cues/{cueID}", h.UpdateCue)
				r.Delete("/cues/{cueID}", h.DeleteCue)

				r.Get("/invoices", h.ListInvoices)
				r.Post("/invoices", h.CreateInvoice)
				r.Get("/payments", h.ListProjectPayments)
			})
		})

		// Invoice routes addressed by invoice id
		r.Route("/invoices/{id}", func(r chi.Router) {
			r.Get("/", h.GetInvoice)
			r.Delete("/", h.DeleteInvoice)
			r.Post("/status", h.SetInvoiceStatus)
			r.Get("/payments", h.ListInvoicePayments)
			r.Post("/payments", h.CreatePayment)
		})

		// Payment routes
		r.Delete("/payments/{id}", h.DeletePayment)

		// Aggregate routes
		r.Get("/totals", h.GetGlobalTotals)
		r.Get("/cache/stats", h.CacheStats)

		// Consolidation routes
		r.Route("/consolidation", func(r chi.Router) {
			r.Post("/run", h.StartConsolidation)
			r.Get("/status", h.ConsolidationStatus)
			r.Post("/cancel", h.CancelConsolidation)
			r.Get("/runs", h.ListConsolidationRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		// Dev reset
		r.Post("/reset", h.ResetDatabase)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	r.Get("/healthz", h.Health)

	// No frontend is bundled; the root serves an endpoint index.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Studio Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Studio Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/projects">/api/projects</a> - List projects</li>
<li><a href="/api/totals">/api/totals</a> - Global totals (cached)</li>
<li><a href="/api/consolidation/runs">/api/consolidation/runs</a> - Consolidation history</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})

	return r
}
