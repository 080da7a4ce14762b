package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"onboard/internal/platform/middleware"
)

// NewRouter assembles the API surface. Health and metrics stay open;
// everything under /v1 requires an authenticated actor so audit entries
// always carry attribution.
func NewRouter(h *Handler, validator middleware.TokenValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireActor(validator, logger))

		r.Route("/employees", func(r chi.Router) {
			r.Post("/", h.ingestEmployee)
			r.Get("/{employeeID}", h.getEmployee)
			r.Patch("/{employeeID}", h.patchEmployee)
			r.Post("/{employeeID}/deactivate", h.deactivateEmployee)
			r.Post("/{employeeID}/erase", h.eraseEmployee)
			r.Post("/{employeeID}/department", h.moveDepartment)
			r.Post("/{employeeID}/trainings", h.recordTrainingCompletion)
			r.Get("/{employeeID}/requests", h.listEmployeeRequests)
			r.Get("/{employeeID}/audit", h.employeeAudit)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.createRequest)
			r.Get("/{requestID}", h.requestStatus)
			r.Post("/{requestID}/approvals", h.resolveApproval)
			r.Post("/{requestID}/cancel", h.cancelRequest)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/items", h.listCatalogItems)
			r.Get("/items/{name}", h.getCatalogItem)
		})
	})

	return r
}
