// Package http is the inbound API surface for the conversational
// collaborator and back-office tooling. Handlers translate between JSON
// and the domain services; no business rules live here.
package http

import (
	"log/slog"
	"net/http"

	"onboard/internal/catalog"
	"onboard/internal/directory"
	"onboard/internal/provisioning"
	"onboard/internal/training"
	"onboard/pkg/platform/audit"
)

// Handler bundles the services behind the API routes.
type Handler struct {
	directory    *directory.Service
	provisioning *provisioning.Service
	training     *training.Service
	catalogs     *catalog.Store
	audit        *audit.Publisher
	logger       *slog.Logger
}

func NewHandler(
	directorySvc *directory.Service,
	provisioningSvc *provisioning.Service,
	trainingSvc *training.Service,
	catalogs *catalog.Store,
	auditPub *audit.Publisher,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		directory:    directorySvc,
		provisioning: provisioningSvc,
		training:     trainingSvc,
		catalogs:     catalogs,
		audit:        auditPub,
		logger:       logger,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
