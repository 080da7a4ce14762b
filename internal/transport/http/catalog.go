package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"onboard/internal/catalog"
	dErrors "onboard/pkg/domain-errors"
)

// itemView is the JSON rendering of a catalog entry.
type itemView struct {
	Name              string   `json:"name"`
	Category          string   `json:"category"`
	Prerequisites     []string `json:"prerequisites,omitempty"`
	DisallowedFor     []string `json:"disallowed_for,omitempty"`
	ApproverRoles     []string `json:"approver_roles,omitempty"`
	AdminGroups       []string `json:"admin_groups,omitempty"`
	CredentialBearing bool     `json:"credential_bearing"`
}

func viewOfItem(item catalog.AccessItem) itemView {
	v := itemView{
		Name:              item.Name,
		Category:          string(item.Category),
		CredentialBearing: item.CredentialBearing,
		AdminGroups:       item.AdminGroups,
	}
	for _, f := range item.Prerequisites {
		v.Prerequisites = append(v.Prerequisites, string(f))
	}
	for _, t := range item.DisallowedFor {
		v.DisallowedFor = append(v.DisallowedFor, string(t))
	}
	for _, r := range item.ApproverRoles {
		v.ApproverRoles = append(v.ApproverRoles, string(r))
	}
	return v
}

// listCatalogItems handles GET /v1/catalog/items.
func (h *Handler) listCatalogItems(w http.ResponseWriter, r *http.Request) {
	cat := h.catalogs.Snapshot()
	items := cat.Items()
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, viewOfItem(item))
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"version": cat.Version,
		"items":   views,
	})
}

// getCatalogItem handles GET /v1/catalog/items/{name}.
func (h *Handler) getCatalogItem(w http.ResponseWriter, r *http.Request) {
	cat := h.catalogs.Snapshot()
	name := chi.URLParam(r, "name")
	item, ok := cat.Item(name)
	if !ok {
		writeError(w, r, h.logger, dErrors.New(dErrors.CodeNotFound, "unknown catalog item"))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, viewOfItem(item))
}
