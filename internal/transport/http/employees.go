package http

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"onboard/internal/directory"
	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/requestcontext"
)

// ingestEmployee handles POST /v1/employees.
func (h *Handler) ingestEmployee(w http.ResponseWriter, r *http.Request) {
	var record directory.IngestRecord
	if err := decodeBody(r, &record); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id, err := h.directory.Ingest(r.Context(), record)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, map[string]string{"id": string(id)})
}

// getEmployee handles GET /v1/employees/{employeeID}.
func (h *Handler) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	employee, err := h.directory.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, employee)
}

// patchEmployee handles PATCH /v1/employees/{employeeID}.
func (h *Handler) patchEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch directory.FieldPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	employee, err := h.directory.Patch(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, employee)
}

// deactivateEmployee handles POST /v1/employees/{employeeID}/deactivate.
func (h *Handler) deactivateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.directory.Deactivate(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "deactivated"})
}

// eraseEmployee handles POST /v1/employees/{employeeID}/erase. Legal
// erasure is scoped to HR actors; the routine variant is open to any
// authenticated caller.
func (h *Handler) eraseEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var body struct {
		Legal bool `json:"legal"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	if body.Legal && !slices.Contains(requestcontext.ActorRoles(r.Context()), "hr") {
		writeError(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "legal erasure requires the hr role"))
		return
	}
	if err := h.directory.Erase(r.Context(), id, body.Legal); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "erased"})
}

// moveDepartment handles POST /v1/employees/{employeeID}/department.
// The directory patch commits first; the provisioning sweep over the
// employee's grants follows.
func (h *Handler) moveDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var body struct {
		Department string `json:"department"`
		Role       string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if body.Department == "" || body.Role == "" {
		writeError(w, r, h.logger, dErrors.Validation("department", "department and role are required"))
		return
	}

	if _, err := h.directory.Patch(r.Context(), id, directory.FieldPatch{
		Department: &body.Department,
		Role:       &body.Role,
	}); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.provisioning.OnDepartmentMove(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	requests, err := h.provisioning.ListByEmployee(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"requests": requests})
}

// trainingView is one assigned course with its derived status.
type trainingView struct {
	CourseCode  string     `json:"course_code"`
	DueAt       time.Time  `json:"due_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
}

// listEmployeeRequests handles GET /v1/employees/{employeeID}/requests:
// the onboarding summary of every request plus assigned trainings with
// due/overdue grouping.
func (h *Handler) listEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	requests, err := h.provisioning.ListByEmployee(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	records, err := h.training.Records(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	summary := make(map[string]int)
	for _, req := range requests {
		summary[string(req.State)]++
	}

	now := requestcontext.Now(r.Context())
	trainings := make([]trainingView, 0, len(records))
	for _, rec := range records {
		view := trainingView{
			CourseCode:  rec.CourseCode,
			DueAt:       rec.DueAt,
			CompletedAt: rec.CompletedAt,
			Status:      "pending",
		}
		switch {
		case rec.Overdue(now):
			view.Status = "overdue"
		case rec.Completed():
			view.Status = "completed"
		}
		trainings = append(trainings, view)
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"requests":  requests,
		"summary":   summary,
		"trainings": trainings,
	})
}

// employeeAudit handles GET /v1/employees/{employeeID}/audit with
// optional from/to RFC 3339 bounds.
func (h *Handler) employeeAudit(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	fromRaw, toRaw := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if fromRaw == "" && toRaw == "" {
		entries, err := h.audit.ListBySubject(r.Context(), string(id))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, map[string]any{"entries": entries})
		return
	}

	from, err := parseTimeOr(fromRaw, time.Time{})
	if err != nil {
		writeError(w, r, h.logger, dErrors.Validation("from", "from must be RFC 3339"))
		return
	}
	to, err := parseTimeOr(toRaw, time.Now().UTC())
	if err != nil {
		writeError(w, r, h.logger, dErrors.Validation("to", "to must be RFC 3339"))
		return
	}
	entries, err := h.audit.ListBySubjectRange(r.Context(), string(id), from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"entries": entries})
}

func parseTimeOr(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
