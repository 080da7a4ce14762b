package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"onboard/internal/approval"
	"onboard/internal/eligibility"
	"onboard/internal/provisioning"
	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

type createRequestBody struct {
	EmployeeID string   `json:"employee_id"`
	Type       string   `json:"type"`
	Item       string   `json:"item,omitempty"`
	Groups     []string `json:"groups,omitempty"`
	Quantity   int      `json:"quantity,omitempty"`
	WFHMode    string   `json:"wfh_mode,omitempty"`
}

// createRequest handles POST /v1/requests. The response carries every
// request the call fanned out into, each already past its first
// evaluation.
func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	employeeID, err := domain.ParseEmployeeID(body.EmployeeID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	requests, err := h.provisioning.Create(r.Context(), provisioning.CreateInput{
		EmployeeID: employeeID,
		Type:       provisioning.RequestType(body.Type),
		Item:       body.Item,
		Groups:     body.Groups,
		Quantity:   body.Quantity,
		WFHMode:    eligibility.WFHMode(body.WFHMode),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, map[string]any{"requests": requests})
}

type statusResponse struct {
	Request  *provisioning.Request `json:"request"`
	Approval *approval.Task        `json:"approval,omitempty"`
}

// requestStatus handles GET /v1/requests/{requestID}.
func (h *Handler) requestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	request, task, err := h.provisioning.Status(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, statusResponse{Request: request, Approval: task})
}

type resolveApprovalBody struct {
	Role     string `json:"role"`
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

// resolveApproval handles POST /v1/requests/{requestID}/approvals.
func (h *Handler) resolveApproval(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var body resolveApprovalBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var approve bool
	switch body.Decision {
	case "approved":
		approve = true
	case "rejected":
		approve = false
	default:
		writeError(w, r, h.logger, dErrors.Validation("decision", "decision must be approved or rejected"))
		return
	}

	request, err := h.provisioning.ResolveApproval(r.Context(), id, domain.ApproverRole(body.Role), approve, body.Comment)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"request": request})
}

// cancelRequest handles POST /v1/requests/{requestID}/cancel.
func (h *Handler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	request, err := h.provisioning.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"request": request})
}

type trainingCompletionBody struct {
	CourseCode  string `json:"course_code"`
	CompletedAt string `json:"completed_at"`
}

// recordTrainingCompletion handles POST /v1/employees/{employeeID}/trainings.
func (h *Handler) recordTrainingCompletion(w http.ResponseWriter, r *http.Request) {
	employeeID, err := domain.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var body trainingCompletionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if body.CourseCode == "" {
		writeError(w, r, h.logger, dErrors.Validation("course_code", "course_code is required"))
		return
	}
	completedAt, err := time.Parse(time.RFC3339, body.CompletedAt)
	if err != nil {
		writeError(w, r, h.logger, dErrors.Validation("completed_at", "completed_at must be RFC 3339"))
		return
	}

	if err := h.training.RecordCompletion(r.Context(), employeeID, body.CourseCode, completedAt); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "recorded"})
}
