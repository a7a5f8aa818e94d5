package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/amelia-orch/amelia/internal/state"
)

type workflowHandlers struct {
	svc    WorkflowService
	logger *zap.Logger
}

type startWorkflowRequest struct {
	Issue     state.Issue `json:"issue"`
	ProfileID string      `json:"profile_id"`
}

type startWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
}

func (h *workflowHandlers) start(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Issue.ID == "" || req.ProfileID == "" {
		writeError(w, h.logger, errBadRequest)
		return
	}

	id, err := h.svc.Start(r.Context(), req.Issue, req.ProfileID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, startWorkflowResponse{WorkflowID: id})
}

func (h *workflowHandlers) snapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.svc.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *workflowHandlers) approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Approve(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *workflowHandlers) reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rejectRequest
	_ = decodeJSON(r, &req) // reason is optional; a malformed/empty body is not an error here

	if err := h.svc.Reject(r.Context(), id, req.Reason); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
