package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/store"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	service        Reconciler
	runs           store.RunStore
	logger         logger.Logger
	maxUploadBytes int64
}

// ReconciliationResponse is the body of a successful upload.
type ReconciliationResponse struct {
	RunID string `json:"run_id,omitempty"`
	*reconciler.ReconciliationResult
	Warnings []string `json:"warnings"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string           `json:"error"`
	Code       errors.ErrorCode `json:"code,omitempty"`
	Suggestion string           `json:"suggestion,omitempty"`
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeFailure maps err to a status code by its category.
func (h *Handlers) writeFailure(w http.ResponseWriter, err error) {
	reconcilerErr, ok := errors.AsReconcilerError(err)
	if !ok {
		h.logger.WithError(err).Error("Request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch reconcilerErr.Category {
	case errors.CategoryValidation, errors.CategoryConfiguration, errors.CategoryFile:
		status = http.StatusBadRequest
	case errors.CategoryParse:
		status = http.StatusUnprocessableEntity
	case errors.CategoryStorage:
		status = http.StatusServiceUnavailable
		if reconcilerErr.Code == errors.CodeRunNotFound {
			status = http.StatusNotFound
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("Request failed")
	}

	h.writeJSON(w, status, ErrorResponse{
		Error:      reconcilerErr.Message,
		Code:       reconcilerErr.Code,
		Suggestion: reconcilerErr.Suggestion,
	})
}

func parseLimit(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"store":  h.runs != nil,
	})
}

// --- CreateReconciliation ---

func (h *Handlers) CreateReconciliation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	bank, bankHeader, err := r.FormFile("bank")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bank field is required: "+err.Error())
		return
	}
	defer bank.Close()

	system, systemHeader, err := r.FormFile("system")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "system field is required: "+err.Error())
		return
	}
	defer system.Close()

	request := &reconciler.ReconciliationRequest{
		BankFile:   parsers.Source{Name: bankHeader.Filename, Reader: bank},
		SystemFile: parsers.Source{Name: systemHeader.Filename, Reader: system},
		Workflow:   r.FormValue("workflow"),
	}
	if hint := strings.TrimSpace(r.FormValue("account")); hint != "" {
		request.Hints = append(request.Hints, hint)
	}
	if raw := strings.TrimSpace(r.FormValue("tolerance_days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "tolerance_days must be an integer")
			return
		}
		request.ToleranceDays = &days
	}

	result, err := h.service.ProcessReconciliation(r.Context(), request)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	response := ReconciliationResponse{ReconciliationResult: result, Warnings: result.Warnings()}
	if h.runs != nil {
		run := store.NewRun(result)
		if err := h.runs.SaveRun(r.Context(), run); err != nil {
			h.writeFailure(w, err)
			return
		}
		response.RunID = run.ID
	}

	h.writeJSON(w, http.StatusOK, response)
}

// --- Runs ---

func (h *Handlers) requireStore(w http.ResponseWriter) bool {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return false
	}
	return true
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), store.DefaultListLimit)
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"limit": limit,
	})
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	run, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListMatches(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	id := chi.URLParam(r, "id")
	matches, err := h.runs.ListMatches(r.Context(), id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  id,
		"matches": matches,
	})
}
