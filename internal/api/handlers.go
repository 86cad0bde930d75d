// Package api exposes HTTP handlers for the task-form service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/taskform/internal/activity"
	"example.com/taskform/internal/auth"
	"example.com/taskform/internal/domain"
	"example.com/taskform/internal/outbox"
	"example.com/taskform/internal/store"
	"example.com/taskform/internal/validation"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities/records", h.activityRecords)
	mux.HandleFunc("/v1/activities/resolve", h.resolveActivity)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/screens/validate", h.validateScreen)
	mux.HandleFunc("/v1/tasks/", h.taskByPK)
	mux.HandleFunc("/v1/tasks/temp-answers/outbox", h.outboxEntries)
	mux.HandleFunc("/v1/tasks/temp-answers/flush", h.flushOutbox)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activityRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeTasksWrite) {
		return
	}

	var rec store.ActivityRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.service.IngestRecord(r.Context(), rec); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"pk": rec.PK, "sk": rec.SK})
}

func (h *Handler) resolveActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeTasksRead) {
		return
	}

	reference := r.URL.Query().Get("lookup")
	if strings.TrimSpace(reference) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing lookup parameter")
		return
	}

	record, err := h.service.ResolveActivity(r.Context(), reference)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no matching activity")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRecordView(*record))
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	id, tail, _ := strings.Cut(rest, "/")
	if id == "" || tail != "form" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeTasksRead) {
		return
	}

	data, record, err := h.service.ActivityForm(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no matching activity")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ActivityFormResponse{
		Record:    toRecordView(*record),
		Screens:   data.Screens,
		Questions: data.Questions,
	})
}

func (h *Handler) validateScreen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeTasksRead) {
		return
	}

	var req ValidateScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	issues := validation.ValidateScreen(req.Screen, req.Answers)
	writeJSON(w, http.StatusOK, ValidateScreenResponse{
		Valid:  validation.IsScreenValid(req.Screen, req.Answers),
		Issues: issues,
	})
}

func (h *Handler) taskByPK(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	pk, tail, _ := strings.Cut(rest, "/")
	if pk == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing task pk")
		return
	}

	switch {
	case tail == "temp-answers" && r.Method == http.MethodPost:
		h.saveTempAnswers(w, r, pk)
	case tail == "answers" && r.Method == http.MethodPost:
		h.submitAnswer(w, r, pk)
	case tail == "answers" && r.Method == http.MethodGet:
		h.mergedAnswers(w, r, pk)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) saveTempAnswers(w http.ResponseWriter, r *http.Request, pk string) {
	if !requireScope(w, r, auth.ScopeTasksWrite) {
		return
	}

	var req SaveTempAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	input := outbox.SaveInput{
		Task:       outbox.TaskRef{PK: pk, SK: req.TaskSK},
		ActivityID: req.ActivityID,
		Answers:    req.Answers,
		Localtime:  req.Localtime,
	}
	if err := h.service.SaveTempAnswers(r.Context(), input); err != nil {
		if errors.Is(err, outbox.ErrInvalidMapping) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"pk": pk})
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request, pk string) {
	if !requireScope(w, r, auth.ScopeTasksWrite) {
		return
	}

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.QuestionID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "question_id is required")
		return
	}

	if err := h.service.SubmitAnswer(r.Context(), pk, req.QuestionID, req.Answer); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"pk": pk, "question_id": req.QuestionID})
}

func (h *Handler) mergedAnswers(w http.ResponseWriter, r *http.Request, pk string) {
	if !requireScope(w, r, auth.ScopeTasksRead) {
		return
	}

	answers, err := h.service.MergedAnswers(r.Context(), pk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MergedAnswersResponse{TaskPK: pk, Answers: answers})
}

func (h *Handler) outboxEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeTasksRead) {
		return
	}

	entries, err := h.service.PendingDeliveries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, OutboxResponse{Pending: len(entries), Entries: entries})
}

func (h *Handler) flushOutbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeTasksWrite) {
		return
	}

	delivered, err := h.service.FlushNow(r.Context())
	resp := FlushResponse{Delivered: delivered}
	if err != nil {
		// Partial progress still counts; report what stayed behind.
		resp.Error = err.Error()
	}
	if remaining, peekErr := h.service.PendingDeliveries(r.Context()); peekErr == nil {
		resp.Remaining = len(remaining)
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	// Write scope implies read.
	if claims.HasScope(scope) || (scope == auth.ScopeTasksRead && claims.HasScope(auth.ScopeTasksWrite)) {
		return true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return false
}

// ValidateScreenRequest is the payload for POST /v1/screens/validate.
type ValidateScreenRequest struct {
	Screen  activity.ParsedScreen `json:"screen"`
	Answers validation.Answers    `json:"answers"`
}

// ValidateScreenResponse reports rule failures for one screen.
type ValidateScreenResponse struct {
	Valid  bool               `json:"valid"`
	Issues []validation.Issue `json:"issues"`
}

// SaveTempAnswersRequest is the payload for POST /v1/tasks/{pk}/temp-answers.
type SaveTempAnswersRequest struct {
	TaskSK     string         `json:"task_sk,omitempty"`
	ActivityID string         `json:"activity_id,omitempty"`
	Answers    map[string]any `json:"answers"`
	Localtime  time.Time      `json:"localtime,omitempty"`
}

// SubmitAnswerRequest is the payload for POST /v1/tasks/{pk}/answers.
type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     any    `json:"answer"`
}

// MergedAnswersResponse carries final answers overlaid with temp ones.
type MergedAnswersResponse struct {
	TaskPK  string         `json:"task_pk"`
	Answers map[string]any `json:"answers"`
}

// ActivityFormResponse bundles the winning record with its parsed form.
type ActivityFormResponse struct {
	Record    RecordView              `json:"record"`
	Screens   []activity.ParsedScreen `json:"screens"`
	Questions []activity.Question     `json:"questions"`
}

// RecordView exposes the identifying fields of an activity record.
type RecordView struct {
	ID            string `json:"id"`
	PK            string `json:"pk"`
	SK            string `json:"sk"`
	LastChangedAt int64  `json:"last_changed_at,omitempty"`
	HasLayouts    bool   `json:"has_layouts"`
	HasGroups     bool   `json:"has_groups"`
}

// OutboxResponse lists pending deliveries.
type OutboxResponse struct {
	Pending int                 `json:"pending"`
	Entries []store.OutboxEntry `json:"entries"`
}

// FlushResponse reports the outcome of a forced flush.
type FlushResponse struct {
	Delivered int    `json:"delivered"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toRecordView(rec store.ActivityRecord) RecordView {
	return RecordView{
		ID:            rec.ID,
		PK:            rec.PK,
		SK:            rec.SK,
		LastChangedAt: rec.LastChangedAt,
		HasLayouts:    rec.Layouts != nil && *rec.Layouts != "",
		HasGroups:     rec.ActivityGroups != nil && *rec.ActivityGroups != "",
	}
}
