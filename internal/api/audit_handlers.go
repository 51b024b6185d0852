package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sigaedu/siga/internal/audit"
	"github.com/sigaedu/siga/internal/middleware"
	"github.com/sigaedu/siga/internal/validate"
)

// RecordEventRequest represents the request body for recording an audit event.
type RecordEventRequest struct {
	Action      string `json:"action"`
	Description string `json:"description"`

	ActorID   string `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`

	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	TargetName string `json:"target_name,omitempty"`

	Changes  []audit.Change    `json:"changes,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	Success      *bool  `json:"success,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Severity overrides the classifier default when non-empty.
	Severity string `json:"severity,omitempty"`
}

// PruneRequest represents the request body for pruning old audit events.
// Days defaults to the standard retention window when omitted.
type PruneRequest struct {
	Days int `json:"days,omitempty"`
}

// PruneResponse reports how many events a prune removed.
type PruneResponse struct {
	Removed int64 `json:"removed"`
	Days    int   `json:"days"`
}

// SearchResponse wraps a page of audit events.
type SearchResponse struct {
	Events []*audit.Event `json:"events"`
	Total  int            `json:"total"`
}

// AuditHandlers holds dependencies for audit trail HTTP handlers.
type AuditHandlers struct {
	recorder *audit.Recorder
	query    *audit.QueryEngine
	store    audit.Store
}

// NewAuditHandlers creates a new AuditHandlers instance.
func NewAuditHandlers(recorder *audit.Recorder, query *audit.QueryEngine, store audit.Store) *AuditHandlers {
	return &AuditHandlers{recorder: recorder, query: query, store: store}
}

// RecordEvent handles POST /audit/events - records a new audit event.
func (h *AuditHandlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.Severity != "" && !validSeverity(audit.Severity(req.Severity)) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			"severity must be one of: info, warning, error, critical")
		return
	}

	if req.Description != "" {
		description, err := validate.EventDescription(req.Description)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
				"description must be at most 1000 characters")
			return
		}
		req.Description = description
	}

	entry := audit.Entry{
		Action:       req.Action,
		Description:  req.Description,
		ActorID:      req.ActorID,
		ActorName:    req.ActorName,
		ActorRole:    req.ActorRole,
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		TargetName:   req.TargetName,
		Changes:      req.Changes,
		Metadata:     req.Metadata,
		Success:      req.Success,
		ErrorMessage: req.ErrorMessage,
		Severity:     audit.Severity(req.Severity),
	}

	event, err := h.recorder.Record(r.Context(), entry)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrInvalidAction), errors.Is(err, audit.ErrMissingDescription):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, audit.ErrStoreUnavailable):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeStoreUnavailable)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Audit store unavailable")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record event")
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, event)
}

// SearchEvents handles GET /audit/events - searches audit events with filters.
//
// Query parameters: actor_id, action, category, severity, success,
// start_date, end_date (RFC 3339), search.
func (h *AuditHandlers) SearchEvents(w http.ResponseWriter, r *http.Request) {
	filter, errMsg := filterFromQuery(r)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	events, err := h.query.Search(r.Context(), filter)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, SearchResponse{Events: events, Total: len(events)})
}

// Statistics handles GET /audit/statistics - returns aggregate statistics.
//
// Query parameter: period (today, week, month, all). Defaults to all.
func (h *AuditHandlers) Statistics(w http.ResponseWriter, r *http.Request) {
	period := audit.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = audit.PeriodAll
	}
	switch period {
	case audit.PeriodToday, audit.PeriodWeek, audit.PeriodMonth, audit.PeriodAll:
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			"period must be one of: today, week, month, all")
		return
	}

	stats, err := h.query.Statistics(r.Context(), period)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, stats)
}

// Export handles GET /audit/export - exports filtered events as JSON or CSV.
//
// Query parameter: format (json, csv). Defaults to json. Filter parameters
// match SearchEvents.
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.ExportFormatJSON
	}
	if format != audit.ExportFormatJSON && format != audit.ExportFormatCSV {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "format must be json or csv")
		return
	}

	filter, errMsg := filterFromQuery(r)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	data, err := h.query.Export(r.Context(), filter, format)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	filename := "audit_export_" + time.Now().UTC().Format("2006-01-02")
	if format == audit.ExportFormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.json"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Prune handles POST /audit/prune - removes events older than the retention
// window.
func (h *AuditHandlers) Prune(w http.ResponseWriter, r *http.Request) {
	req := PruneRequest{Days: audit.DefaultRetentionDays}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
			return
		}
	}
	if req.Days <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "days must be a positive integer")
		return
	}

	removed, err := audit.PruneByAge(r.Context(), h.store, req.Days)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, PruneResponse{Removed: removed, Days: req.Days})
}

// ClearEvents handles DELETE /audit/events - removes all audit events.
// Administrative operation used by dashboards with confirmation flows.
func (h *AuditHandlers) ClearEvents(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeStoreError maps store failures to 503, everything else to 500.
func (h *AuditHandlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, audit.ErrStoreUnavailable) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeStoreUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Audit store unavailable")
		return
	}
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}

// filterFromQuery builds an audit filter from request query parameters.
// Returns a non-empty error message when a parameter cannot be parsed.
func filterFromQuery(r *http.Request) (audit.Filter, string) {
	q := r.URL.Query()
	filter := audit.Filter{
		ActorID:    q.Get("actor_id"),
		Action:     q.Get("action"),
		Category:   audit.Category(q.Get("category")),
		Severity:   audit.Severity(q.Get("severity")),
		SearchText: q.Get("search"),
	}

	if filter.Severity != "" && !validSeverity(filter.Severity) {
		return audit.Filter{}, "severity must be one of: info, warning, error, critical"
	}
	if filter.Category != "" && !validCategory(filter.Category) {
		return audit.Filter{}, "unknown category: " + string(filter.Category)
	}

	if s := q.Get("success"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return audit.Filter{}, "success must be true or false"
		}
		filter.Success = &b
	}

	if s := q.Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return audit.Filter{}, "start_date must be RFC 3339 (e.g. 2026-01-02T15:04:05Z)"
		}
		filter.StartDate = &t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return audit.Filter{}, "end_date must be RFC 3339 (e.g. 2026-01-02T15:04:05Z)"
		}
		filter.EndDate = &t
	}

	return filter, ""
}

func validSeverity(s audit.Severity) bool {
	for _, known := range audit.Severities {
		if s == known {
			return true
		}
	}
	return false
}

func validCategory(c audit.Category) bool {
	for _, known := range audit.Categories {
		if c == known {
			return true
		}
	}
	return false
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to do but log.
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
