package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sigaedu/siga/internal/absence"
	"github.com/sigaedu/siga/internal/escalation"
	"github.com/sigaedu/siga/internal/middleware"
	"github.com/sigaedu/siga/internal/validate"
)

// ReportAbsenceRequest represents the request body for reporting a missed
// deliverable.
type ReportAbsenceRequest struct {
	StudentID   string `json:"student_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Course      string `json:"course"`
	Deliverable string `json:"deliverable"`
	Contact     string `json:"contact,omitempty"`
}

// ReportAbsenceResponse echoes the ingestion result. DeliveryError carries the
// sink failure message when an escalation fired but could not be delivered;
// the ledger state in the rest of the response still stands.
type ReportAbsenceResponse struct {
	escalation.Result
	DeliveryError string `json:"delivery_error,omitempty"`
}

// RecordsResponse wraps the listing of absence records.
type RecordsResponse struct {
	Records []*absence.Record `json:"records"`
	Total   int               `json:"total"`
}

// AbsenceHandlers holds dependencies for absence tracking HTTP handlers.
type AbsenceHandlers struct {
	ingestor *escalation.Ingestor
	ledger   absence.Ledger
	engine   *escalation.Engine
}

// NewAbsenceHandlers creates a new AbsenceHandlers instance.
func NewAbsenceHandlers(ingestor *escalation.Ingestor, ledger absence.Ledger, engine *escalation.Engine) *AbsenceHandlers {
	return &AbsenceHandlers{ingestor: ingestor, ledger: ledger, engine: engine}
}

// ReportAbsence handles POST /absences - registers one missed deliverable and
// runs threshold evaluation. Duplicate reports of the same
// (student, course, deliverable) are acknowledged without effect.
func (h *AbsenceHandlers) ReportAbsence(w http.ResponseWriter, r *http.Request) {
	var req ReportAbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	report := absence.Report{
		StudentID:   strings.TrimSpace(req.StudentID),
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Course:      strings.TrimSpace(req.Course),
		Deliverable: strings.TrimSpace(req.Deliverable),
		Contact:     strings.TrimSpace(req.Contact),
	}
	if err := report.Validate(); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			"student_id, course and deliverable are required")
		return
	}
	if _, err := validate.StudentID(report.StudentID); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			"student_id may only contain letters, numbers, dash and underscore")
		return
	}
	if report.Contact != "" {
		contact, err := validate.Email(report.Contact)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
				"contact must be a valid email address")
			return
		}
		report.Contact = contact
	}

	result, err := h.ingestor.Ingest(r.Context(), report)
	if err != nil {
		if errors.Is(err, escalation.ErrDeliveryFailed) {
			// The absence is recorded and the crossing consumed; surface the
			// delivery failure without failing the request.
			writeJSON(w, r, http.StatusOK, ReportAbsenceResponse{Result: result, DeliveryError: err.Error()})
			return
		}
		if errors.Is(err, absence.ErrLedgerUnavailable) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeStoreUnavailable)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Absence ledger unavailable")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to register absence")
		return
	}

	writeJSON(w, r, http.StatusOK, ReportAbsenceResponse{Result: result})
}

// ListRecords handles GET /absences - lists absence records ordered by total
// missing count, highest first.
//
// Query parameter: min (minimum total missing count, defaults to 1).
func (h *AbsenceHandlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	min := 1
	if s := r.URL.Query().Get("min"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "min must be a non-negative integer")
			return
		}
		min = n
	}

	records, err := h.ledger.WithCountAtLeast(r.Context(), min)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, RecordsResponse{Records: records, Total: len(records)})
}

// Summary handles GET /absences/summary - aggregate counts for dashboards.
func (h *AbsenceHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Thresholds()
	summary, err := h.ledger.Summary(r.Context(), cfg.WarningThreshold, cfg.CriticalThreshold)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, summary)
}

// StudentRecord handles GET /absences/{id} and DELETE /absences/{id}.
// GET returns the student's absence record; DELETE resets it, re-arming the
// escalation thresholds for that student.
func (h *AbsenceHandlers) StudentRecord(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/absences/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Student ID is required")
		return
	}
	studentID := pathParts[0]

	switch r.Method {
	case http.MethodGet:
		record, err := h.ledger.Get(r.Context(), studentID)
		if err != nil {
			if errors.Is(err, absence.ErrStudentNotFound) {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
				WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Student has no absence record")
				return
			}
			h.writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, record)

	case http.MethodDelete:
		if err := h.ledger.Reset(r.Context(), studentID); err != nil {
			if errors.Is(err, absence.ErrStudentNotFound) {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
				WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Student has no absence record")
				return
			}
			h.writeLedgerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

func (h *AbsenceHandlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, absence.ErrLedgerUnavailable) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeStoreUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Absence ledger unavailable")
		return
	}
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}
