// Package absence tracks missed deliverables per student and course with
// idempotent ingestion, feeding the threshold-based escalation engine.
package absence

import (
	"errors"
	"time"
)

var (
	// ErrStudentNotFound is returned when no absence record exists for a
	// student.
	ErrStudentNotFound = errors.New("student absence record not found")

	// ErrInvalidReport is returned when a report is missing required fields.
	ErrInvalidReport = errors.New("absence report requires student, course and deliverable")

	// ErrLedgerUnavailable is returned when the persistence medium cannot be
	// reached.
	ErrLedgerUnavailable = errors.New("absence ledger unavailable")
)

// Report is one missed-deliverable observation from spreadsheet ingestion.
// The same report may be submitted any number of times; only the first
// occurrence of a (student, course, deliverable) triple counts.
type Report struct {
	StudentID string
	FirstName string
	LastName  string
	Course    string
	// Deliverable identifies the missed task within the course.
	Deliverable string
	// Contact is an optional address for the student (email).
	Contact string
}

// Validate checks the required report fields.
func (r Report) Validate() error {
	if r.StudentID == "" || r.Course == "" || r.Deliverable == "" {
		return ErrInvalidReport
	}
	return nil
}

// Transition describes the counter movement caused by one report. The
// escalation engine is driven entirely by these values.
type Transition struct {
	PreviousCount    int
	NewCount         int
	IsNewDeliverable bool
}

// CourseAbsences holds the missing deliverables for one course.
type CourseAbsences struct {
	// Deliverables preserves first-report order; membership is what drives
	// the idempotency check.
	Deliverables []string `json:"deliverables"`
	Count        int      `json:"count"`
}

// Has reports whether the deliverable was already recorded.
func (c *CourseAbsences) Has(deliverable string) bool {
	for _, d := range c.Deliverables {
		if d == deliverable {
			return true
		}
	}
	return false
}

// Record is the per-student absence ledger entry. TotalMissing is monotonic
// except on explicit administrative reset.
type Record struct {
	StudentID    string                     `json:"student_id"`
	FirstName    string                     `json:"first_name"`
	LastName     string                     `json:"last_name"`
	Contact      string                     `json:"contact,omitempty"`
	TotalMissing int                        `json:"total_missing"`
	ByCourse     map[string]*CourseAbsences `json:"by_course"`
	LastUpdated  time.Time                  `json:"last_updated"`
}

// Summary aggregates the ledger for dashboard views.
type Summary struct {
	StudentsWithAbsences int `json:"students_with_absences"`
	// StudentsAtWarning counts students in the warning band
	// (>= warning threshold, < critical threshold).
	StudentsAtWarning  int `json:"students_at_warning"`
	StudentsAtCritical int `json:"students_at_critical"`
	TotalAbsences      int `json:"total_absences"`
}
