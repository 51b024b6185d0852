package absence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Ledger defines the interface for absence record persistence. The
// RegisterAbsence contract is the load-bearing one: a given (student, course,
// deliverable) triple must increment the counters at most once, no matter how
// often it is reported or from how many processes.
type Ledger interface {
	// RegisterAbsence records one missed deliverable. When the deliverable
	// was already recorded for the student and course, the call is an
	// explicit no-op with IsNewDeliverable=false and unchanged counts.
	RegisterAbsence(ctx context.Context, report Report) (Transition, error)

	// Get retrieves a student's record. Returns ErrStudentNotFound when the
	// student has no recorded absences.
	Get(ctx context.Context, studentID string) (*Record, error)

	// Reset clears a student's counters and per-course sets. Administrative
	// resolution; the next crossing of a threshold may fire again afterward.
	Reset(ctx context.Context, studentID string) error

	// WithCountAtLeast returns records with TotalMissing >= threshold,
	// sorted descending by TotalMissing.
	WithCountAtLeast(ctx context.Context, threshold int) ([]*Record, error)

	// Summary aggregates the ledger using the given warning and critical
	// thresholds for the band counts.
	Summary(ctx context.Context, warning, critical int) (*Summary, error)
}

// MemoryLedger is an in-memory implementation of Ledger. Used for testing and
// development. Thread-safe via RWMutex; the lock makes the contains-check and
// counter increment one atomic unit.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryLedger creates a new in-memory absence ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*Record),
	}
}

// RegisterAbsence records one missed deliverable, creating the student's
// record lazily on first report.
func (l *MemoryLedger) RegisterAbsence(_ context.Context, report Report) (Transition, error) {
	if err := report.Validate(); err != nil {
		return Transition{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[report.StudentID]
	if !ok {
		record = &Record{
			StudentID: report.StudentID,
			FirstName: report.FirstName,
			LastName:  report.LastName,
			Contact:   report.Contact,
			ByCourse:  make(map[string]*CourseAbsences),
		}
		l.records[report.StudentID] = record
	}

	course, ok := record.ByCourse[report.Course]
	if !ok {
		course = &CourseAbsences{}
		record.ByCourse[report.Course] = course
	}

	if course.Has(report.Deliverable) {
		return Transition{
			PreviousCount: record.TotalMissing,
			NewCount:      record.TotalMissing,
		}, nil
	}

	previous := record.TotalMissing
	course.Deliverables = append(course.Deliverables, report.Deliverable)
	course.Count++
	record.TotalMissing++
	record.LastUpdated = time.Now().UTC()

	return Transition{
		PreviousCount:    previous,
		NewCount:         record.TotalMissing,
		IsNewDeliverable: true,
	}, nil
}

// Get returns a copy of the student's record.
func (l *MemoryLedger) Get(_ context.Context, studentID string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[studentID]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return copyRecord(record), nil
}

// Reset clears the student's counters and per-course sets.
func (l *MemoryLedger) Reset(_ context.Context, studentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[studentID]
	if !ok {
		return ErrStudentNotFound
	}
	record.TotalMissing = 0
	record.ByCourse = make(map[string]*CourseAbsences)
	record.LastUpdated = time.Now().UTC()
	return nil
}

// WithCountAtLeast returns copies of the records at or above the threshold,
// sorted descending by TotalMissing.
func (l *MemoryLedger) WithCountAtLeast(_ context.Context, threshold int) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []*Record
	for _, record := range l.records {
		if record.TotalMissing >= threshold {
			results = append(results, copyRecord(record))
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TotalMissing != results[j].TotalMissing {
			return results[i].TotalMissing > results[j].TotalMissing
		}
		return results[i].StudentID < results[j].StudentID
	})
	return results, nil
}

// Summary aggregates the ledger into dashboard counts.
func (l *MemoryLedger) Summary(_ context.Context, warning, critical int) (*Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := &Summary{}
	for _, record := range l.records {
		if record.TotalMissing == 0 {
			continue
		}
		summary.StudentsWithAbsences++
		summary.TotalAbsences += record.TotalMissing
		switch {
		case record.TotalMissing >= critical:
			summary.StudentsAtCritical++
		case record.TotalMissing >= warning:
			summary.StudentsAtWarning++
		}
	}
	return summary, nil
}

// copyRecord creates a deep copy of a Record.
func copyRecord(record *Record) *Record {
	if record == nil {
		return nil
	}
	copied := *record
	copied.ByCourse = make(map[string]*CourseAbsences, len(record.ByCourse))
	for name, course := range record.ByCourse {
		deliverables := make([]string, len(course.Deliverables))
		copy(deliverables, course.Deliverables)
		copied.ByCourse[name] = &CourseAbsences{
			Deliverables: deliverables,
			Count:        course.Count,
		}
	}
	return &copied
}
