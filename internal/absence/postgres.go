package absence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/sigaedu/siga/internal/tracing"
)

// PostgresLedger implements Ledger using PostgreSQL. The idempotency check is
// a conditional insert on the (student, course, deliverable) primary key
// whose rows-affected count gates the counter increment, so concurrent
// ingestion of the same deliverable from two processes cannot double-count.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a Postgres-backed absence ledger.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// RegisterAbsence records one missed deliverable inside a transaction.
func (l *PostgresLedger) RegisterAbsence(ctx context.Context, report Report) (t Transition, err error) {
	if err := report.Validate(); err != nil {
		return Transition{}, err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "absence_deliverables", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Transition{}, fmt.Errorf("%w: failed to begin transaction: %v", ErrLedgerUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO student_absences (student_id, first_name, last_name, contact, total_missing, last_updated)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (student_id) DO NOTHING
	`, report.StudentID, report.FirstName, report.LastName, report.Contact, time.Now().UTC())
	if err != nil {
		return Transition{}, fmt.Errorf("%w: failed to upsert student record: %v", ErrLedgerUnavailable, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO absence_deliverables (student_id, course, deliverable, reported_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, course, deliverable) DO NOTHING
	`, report.StudentID, report.Course, report.Deliverable, time.Now().UTC())
	if err != nil {
		return Transition{}, fmt.Errorf("%w: failed to insert deliverable: %v", ErrLedgerUnavailable, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return Transition{}, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if inserted == 0 {
		// Duplicate report: explicit no-op.
		var total int
		err := tx.QueryRowContext(ctx,
			`SELECT total_missing FROM student_absences WHERE student_id = $1`,
			report.StudentID,
		).Scan(&total)
		if err != nil {
			return Transition{}, fmt.Errorf("%w: failed to read counter: %v", ErrLedgerUnavailable, err)
		}
		if err := tx.Commit(); err != nil {
			return Transition{}, fmt.Errorf("%w: failed to commit: %v", ErrLedgerUnavailable, err)
		}
		return Transition{PreviousCount: total, NewCount: total}, nil
	}

	var newCount int
	err = tx.QueryRowContext(ctx, `
		UPDATE student_absences
		SET total_missing = total_missing + 1, last_updated = $2
		WHERE student_id = $1
		RETURNING total_missing
	`, report.StudentID, time.Now().UTC()).Scan(&newCount)
	if err != nil {
		return Transition{}, fmt.Errorf("%w: failed to increment counter: %v", ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return Transition{}, fmt.Errorf("%w: failed to commit: %v", ErrLedgerUnavailable, err)
	}

	return Transition{
		PreviousCount:    newCount - 1,
		NewCount:         newCount,
		IsNewDeliverable: true,
	}, nil
}

// Get retrieves a student's record with its per-course breakdown.
func (l *PostgresLedger) Get(ctx context.Context, studentID string) (record *Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "student_absences", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	record = &Record{ByCourse: make(map[string]*CourseAbsences)}
	err = l.db.QueryRowContext(ctx, `
		SELECT student_id, first_name, last_name, contact, total_missing, last_updated
		FROM student_absences
		WHERE student_id = $1
	`, studentID).Scan(
		&record.StudentID,
		&record.FirstName,
		&record.LastName,
		&record.Contact,
		&record.TotalMissing,
		&record.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get student record: %v", ErrLedgerUnavailable, err)
	}

	if err := l.loadCourses(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// loadCourses fills the per-course deliverable sets, in first-report order.
func (l *PostgresLedger) loadCourses(ctx context.Context, record *Record) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT course, deliverable
		FROM absence_deliverables
		WHERE student_id = $1
		ORDER BY reported_at ASC
	`, record.StudentID)
	if err != nil {
		return fmt.Errorf("%w: failed to list deliverables: %v", ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var course, deliverable string
		if err := rows.Scan(&course, &deliverable); err != nil {
			return fmt.Errorf("failed to scan deliverable: %w", err)
		}
		c, ok := record.ByCourse[course]
		if !ok {
			c = &CourseAbsences{}
			record.ByCourse[course] = c
		}
		c.Deliverables = append(c.Deliverables, deliverable)
		c.Count++
	}
	return rows.Err()
}

// Reset zeroes the counters and deletes the per-course sets for a student.
func (l *PostgresLedger) Reset(ctx context.Context, studentID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "student_absences", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrLedgerUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE student_absences
		SET total_missing = 0, last_updated = $2
		WHERE student_id = $1
	`, studentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: failed to reset counters: %v", ErrLedgerUnavailable, err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if updated == 0 {
		return ErrStudentNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM absence_deliverables WHERE student_id = $1`, studentID,
	); err != nil {
		return fmt.Errorf("%w: failed to delete deliverables: %v", ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// WithCountAtLeast returns the records at or above the threshold, sorted
// descending by TotalMissing.
func (l *PostgresLedger) WithCountAtLeast(ctx context.Context, threshold int) (records []*Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "student_absences", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := l.db.QueryContext(ctx, `
		SELECT student_id, first_name, last_name, contact, total_missing, last_updated
		FROM student_absences
		WHERE total_missing >= $1
		ORDER BY total_missing DESC, student_id ASC
	`, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list records: %v", ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		record := &Record{ByCourse: make(map[string]*CourseAbsences)}
		err := rows.Scan(
			&record.StudentID,
			&record.FirstName,
			&record.LastName,
			&record.Contact,
			&record.TotalMissing,
			&record.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	for _, record := range records {
		if err := l.loadCourses(ctx, record); err != nil {
			return nil, err
		}
	}
	// Keep ordering stable even if counters moved between the two queries.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].TotalMissing > records[j].TotalMissing
	})
	return records, nil
}

// Summary aggregates the ledger into dashboard counts.
func (l *PostgresLedger) Summary(ctx context.Context, warning, critical int) (summary *Summary, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "student_absences", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	summary = &Summary{}
	err = l.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE total_missing > 0),
			COUNT(*) FILTER (WHERE total_missing >= $1 AND total_missing < $2),
			COUNT(*) FILTER (WHERE total_missing >= $2),
			COALESCE(SUM(total_missing), 0)
		FROM student_absences
	`, warning, critical).Scan(
		&summary.StudentsWithAbsences,
		&summary.StudentsAtWarning,
		&summary.StudentsAtCritical,
		&summary.TotalAbsences,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to aggregate ledger: %v", ErrLedgerUnavailable, err)
	}
	return summary, nil
}
