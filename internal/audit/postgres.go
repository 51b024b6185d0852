package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sigaedu/siga/internal/tracing"
)

// PostgresStore implements Store using PostgreSQL. IDs come from a BIGSERIAL
// sequence so they stay unique and monotonic across restarts.
type PostgresStore struct {
	db         *sql.DB
	maxEntries int
}

// NewPostgresStore creates a Postgres-backed audit store. A maxEntries of
// zero or less falls back to DefaultMaxEntries.
func NewPostgresStore(db *sql.DB, maxEntries int) *PostgresStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &PostgresStore{db: db, maxEntries: maxEntries}
}

// Append inserts the event and trims the oldest rows beyond the configured
// maximum entry count. The trim keeps the bound without ever rejecting an
// append.
func (s *PostgresStore) Append(ctx context.Context, event *Event) (id int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_events", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal changes: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			occurred_at, action, category, severity,
			actor_id, actor_name, actor_role,
			target_type, target_id, target_name,
			description, changes, metadata,
			success, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	err = s.db.QueryRowContext(
		ctx,
		query,
		event.Timestamp,
		event.Action,
		string(event.Category),
		string(event.Severity),
		event.ActorID,
		event.ActorName,
		event.ActorRole,
		event.TargetType,
		event.TargetID,
		event.TargetName,
		event.Description,
		changes,
		metadata,
		event.Success,
		event.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert audit event: %v", ErrStoreUnavailable, err)
	}
	event.ID = id

	trim := `
		DELETE FROM audit_events
		WHERE id IN (
			SELECT id FROM audit_events ORDER BY id DESC OFFSET $1
		)
	`
	if _, err := s.db.ExecContext(ctx, trim, s.maxEntries); err != nil {
		return 0, fmt.Errorf("%w: failed to trim audit events: %v", ErrStoreUnavailable, err)
	}

	return id, nil
}

// All returns every stored event, oldest first.
func (s *PostgresStore) All(ctx context.Context) (events []*Event, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_events", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, occurred_at, action, category, severity,
		       actor_id, actor_name, actor_role,
		       target_type, target_id, target_name,
		       description, changes, metadata,
		       success, error_message
		FROM audit_events
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list audit events: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		e := &Event{}
		var category, severity string
		var changes, metadata []byte
		err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.Action,
			&category,
			&severity,
			&e.ActorID,
			&e.ActorName,
			&e.ActorRole,
			&e.TargetType,
			&e.TargetID,
			&e.TargetName,
			&e.Description,
			&changes,
			&metadata,
			&e.Success,
			&e.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Category = Category(category)
		e.Severity = Severity(severity)
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return events, nil
}

// PruneOlderThan deletes events older than the cutoff and reports how many
// rows were removed.
func (s *PostgresStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (removed int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_events", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prune audit events: %v", ErrStoreUnavailable, err)
	}
	removed, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned audit events: %w", err)
	}
	return removed, nil
}

// Clear removes every stored event.
func (s *PostgresStore) Clear(ctx context.Context) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_events", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	if _, err = s.db.ExecContext(ctx, `DELETE FROM audit_events`); err != nil {
		return fmt.Errorf("%w: failed to clear audit events: %v", ErrStoreUnavailable, err)
	}
	return nil
}
