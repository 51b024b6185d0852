package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNilStore is returned when a nil store is passed to the recorder.
	ErrNilStore = errors.New("audit store cannot be nil")
	// ErrInvalidAction is returned when an empty or non-namespaced action is
	// provided.
	ErrInvalidAction = errors.New("action must be a namespaced identifier")
	// ErrMissingDescription is returned when the event description is empty.
	ErrMissingDescription = errors.New("description is required")
)

// System pseudo-actor used when no authenticated actor is attached to an
// entry, e.g. failed logins or background jobs.
const (
	SystemActorID   = "system"
	SystemActorName = "Sistema"
	SystemActorRole = "system"
)

// Recorder classifies and persists audit events. Recording is best-effort
// relative to the business action that triggered it: failures are logged and
// reported to the caller, never escalated into the primary workflow.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to the given store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record classifies the entry, stamps identity and timestamp, and appends the
// resulting event. The returned event carries the assigned ID.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*Event, error) {
	if r.store == nil {
		return nil, ErrNilStore
	}
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	category, severity := Classify(entry.Action, entry.Severity)

	success := true
	if entry.Success != nil {
		success = *entry.Success
	}

	event := &Event{
		Timestamp:    time.Now().UTC(),
		Action:       entry.Action,
		Category:     category,
		Severity:     severity,
		ActorID:      entry.ActorID,
		ActorName:    entry.ActorName,
		ActorRole:    entry.ActorRole,
		TargetType:   entry.TargetType,
		TargetID:     entry.TargetID,
		TargetName:   entry.TargetName,
		Description:  entry.Description,
		Changes:      entry.Changes,
		Metadata:     entry.Metadata,
		Success:      success,
		ErrorMessage: entry.ErrorMessage,
	}

	if event.ActorID == "" {
		event.ActorID = SystemActorID
		event.ActorName = SystemActorName
		event.ActorRole = SystemActorRole
	}

	if _, err := r.store.Append(ctx, event); err != nil {
		r.logger.Error("failed to append audit event",
			"action", event.Action,
			"actor_id", event.ActorID,
			"error", err,
		)
		return nil, fmt.Errorf("append audit event: %w", err)
	}

	return event, nil
}

// validateEntry checks the required fields of an entry. Actions must carry a
// namespace ("<domain>.<verb>") so the classifier has a prefix to match.
func validateEntry(entry Entry) error {
	if entry.Action == "" || !hasNamespace(entry.Action) {
		return ErrInvalidAction
	}
	if entry.Description == "" {
		return ErrMissingDescription
	}
	return nil
}

func hasNamespace(action string) bool {
	for i := 1; i < len(action)-1; i++ {
		if action[i] == '.' {
			return true
		}
	}
	return false
}
