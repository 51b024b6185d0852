package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testRecorder() (*Recorder, *MemoryStore) {
	store := NewMemoryStore(100)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecorder(store, logger), store
}

func TestRecord_ClassifiesAndStamps(t *testing.T) {
	recorder, _ := testRecorder()

	before := time.Now().UTC()
	event, err := recorder.Record(context.Background(), Entry{
		Action:      "auth.login.failed",
		Description: "Intento de inicio de sesión fallido",
		ActorID:     "user-1",
		ActorName:   "Juan Pérez",
		ActorRole:   "student",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if event.ID != 1 {
		t.Errorf("expected ID 1, got %d", event.ID)
	}
	if event.Category != CategoryAuthentication {
		t.Errorf("expected category authentication, got %s", event.Category)
	}
	if event.Severity != SeverityError {
		t.Errorf("expected severity error, got %s", event.Severity)
	}
	if event.Timestamp.Before(before) {
		t.Error("expected timestamp to be stamped at record time")
	}
	if !event.Success {
		t.Error("success must default to true")
	}
}

func TestRecord_ExplicitFailure(t *testing.T) {
	recorder, _ := testRecorder()

	failed := false
	event, err := recorder.Record(context.Background(), Entry{
		Action:       "file.process_error",
		Description:  "Procesamiento fallido",
		ActorID:      "user-1",
		Success:      &failed,
		ErrorMessage: "formato inválido",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if event.Success {
		t.Error("expected success false")
	}
	if event.ErrorMessage != "formato inválido" {
		t.Errorf("unexpected error message %q", event.ErrorMessage)
	}
}

func TestRecord_SystemActorFallback(t *testing.T) {
	recorder, _ := testRecorder()

	event, err := recorder.Record(context.Background(), Entry{
		Action:      "system.backup",
		Description: "Respaldo automático",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if event.ActorID != SystemActorID {
		t.Errorf("expected system actor, got %q", event.ActorID)
	}
	if event.ActorName != SystemActorName {
		t.Errorf("expected system actor name, got %q", event.ActorName)
	}
}

func TestRecord_SeverityOverride(t *testing.T) {
	recorder, _ := testRecorder()

	event, err := recorder.Record(context.Background(), Entry{
		Action:      "user.update",
		Description: "Cambio de rol sensible",
		ActorID:     "admin-1",
		Severity:    SeverityCritical,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if event.Severity != SeverityCritical {
		t.Errorf("expected overridden severity critical, got %s", event.Severity)
	}
}

func TestRecord_RejectsInvalidEntries(t *testing.T) {
	recorder, _ := testRecorder()

	tests := []struct {
		name    string
		entry   Entry
		wantErr error
	}{
		{
			name:    "empty action",
			entry:   Entry{Description: "x"},
			wantErr: ErrInvalidAction,
		},
		{
			name:    "action without namespace",
			entry:   Entry{Action: "login", Description: "x"},
			wantErr: ErrInvalidAction,
		},
		{
			name:    "missing description",
			entry:   Entry{Action: "auth.login.success"},
			wantErr: ErrMissingDescription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := recorder.Record(context.Background(), tt.entry)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRecord_NilStore(t *testing.T) {
	recorder := NewRecorder(nil, nil)

	_, err := recorder.Record(context.Background(), Entry{
		Action:      "user.create",
		Description: "x",
	})
	if !errors.Is(err, ErrNilStore) {
		t.Errorf("expected ErrNilStore, got %v", err)
	}
}
