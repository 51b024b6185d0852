package notify

import (
	"context"
	"fmt"

	"github.com/sigaedu/siga/internal/escalation"
)

// BroadcastSink adapts a Broadcaster to the escalation.NotificationSink
// interface.
type BroadcastSink struct {
	broadcaster *Broadcaster
}

// NewBroadcastSink creates a sink pushing escalations through the given
// broadcaster.
func NewBroadcastSink(b *Broadcaster) *BroadcastSink {
	return &BroadcastSink{broadcaster: b}
}

// Deliver converts the escalation into a notification and broadcasts it to
// its audiences. Pushes to disconnected clients are dropped silently; the
// WebSocket feed is a live view, not a mailbox.
func (s *BroadcastSink) Deliver(_ context.Context, esc *escalation.Escalation) error {
	s.broadcaster.Broadcast(esc.Audiences, FromEscalation(esc))
	return nil
}

// FromEscalation builds the wire notification for an escalation.
func FromEscalation(esc *escalation.Escalation) *Notification {
	title := fmt.Sprintf("Alerta de Ausentismo - %s %s", esc.FirstName, esc.LastName)
	if esc.Level == escalation.LevelCritical {
		title = fmt.Sprintf("CRÍTICO: Ausentismo Alto - %s %s", esc.FirstName, esc.LastName)
	}
	return &Notification{
		ID:      esc.ID,
		Level:   string(esc.Level),
		Title:   title,
		Message: esc.Message,
		Metadata: map[string]string{
			"student_id": esc.StudentID,
			"course":     esc.Course,
			"count":      fmt.Sprintf("%d", esc.Count),
			"type":       "ausentismo",
		},
		CreatedAt: esc.CreatedAt,
	}
}
