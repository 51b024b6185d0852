package escalation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrDeliveryFailed wraps sink-specific delivery failures. The ingestion
// service reports it to the caller but never retries and never rolls back
// ledger state.
var ErrDeliveryFailed = errors.New("escalation delivery failed")

// NotificationSink delivers escalation messages to their audiences. The core
// only decides whether and to whom; delivery mechanics live behind this
// interface.
type NotificationSink interface {
	Deliver(ctx context.Context, esc *Escalation) error
}

// LogSink writes escalations to the structured log. Useful as a development
// sink and as the last-resort fallback.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger falls back to slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Deliver logs the escalation at a level matching its tier.
func (s *LogSink) Deliver(ctx context.Context, esc *Escalation) error {
	attrs := []any{
		"escalation_id", esc.ID,
		"level", string(esc.Level),
		"student_id", esc.StudentID,
		"course", esc.Course,
		"count", esc.Count,
		"message", esc.Message,
	}
	if esc.Level == LevelCritical {
		s.logger.ErrorContext(ctx, "absence escalation", attrs...)
	} else {
		s.logger.WarnContext(ctx, "absence escalation", attrs...)
	}
	return nil
}

// CaptureSink records delivered escalations in memory. Test helper.
type CaptureSink struct {
	mu        sync.Mutex
	delivered []*Escalation
	// Err, when set, is returned from Deliver to simulate sink outages.
	Err error
}

// NewCaptureSink creates an empty CaptureSink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Deliver records the escalation, or fails with the configured error.
func (s *CaptureSink) Deliver(_ context.Context, esc *Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.delivered = append(s.delivered, esc)
	return nil
}

// Delivered returns the escalations captured so far.
func (s *CaptureSink) Delivered() []*Escalation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Escalation, len(s.delivered))
	copy(out, s.delivered)
	return out
}

// MultiSink fans an escalation out to several sinks. Delivery continues past
// individual failures; the first error is returned.
type MultiSink struct {
	sinks []NotificationSink
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(sinks ...NotificationSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Deliver sends the escalation to every sink.
func (s *MultiSink) Deliver(ctx context.Context, esc *Escalation) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, esc); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
