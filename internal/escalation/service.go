package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigaedu/siga/internal/absence"
	"github.com/sigaedu/siga/internal/jobs"
	"github.com/sigaedu/siga/internal/tracing"
)

// Result is returned from Ingest. Counts echo the ledger transition so
// callers can display progress; Escalation is nil unless a threshold was
// crossed.
type Result struct {
	ShouldNotify     bool        `json:"should_notify"`
	Level            Level       `json:"level,omitempty"`
	PreviousCount    int         `json:"previous_count"`
	NewCount         int         `json:"new_count"`
	IsNewDeliverable bool        `json:"is_new_deliverable"`
	Escalation       *Escalation `json:"escalation,omitempty"`
}

// Ingestor processes absence reports end to end: ledger registration, then
// threshold evaluation, then notification delivery. The ledger write and the
// threshold comparison form one atomic unit per student (the ledger
// guarantees the transition values are exact), so duplicate or concurrent
// reports cannot fire a threshold twice.
type Ingestor struct {
	ledger  absence.Ledger
	engine  *Engine
	sink    NotificationSink
	logger  *slog.Logger
	metrics *jobs.Metrics
}

// NewIngestor wires the ingestion pipeline. Metrics may be nil.
func NewIngestor(ledger absence.Ledger, engine *Engine, sink NotificationSink, logger *slog.Logger, metrics *jobs.Metrics) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		ledger:  ledger,
		engine:  engine,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}
}

// Ingest registers one absence report and delivers the resulting escalation,
// if any. A sink delivery failure is reported in the returned error but the
// ledger state and the Result stand: delivery is not retried here, and the
// missed notification cannot re-fire later because the crossing already
// happened.
func (i *Ingestor) Ingest(ctx context.Context, report absence.Report) (result Result, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "ingest_absence_report")
	defer func() { endSpan(err) }()

	transition, err := i.ledger.RegisterAbsence(ctx, report)
	if err != nil {
		i.observe(jobs.StatusFailure, start)
		if i.metrics != nil {
			i.metrics.IncJobErrors(jobs.JobTypeAbsenceIngestion, "ledger_error")
		}
		return Result{}, fmt.Errorf("register absence: %w", err)
	}

	result = Result{
		PreviousCount:    transition.PreviousCount,
		NewCount:         transition.NewCount,
		IsNewDeliverable: transition.IsNewDeliverable,
	}

	esc := i.engine.Evaluate(report, transition)
	if esc == nil {
		i.observe(jobs.StatusSuccess, start)
		return result, nil
	}

	result.ShouldNotify = true
	result.Level = esc.Level
	result.Escalation = esc

	if err := i.sink.Deliver(ctx, esc); err != nil {
		// Ledger state is untouched on purpose: the crossing fired once and
		// will not repeat, so retrying is the sink operator's problem.
		i.logger.Error("failed to deliver escalation",
			"escalation_id", esc.ID,
			"level", string(esc.Level),
			"student_id", esc.StudentID,
			"error", err,
		)
		if i.metrics != nil {
			i.metrics.IncJobErrors(jobs.JobTypeAbsenceIngestion, "sink_error")
		}
		i.observe(jobs.StatusSuccess, start)
		return result, fmt.Errorf("deliver escalation: %w", err)
	}

	i.logger.Info("absence escalation delivered",
		"escalation_id", esc.ID,
		"level", string(esc.Level),
		"student_id", esc.StudentID,
		"course", esc.Course,
		"count", esc.Count,
	)
	i.observe(jobs.StatusSuccess, start)
	return result, nil
}

func (i *Ingestor) observe(status string, start time.Time) {
	if i.metrics == nil {
		return
	}
	i.metrics.IncJobsTotal(jobs.JobTypeAbsenceIngestion, status)
	i.metrics.ObserveJobDuration(jobs.JobTypeAbsenceIngestion, time.Since(start).Seconds())
}
