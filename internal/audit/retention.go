package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigaedu/siga/internal/jobs"
)

// DefaultRetentionDays is the default retention horizon for stored events.
const DefaultRetentionDays = 90

// PruneByAge removes events older than the given number of days. Returns the
// number of events deleted. A non-positive days value falls back to the
// default horizon.
func PruneByAge(ctx context.Context, store Store, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	removed, err := store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune audit events", "error", err)
		return 0, err
	}

	if removed > 0 {
		slog.Info("pruned old audit events", "removed", removed, "older_than_days", days)
	}

	return removed, nil
}

// RunPeriodicRetention prunes the store at the given interval until the stop
// channel is closed. It blocks and should typically be run in a goroutine.
// Job outcomes are reported through the metrics when non-nil.
func RunPeriodicRetention(ctx context.Context, store Store, interval time.Duration, days int, metrics *jobs.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		start := time.Now()
		_, err := PruneByAge(ctx, store, days)
		if metrics != nil {
			metrics.ObserveJobDuration(jobs.JobTypeAuditRetention, time.Since(start).Seconds())
			if err != nil {
				metrics.IncJobsTotal(jobs.JobTypeAuditRetention, jobs.StatusFailure)
				metrics.IncJobErrors(jobs.JobTypeAuditRetention, "store_error")
			} else {
				metrics.IncJobsTotal(jobs.JobTypeAuditRetention, jobs.StatusSuccess)
			}
		}
	}

	// Run once immediately on start.
	run()

	for {
		select {
		case <-ticker.C:
			run()
		case <-stop:
			slog.Info("stopping periodic audit retention")
			return
		}
	}
}
