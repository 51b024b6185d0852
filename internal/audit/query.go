package audit

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Filter defines query predicates for searching audit events. All fields are
// optional and combined with AND; a nil/empty field places no constraint.
type Filter struct {
	ActorID  string
	Action   string
	Category Category
	Severity Severity
	Success  *bool

	// Inclusive date range. A range whose end precedes its start matches
	// nothing (convenience query, not an error).
	StartDate *time.Time
	EndDate   *time.Time

	// SearchText is matched case-insensitively against description, actor
	// name and target name.
	SearchText string
}

// Period selects the statistics aggregation window.
type Period string

// Supported statistics periods.
const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// UserActivity is one row of the top-actors ranking.
type UserActivity struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Count    int    `json:"count"`
}

// Stats aggregates the events within a period.
type Stats struct {
	TotalLogs      int              `json:"total_logs"`
	ByCategory     map[Category]int `json:"by_category"`
	BySeverity     map[Severity]int `json:"by_severity"`
	FailedActions  int              `json:"failed_actions"`
	UniqueUsers    int              `json:"unique_users"`
	TopUsers       []UserActivity   `json:"top_users"`
	RecentCritical []*Event         `json:"recent_critical"`
}

// topUserLimit and recentCriticalLimit bound the ranking sections of Stats.
const (
	topUserLimit        = 5
	recentCriticalLimit = 10
)

// QueryEngine answers searches, aggregate statistics and exports over a
// Store. All operations are read-only snapshot reads.
type QueryEngine struct {
	store Store
}

// NewQueryEngine creates a query engine over the given store.
func NewQueryEngine(store Store) *QueryEngine {
	return &QueryEngine{store: store}
}

// Search returns the events matching the filter, newest first.
func (q *QueryEngine) Search(ctx context.Context, filter Filter) ([]*Event, error) {
	events, err := q.store.All(ctx)
	if err != nil {
		return nil, err
	}

	var results []*Event
	// Iterate in reverse order (newest first).
	for i := len(events) - 1; i >= 0; i-- {
		if matches(events[i], filter) {
			results = append(results, events[i])
		}
	}
	return results, nil
}

// matches reports whether the event satisfies every present predicate.
func matches(e *Event, f Filter) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.SearchText != "" {
		text := strings.ToLower(f.SearchText)
		if !strings.Contains(strings.ToLower(e.Description), text) &&
			!strings.Contains(strings.ToLower(e.ActorName), text) &&
			!strings.Contains(strings.ToLower(e.TargetName), text) {
			return false
		}
	}
	return true
}

// Statistics aggregates events within the period relative to now.
func (q *QueryEngine) Statistics(ctx context.Context, period Period) (*Stats, error) {
	events, err := q.store.All(ctx)
	if err != nil {
		return nil, err
	}

	if start, bounded := periodStart(period, time.Now()); bounded {
		filtered := events[:0:0]
		for _, e := range events {
			if !e.Timestamp.Before(start) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	stats := &Stats{
		TotalLogs:  len(events),
		ByCategory: make(map[Category]int, len(Categories)),
		BySeverity: make(map[Severity]int, len(Severities)),
	}
	for _, c := range Categories {
		stats.ByCategory[c] = 0
	}
	for _, s := range Severities {
		stats.BySeverity[s] = 0
	}

	type userCount struct {
		name  string
		count int
		seen  int // first-seen order, for deterministic tie-breaking
	}
	users := make(map[string]*userCount)

	for _, e := range events {
		stats.ByCategory[e.Category]++
		stats.BySeverity[e.Severity]++
		if !e.Success {
			stats.FailedActions++
		}
		uc, ok := users[e.ActorID]
		if !ok {
			uc = &userCount{name: e.ActorName, seen: len(users)}
			users[e.ActorID] = uc
		}
		uc.count++
	}
	stats.UniqueUsers = len(users)

	ranked := make([]UserActivity, 0, len(users))
	order := make(map[string]int, len(users))
	for id, uc := range users {
		ranked = append(ranked, UserActivity{UserID: id, UserName: uc.name, Count: uc.count})
		order[id] = uc.seen
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return order[ranked[i].UserID] < order[ranked[j].UserID]
	})
	if len(ranked) > topUserLimit {
		ranked = ranked[:topUserLimit]
	}
	stats.TopUsers = ranked

	// Most recent critical events, newest first.
	for i := len(events) - 1; i >= 0 && len(stats.RecentCritical) < recentCriticalLimit; i-- {
		if events[i].Severity == SeverityCritical {
			stats.RecentCritical = append(stats.RecentCritical, events[i])
		}
	}

	return stats, nil
}

// periodStart returns the window start for a period. The second return value
// is false for PeriodAll (no lower bound).
func periodStart(period Period, now time.Time) (time.Time, bool) {
	switch period {
	case PeriodToday:
		year, month, day := now.Date()
		return time.Date(year, month, day, 0, 0, 0, 0, now.Location()), true
	case PeriodWeek:
		return now.AddDate(0, 0, -7), true
	case PeriodMonth:
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}
