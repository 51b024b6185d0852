package audit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// seedQueryStore loads a small, varied set of events for search and
// statistics tests. Timestamps are explicit so period filters are
// deterministic.
func seedQueryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(100)
	now := time.Now().UTC()

	success := true
	failed := false
	events := []*Event{
		{
			Timestamp:   now.AddDate(0, -2, 0),
			Action:      ActionUserCreate,
			Category:    CategoryUserManagement,
			Severity:    SeverityInfo,
			ActorID:     "admin-1",
			ActorName:   "Ana Admin",
			Description: "Usuario creado: Juan Pérez",
			Success:     success,
		},
		{
			Timestamp:   now.AddDate(0, 0, -10),
			Action:      ActionLoginFailed,
			Category:    CategoryAuthentication,
			Severity:    SeverityError,
			ActorID:     "user-2",
			ActorName:   "Juan Pérez",
			Description: "Contraseña incorrecta",
			Success:     failed,
		},
		{
			Timestamp:   now.AddDate(0, 0, -2),
			Action:      ActionSuspiciousActivity,
			Category:    CategorySecurity,
			Severity:    SeverityCritical,
			ActorID:     "user-2",
			ActorName:   "Juan Pérez",
			Description: "Actividad sospechosa detectada",
			Success:     failed,
		},
		{
			Timestamp:   now.Add(-time.Hour),
			Action:      ActionFileUpload,
			Category:    CategoryFileManagement,
			Severity:    SeverityInfo,
			ActorID:     "admin-1",
			ActorName:   "Ana Admin",
			TargetName:  "notas_2026.xlsx",
			Description: "Archivo subido",
			Success:     success,
		},
	}
	for _, e := range events {
		if _, err := store.Append(context.Background(), e); err != nil {
			t.Fatalf("seed append failed: %v", err)
		}
	}
	return store
}

func TestSearch_NewestFirst(t *testing.T) {
	engine := NewQueryEngine(seedQueryStore(t))

	results, err := engine.Search(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].ID > results[i-1].ID {
			t.Fatalf("results not newest first: ID %d after %d", results[i].ID, results[i-1].ID)
		}
	}
}

func TestSearch_Filters(t *testing.T) {
	engine := NewQueryEngine(seedQueryStore(t))
	failed := false

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by actor", Filter{ActorID: "admin-1"}, 2},
		{"by action", Filter{Action: ActionLoginFailed}, 1},
		{"by category", Filter{Category: CategorySecurity}, 1},
		{"by severity", Filter{Severity: SeverityInfo}, 2},
		{"by success", Filter{Success: &failed}, 2},
		{"combined", Filter{ActorID: "user-2", Severity: SeverityCritical}, 1},
		{"no match", Filter{ActorID: "nobody"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("expected %d results, got %d", tt.want, len(results))
			}
		})
	}
}

func TestSearch_DateRange(t *testing.T) {
	engine := NewQueryEngine(seedQueryStore(t))
	now := time.Now().UTC()

	start := now.AddDate(0, 0, -3)
	results, err := engine.Search(context.Background(), Filter{StartDate: &start})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results in the last 3 days, got %d", len(results))
	}

	end := now.AddDate(0, 0, -30)
	results, err = engine.Search(context.Background(), Filter{EndDate: &end})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result older than 30 days, got %d", len(results))
	}

	// Inverted range matches nothing
	results, err = engine.Search(context.Background(), Filter{StartDate: &now, EndDate: &end})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("inverted range must match nothing, got %d results", len(results))
	}
}

func TestSearch_TextIsCaseInsensitive(t *testing.T) {
	engine := NewQueryEngine(seedQueryStore(t))

	// Matches the actor name on two events and the description on one more
	results, err := engine.Search(context.Background(), Filter{SearchText: "juan pérez"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results for actor name search, got %d", len(results))
	}

	// Target name participates in the match
	results, err = engine.Search(context.Background(), Filter{SearchText: "NOTAS_2026"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result for target name search, got %d", len(results))
	}
}

func TestStatistics_All(t *testing.T) {
	engine := NewQueryEngine(seedQueryStore(t))

	stats, err := engine.Statistics(context.Background(), PeriodAll)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}

	if stats.TotalLogs != 4 {
		t.Errorf("expected 4 total logs, got %d", stats.TotalLogs)
	}
	if stats.FailedActions != 2 {
		t.Errorf("expected 2 failed actions, got %d", stats.FailedActions)
	}
	if stats.UniqueUsers != 2 {
		t.Errorf("expected 2 unique users, got %d", stats.UniqueUsers)
	}
	if stats.ByCategory[CategoryUserManagement] != 1 {
		t.Errorf("expected 1 user_management event, got %d", stats.ByCategory[CategoryUserManagement])
	}
	if stats.BySeverity[SeverityCritical] != 1 {
		t.Errorf("expected 1 critical event, got %d", stats.BySeverity[SeverityCritical])
	}

	// Every known category and severity appears, even at zero
	for _, c := range Categories {
		if _, ok := stats.ByCategory[c]; !ok {
			t.Errorf("category %s missing from stats", c)
		}
	}
	for _, s := range Severities {
		if _, ok := stats.BySeverity[s]; !ok {
			t.Errorf("severity %s missing from stats", s)
		}
	}

	if len(stats.RecentCritical) != 1 {
		t.Fatalf("expected 1 recent critical event, got %d", len(stats.RecentCritical))
	}
	if stats.RecentCritical[0].Action != ActionSuspiciousActivity {
		t.Errorf("unexpected recent critical action %s", stats.RecentCritical[0].Action)
	}
}

func TestStatistics_PeriodWindows(t *testing.T) {
	engine := NewQueryEngine(seedQueryStore(t))

	tests := []struct {
		period Period
		want   int
	}{
		{PeriodToday, 1},
		{PeriodWeek, 2},
		{PeriodMonth, 3},
		{PeriodAll, 4},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			stats, err := engine.Statistics(context.Background(), tt.period)
			if err != nil {
				t.Fatalf("statistics failed: %v", err)
			}
			if stats.TotalLogs != tt.want {
				t.Errorf("expected %d logs in period %s, got %d", tt.want, tt.period, stats.TotalLogs)
			}
		})
	}
}

func TestStatistics_TopUsers(t *testing.T) {
	store := NewMemoryStore(100)
	now := time.Now().UTC()

	// Seven actors with descending activity; only the top five survive.
	// user-5 and user-6 tie at one event each: first seen wins.
	counts := []int{4, 3, 3, 2, 2, 1, 1}
	for i, n := range counts {
		for j := 0; j < n; j++ {
			_, err := store.Append(context.Background(), &Event{
				Timestamp:   now,
				Action:      ActionDashboardAccess,
				Category:    CategoryReports,
				Severity:    SeverityInfo,
				ActorID:     fmt.Sprintf("user-%d", i),
				ActorName:   fmt.Sprintf("Usuario %d", i),
				Description: "Acceso al panel",
				Success:     true,
			})
			if err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}
	}

	stats, err := NewQueryEngine(store).Statistics(context.Background(), PeriodAll)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}

	if stats.UniqueUsers != 7 {
		t.Errorf("expected 7 unique users, got %d", stats.UniqueUsers)
	}
	if len(stats.TopUsers) != topUserLimit {
		t.Fatalf("expected %d top users, got %d", topUserLimit, len(stats.TopUsers))
	}
	wantOrder := []string{"user-0", "user-1", "user-2", "user-3", "user-4"}
	for i, want := range wantOrder {
		if stats.TopUsers[i].UserID != want {
			t.Errorf("rank %d: expected %s, got %s", i, want, stats.TopUsers[i].UserID)
		}
	}
	if stats.TopUsers[0].Count != 4 {
		t.Errorf("expected top user with 4 events, got %d", stats.TopUsers[0].Count)
	}
}

func TestStatistics_EmptyStore(t *testing.T) {
	engine := NewQueryEngine(NewMemoryStore(10))

	stats, err := engine.Statistics(context.Background(), PeriodAll)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.TotalLogs != 0 || stats.UniqueUsers != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
	if len(stats.ByCategory) != len(Categories) {
		t.Errorf("expected all categories zero-filled, got %d entries", len(stats.ByCategory))
	}
}
