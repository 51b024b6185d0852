// Package escalation turns absence counter transitions into tiered
// notifications, firing exactly once per threshold crossing.
package escalation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sigaedu/siga/internal/absence"
)

// Level identifies the escalation tier.
type Level string

// Escalation tiers.
const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Audience identifies who an escalation is addressed to.
type Audience string

// Notification audiences.
const (
	AudienceTeacher     Audience = "teacher"
	AudienceCoordinator Audience = "coordinator"
	AudienceStudent     Audience = "student"
)

// Default thresholds. Overridable through configuration; they are policy, not
// law.
const (
	DefaultWarningThreshold  = 3
	DefaultCriticalThreshold = 5
)

// Config holds the escalation thresholds.
type Config struct {
	WarningThreshold  int
	CriticalThreshold int
}

// DefaultConfig returns the standard 3/5 thresholds.
func DefaultConfig() Config {
	return Config{
		WarningThreshold:  DefaultWarningThreshold,
		CriticalThreshold: DefaultCriticalThreshold,
	}
}

// Escalation is the payload delivered to the notification sink.
type Escalation struct {
	ID        string     `json:"id"`
	Level     Level      `json:"level"`
	Audiences []Audience `json:"audiences"`

	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Contact   string `json:"contact,omitempty"`
	Course    string `json:"course"`
	Count     int    `json:"count"`

	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Engine evaluates counter transitions against the configured thresholds.
// It is pure threshold math: no state, no delivery.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given thresholds, falling back to the
// defaults for non-positive values.
func NewEngine(cfg Config) *Engine {
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultCriticalThreshold
	}
	return &Engine{cfg: cfg}
}

// Evaluate returns the escalation triggered by the transition, or nil when no
// threshold was crossed. Because the counter strictly increases, each
// comparison `previous < threshold <= new` evaluates true at most once per
// student lifetime (until the ledger is reset). When a single transition
// jumps both thresholds the critical escalation supersedes the warning.
func (e *Engine) Evaluate(report absence.Report, t absence.Transition) *Escalation {
	if !t.IsNewDeliverable {
		return nil
	}

	var level Level
	var audiences []Audience
	var message string

	switch {
	case t.PreviousCount < e.cfg.CriticalThreshold && e.cfg.CriticalThreshold <= t.NewCount:
		level = LevelCritical
		audiences = []Audience{AudienceCoordinator, AudienceStudent}
		message = CriticalMessage(report.FirstName, report.LastName, t.NewCount)
	case t.PreviousCount < e.cfg.WarningThreshold && e.cfg.WarningThreshold <= t.NewCount:
		level = LevelWarning
		audiences = []Audience{AudienceTeacher, AudienceStudent}
		message = WarningMessage(report.FirstName, report.LastName, t.NewCount)
	default:
		return nil
	}

	return &Escalation{
		ID:        uuid.New().String(),
		Level:     level,
		Audiences: audiences,
		StudentID: report.StudentID,
		FirstName: report.FirstName,
		LastName:  report.LastName,
		Contact:   report.Contact,
		Course:    report.Course,
		Count:     t.NewCount,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Config {
	return e.cfg
}

// WarningMessage renders the fixed warning template.
func WarningMessage(firstName, lastName string, count int) string {
	return fmt.Sprintf("%s %s acumula %d tareas no entregadas. Se requiere atención del docente.",
		firstName, lastName, count)
}

// CriticalMessage renders the fixed critical template.
func CriticalMessage(firstName, lastName string, count int) string {
	return fmt.Sprintf("%s %s acumula %d tareas no entregadas. Situación crítica que requiere intervención del coordinador.",
		firstName, lastName, count)
}
