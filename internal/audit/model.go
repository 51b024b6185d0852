// Package audit provides structured event recording, classification, querying
// and retention for tracking significant actions across the platform.
package audit

import (
	"time"
)

// Category is the coarse classification of an audit event, derived from the
// namespace prefix of its action identifier.
type Category string

// Closed set of event categories.
const (
	CategoryAuthentication Category = "authentication"
	CategoryUserManagement Category = "user_management"
	CategoryFileManagement Category = "file_management"
	CategoryAcademicData   Category = "academic_data"
	CategoryReports        Category = "reports"
	CategorySecurity       Category = "security"
	CategorySystem         Category = "system"
)

// Categories lists every category in a fixed order, used for zero-filled
// aggregation maps.
var Categories = []Category{
	CategoryAuthentication,
	CategoryUserManagement,
	CategoryFileManagement,
	CategoryAcademicData,
	CategoryReports,
	CategorySecurity,
	CategorySystem,
}

// Severity is the urgency level of an audit event.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity in ascending order.
var Severities = []Severity{
	SeverityInfo,
	SeverityWarning,
	SeverityError,
	SeverityCritical,
}

// Well-known action identifiers. Actions are namespaced as
// "<domain>.<verb>[.<qualifier>]". The recorder accepts any namespaced string;
// these constants cover the actions emitted by the platform itself.
const (
	ActionLoginSuccess    = "auth.login.success"
	ActionLoginFailed     = "auth.login.failed"
	ActionLogout          = "auth.logout"
	ActionPasswordChange  = "auth.password_change"
	ActionSessionExpired  = "auth.session_expired"
	ActionDashboardAccess = "dashboard.access"

	ActionUserCreate       = "user.create"
	ActionUserUpdate       = "user.update"
	ActionUserDelete       = "user.delete"
	ActionUserRoleChange   = "user.role_change"
	ActionUserStatusChange = "user.status_change"

	ActionFileUpload         = "file.upload"
	ActionFileValidate       = "file.validate"
	ActionFileSave           = "file.save"
	ActionFileDelete         = "file.delete"
	ActionFileDownload       = "file.download"
	ActionFileExport         = "file.export"
	ActionFileProcessSuccess = "file.process_success"
	ActionFileProcessError   = "file.process_error"
	ActionFileGradeUpdate    = "file.grade_update"

	ActionFichaCreate   = "ficha.create"
	ActionFichaUpdate   = "ficha.update"
	ActionFichaDelete   = "ficha.delete"
	ActionMateriaCreate = "materia.create"
	ActionMateriaUpdate = "materia.update"
	ActionMateriaDelete = "materia.delete"

	ActionGradeCreate     = "grade.create"
	ActionGradeUpdate     = "grade.update"
	ActionGradeDelete     = "grade.delete"
	ActionGradeBulkUpdate = "grade.bulk_update"

	ActionReportGenerate = "report.generate"
	ActionReportExport   = "report.export"
	ActionReportView     = "report.view"
	ActionReportsAccess  = "reports.access"

	ActionNotificationsAccess      = "notifications.access"
	ActionNotificationsMarkAllRead = "notifications.mark_all_read"
	ActionNotificationsClearAll    = "notifications.clear_all"

	ActionProfileView          = "profile.view"
	ActionProfileUpdate        = "profile.update"
	ActionPasswordChangeOK     = "password.change_success"
	ActionPasswordChangeFailed = "password.change_validation_failed"

	ActionAccessDenied        = "security.access_denied"
	ActionUnauthorizedAttempt = "security.unauthorized_attempt"
	ActionSuspiciousActivity  = "security.suspicious_activity"

	ActionSystemConfigChange = "system.config_change"
	ActionSystemBackup       = "system.backup"
	ActionSystemRestore      = "system.restore"
)

// Change records a single field mutation carried by update-type events.
type Change struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Event is a single immutable audit event. Events are never mutated after
// being appended to a store.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`

	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	ActorRole string `json:"actor_role"`

	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	TargetName string `json:"target_name,omitempty"`

	Description string            `json:"description"`
	Changes     []Change          `json:"changes,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Entry is the caller-supplied input for recording an audit event. Category is
// always derived from the action; Severity may optionally be overridden.
type Entry struct {
	Action      string
	Description string

	ActorID   string
	ActorName string
	ActorRole string

	TargetType string
	TargetID   string
	TargetName string

	Changes  []Change
	Metadata map[string]string

	// Success defaults to true when nil.
	Success      *bool
	ErrorMessage string

	// Severity overrides the classifier default when non-empty.
	Severity Severity
}
