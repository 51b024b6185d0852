package audit

import "strings"

// prefixCategory maps an action namespace prefix to its category. The table is
// ordered; the first matching prefix wins, so an action never resolves to two
// categories.
var prefixCategories = []struct {
	prefix   string
	category Category
}{
	{"auth.", CategoryAuthentication},
	{"user.", CategoryUserManagement},
	{"file.", CategoryFileManagement},
	{"dashboard.", CategoryReports},
	{"ficha.", CategoryAcademicData},
	{"materia.", CategoryAcademicData},
	{"grade.", CategoryAcademicData},
	{"report.", CategoryReports},
	{"reports.", CategoryReports},
	{"notifications.", CategorySystem},
	{"profile.", CategoryUserManagement},
	{"password.", CategoryAuthentication},
	{"security.", CategorySecurity},
}

// CategoryFor derives the category from an action's namespace prefix.
// Unmatched actions fall back to CategorySystem.
func CategoryFor(action string) Category {
	for _, pc := range prefixCategories {
		if strings.HasPrefix(action, pc.prefix) {
			return pc.category
		}
	}
	return CategorySystem
}

// DefaultSeverity derives the default severity from keywords in the action
// identifier. Explicit caller overrides take precedence over this default.
func DefaultSeverity(action string) Severity {
	if strings.Contains(action, "failed") ||
		strings.Contains(action, "denied") ||
		strings.Contains(action, "unauthorized") {
		return SeverityError
	}
	if strings.HasPrefix(action, "security.") || strings.Contains(action, "critical") {
		return SeverityCritical
	}
	if strings.Contains(action, "delete") || strings.Contains(action, "suspicious") {
		return SeverityWarning
	}
	return SeverityInfo
}

// Classify resolves both the category and the effective severity for an
// action. The override wins when non-empty.
func Classify(action string, override Severity) (Category, Severity) {
	severity := override
	if severity == "" {
		severity = DefaultSeverity(action)
	}
	return CategoryFor(action), severity
}
