// Package validate provides centralized input validation and sanitization
// for the SIGA API: audit event fields, student identifiers and contact
// addresses. All user-supplied text that ends up stored or displayed goes
// through here first.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if
// validation fails. Lengths are measured in characters, not bytes, so
// accented Spanish text is counted correctly.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// SanitizeHTML escapes HTML special characters to prevent XSS. Called on all
// user-generated text that admin dashboards render.
func SanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// SanitizeString performs both validation and HTML sanitization.
func SanitizeString(s string, constraints StringConstraints) (string, error) {
	validated, err := String(s, constraints)
	if err != nil {
		return "", err
	}
	return SanitizeHTML(validated), nil
}

// studentIDPattern matches institutional student identifiers (EST001,
// 2024-1234 and similar).
var studentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// StudentID validates an institutional student identifier:
// - 1-64 characters
// - Letters, numbers, dash, underscore only
func StudentID(id string) (string, error) {
	return String(id, StringConstraints{
		MinLength:      1,
		MaxLength:      64,
		AllowedPattern: studentIDPattern,
		AllowEmpty:     false,
		TrimSpace:      true,
	})
}

// EventDescription validates an audit event description:
// - Required (not empty)
// - Max 1000 characters
func EventDescription(desc string) (string, error) {
	return SanitizeString(desc, StringConstraints{
		MinLength:  1,
		MaxLength:  1000,
		AllowEmpty: false,
		TrimSpace:  true,
	})
}

// PersonName validates an optional person name field:
// - Can be empty
// - Max 100 characters
func PersonName(name string) (string, error) {
	return SanitizeString(name, StringConstraints{
		MaxLength:  100,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

// CourseName validates a course or deliverable name:
// - Required (not empty)
// - Max 200 characters
func CourseName(name string) (string, error) {
	return SanitizeString(name, StringConstraints{
		MinLength:  1,
		MaxLength:  200,
		AllowEmpty: false,
		TrimSpace:  true,
	})
}
