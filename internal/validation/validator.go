// Package validation applies structural and business rules to a normalized
// submission before any I/O happens.
package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/solarhub/backend/internal/model"
)

const (
	MaxNameLength    = 100
	MinSubjectLength = 5
	MaxMessageLength = 5000
)

var (
	// permissive international format: optional +, digits with spaces,
	// dashes, dots or parentheses, 7-20 characters overall
	phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]{5,18}[0-9]$`)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Result is the outcome of validation. Errors lists every violated rule.
type Result struct {
	Valid  bool
	Errors []string
}

// Validate runs every rule against s and collects all violations.
// It never panics on malformed input.
func Validate(s *model.ContactSubmission) Result {
	if s == nil {
		return Result{Errors: []string{"Submission is required"}}
	}
	var errs []string

	// required
	if s.Name == "" {
		errs = append(errs, "Name is required")
	}
	if s.Phone == "" {
		errs = append(errs, "Phone number is required")
	}
	if s.Message == "" {
		errs = append(errs, "Message is required")
	}

	// format
	if utf8.RuneCountInString(s.Name) > MaxNameLength {
		errs = append(errs, fmt.Sprintf("Name must not exceed %d characters", MaxNameLength))
	}
	if s.Phone != "" && !phoneRegex.MatchString(s.Phone) {
		errs = append(errs, "Please provide a valid phone number")
	}
	if s.Email != "" && !emailRegex.MatchString(s.Email) {
		errs = append(errs, "Please provide a valid email address")
	}

	// length
	if s.Subject != "" && utf8.RuneCountInString(s.Subject) < MinSubjectLength {
		errs = append(errs, fmt.Sprintf("Subject must be at least %d characters long", MinSubjectLength))
	}
	if utf8.RuneCountInString(s.Message) > MaxMessageLength {
		errs = append(errs, fmt.Sprintf("Message must not exceed %d characters", MaxMessageLength))
	}

	// enums
	if s.UserType != "" && !slices.Contains(model.UserTypes, s.UserType) {
		errs = append(errs, oneOf("User type", model.UserTypes))
	}
	if s.FormType != "" && !slices.Contains(model.FormTypes, s.FormType) {
		errs = append(errs, oneOf("Form type", model.FormTypes))
	}
	if s.Source != "" && !slices.Contains(model.Sources, s.Source) {
		errs = append(errs, oneOf("Source", model.Sources))
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func oneOf(field string, allowed []string) string {
	return fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", "))
}
