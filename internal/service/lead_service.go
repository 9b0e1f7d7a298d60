package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/solarhub/backend/internal/model"
	"github.com/solarhub/backend/internal/ratelimit"
)

// Stage is a step of the submission pipeline. A request moves through
// RECEIVED → RATE_CHECKED → VALIDATED → PERSISTED → NOTIFIED → RESPONDED or
// stops at one of the terminal failure stages.
type Stage string

const (
	StageReceived          Stage = "RECEIVED"
	StageRateChecked       Stage = "RATE_CHECKED"
	StageValidated         Stage = "VALIDATED"
	StagePersisted         Stage = "PERSISTED"
	StageNotified          Stage = "NOTIFIED"
	StageResponded         Stage = "RESPONDED"
	StageRateLimited       Stage = "RATE_LIMITED"
	StageRejected          Stage = "REJECTED"
	StagePersistenceFailed Stage = "PERSISTENCE_FAILED"
)

// LeadService runs a contact form submission through rate limiting,
// validation, storage and notification.
type LeadService interface {
	// Submit returns a result only once the submission is stored. Errors are
	// *RateLimitError, *ValidationError or *PersistenceError.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// ClientInfo is what the transport knows about the caller.
type ClientInfo struct {
	Identity  string // rate limit key
	IP        string
	UserAgent string
	Referrer  string
	UTM       model.UTM
}

// SubmitRequest is one inbound submission. DecodeError is set when the
// transport could not parse the body; it is reported as a validation failure
// after the rate check, so malformed floods are still limited.
type SubmitRequest struct {
	Input       model.SubmissionInput
	Client      ClientInfo
	DecodeError error
}

// SubmitResult describes a stored submission and how notifying about it went.
type SubmitResult struct {
	Submission *model.ContactSubmission
	Team       model.NotificationOutcome
	Customer   model.NotificationOutcome
	RateLimit  ratelimit.Result
	Stage      Stage
}

// Message is the human-readable summary shown to the submitter. It only
// promises an email confirmation when one was actually sent.
func (r *SubmitResult) Message() string {
	switch {
	case r.Customer.Success:
		return fmt.Sprintf("Thank you, %s! Your inquiry has been received and a confirmation has been sent to %s.",
			r.Submission.Name, r.Submission.Email)
	case r.Submission.HasEmail() && !r.Customer.Skipped:
		return fmt.Sprintf("Thank you, %s! Your inquiry has been received. We could not send a confirmation email, but our team has your details.",
			r.Submission.Name)
	default:
		return fmt.Sprintf("Thank you, %s! Your inquiry has been received.", r.Submission.Name)
	}
}

// NextSteps tells the submitter what happens now.
func (r *SubmitResult) NextSteps() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Our solar consultant will call you at %s within 24 hours", r.Submission.Phone)
	switch r.Submission.UserType {
	case model.UserTypeCommercial:
		b.WriteString(" to discuss your business energy needs and schedule a site assessment.")
	case model.UserTypeIndustrial:
		b.WriteString(" to review your load profile and plan a detailed feasibility study.")
	default:
		b.WriteString(" to discuss your requirements and arrange a free rooftop survey.")
	}
	return b.String()
}

// RateLimitError means the caller exceeded its request budget.
type RateLimitError struct {
	Result ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d requests exceeded", e.Result.Limit)
}

// ValidationError lists every rule the submission broke.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// PersistenceKind classifies a storage failure.
type PersistenceKind string

const (
	PersistenceDuplicate   PersistenceKind = "duplicate"
	PersistenceTimeout     PersistenceKind = "timeout"
	PersistenceUnavailable PersistenceKind = "unavailable"
)

// PersistenceError means the submission was not stored.
type PersistenceError struct {
	Kind PersistenceKind
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist submission (%s): %v", e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StageOf reports the terminal stage an error from Submit stopped at.
func StageOf(err error) Stage {
	var rl *RateLimitError
	var ve *ValidationError
	var pe *PersistenceError
	switch {
	case err == nil:
		return StageResponded
	case errors.As(err, &rl):
		return StageRateLimited
	case errors.As(err, &ve):
		return StageRejected
	case errors.As(err, &pe):
		return StagePersistenceFailed
	default:
		return StageReceived
	}
}
