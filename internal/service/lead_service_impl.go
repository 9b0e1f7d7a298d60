package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solarhub/backend/internal/metrics"
	"github.com/solarhub/backend/internal/model"
	"github.com/solarhub/backend/internal/notification"
	"github.com/solarhub/backend/internal/ratelimit"
	"github.com/solarhub/backend/internal/repository"
	"github.com/solarhub/backend/internal/validation"
)

// MalformedBodyMessage is the validation detail for an unparseable body.
const MalformedBodyMessage = "Request body must be a valid JSON object"

// leadServiceImpl is the production implementation of LeadService.
type leadServiceImpl struct {
	limiter  ratelimit.Limiter
	limit    int
	repo     repository.SubmissionRepository
	notifier notification.Gateway
	now      func() time.Time
}

// NewLeadService creates a LeadService. limit is the number of submissions
// one client identity may make per limiter window.
func NewLeadService(limiter ratelimit.Limiter, limit int, repo repository.SubmissionRepository, notifier notification.Gateway) LeadService {
	return &leadServiceImpl{
		limiter:  limiter,
		limit:    limit,
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit runs the pipeline. The rate check comes first so abusive traffic
// never reaches storage; nothing after a successful store can fail the call.
func (s *leadServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	now := s.now()

	rl, err := s.limiter.Check(ctx, req.Client.Identity, s.limit)
	if err != nil {
		// Fail open: an unreachable limiter must not take the form down.
		slog.Warn("rate limiter unavailable, allowing request",
			"identity", req.Client.Identity,
			"error", err,
		)
		metrics.RecordRateLimiterError()
		rl = ratelimit.Result{Allowed: true, Limit: s.limit, Remaining: s.limit, ResetAt: now}
	}
	if !rl.Allowed {
		slog.Info("rate limit exceeded",
			"identity", req.Client.Identity,
			"limit", rl.Limit,
			"reset_at", rl.ResetAt,
		)
		metrics.RecordSubmission("rate_limited")
		return nil, &RateLimitError{Result: rl}
	}

	trace(req.Client.Identity, StageRateChecked)

	if req.DecodeError != nil {
		slog.Info("malformed submission body",
			"identity", req.Client.Identity,
			"error", req.DecodeError,
		)
		metrics.RecordSubmission("invalid")
		return nil, &ValidationError{Errors: []string{MalformedBodyMessage}}
	}

	sub := req.Input.Normalize()
	if v := validation.Validate(sub); !v.Valid {
		slog.Info("submission rejected",
			"identity", req.Client.Identity,
			"errors", v.Errors,
		)
		metrics.RecordSubmission("invalid")
		return nil, &ValidationError{Errors: v.Errors}
	}

	trace(req.Client.Identity, StageValidated)

	enrich(sub, req.Client, now)

	start := time.Now()
	err = s.repo.Create(ctx, sub)
	metrics.RecordPersist(time.Since(start))
	if err != nil {
		perr := classifyPersistence(err)
		slog.Error("failed to persist submission",
			"stage", StagePersistenceFailed,
			"kind", perr.Kind,
			"identity", req.Client.Identity,
			"received_at", now,
			payloadShape(sub),
			"error", err,
		)
		metrics.RecordSubmission(string(perr.Kind))
		return nil, perr
	}
	metrics.RecordSubmission("created")
	trace(req.Client.Identity, StagePersisted)

	team, customer := s.notify(ctx, sub)
	trace(req.Client.Identity, StageNotified)

	slog.Info("submission processed",
		"submission_id", sub.ID,
		"identity", req.Client.Identity,
		"team_notified", team.Success,
		"customer_notified", customer.Success,
		"provider", team.Provider,
	)

	return &SubmitResult{
		Submission: sub,
		Team:       team,
		Customer:   customer,
		RateLimit:  rl,
		Stage:      StageResponded,
	}, nil
}

func trace(identity string, st Stage) {
	slog.Debug("submission stage", "identity", identity, "stage", st)
}

// notify sends the team alert and the customer confirmation concurrently and
// waits for both. They run on a context that survives the caller going away,
// since the submission is already stored.
func (s *leadServiceImpl) notify(ctx context.Context, sub *model.ContactSubmission) (team, customer model.NotificationOutcome) {
	nctx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error {
		team = s.send(nctx, model.ChannelTeam, sub)
		return nil
	})
	if sub.HasEmail() {
		g.Go(func() error {
			customer = s.send(nctx, model.ChannelCustomer, sub)
			return nil
		})
	} else {
		customer = model.SkippedOutcome(model.ChannelCustomer, "no email")
	}
	_ = g.Wait()

	metrics.RecordNotification(string(team.Channel), team.Provider, team.Success, team.Skipped)
	metrics.RecordNotification(string(customer.Channel), customer.Provider, customer.Success, customer.Skipped)
	return team, customer
}

// send calls the gateway and turns a panic into a failed outcome.
func (s *leadServiceImpl) send(ctx context.Context, ch model.Channel, sub *model.ContactSubmission) (out model.NotificationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = model.NotificationOutcome{Channel: ch, Error: fmt.Sprintf("notification panic: %v", r)}
		}
		if !out.Success {
			slog.Warn("notification failed",
				"channel", ch,
				"provider", out.Provider,
				"submission_id", sub.ID,
				"error", out.Error,
			)
		}
	}()
	out = s.notifier.Send(ctx, ch, sub)
	out.Channel = ch
	return out
}

// Keys in client metadata that would shadow server-derived values.
var reservedMetadataKeys = []string{"client_ip", "ip", "user_agent", "referrer", "submitted_at", "timestamp", "utm"}

// enrich fills the metadata bag. Server-derived values win over anything
// the client sent.
func enrich(sub *model.ContactSubmission, c ClientInfo, now time.Time) {
	md := &sub.Metadata
	md.ClientIP = c.IP
	md.UserAgent = c.UserAgent
	md.Referrer = c.Referrer
	md.SubmittedAt = now.UTC()
	md.UTM = c.UTM
	if md.UTM.IsZero() {
		md.UTM = utmFromExtra(md.Extra)
	}
	for _, k := range reservedMetadataKeys {
		delete(md.Extra, k)
	}
}

// utmFromExtra reads utm_* keys a client script put in metadata.
func utmFromExtra(extra map[string]any) model.UTM {
	str := func(k string) string {
		v, _ := extra[k].(string)
		return v
	}
	return model.UTM{
		Source:   str("utm_source"),
		Medium:   str("utm_medium"),
		Campaign: str("utm_campaign"),
		Term:     str("utm_term"),
		Content:  str("utm_content"),
	}
}

func classifyPersistence(err error) *PersistenceError {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return &PersistenceError{Kind: PersistenceDuplicate, Err: err}
	case errors.Is(err, repository.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &PersistenceError{Kind: PersistenceTimeout, Err: err}
	default:
		return &PersistenceError{Kind: PersistenceUnavailable, Err: err}
	}
}

// payloadShape describes a submission for logs without its content.
func payloadShape(s *model.ContactSubmission) slog.Attr {
	return slog.Group("payload",
		"name_len", len(s.Name),
		"phone_len", len(s.Phone),
		"has_email", s.HasEmail(),
		"has_company", s.Company != "",
		"subject_len", len(s.Subject),
		"message_len", len(s.Message),
		"form_type", s.FormType,
		"user_type", s.UserType,
		"source", s.Source,
		"extra_keys", len(s.Metadata.Extra),
	)
}
