// Package notification delivers the team alert and the customer confirmation
// for a stored submission through an ordered chain of providers.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/solarhub/backend/internal/model"
)

// DefaultTimeout bounds a single provider attempt.
const DefaultTimeout = 10 * time.Second

// ErrNoRecipient is returned by a provider that has nobody to deliver to.
var ErrNoRecipient = errors.New("no recipient")

// ErrDeliveryDisabled is returned by a provider that records the message
// without sending it.
var ErrDeliveryDisabled = errors.New("delivery disabled")

// Message is a rendered notification handed to a provider.
type Message struct {
	ID           string
	SubmissionID string
	Channel      model.Channel
	To           []string // email addresses
	Phone        string   // SMS recipient, team channel only
	Subject      string
	Text         string
	HTML         string
	SMS          string
}

// Provider is one delivery mechanism (SMTP, queue, SMS, ...).
type Provider interface {
	Name() string
	// Deliver sends msg and returns a provider message id.
	Deliver(ctx context.Context, msg Message) (string, error)
}

// Gateway sends one notification for a stored submission. It never returns
// an error: failures are reported in the outcome.
type Gateway interface {
	Send(ctx context.Context, ch model.Channel, s *model.ContactSubmission) model.NotificationOutcome
}

// FallbackGateway tries each provider configured for a channel in order until
// one succeeds.
type FallbackGateway struct {
	renderer   *Renderer
	providers  map[model.Channel][]Provider
	limiter    *rate.Limiter
	timeout    time.Duration
	teamEmails []string
	teamPhone  string
}

// Option configures a FallbackGateway.
type Option func(*FallbackGateway)

// WithProviders sets the provider chain for a channel.
func WithProviders(ch model.Channel, providers ...Provider) Option {
	return func(g *FallbackGateway) {
		g.providers[ch] = providers
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *FallbackGateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithSendRate paces outgoing attempts across all channels.
func WithSendRate(perSecond float64, burst int) Option {
	return func(g *FallbackGateway) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithTeamRecipients sets who receives the team alert.
func WithTeamRecipients(emails []string, phone string) Option {
	return func(g *FallbackGateway) {
		g.teamEmails = emails
		g.teamPhone = phone
	}
}

// NewFallbackGateway builds a gateway with no pacing and the default timeout
// unless options say otherwise.
func NewFallbackGateway(renderer *Renderer, opts ...Option) *FallbackGateway {
	g := &FallbackGateway{
		renderer:  renderer,
		providers: make(map[model.Channel][]Provider),
		limiter:   rate.NewLimiter(rate.Inf, 1),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send renders the message for ch and walks the provider chain.
func (g *FallbackGateway) Send(ctx context.Context, ch model.Channel, s *model.ContactSubmission) model.NotificationOutcome {
	out := model.NotificationOutcome{Channel: ch}

	msg, err := g.compose(ch, s)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	providers := g.providers[ch]
	if len(providers) == 0 {
		out.Error = "no providers configured"
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, g.budget(len(providers)))
	defer cancel()

	var errs []error
	disabled := false
	for _, p := range providers {
		if err := g.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			break
		}
		id, err := g.attempt(ctx, p, msg)
		if err == nil {
			out.Success = true
			out.Provider = p.Name()
			out.MessageID = id
			return out
		}
		if errors.Is(err, ErrDeliveryDisabled) {
			disabled = true
			continue
		}
		slog.Warn("notification provider failed",
			"channel", ch,
			"provider", p.Name(),
			"submission_id", s.ID,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	if disabled && len(errs) == 0 {
		out.Skipped = true
		out.Error = "skipped: " + ErrDeliveryDisabled.Error()
		return out
	}
	out.Error = errors.Join(errs...).Error()
	return out
}

// Budget is the longest a single Send may take: every provider of the
// longest chain using its full attempt timeout.
func (g *FallbackGateway) Budget() time.Duration {
	n := 0
	for _, ps := range g.providers {
		n = max(n, len(ps))
	}
	return g.budget(n)
}

func (g *FallbackGateway) budget(attempts int) time.Duration {
	return time.Duration(max(attempts, 1)) * g.timeout
}

func (g *FallbackGateway) attempt(ctx context.Context, p Provider, msg Message) (id string, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return p.Deliver(ctx, msg)
}

func (g *FallbackGateway) compose(ch model.Channel, s *model.ContactSubmission) (Message, error) {
	r, err := g.renderer.Render(ch, s)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:           uuid.NewString(),
		SubmissionID: s.ID,
		Channel:      ch,
		Subject:      r.Subject,
		Text:         r.Text,
		HTML:         r.HTML,
		SMS:          r.SMS,
	}
	switch ch {
	case model.ChannelTeam:
		msg.To = g.teamEmails
		msg.Phone = g.teamPhone
	case model.ChannelCustomer:
		if !s.HasEmail() {
			return Message{}, ErrNoRecipient
		}
		msg.To = []string{s.Email}
	}
	return msg, nil
}
