package notification

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solarhub/backend/internal/model"
)

// mockProvider is a test double for Provider.
type mockProvider struct {
	name      string
	deliverFn func(ctx context.Context, msg Message) (string, error)
	calls     atomic.Int32
	last      atomic.Value
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Deliver(ctx context.Context, msg Message) (string, error) {
	m.calls.Add(1)
	m.last.Store(msg)
	if m.deliverFn != nil {
		return m.deliverFn(ctx, msg)
	}
	return m.name + "-id", nil
}

func (m *mockProvider) lastMessage() Message {
	v, _ := m.last.Load().(Message)
	return v
}

func failing(name string, err error) *mockProvider {
	return &mockProvider{name: name, deliverFn: func(context.Context, Message) (string, error) {
		return "", err
	}}
}

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(Brand{Company: "SunPeak Solar", SiteURL: "https://example.com", Phone: "+91-00000-00000"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	return r
}

func testSubmission() *model.ContactSubmission {
	return &model.ContactSubmission{
		ID:        "4b9a4a9e-7c1b-4d1e-9f57-2f6f0c6b7d10",
		Name:      "Asha",
		Email:     "asha@example.com",
		Phone:     "+91 98765 43210",
		Subject:   "Residential solar inquiry from Asha",
		Message:   "I want a rooftop system",
		FormType:  model.FormTypeContact,
		UserType:  model.UserTypeResidential,
		Source:    model.DefaultSource,
		CreatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFallbackGateway_FirstProviderWins(t *testing.T) {
	first := &mockProvider{name: "smtp"}
	second := &mockProvider{name: "queue"}
	g := NewFallbackGateway(testRenderer(t),
		WithProviders(model.ChannelTeam, first, second),
		WithTeamRecipients([]string{"sales@example.com"}, ""),
	)

	out := g.Send(context.Background(), model.ChannelTeam, testSubmission())

	if !out.Success || out.Provider != "smtp" || out.MessageID != "smtp-id" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if second.calls.Load() != 0 {
		t.Error("second provider should not be tried after success")
	}
	msg := first.lastMessage()
	if len(msg.To) != 1 || msg.To[0] != "sales@example.com" {
		t.Errorf("expected team recipients, got %v", msg.To)
	}
	if !strings.Contains(msg.Text, "+91 98765 43210") {
		t.Error("team alert should carry the phone number")
	}
}

func TestFallbackGateway_FallsBackInOrder(t *testing.T) {
	first := failing("smtp", errors.New("connection refused"))
	second := &mockProvider{name: "queue"}
	g := NewFallbackGateway(testRenderer(t), WithProviders(model.ChannelCustomer, first, second))

	out := g.Send(context.Background(), model.ChannelCustomer, testSubmission())

	if !out.Success || out.Provider != "queue" {
		t.Fatalf("expected queue to deliver, got %+v", out)
	}
	if first.calls.Load() != 1 || second.calls.Load() != 1 {
		t.Errorf("expected one call each, got %d/%d", first.calls.Load(), second.calls.Load())
	}
	if got := second.lastMessage().To; len(got) != 1 || got[0] != "asha@example.com" {
		t.Errorf("customer message should go to the submitter, got %v", got)
	}
}

func TestFallbackGateway_AllFail(t *testing.T) {
	g := NewFallbackGateway(testRenderer(t), WithProviders(model.ChannelTeam,
		failing("smtp", errors.New("auth failed")),
		failing("queue", errors.New("broker down")),
	))

	out := g.Send(context.Background(), model.ChannelTeam, testSubmission())

	if out.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.Error, "smtp: auth failed") || !strings.Contains(out.Error, "queue: broker down") {
		t.Errorf("expected both errors joined, got %q", out.Error)
	}
}

func TestFallbackGateway_PanicBecomesFailedAttempt(t *testing.T) {
	boom := &mockProvider{name: "smtp", deliverFn: func(context.Context, Message) (string, error) {
		panic("nil pointer in provider")
	}}
	backup := &mockProvider{name: "log"}
	g := NewFallbackGateway(testRenderer(t), WithProviders(model.ChannelTeam, boom, backup))

	out := g.Send(context.Background(), model.ChannelTeam, testSubmission())

	if !out.Success || out.Provider != "log" {
		t.Fatalf("expected backup after panic, got %+v", out)
	}
}

func TestFallbackGateway_AttemptTimeout(t *testing.T) {
	slow := &mockProvider{name: "smtp", deliverFn: func(ctx context.Context, _ Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	g := NewFallbackGateway(testRenderer(t),
		WithProviders(model.ChannelTeam, slow),
		WithTimeout(20*time.Millisecond),
	)

	start := time.Now()
	out := g.Send(context.Background(), model.ChannelTeam, testSubmission())

	if out.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(out.Error, context.DeadlineExceeded.Error()) {
		t.Errorf("expected deadline error, got %q", out.Error)
	}
	if time.Since(start) > time.Second {
		t.Error("attempt was not bounded by the timeout")
	}
}

func TestFallbackGateway_CustomerWithoutEmail(t *testing.T) {
	p := &mockProvider{name: "smtp"}
	g := NewFallbackGateway(testRenderer(t), WithProviders(model.ChannelCustomer, p))
	s := testSubmission()
	s.Email = ""

	out := g.Send(context.Background(), model.ChannelCustomer, s)

	if out.Success || p.calls.Load() != 0 {
		t.Fatalf("no provider should be called without an address, got %+v", out)
	}
	if out.Error != ErrNoRecipient.Error() {
		t.Errorf("unexpected error %q", out.Error)
	}
}

func TestFallbackGateway_NoProviders(t *testing.T) {
	g := NewFallbackGateway(testRenderer(t))

	out := g.Send(context.Background(), model.ChannelTeam, testSubmission())

	if out.Success || out.Error == "" {
		t.Fatalf("expected failure without providers, got %+v", out)
	}
}

func TestFallbackGateway_CancelledWhileWaitingForRate(t *testing.T) {
	p := &mockProvider{name: "smtp"}
	g := NewFallbackGateway(testRenderer(t),
		WithProviders(model.ChannelTeam, p),
		WithSendRate(0.001, 1),
	)
	// drain the single token
	g.Send(context.Background(), model.ChannelTeam, testSubmission())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := g.Send(ctx, model.ChannelTeam, testSubmission())

	if out.Success {
		t.Fatal("expected pacing to block past the deadline")
	}
	if p.calls.Load() != 1 {
		t.Errorf("expected provider called once, got %d", p.calls.Load())
	}
}

func TestRegistry_Chain(t *testing.T) {
	r := Registry{}
	r.Register(&mockProvider{name: "smtp"})
	r.Register(LogProvider{})

	chain, missing := r.Chain([]string{"twilio", "smtp", "log"})

	if len(chain) != 2 || chain[0].Name() != "smtp" || chain[1].Name() != "log" {
		t.Errorf("unexpected chain %v", chain)
	}
	if len(missing) != 1 || missing[0] != "twilio" {
		t.Errorf("unexpected missing %v", missing)
	}
	if got := r.ChainOr([]string{"queue"}, LogProvider{}); len(got) != 1 || got[0].Name() != "log" {
		t.Errorf("expected fallback provider, got %v", got)
	}
}

func TestFallbackGateway_LogOnlyChainIsNotSuccess(t *testing.T) {
	reg := Registry{}
	g := NewFallbackGateway(testRenderer(t),
		WithProviders(model.ChannelTeam, reg.ChainOr([]string{"smtp", "queue", "twilio"}, LogProvider{})...),
		WithProviders(model.ChannelCustomer, reg.ChainOr([]string{"smtp", "queue"}, LogProvider{})...),
		WithTeamRecipients([]string{"sales@example.com"}, ""),
	)

	for _, ch := range []model.Channel{model.ChannelTeam, model.ChannelCustomer} {
		out := g.Send(context.Background(), ch, testSubmission())
		if out.Success {
			t.Errorf("%s: log-only delivery reported as sent: %+v", ch, out)
		}
		if !out.Skipped || out.Provider != "" {
			t.Errorf("%s: expected skipped outcome without provider, got %+v", ch, out)
		}
		if out.Error != "skipped: delivery disabled" {
			t.Errorf("%s: unexpected error %q", ch, out.Error)
		}
	}
}

func TestFallbackGateway_FailureBeforeLogProviderIsReported(t *testing.T) {
	smtp := failing("smtp", errors.New("connection refused"))
	g := NewFallbackGateway(testRenderer(t),
		WithProviders(model.ChannelCustomer, smtp, LogProvider{}),
	)

	out := g.Send(context.Background(), model.ChannelCustomer, testSubmission())
	if out.Success || out.Skipped {
		t.Fatalf("expected failed outcome, got %+v", out)
	}
	if !strings.Contains(out.Error, "connection refused") {
		t.Errorf("expected smtp error in outcome, got %q", out.Error)
	}
}

func TestFallbackGateway_Budget(t *testing.T) {
	g := NewFallbackGateway(testRenderer(t),
		WithProviders(model.ChannelTeam, &mockProvider{name: "a"}, &mockProvider{name: "b"}, &mockProvider{name: "c"}),
		WithProviders(model.ChannelCustomer, &mockProvider{name: "a"}),
		WithTimeout(2*time.Second),
	)
	if got := g.Budget(); got != 6*time.Second {
		t.Errorf("expected 6s budget, got %v", got)
	}

	empty := NewFallbackGateway(testRenderer(t), WithTimeout(time.Second))
	if got := empty.Budget(); got != time.Second {
		t.Errorf("expected one attempt for an empty gateway, got %v", got)
	}
}

func TestFallbackGateway_SendStaysWithinBudget(t *testing.T) {
	first := failing("smtp", errors.New("refused"))
	second := &mockProvider{name: "queue"}
	// One token, then a new token only every ~17 minutes.
	g := NewFallbackGateway(testRenderer(t),
		WithProviders(model.ChannelTeam, first, second),
		WithTimeout(50*time.Millisecond),
		WithSendRate(0.001, 1),
		WithTeamRecipients([]string{"sales@example.com"}, ""),
	)

	start := time.Now()
	out := g.Send(context.Background(), model.ChannelTeam, testSubmission())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("send outlived its budget: %v", elapsed)
	}
	if out.Success {
		t.Errorf("expected failure, got %+v", out)
	}
	if second.calls.Load() != 0 {
		t.Errorf("provider beyond the budget should not be attempted")
	}
}
