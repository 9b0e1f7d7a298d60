package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/solarhub/backend/internal/model"
	"github.com/solarhub/backend/internal/ratelimit"
	"github.com/solarhub/backend/internal/repository"
	"github.com/solarhub/backend/internal/service"
)

// ---------------------------------------------------------------------------
// Mock LeadService
// ---------------------------------------------------------------------------

type mockLeadService struct {
	submitFunc func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
}

func (m *mockLeadService) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, req)
	}
	return okResult(req), nil
}

var testFallback = Fallback{Phone: "+91-00000-00000", Email: "info@example.com", Message: "Please call us."}

func okResult(req service.SubmitRequest) *service.SubmitResult {
	sub := req.Input.Normalize()
	sub.ID = "5f0c2b8e-1d8b-4c63-9a8e-0e7e8f5d1a11"
	sub.CreatedAt = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	return &service.SubmitResult{
		Submission: sub,
		Team:       model.NotificationOutcome{Channel: model.ChannelTeam, Success: true, Provider: "smtp"},
		Customer:   model.SkippedOutcome(model.ChannelCustomer, "no email"),
		RateLimit:  ratelimit.Result{Allowed: true, Limit: 5, Remaining: 4, ResetAt: time.Unix(1790000000, 0)},
		Stage:      service.StageResponded,
	}
}

func postContact(h *ContactHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.50:41234"
	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	return rec
}

const scenarioA = `{"name":"Asha","phone":"+911234567890","message":"Need a quote"}`

// ---------------------------------------------------------------------------
// POST /contact tests
// ---------------------------------------------------------------------------

func TestContactHandler_Submit_Created(t *testing.T) {
	var captured service.SubmitRequest
	h := NewContactHandler(&mockLeadService{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			captured = req
			return okResult(req), nil
		},
	}, 1, testFallback)

	rec := postContact(h, scenarioA)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d — body: %s", rec.Code, rec.Body.String())
	}
	var resp submitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.SubmissionID == "" || resp.Timestamp != "2026-10-01T09:30:00Z" {
		t.Errorf("unexpected response %+v", resp)
	}
	if !resp.Details.FormSaved || !resp.Details.TeamNotified || resp.Details.CustomerEmailSent {
		t.Errorf("unexpected details %+v", resp.Details)
	}
	if resp.Details.EmailProvider == nil || *resp.Details.EmailProvider != "smtp" {
		t.Errorf("expected email_provider=smtp, got %v", resp.Details.EmailProvider)
	}
	if !strings.Contains(resp.Details.NextSteps, "within 24 hours") {
		t.Errorf("next_steps should mention the callback, got %q", resp.Details.NextSteps)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("expected X-RateLimit-Limit=5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected X-RateLimit-Remaining=4, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "1790000000" {
		t.Errorf("expected X-RateLimit-Reset epoch, got %q", got)
	}
	if captured.Client.Identity != "203.0.113.50" {
		t.Errorf("expected identity from RemoteAddr, got %q", captured.Client.Identity)
	}
	if captured.Input.Name != "Asha" || captured.DecodeError != nil {
		t.Errorf("unexpected decoded input %+v (err %v)", captured.Input, captured.DecodeError)
	}
}

func TestContactHandler_Submit_NoProviderIsNull(t *testing.T) {
	h := NewContactHandler(&mockLeadService{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			res := okResult(req)
			res.Team = model.NotificationOutcome{Channel: model.ChannelTeam, Error: "smtp: refused"}
			return res, nil
		},
	}, 1, testFallback)

	rec := postContact(h, scenarioA)

	if rec.Code != http.StatusCreated {
		t.Fatalf("notification failure must still be 201, got %d", rec.Code)
	}
	var raw map[string]map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &raw)
	if v, ok := raw["details"]["email_provider"]; !ok || v != nil {
		t.Errorf("expected email_provider null, got %v", v)
	}
	if raw["details"]["team_notified"] != false {
		t.Errorf("expected team_notified=false, got %v", raw["details"]["team_notified"])
	}
}

func TestContactHandler_Submit_ValidationFailed(t *testing.T) {
	h := NewContactHandler(&mockLeadService{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			return nil, &service.ValidationError{Errors: []string{"Subject must be at least 5 characters long"}}
		},
	}, 1, testFallback)

	rec := postContact(h, `{"name":"Asha","phone":"+911234567890","message":"x","subject":"Hi"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp validationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Validation failed" || len(resp.Details) != 1 || !strings.Contains(resp.Details[0], "at least 5") {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestContactHandler_Submit_MalformedJSONGoesThroughService(t *testing.T) {
	called := false
	h := NewContactHandler(&mockLeadService{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			called = true
			if req.DecodeError == nil {
				t.Error("expected decode error to be passed along")
			}
			return nil, &service.ValidationError{Errors: []string{service.MalformedBodyMessage}}
		},
	}, 1, testFallback)

	rec := postContact(h, `{"name": "Asha",`)

	if !called {
		t.Fatal("malformed bodies must still reach the rate check")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestContactHandler_Submit_BodyTooLarge(t *testing.T) {
	h := NewContactHandler(&mockLeadService{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			return nil, &service.ValidationError{Errors: []string{service.MalformedBodyMessage}}
		},
	}, 1, testFallback)

	big := `{"name":"Asha","phone":"+911234567890","message":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	rec := postContact(h, big)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp validationResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Details) != 1 || !strings.Contains(resp.Details[0], "must not exceed") {
		t.Errorf("expected size detail, got %v", resp.Details)
	}
}

func TestContactHandler_Submit_RateLimited(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	h := NewContactHandler(&mockLeadService{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			return nil, &service.RateLimitError{Result: ratelimit.Result{
				Allowed: false, Limit: 5, Remaining: 0, ResetAt: now.Add(90 * time.Second),
			}}
		},
	}, 1, testFallback)
	h.now = func() time.Time { return now }

	rec := postContact(h, scenarioA)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var resp rateLimitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RetryAfter != 90 || resp.Error == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if got := rec.Header().Get("Retry-After"); got != "90" {
		t.Errorf("expected Retry-After=90, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected remaining=0, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(now.Add(90*time.Second).Unix(), 10) {
		t.Errorf("unexpected reset %q", got)
	}
}

func TestContactHandler_Submit_PersistenceErrors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantFallback bool
	}{
		{"scenario D duplicate", &service.PersistenceError{Kind: service.PersistenceDuplicate, Err: repository.ErrDuplicate}, http.StatusConflict, false},
		{"timeout", &service.PersistenceError{Kind: service.PersistenceTimeout, Err: repository.ErrTimeout}, http.StatusRequestTimeout, true},
		{"unavailable", &service.PersistenceError{Kind: service.PersistenceUnavailable, Err: errors.New("pq: password authentication failed")}, http.StatusInternalServerError, true},
		{"unclassified", errors.New("something odd"), http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewContactHandler(&mockLeadService{
				submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
					return nil, tt.err
				},
			}, 1, testFallback)

			rec := postContact(h, scenarioA)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == "" {
				t.Error("expected error message")
			}
			if tt.wantFallback && (resp.Fallback == nil || resp.Fallback.Email != testFallback.Email) {
				t.Errorf("expected fallback contact, got %+v", resp.Fallback)
			}
			if strings.Contains(rec.Body.String(), "password") || strings.Contains(rec.Body.String(), "odd") {
				t.Error("underlying error must never be exposed")
			}
		})
	}
}

func TestContactHandler_Submit_UTMFromQueryAndReferer(t *testing.T) {
	var captured service.SubmitRequest
	h := NewContactHandler(&mockLeadService{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
			captured = req
			return okResult(req), nil
		},
	}, 1, testFallback)

	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(scenarioA))
	req.Header.Set("Referer", "https://sunpeak.example/solar?utm_source=google&utm_campaign=monsoon")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	h.Submit(httptest.NewRecorder(), req)

	if captured.Client.UTM.Source != "google" || captured.Client.UTM.Campaign != "monsoon" {
		t.Errorf("expected utm from referer, got %+v", captured.Client.UTM)
	}
	if captured.Client.UserAgent != "Mozilla/5.0" || captured.Client.Referrer == "" {
		t.Errorf("unexpected client info %+v", captured.Client)
	}
	if captured.Client.Identity != "198.51.100.7" {
		t.Errorf("expected identity from X-Forwarded-For, got %q", captured.Client.Identity)
	}

	req = httptest.NewRequest(http.MethodPost, "/contact?utm_source=newsletter", strings.NewReader(scenarioA))
	req.Header.Set("Referer", "https://sunpeak.example/?utm_source=google")
	h.Submit(httptest.NewRecorder(), req)
	if captured.Client.UTM.Source != "newsletter" {
		t.Errorf("request query should win over referer, got %+v", captured.Client.UTM)
	}
}
