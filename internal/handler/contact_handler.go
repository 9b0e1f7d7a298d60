package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/solarhub/backend/internal/model"
	"github.com/solarhub/backend/internal/ratelimit"
	"github.com/solarhub/backend/internal/service"
)

// MaxBodyBytes caps the accepted request body.
const MaxBodyBytes = 64 << 10

const (
	msgValidation  = "Validation failed"
	msgRateLimited = "Too many submissions from this address. Please try again later."
	msgDuplicate   = "We already received this inquiry a moment ago. Our team will be in touch shortly."
	msgTimeout     = "The request timed out before your inquiry could be saved. Please try again or contact us directly."
	msgInternal    = "We could not save your inquiry right now. Please contact us directly."
)

// Fallback is the human contact returned when a submission could not be
// recorded.
type Fallback struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ContactHandler serves the contact form endpoint.
type ContactHandler struct {
	leadService    service.LeadService
	trustedProxies int
	fallback       Fallback
	now            func() time.Time
}

// NewContactHandler creates a ContactHandler. trustedProxies is the number of
// reverse proxies in front of the server that append to X-Forwarded-For.
func NewContactHandler(leadService service.LeadService, trustedProxies int, fallback Fallback) *ContactHandler {
	return &ContactHandler{
		leadService:    leadService,
		trustedProxies: trustedProxies,
		fallback:       fallback,
		now:            time.Now,
	}
}

type submitDetails struct {
	FormSaved         bool    `json:"form_saved"`
	TeamNotified      bool    `json:"team_notified"`
	CustomerEmailSent bool    `json:"customer_email_sent"`
	EmailProvider     *string `json:"email_provider"`
	NextSteps         string  `json:"next_steps"`
}

type submitResponse struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	SubmissionID string        `json:"submission_id"`
	Timestamp    string        `json:"timestamp"`
	Details      submitDetails `json:"details"`
}

type validationResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

type rateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

type errorResponse struct {
	Error    string    `json:"error"`
	Fallback *Fallback `json:"fallback,omitempty"`
}

// Submit handles POST /contact.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	req := service.SubmitRequest{Client: h.clientInfo(r)}

	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req.Input); err != nil {
		req.DecodeError = err
	} else if _, err := io.Copy(io.Discard, body); err != nil {
		// Trailing data past the limit.
		req.DecodeError = err
	}

	res, err := h.leadService.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	setRateLimitHeaders(w, res.RateLimit)

	var provider *string
	if res.Team.Success && res.Team.Provider != "" {
		p := res.Team.Provider
		provider = &p
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		Success:      true,
		Message:      res.Message(),
		SubmissionID: res.Submission.ID,
		Timestamp:    res.Submission.CreatedAt.UTC().Format(time.RFC3339),
		Details: submitDetails{
			FormSaved:         true,
			TeamNotified:      res.Team.Success,
			CustomerEmailSent: res.Customer.Success,
			EmailProvider:     provider,
			NextSteps:         res.NextSteps(),
		},
	})
}

func (h *ContactHandler) writeError(w http.ResponseWriter, req service.SubmitRequest, err error) {
	var (
		rl *service.RateLimitError
		ve *service.ValidationError
		pe *service.PersistenceError
	)
	switch {
	case errors.As(err, &rl):
		setRateLimitHeaders(w, rl.Result)
		retryAfter := rl.Result.RetryAfter(h.now())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, rateLimitResponse{
			Error:      msgRateLimited,
			RetryAfter: retryAfter,
		})

	case errors.As(err, &ve):
		details := ve.Errors
		var tooLarge *http.MaxBytesError
		if errors.As(req.DecodeError, &tooLarge) {
			details = []string{fmt.Sprintf("Request body must not exceed %d bytes", MaxBodyBytes)}
		}
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Error:   msgValidation,
			Details: details,
		})

	case errors.As(err, &pe) && pe.Kind == service.PersistenceDuplicate:
		writeJSON(w, http.StatusConflict, errorResponse{Error: msgDuplicate})

	case errors.As(err, &pe) && pe.Kind == service.PersistenceTimeout:
		writeJSON(w, http.StatusRequestTimeout, errorResponse{
			Error:    msgTimeout,
			Fallback: &h.fallback,
		})

	default:
		if pe == nil {
			slog.Error("unclassified submission error",
				"identity", req.Client.Identity,
				"stage", service.StageOf(err),
				"error", err,
			)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:    msgInternal,
			Fallback: &h.fallback,
		})
	}
}

func (h *ContactHandler) clientInfo(r *http.Request) service.ClientInfo {
	identity := ratelimit.ClientIdentity(r, h.trustedProxies)
	return service.ClientInfo{
		Identity:  identity,
		IP:        identity,
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
		UTM:       utmFromRequest(r),
	}
}

// setRateLimitHeaders writes the X-RateLimit-* headers. Reset is a Unix
// timestamp in seconds.
func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	if res.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// utmFromRequest reads utm_* parameters from the request URL, falling back to
// the page the form was posted from.
func utmFromRequest(r *http.Request) model.UTM {
	if u := utmFromQuery(r.URL.Query()); !u.IsZero() {
		return u
	}
	if ref, err := url.Parse(r.Referer()); err == nil {
		return utmFromQuery(ref.Query())
	}
	return model.UTM{}
}

func utmFromQuery(q url.Values) model.UTM {
	return model.UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
}
