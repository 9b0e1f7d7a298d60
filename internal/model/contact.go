package model

import (
	"fmt"
	"strings"
	"time"
)

// Customer categories. Each category carries its own optional attributes
// (monthly bill for residential, business type for commercial, power
// consumption and scale for industrial).
const (
	UserTypeResidential = "residential"
	UserTypeCommercial  = "commercial"
	UserTypeIndustrial  = "industrial"
)

// Form types identify which form on the site produced the submission.
const (
	FormTypeContact      = "contact"
	FormTypeQuote        = "quote"
	FormTypeConsultation = "consultation"
	FormTypeCallback     = "callback"
	FormTypeSupport      = "support"
)

// DefaultSource is used when the client does not tag the submission.
const DefaultSource = "website"

// UserTypes, FormTypes and Sources are the closed sets accepted by validation.
var (
	UserTypes = []string{UserTypeResidential, UserTypeCommercial, UserTypeIndustrial}
	FormTypes = []string{FormTypeContact, FormTypeQuote, FormTypeConsultation, FormTypeCallback, FormTypeSupport}
	Sources   = []string{DefaultSource, "contact_page", "quote_page", "landing_page", "chat_widget", "referral", "campaign"}
)

// ContactSubmission is the durable record of an inquiry.
type ContactSubmission struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone"`
	Company  string `json:"company,omitempty"`
	Location string `json:"location,omitempty"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`

	FormType string `json:"form_type"`
	UserType string `json:"user_type"`
	Source   string `json:"source"`

	SystemType       string `json:"system_type,omitempty"`
	MonthlyBill      string `json:"monthly_bill,omitempty"`
	BusinessType     string `json:"business_type,omitempty"`
	PowerConsumption string `json:"power_consumption,omitempty"`
	IndustrialScale  string `json:"industrial_scale,omitempty"`

	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// HasEmail reports whether the submitter left an address we can confirm to.
func (s *ContactSubmission) HasEmail() bool {
	return s.Email != ""
}

// UTM holds campaign attribution parameters.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

// IsZero reports whether no attribution was captured.
func (u UTM) IsZero() bool {
	return u == UTM{}
}

// Metadata is the provenance bag stored alongside a submission.
// Server-derived fields always win over client-supplied keys in Extra.
type Metadata struct {
	ClientIP    string         `json:"client_ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Referrer    string         `json:"referrer,omitempty"`
	UTM         UTM            `json:"utm"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SubmissionInput is the JSON body accepted by POST /contact.
// Every optional field is a pointer so absence and empty string stay distinct
// until Normalize runs.
type SubmissionInput struct {
	Name             string         `json:"name"`
	Email            *string        `json:"email"`
	Phone            string         `json:"phone"`
	Company          *string        `json:"company"`
	Subject          *string        `json:"subject"`
	Message          string         `json:"message"`
	FormType         *string        `json:"form_type"`
	UserType         *string        `json:"user_type"`
	Location         *string        `json:"location"`
	SystemType       *string        `json:"system_type"`
	MonthlyBill      *string        `json:"monthly_bill"`
	BusinessType     *string        `json:"business_type"`
	PowerConsumption *string        `json:"power_consumption"`
	IndustrialScale  *string        `json:"industrial_scale"`
	Source           *string        `json:"source"`
	Metadata         map[string]any `json:"metadata"`
}

// Normalize trims every field, lower-cases the email and the enum fields and
// fills defaults for subject, form type, category and source. It is the only
// place defaults are applied; the result is what validation and persistence
// see.
func (in *SubmissionInput) Normalize() *ContactSubmission {
	s := &ContactSubmission{
		Name:             strings.TrimSpace(in.Name),
		Email:            strings.ToLower(trimPtr(in.Email)),
		Phone:            strings.TrimSpace(in.Phone),
		Company:          trimPtr(in.Company),
		Location:         trimPtr(in.Location),
		Subject:          trimPtr(in.Subject),
		Message:          strings.TrimSpace(in.Message),
		FormType:         strings.ToLower(trimPtr(in.FormType)),
		UserType:         strings.ToLower(trimPtr(in.UserType)),
		Source:           strings.ToLower(trimPtr(in.Source)),
		SystemType:       trimPtr(in.SystemType),
		MonthlyBill:      trimPtr(in.MonthlyBill),
		BusinessType:     trimPtr(in.BusinessType),
		PowerConsumption: trimPtr(in.PowerConsumption),
		IndustrialScale:  trimPtr(in.IndustrialScale),
	}
	if s.FormType == "" {
		s.FormType = FormTypeContact
	}
	if s.UserType == "" {
		s.UserType = UserTypeResidential
	}
	if s.Source == "" {
		s.Source = DefaultSource
	}
	if s.Subject == "" {
		s.Subject = defaultSubject(s.UserType, s.Name)
	}
	if len(in.Metadata) > 0 {
		s.Metadata.Extra = make(map[string]any, len(in.Metadata))
		for k, v := range in.Metadata {
			s.Metadata.Extra[k] = v
		}
	}
	return s
}

func defaultSubject(userType, name string) string {
	category := userType
	if category != "" {
		category = strings.ToUpper(category[:1]) + category[1:]
	}
	if name == "" {
		return fmt.Sprintf("%s solar inquiry", category)
	}
	return fmt.Sprintf("%s solar inquiry from %s", category, name)
}

func trimPtr(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
