package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/solarhub/backend/internal/model"
)

// Brand is the company identity printed in message bodies.
type Brand struct {
	Company string
	SiteURL string
	Phone   string
	Email   string
}

// Renderer builds the team alert and the customer confirmation for a
// submission.
type Renderer struct {
	brand Brand

	teamText     *texttemplate.Template
	teamHTML     *htmltemplate.Template
	teamSMS      *texttemplate.Template
	customerText *texttemplate.Template
	customerHTML *htmltemplate.Template
}

// Rendered is the subject and bodies of one message.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
	SMS     string
}

type templateData struct {
	Brand Brand
	S     *model.ContactSubmission
	Year  string
	When  string
}

var funcs = map[string]any{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"fallback": func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	},
}

const teamTextTmpl = `New {{.S.FormType}} submission from {{.S.Name}}

Name:       {{.S.Name}}
Phone:      {{.S.Phone}}
Email:      {{fallback .S.Email "-"}}
Company:    {{fallback .S.Company "-"}}
Location:   {{fallback .S.Location "-"}}
Category:   {{title .S.UserType}}
{{- if .S.SystemType}}
System:     {{.S.SystemType}}{{end}}
{{- if .S.MonthlyBill}}
Bill:       {{.S.MonthlyBill}}{{end}}
{{- if .S.BusinessType}}
Business:   {{.S.BusinessType}}{{end}}
{{- if .S.PowerConsumption}}
Usage:      {{.S.PowerConsumption}}{{end}}
{{- if .S.IndustrialScale}}
Scale:      {{.S.IndustrialScale}}{{end}}
Source:     {{.S.Source}}
Subject:    {{.S.Subject}}

{{.S.Message}}

Submission {{.S.ID}} received {{.When}}
Client IP:  {{fallback .S.Metadata.ClientIP "-"}}
{{- with .S.Metadata.UTM}}{{if .Campaign}}
Campaign:   {{.Campaign}} ({{fallback .Source "-"}}/{{fallback .Medium "-"}}){{end}}{{end}}
`

const teamHTMLTmpl = `<!DOCTYPE html>
<html lang="en">
<body style="margin:0;padding:24px;background:#F8FAFC;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;">
  <table role="presentation" width="600" style="margin:0 auto;background:#FFFFFF;border-radius:12px;">
    <tr><td style="padding:24px 32px;background:#F59E0B;color:#FFFFFF;border-radius:12px 12px 0 0;">
      <h2 style="margin:0;">New {{.S.FormType}} lead: {{.S.Name}}</h2>
    </td></tr>
    <tr><td style="padding:24px 32px;">
      <table role="presentation" width="100%" style="font-size:14px;color:#334155;">
        <tr><td><strong>Phone</strong></td><td>{{.S.Phone}}</td></tr>
        <tr><td><strong>Email</strong></td><td>{{fallback .S.Email "-"}}</td></tr>
        <tr><td><strong>Company</strong></td><td>{{fallback .S.Company "-"}}</td></tr>
        <tr><td><strong>Location</strong></td><td>{{fallback .S.Location "-"}}</td></tr>
        <tr><td><strong>Category</strong></td><td>{{title .S.UserType}}</td></tr>
        {{if .S.SystemType}}<tr><td><strong>System</strong></td><td>{{.S.SystemType}}</td></tr>{{end}}
        {{if .S.MonthlyBill}}<tr><td><strong>Monthly bill</strong></td><td>{{.S.MonthlyBill}}</td></tr>{{end}}
        {{if .S.BusinessType}}<tr><td><strong>Business</strong></td><td>{{.S.BusinessType}}</td></tr>{{end}}
        {{if .S.PowerConsumption}}<tr><td><strong>Usage</strong></td><td>{{.S.PowerConsumption}}</td></tr>{{end}}
        {{if .S.IndustrialScale}}<tr><td><strong>Scale</strong></td><td>{{.S.IndustrialScale}}</td></tr>{{end}}
        <tr><td><strong>Source</strong></td><td>{{.S.Source}}</td></tr>
      </table>
      <h3 style="margin:24px 0 8px;">{{.S.Subject}}</h3>
      <p style="white-space:pre-wrap;margin:0;">{{.S.Message}}</p>
      <p style="margin:24px 0 0;font-size:12px;color:#94A3B8;">Submission {{.S.ID}} received {{.When}}</p>
    </td></tr>
  </table>
</body>
</html>`

const teamSMSTmpl = `New {{.S.UserType}} lead: {{.S.Name}} {{.S.Phone}}{{if .S.Location}} ({{.S.Location}}){{end}}. Ref {{.S.ID}}`

const customerTextTmpl = `Hello {{.S.Name}},

Thank you for contacting {{.Brand.Company}}. We have received your {{.S.FormType}} request
and a solar consultant will call you on {{.S.Phone}} within 24 hours.

Your reference number is {{.S.ID}}.

Your message:
{{.S.Message}}

If you need anything sooner, reach us at {{fallback .Brand.Phone .Brand.Email}}.

Best regards,
{{.Brand.Company}} Team
{{.Brand.SiteURL}}
`

const customerHTMLTmpl = `<!DOCTYPE html>
<html lang="en">
<body style="margin:0;padding:24px;background:#F8FAFC;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;">
  <table role="presentation" width="600" style="margin:0 auto;background:#FFFFFF;border-radius:12px;">
    <tr><td style="padding:32px;">
      <h2 style="margin:0 0 12px;color:#0D1A2D;">Thank you, {{.S.Name}}</h2>
      <p style="font-size:16px;line-height:1.6;color:#64748B;">
        We have received your {{.S.FormType}} request. A solar consultant will call you on
        <strong>{{.S.Phone}}</strong> within 24 hours.
      </p>
      <p style="font-size:14px;color:#334155;">Reference: <strong>{{.S.ID}}</strong></p>
      <blockquote style="margin:16px 0;padding:12px 16px;border-left:4px solid #F59E0B;white-space:pre-wrap;color:#334155;">{{.S.Message}}</blockquote>
      <p style="font-size:14px;color:#64748B;">Need us sooner? {{fallback .Brand.Phone .Brand.Email}}</p>
      <p style="margin:24px 0 0;font-size:12px;color:#94A3B8;">&copy; {{.Year}} {{.Brand.Company}}. <a href="{{.Brand.SiteURL}}">{{.Brand.SiteURL}}</a></p>
    </td></tr>
  </table>
</body>
</html>`

// NewRenderer parses the message templates.
func NewRenderer(brand Brand) (*Renderer, error) {
	r := &Renderer{brand: brand}
	var err error
	if r.teamText, err = texttemplate.New("team_text").Funcs(funcs).Parse(teamTextTmpl); err != nil {
		return nil, fmt.Errorf("parse team text template: %w", err)
	}
	if r.teamHTML, err = htmltemplate.New("team_html").Funcs(funcs).Parse(teamHTMLTmpl); err != nil {
		return nil, fmt.Errorf("parse team html template: %w", err)
	}
	if r.teamSMS, err = texttemplate.New("team_sms").Funcs(funcs).Parse(teamSMSTmpl); err != nil {
		return nil, fmt.Errorf("parse team sms template: %w", err)
	}
	if r.customerText, err = texttemplate.New("customer_text").Funcs(funcs).Parse(customerTextTmpl); err != nil {
		return nil, fmt.Errorf("parse customer text template: %w", err)
	}
	if r.customerHTML, err = htmltemplate.New("customer_html").Funcs(funcs).Parse(customerHTMLTmpl); err != nil {
		return nil, fmt.Errorf("parse customer html template: %w", err)
	}
	return r, nil
}

// Render produces the message for one channel.
func (r *Renderer) Render(ch model.Channel, s *model.ContactSubmission) (Rendered, error) {
	data := templateData{
		Brand: r.brand,
		S:     s,
		Year:  time.Now().Format("2006"),
		When:  s.CreatedAt.UTC().Format(time.RFC1123),
	}

	var out Rendered
	var text, html, sms bytes.Buffer
	switch ch {
	case model.ChannelTeam:
		out.Subject = fmt.Sprintf("New %s lead: %s (%s)", s.FormType, s.Name, s.UserType)
		if err := r.teamText.Execute(&text, data); err != nil {
			return out, fmt.Errorf("render team text: %w", err)
		}
		if err := r.teamHTML.Execute(&html, data); err != nil {
			return out, fmt.Errorf("render team html: %w", err)
		}
		if err := r.teamSMS.Execute(&sms, data); err != nil {
			return out, fmt.Errorf("render team sms: %w", err)
		}
	case model.ChannelCustomer:
		out.Subject = fmt.Sprintf("Thank you for contacting %s", r.brand.Company)
		if err := r.customerText.Execute(&text, data); err != nil {
			return out, fmt.Errorf("render customer text: %w", err)
		}
		if err := r.customerHTML.Execute(&html, data); err != nil {
			return out, fmt.Errorf("render customer html: %w", err)
		}
	default:
		return out, fmt.Errorf("unknown channel %q", ch)
	}
	out.Text, out.HTML, out.SMS = text.String(), html.String(), sms.String()
	return out, nil
}
