package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig is the subset of mail settings the SMTP provider needs.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPProvider sends multipart text/HTML mail.
type SMTPProvider struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSMTPProvider creates an SMTP provider.
func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	d := &net.Dialer{}
	return &SMTPProvider{cfg: cfg, dial: d.DialContext}
}

func (p *SMTPProvider) Name() string { return "smtp" }

// Deliver sends msg to every address in msg.To. The whole SMTP exchange is
// bounded by ctx.
func (p *SMTPProvider) Deliver(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipient
	}
	if p.cfg.Host == "" || p.cfg.Username == "" || p.cfg.Password == "" {
		return "", fmt.Errorf("email service not properly configured")
	}

	addr := net.JoinHostPort(p.cfg.Host, fmt.Sprint(p.cfg.Port))
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
			return "", fmt.Errorf("starttls: %w", err)
		}
	}
	if err := c.Auth(smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)); err != nil {
		return "", fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(p.cfg.FromEmail); err != nil {
		return "", fmt.Errorf("smtp mail from: %w", err)
	}
	for _, to := range msg.To {
		if err := c.Rcpt(to); err != nil {
			return "", fmt.Errorf("smtp rcpt %s: %w", to, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return "", fmt.Errorf("smtp data: %w", err)
	}
	messageID := fmt.Sprintf("<%s@%s>", msg.ID, p.cfg.Host)
	if _, err := w.Write(p.build(msg, messageID, time.Now())); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	// The message is accepted once DATA closes; a failed QUIT must not
	// trigger a second delivery through the next provider.
	if err := c.Quit(); err != nil {
		slog.Warn("smtp quit failed after delivery", "message_id", messageID, "error", err)
	}
	return messageID, nil
}

// build renders the RFC 5322 message with a text part and, when present, an
// HTML alternative.
func (p *SMTPProvider) build(msg Message, messageID string, now time.Time) []byte {
	from := p.cfg.FromEmail
	if p.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", p.cfg.FromName, p.cfg.FromEmail)
	}
	boundary := "----=_Part_" + strings.ReplaceAll(msg.ID, "-", "")

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Text + "\r\n")

	if msg.HTML != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML + "\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF so submitted names can't inject headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
