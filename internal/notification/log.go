package notification

import (
	"context"
	"log/slog"
)

// LogProvider only logs the message. Used when outbound email is disabled.
// It always reports ErrDeliveryDisabled so nothing counts as sent.
type LogProvider struct{}

func (LogProvider) Name() string { return "log" }

func (LogProvider) Deliver(ctx context.Context, msg Message) (string, error) {
	slog.InfoContext(ctx, "notification (not sent, delivery disabled)",
		"channel", msg.Channel,
		"submission_id", msg.SubmissionID,
		"to", msg.To,
		"phone", msg.Phone,
		"subject", msg.Subject,
	)
	return "", ErrDeliveryDisabled
}
