package model

// Channel is a notification audience.
type Channel string

const (
	ChannelTeam     Channel = "team"
	ChannelCustomer Channel = "customer"
)

// NotificationOutcome is the result of one notification attempt.
// It is folded into the HTTP response and logs; it is never stored.
type NotificationOutcome struct {
	Channel   Channel `json:"channel"`
	Provider  string  `json:"provider,omitempty"`
	Success   bool    `json:"success"`
	Skipped   bool    `json:"skipped,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// SkippedOutcome records a channel that was deliberately not attempted.
func SkippedOutcome(ch Channel, reason string) NotificationOutcome {
	return NotificationOutcome{Channel: ch, Skipped: true, Error: "skipped: " + reason}
}
