package notification

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST API the SMS provider uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioProvider texts the team phone with a short lead alert.
type TwilioProvider struct {
	api  messageCreator
	from string
}

// NewTwilioProvider creates an SMS provider from account credentials.
func NewTwilioProvider(accountSID, authToken, from string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{api: client.Api, from: from}
}

func (p *TwilioProvider) Name() string { return "twilio" }

// Deliver sends msg.SMS to msg.Phone. The Twilio client has no context
// support, so ctx only bounds how long we wait for it.
func (p *TwilioProvider) Deliver(ctx context.Context, msg Message) (string, error) {
	if msg.Phone == "" {
		return "", ErrNoRecipient
	}
	body := msg.SMS
	if body == "" {
		body = msg.Subject
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.Phone)
	params.SetFrom(p.from)
	params.SetBody(body)

	type result struct {
		resp *twilioApi.ApiV2010Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("twilio panic: %v", r)}
			}
		}()
		resp, err := p.api.CreateMessage(params)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("create message: %w", r.err)
		}
		if r.resp != nil && r.resp.Sid != nil {
			return *r.resp.Sid, nil
		}
		return msg.ID, nil
	}
}
