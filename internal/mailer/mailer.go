// Package mailer delivers prepared outreach messages.
package mailer

import (
	"context"
	"fmt"
)

// Address is an email address with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message is a fully prepared outbound email.
type Message struct {
	To         Address           `json:"to"`
	From       Address           `json:"from"`
	ReplyTo    Address           `json:"reply_to"`
	Subject    string            `json:"subject"`
	Text       string            `json:"text"`
	HTML       string            `json:"html,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// SendResult is the provider's acknowledgement.
type SendResult struct {
	StatusCode        int    `json:"status_code"`
	ProviderMessageID string `json:"provider_message_id"`
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
	Provider() string
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider responded with status %d: %s", e.Status, e.Body)
}

// StatusCode lets retry classification inspect the response status.
func (e *HTTPError) StatusCode() int { return e.Status }
