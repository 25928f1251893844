package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/octobees/supplier-outreach/internal/retry"
)

const (
	sendGridProvider = "sendgrid"
	sendGridPath     = "/v3/mail/send"
	maxErrorBody     = 512
)

// SendGrid sends through the SendGrid v3 mail API.
type SendGrid struct {
	client *resty.Client
}

// NewSendGrid builds a sender. baseURL defaults to https://api.sendgrid.com.
func NewSendGrid(apiKey, baseURL string, timeout time.Duration) *SendGrid {
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	return &SendGrid{client: client}
}

func (s *SendGrid) Provider() string { return sendGridProvider }

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To         []sgAddress       `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	ReplyTo          *sgAddress          `json:"reply_to,omitempty"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
	Categories       []string            `json:"categories,omitempty"`
	Headers          map[string]string   `json:"headers,omitempty"`
}

type sgError struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// Send posts msg to SendGrid. Transport failures are marked transient;
// non-2xx responses become *HTTPError.
func (s *SendGrid) Send(ctx context.Context, msg Message) (SendResult, error) {
	if msg.To.Email == "" {
		return SendResult{}, errors.New("message has no recipient")
	}

	payload := sgRequest{
		Personalizations: []sgPersonalization{{
			To:         []sgAddress{{Email: msg.To.Email, Name: msg.To.Name}},
			CustomArgs: msg.CustomArgs,
		}},
		From:       sgAddress{Email: msg.From.Email, Name: msg.From.Name},
		Subject:    msg.Subject,
		Content:    []sgContent{{Type: "text/plain", Value: msg.Text}},
		Categories: msg.Categories,
		Headers:    msg.Headers,
	}
	if msg.ReplyTo.Email != "" {
		payload.ReplyTo = &sgAddress{Email: msg.ReplyTo.Email, Name: msg.ReplyTo.Name}
	}
	if msg.HTML != "" {
		payload.Content = append(payload.Content, sgContent{Type: "text/html", Value: msg.HTML})
	}

	var apiErr sgError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetError(&apiErr).
		Post(sendGridPath)
	if err != nil {
		if ctx.Err() != nil {
			return SendResult{}, ctx.Err()
		}
		return SendResult{}, retry.Transient(fmt.Errorf("sendgrid request: %w", err))
	}

	if resp.IsError() || resp.StatusCode() >= 300 {
		body := strings.TrimSpace(resp.String())
		if len(apiErr.Errors) > 0 {
			msgs := make([]string, 0, len(apiErr.Errors))
			for _, e := range apiErr.Errors {
				msgs = append(msgs, e.Message)
			}
			body = strings.Join(msgs, "; ")
		}
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return SendResult{}, &HTTPError{Status: resp.StatusCode(), Body: body}
	}

	return SendResult{
		StatusCode:        resp.StatusCode(),
		ProviderMessageID: resp.Header().Get("X-Message-Id"),
	}, nil
}
