package mailer

import (
	"context"

	"github.com/google/uuid"

	"github.com/octobees/supplier-outreach/internal/logger"
)

// LogSender logs messages instead of delivering them. Used when no provider
// key is configured.
type LogSender struct{}

func (LogSender) Provider() string { return "log" }

func (LogSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	id := "dry-run-" + uuid.NewString()
	logger.FromContext(ctx).WithFields(logger.Fields{
		"to":                  msg.To.Email,
		"subject":             msg.Subject,
		"provider_message_id": id,
		"custom_args":         msg.CustomArgs,
	}).Info("dry-run send")
	return SendResult{StatusCode: 202, ProviderMessageID: id}, nil
}
