package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/dto"
	"github.com/octobees/supplier-outreach/internal/logger"
	"github.com/octobees/supplier-outreach/internal/service"
)

const maxWebhookBody = 5 << 20

// ReplyRecorder records supplier replies and provider delivery events.
type ReplyRecorder interface {
	RecordReply(ctx context.Context, msg service.InboundMessage) (dto.InboundResult, error)
	RecordProviderEvents(ctx context.Context, events []map[string]any) int
}

// WebhookHandler receives inbound mail and delivery events.
type WebhookHandler struct {
	replies ReplyRecorder
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(replies ReplyRecorder) *WebhookHandler {
	return &WebhookHandler{replies: replies}
}

// Inbound handles POST /webhooks/inbound. It accepts the inbound-parse form
// post as well as JSON bodies. Unknown senders are acknowledged so the
// provider does not retry them.
func (h *WebhookHandler) Inbound(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		msg service.InboundMessage
		err error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var body []byte
		body, err = io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
		if err != nil {
			return Error(c, http.StatusBadRequest, "unable to read payload")
		}
		msg, err = service.ParseInboundJSON(body)
	} else {
		var form dto.InboundEmail
		if bindErr := c.Bind(&form); bindErr != nil {
			return Error(c, http.StatusBadRequest, "invalid payload")
		}
		msg, err = service.InboundFromForm(form)
	}
	if err != nil {
		return Error(c, http.StatusBadRequest, "unable to parse inbound email")
	}

	res, err := h.replies.RecordReply(ctx, msg)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSender) {
			logger.FromContext(ctx).WithField("sender", msg.SenderEmail).Warn("inbound email from unknown sender")
			return Success(c, http.StatusAccepted, "sender not matched", nil)
		}
		logger.FromContext(ctx).WithError(err).Error("record inbound email failed")
		return Error(c, http.StatusInternalServerError, "failed to record reply")
	}
	return Success(c, http.StatusOK, "reply recorded", res)
}

// ProviderEvents handles POST /webhooks/sendgrid-events.
func (h *WebhookHandler) ProviderEvents(c echo.Context) error {
	var events []map[string]any
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err := dec.Decode(&events); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}
	logged := h.replies.RecordProviderEvents(c.Request().Context(), events)
	return Success(c, http.StatusOK, "events received", map[string]int{"received": len(events), "logged": logged})
}
