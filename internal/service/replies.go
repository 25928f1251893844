package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/supplier-outreach/internal/compose"
	"github.com/octobees/supplier-outreach/internal/contact"
	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/dto"
	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/generation"
	"github.com/octobees/supplier-outreach/internal/logger"
)

var (
	ErrUnparsableInbound = errors.New("unable to parse inbound payload")
	ErrUnknownSender     = errors.New("sender does not match any supplier")
)

const defaultReplySubject = "No Subject"

// ReplyStore is the persistence used by reply tracking.
type ReplyStore interface {
	FindSupplierByEmail(ctx context.Context, email string) (*entity.Supplier, error)
	PatchSupplier(ctx context.Context, id string, patch entity.SupplierPatch) error
	AppendLog(ctx context.Context, entry entity.SearchLog) error
}

// InboundMessage is a supplier reply reduced to what reply tracking needs.
type InboundMessage struct {
	SenderEmail string
	Subject     string
	Body        string
	MessageID   string
	ThreadID    string
}

// ReplyDrafter writes an answer to the latest message in a supplier's history.
type ReplyDrafter interface {
	Reply(ctx context.Context, s entity.Supplier, q entity.SearchQuery, latestSubject string) (generation.Draft, error)
}

// RunReader loads the run a supplier was found in.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*entity.SearchRun, error)
}

// ReplyQueue admits outbound replies for sending.
type ReplyQueue interface {
	Enqueue(ctx context.Context, job dispatch.Job) (string, error)
}

// QueuedCounter counts messages queued outside search runs.
type QueuedCounter interface {
	EmailQueued()
}

// AutoReply wires automatic answers to supplier replies. Delay and Counter
// are optional.
type AutoReply struct {
	Runs     RunReader
	Drafter  ReplyDrafter
	Composer *compose.Composer
	Queue    ReplyQueue
	Delay    time.Duration
	Counter  QueuedCounter
}

// ReplyService matches inbound mail to suppliers and records provider events.
type ReplyService struct {
	store ReplyStore
	auto  *AutoReply
	now   func() time.Time
}

// ReplyOption configures a ReplyService.
type ReplyOption func(*ReplyService)

// WithAutoReply drafts and queues an answer to every matched reply.
func WithAutoReply(cfg AutoReply) ReplyOption {
	return func(s *ReplyService) { s.auto = &cfg }
}

// NewReplyService builds a ReplyService.
func NewReplyService(store ReplyStore, opts ...ReplyOption) *ReplyService {
	s := &ReplyService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InboundFromForm converts an inbound-parse form post.
func InboundFromForm(in dto.InboundEmail) (InboundMessage, error) {
	msg := InboundMessage{
		SenderEmail: senderAddress(in.From),
		Subject:     strings.TrimSpace(in.Subject),
		Body:        strings.TrimSpace(in.Text),
	}
	if msg.Body == "" {
		msg.Body = strings.TrimSpace(in.HTML)
	}
	if msg.SenderEmail == "" {
		return InboundMessage{}, ErrUnparsableInbound
	}
	if msg.Subject == "" {
		msg.Subject = defaultReplySubject
	}
	return msg, nil
}

// inboundJSON covers the JSON shapes accepted by the webhook: a Pub/Sub push
// envelope wrapping another payload, a Gmail API message resource, or a flat
// message.
type inboundJSON struct {
	Message *struct {
		Data string `json:"data"`
	} `json:"message"`
	SenderEmail string            `json:"sender_email"`
	From        string            `json:"from"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Text        string            `json:"text"`
	HTML        string            `json:"html"`
	MessageID   string            `json:"message_id"`
	ID          string            `json:"id"`
	ThreadID    string            `json:"thread_id"`
	Headers     map[string]string `json:"headers"`
	Envelope    *struct {
		From string `json:"from"`
	} `json:"envelope"`

	// Gmail users.messages resource.
	GmailThreadID string     `json:"threadId"`
	Snippet       string     `json:"snippet"`
	Payload       *gmailPart `json:"payload"`
}

type gmailPart struct {
	Headers []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
}

func (p *gmailPart) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}

// ParseInboundJSON decodes a JSON webhook body.
func ParseInboundJSON(raw []byte) (InboundMessage, error) {
	return parseInboundJSON(raw, 0)
}

func parseInboundJSON(raw []byte, depth int) (InboundMessage, error) {
	var p inboundJSON
	if err := json.Unmarshal(raw, &p); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrUnparsableInbound, err)
	}
	if p.Message != nil && p.Message.Data != "" && depth == 0 {
		decoded, err := base64.StdEncoding.DecodeString(p.Message.Data)
		if err != nil {
			return InboundMessage{}, fmt.Errorf("%w: %v", ErrUnparsableInbound, err)
		}
		return parseInboundJSON(decoded, depth+1)
	}

	var msg InboundMessage
	if p.Payload != nil && len(p.Payload.Headers) > 0 {
		msg = gmailMessage(p)
	} else {
		sender := firstNonEmpty(p.SenderEmail, p.From)
		if sender == "" && p.Envelope != nil {
			sender = p.Envelope.From
		}
		msg = InboundMessage{
			SenderEmail: senderAddress(sender),
			Subject:     strings.TrimSpace(p.Subject),
			Body:        firstNonEmpty(p.Body, p.Text, p.HTML),
			MessageID:   firstNonEmpty(p.MessageID, p.Headers["Message-ID"], p.ID),
			ThreadID:    firstNonEmpty(p.ThreadID, p.Headers["Thread-Id"]),
		}
	}
	if msg.SenderEmail == "" {
		return InboundMessage{}, ErrUnparsableInbound
	}
	if msg.Subject == "" {
		msg.Subject = defaultReplySubject
	}
	return msg, nil
}

// gmailMessage reads a Gmail message resource. The body falls back to the
// snippet when the payload carries no decodable data.
func gmailMessage(p inboundJSON) InboundMessage {
	body := p.Snippet
	if data := p.Payload.Body.Data; data != "" {
		if decoded, ok := decodeBase64(data); ok && strings.TrimSpace(decoded) != "" {
			body = decoded
		}
	}
	return InboundMessage{
		SenderEmail: senderAddress(p.Payload.header("From")),
		Subject:     p.Payload.header("Subject"),
		Body:        strings.TrimSpace(body),
		MessageID:   p.Payload.header("Message-ID"),
		ThreadID:    firstNonEmpty(p.GmailThreadID, p.Payload.header("Thread-Id")),
	}
}

// decodeBase64 accepts the URL-safe alphabet Gmail uses as well as the
// standard one, padded or not.
func decodeBase64(data string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return string(b), true
		}
	}
	return "", false
}

// RecordReply appends the reply to the matching supplier's history and marks
// it as responded. With auto-reply enabled an answer is drafted and queued;
// a failure there is logged on the run and does not fail the call.
func (s *ReplyService) RecordReply(ctx context.Context, msg InboundMessage) (dto.InboundResult, error) {
	supplier, err := s.store.FindSupplierByEmail(ctx, msg.SenderEmail)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return dto.InboundResult{}, fmt.Errorf("%w: %s", ErrUnknownSender, msg.SenderEmail)
		}
		return dto.InboundResult{}, err
	}

	now := s.now()
	received := entity.SupplierPatch{
		Status:            entity.StatusSupplierResponded,
		IncrementReceived: true,
		Event: &entity.ConversationEvent{
			Direction: entity.DirectionInbound,
			Subject:   msg.Subject,
			Body:      msg.Body,
			MessageID: msg.MessageID,
			From:      msg.SenderEmail,
		},
		At: now,
	}
	err = s.store.PatchSupplier(ctx, supplier.ID, received)
	if err != nil {
		return dto.InboundResult{}, fmt.Errorf("record reply: %w", err)
	}

	entry := entity.SearchLog{
		SearchID:  supplier.SearchID,
		Level:     "info",
		Message:   "Inbound email from " + supplier.CompanyName,
		Data:      map[string]any{"supplier_id": supplier.ID, "subject": msg.Subject},
		CreatedAt: now,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("append reply log failed")
	}

	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldSupplierID: supplier.ID,
		logger.FieldSearchID:   supplier.SearchID,
	})
	log.Info("supplier reply recorded")

	result := dto.InboundResult{SupplierID: supplier.ID, SearchID: supplier.SearchID, ThreadID: supplier.ThreadID}
	if s.auto == nil {
		return result, nil
	}

	supplier.Apply(received)
	jobID, err := s.queueAutoReply(ctx, supplier, msg)
	if err != nil {
		log.WithError(err).Error("auto-reply failed")
		s.runLog(ctx, supplier.SearchID, "error", "Auto-reply failed", map[string]any{
			"supplier_id": supplier.ID,
			"error":       err.Error(),
		})
		return result, nil
	}
	result.AutoReply = true
	result.AutoReplyJobID = jobID
	log.WithField(logger.FieldJobID, jobID).Info("auto-reply queued")
	return result, nil
}

// queueAutoReply drafts an answer from the conversation so far and queues it
// as a high priority job. The dispatch observer records the outbound entry
// once it is sent.
func (s *ReplyService) queueAutoReply(ctx context.Context, supplier *entity.Supplier, msg InboundMessage) (string, error) {
	run, err := s.auto.Runs.GetRun(ctx, supplier.SearchID)
	if err != nil {
		return "", fmt.Errorf("load run: %w", err)
	}
	draft, err := s.auto.Drafter.Reply(ctx, *supplier, run.Query, msg.Subject)
	if err != nil {
		return "", fmt.Errorf("draft reply: %w", err)
	}

	email := s.auto.Composer.ComposeEmail(draft.Subject, draft.Body, *supplier, run.Query)
	email.Subject = replySubject(msg.Subject)
	message := s.auto.Composer.Message(email, *supplier)
	if msg.MessageID != "" {
		message.Headers["In-Reply-To"] = msg.MessageID
		message.Headers["References"] = msg.MessageID
	}

	now := s.now()
	job := dispatch.Job{
		ID:         uuid.NewString(),
		SearchID:   supplier.SearchID,
		SupplierID: supplier.ID,
		Priority:   entity.PriorityHigh,
		Message:    message,
	}
	if s.auto.Delay > 0 {
		job.NotBefore = now.Add(s.auto.Delay)
	}

	err = s.store.PatchSupplier(ctx, supplier.ID, entity.SupplierPatch{
		Status: entity.StatusEmailQueued,
		Event: &entity.ConversationEvent{
			Direction: entity.DirectionSystem,
			Subject:   email.Subject,
			Body:      "Auto-reply queued for sending",
			JobID:     job.ID,
		},
		At: now,
	})
	if err != nil {
		return "", fmt.Errorf("mark queued: %w", err)
	}
	if _, err := s.auto.Queue.Enqueue(ctx, job); err != nil {
		// The supplier is still waiting on us; put the status back.
		if perr := s.store.PatchSupplier(ctx, supplier.ID, entity.SupplierPatch{
			Status: entity.StatusSupplierResponded,
			Event: &entity.ConversationEvent{
				Direction: entity.DirectionSystem,
				Subject:   "Auto-reply not queued",
				Error:     err.Error(),
				JobID:     job.ID,
			},
			At: s.now(),
		}); perr != nil {
			logger.FromContext(ctx).WithError(perr).Warn("restore supplier status failed")
		}
		return "", fmt.Errorf("enqueue reply: %w", err)
	}
	if s.auto.Counter != nil {
		s.auto.Counter.EmailQueued()
	}

	data := map[string]any{"supplier_id": supplier.ID, "job_id": job.ID, "subject": email.Subject}
	if !job.NotBefore.IsZero() {
		data["not_before"] = job.NotBefore
	}
	s.runLog(ctx, supplier.SearchID, "info", "Auto-reply queued for "+supplier.CompanyName, data)
	return job.ID, nil
}

func (s *ReplyService) runLog(ctx context.Context, searchID, level, message string, data map[string]any) {
	entry := entity.SearchLog{SearchID: searchID, Level: level, Message: message, Data: data, CreatedAt: s.now()}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("append run log failed")
	}
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" || subject == defaultReplySubject {
		return "Re: Your message"
	}
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

// RecordProviderEvents logs delivery events that carry a search_id custom
// arg on their run. It returns how many were logged.
func (s *ReplyService) RecordProviderEvents(ctx context.Context, events []map[string]any) int {
	logged := 0
	for _, ev := range events {
		searchID := eventSearchID(ev)
		if searchID == "" {
			continue
		}
		entry := entity.SearchLog{
			SearchID:  searchID,
			Level:     "info",
			Message:   "Provider event received",
			Data:      ev,
			CreatedAt: s.now(),
		}
		if err := s.store.AppendLog(ctx, entry); err != nil {
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldSearchID, searchID).Warn("append provider event failed")
			continue
		}
		logged++
	}
	return logged
}

// Custom args arrive either nested or flattened onto the event.
func eventSearchID(ev map[string]any) string {
	if nested, ok := ev["custom_args"].(map[string]any); ok {
		if id, ok := nested["search_id"].(string); ok {
			return id
		}
	}
	id, _ := ev["search_id"].(string)
	return id
}

func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if addr, err := mail.ParseAddress(from); err == nil {
		from = addr.Address
	}
	return contact.NormalizeEmail(from)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
