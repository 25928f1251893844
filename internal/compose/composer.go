package compose

import (
	"bytes"
	"html/template"
	"math/rand/v2"
	"strings"

	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/mailer"
)

const (
	defaultSubject = "Supplier Inquiry"
	campaign       = "supplier_inquiry"
)

// Templates are the operator-editable message parts. Each may contain
// {{var}} placeholders and {a|b} spintax.
type Templates struct {
	Subject string `yaml:"subject"`
	Intro   string `yaml:"intro"`
	Closing string `yaml:"closing"`
	Footer  string `yaml:"footer"`
}

// DefaultTemplates returns the built-in English templates.
func DefaultTemplates() Templates {
	return Templates{
		Subject: "{Inquiry|Partnership request|Sourcing request} regarding {{productDescription}}",
		Intro:   "{Dear|Hello} {{supplierCompany}} team,",
		Closing: "{Best regards|Kind regards|Sincerely},\nProcurement Team",
		Footer: "This message was sent from our sourcing platform. " +
			"{If you received it by mistake|If this request is not relevant to you}, please reply with \"UNSUBSCRIBE\".",
	}
}

// Identity is the sender of outreach messages.
type Identity struct {
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	ReplyTo   string `yaml:"reply_to"`
}

// Email is a composed subject and plain text body.
type Email struct {
	Subject   string
	Body      string
	AISubject string
	AIBody    string
}

// Composer builds messages for suppliers.
type Composer struct {
	templates Templates
	identity  Identity
	headers   map[string]string
	pick      func(int) int
}

// Option customizes a Composer.
type Option func(*Composer)

// WithPicker replaces the random spintax choice. Used in tests.
func WithPicker(pick func(int) int) Option {
	return func(c *Composer) {
		if pick != nil {
			c.pick = pick
		}
	}
}

// New builds a Composer. headers are added to every message.
func New(t Templates, id Identity, headers map[string]string, opts ...Option) *Composer {
	c := &Composer{
		templates: t,
		identity:  id,
		headers:   headers,
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Variables returns the placeholder values available to templates.
func Variables(s entity.Supplier, q entity.SearchQuery) map[string]string {
	return map[string]string{
		"productDescription": q.ProductDescription,
		"product":            q.ProductDescription,
		"supplierCompany":    s.CompanyName,
		"country":            s.Country,
		"quantity":           q.Quantity,
		"targetPrice":        q.TargetPrice,
	}
}

// ComposeEmail wraps the drafted subject and body with the configured
// templates. The subject template, when set, replaces the drafted subject.
func (c *Composer) ComposeEmail(aiSubject, aiBody string, s entity.Supplier, q entity.SearchQuery) Email {
	vars := Variables(s, q)
	render := func(tmpl string) string {
		if strings.TrimSpace(tmpl) == "" {
			return ""
		}
		return strings.TrimSpace(Spin(Render(unescapeNewlines(tmpl), vars), c.pick))
	}

	subject := aiSubject
	if subject == "" {
		subject = defaultSubject
	}
	if c.templates.Subject != "" {
		subject = render(c.templates.Subject)
	} else {
		subject = Spin(subject, c.pick)
	}

	body := strings.TrimSpace(Spin(aiBody, c.pick))
	parts := make([]string, 0, 4)
	for _, part := range []string{render(c.templates.Intro), body, render(c.templates.Closing), render(c.templates.Footer)} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return Email{
		Subject:   subject,
		Body:      strings.Join(parts, "\n\n"),
		AISubject: aiSubject,
		AIBody:    aiBody,
	}
}

// Message builds the provider-neutral payload for e.
func (c *Composer) Message(e Email, s entity.Supplier) mailer.Message {
	replyTo := c.identity.ReplyTo
	if replyTo == "" {
		replyTo = c.identity.FromEmail
	}
	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}

	return mailer.Message{
		To:      mailer.Address{Email: s.Email, Name: s.CompanyName},
		From:    mailer.Address{Email: c.identity.FromEmail, Name: c.identity.FromName},
		ReplyTo: mailer.Address{Email: replyTo, Name: c.identity.FromName},
		Subject: e.Subject,
		Text:    e.Body,
		HTML:    c.html(e, replyTo),
		Categories: []string{
			campaign,
			countryCategory(s.Country),
		},
		CustomArgs: map[string]string{
			"supplier_id": s.ID,
			"search_id":   s.SearchID,
			"thread_id":   s.ThreadID,
			"campaign":    campaign,
			"priority":    string(s.Priority),
		},
		Headers: headers,
	}
}

var htmlBody = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <title>{{.Subject}}</title>
  </head>
  <body style="font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 24px;">
    <section>
      {{range .Paragraphs}}<p>{{.}}</p>
      {{end}}
    </section>
    <section style="margin-top: 24px; font-size: 12px; color: #6c757d;">
      <p><strong>Contact:</strong> {{.ReplyTo}}</p>
      <p>To unsubscribe reply with "UNSUBSCRIBE" in the subject line.</p>
    </section>
  </body>
</html>
`))

func (c *Composer) html(e Email, replyTo string) string {
	var paragraphs []string
	for _, line := range strings.Split(e.Body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	var buf bytes.Buffer
	err := htmlBody.Execute(&buf, struct {
		Subject    string
		Paragraphs []string
		ReplyTo    string
	}{e.Subject, paragraphs, replyTo})
	if err != nil {
		return ""
	}
	return buf.String()
}

func countryCategory(country string) string {
	country = strings.ToLower(strings.TrimSpace(country))
	if country == "" {
		return "unknown_country"
	}
	return strings.Join(strings.Fields(country), "_")
}

// Settings files often carry a literal backslash-n.
func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
