package generation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// Draft is the model-written part of an outreach email.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailWriter asks a Generator for a personalized inquiry.
type EmailWriter struct {
	gen         Generator
	prompts     PromptSet
	temperature float64
}

// NewEmailWriter builds a writer around gen.
func NewEmailWriter(gen Generator, prompts PromptSet, temperature float64) *EmailWriter {
	return &EmailWriter{gen: gen, prompts: prompts.WithDefaults(), temperature: temperature}
}

// Write drafts an email for s in the given language.
func (w *EmailWriter) Write(ctx context.Context, s entity.Supplier, q entity.SearchQuery, language string) (Draft, error) {
	return w.draft(ctx, w.prompts.EmailPrompt(s, q, language, w.temperature), false)
}

// Reply drafts an answer to the latest message in the supplier's history.
// Both subject and body are required.
func (w *EmailWriter) Reply(ctx context.Context, s entity.Supplier, q entity.SearchQuery, latestSubject string) (Draft, error) {
	return w.draft(ctx, w.prompts.ReplyPrompt(s, q, latestSubject, w.temperature), true)
}

func (w *EmailWriter) draft(ctx context.Context, p Prompt, needSubject bool) (Draft, error) {
	raw, err := w.gen.Generate(ctx, p)
	if err != nil {
		return Draft{}, err
	}
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return Draft{}, &InvalidResponseError{Raw: string(raw), Err: err}
	}
	d.Subject = strings.TrimSpace(d.Subject)
	d.Body = strings.TrimSpace(d.Body)
	if d.Body == "" {
		return Draft{}, &InvalidResponseError{Raw: string(raw), Err: errors.New("email body is empty")}
	}
	if needSubject && d.Subject == "" {
		return Draft{}, &InvalidResponseError{Raw: string(raw), Err: errors.New("email subject is empty")}
	}
	return d, nil
}
