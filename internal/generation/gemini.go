package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/octobees/supplier-outreach/internal/retry"
)

const geminiProvider = "gemini"

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API base URL. Useful for proxies and tests.
	BaseURL string
}

// Gemini generates structured JSON through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds the client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

func (g *Gemini) Name() string { return geminiProvider + ":" + g.model }

var candidateFields = []string{
	"company_name", "email", "phone", "country", "city", "website",
	"manufacturing_capabilities", "production_capacity", "certifications",
	"years_in_business", "estimated_price_range", "minimum_order_quantity",
}

func candidateSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(candidateFields))
	for _, f := range candidateFields {
		props[f] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"suppliers": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: props,
					Required:   []string{"company_name", "email", "country", "website"},
				},
			},
		},
		Required: []string{"suppliers"},
	}
}

var emailSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"subject": {Type: genai.TypeString},
		"body":    {Type: genai.TypeString},
	},
	Required: []string{"subject", "body"},
}

func schemaFor(k Kind) *genai.Schema {
	if k == KindEmail {
		return emailSchema
	}
	return candidateSchema()
}

// Generate sends the prompt with a response schema matching p.Kind.
func (g *Gemini) Generate(ctx context.Context, p Prompt) (json.RawMessage, error) {
	temperature := float32(p.Temperature)
	cfg := &genai.GenerateContentConfig{
		CandidateCount:   1,
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schemaFor(p.Kind),
	}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.User), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyErr(err)
	}
	return CleanJSON(resp.Text())
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("gemini: %w", err)
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return retry.Transient(wrapped)
		}
		return wrapped
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return retry.Transient(err)
	}
	return err
}
