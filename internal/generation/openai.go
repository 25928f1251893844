package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/octobees/supplier-outreach/internal/retry"
)

const (
	openAIProvider      = "openai"
	defaultOpenAIModel  = "gpt-4o"
	defaultMaxTokens    = 2000
	maxErrorBody        = 512
	chatCompletionsPath = "/chat/completions"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI calls the chat completions endpoint in JSON mode.
type OpenAI struct {
	client *resty.Client
	model  string
}

// NewOpenAI builds the client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)

	return &OpenAI{client: client, model: cfg.Model}, nil
}

func (o *OpenAI) Name() string { return openAIProvider + ":" + o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends the prompt and returns the cleaned JSON payload.
func (o *OpenAI) Generate(ctx context.Context, p Prompt) (json.RawMessage, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature:    p.Temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var out chatResponse
	var apiErr openAIError
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(chatCompletionsPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.Transient(fmt.Errorf("openai request: %w", err))
	}
	if resp.IsError() {
		body := apiErr.Error.Message
		if body == "" {
			body = truncate(resp.Body(), maxErrorBody)
		}
		return nil, &APIError{Provider: openAIProvider, Status: resp.StatusCode(), Body: body}
	}
	if len(out.Choices) == 0 {
		return nil, &InvalidResponseError{Raw: truncate(resp.Body(), maxErrorBody), Err: errors.New("no choices returned")}
	}
	return CleanJSON(out.Choices[0].Message.Content)
}
