// Package generation talks to the language model backends that propose
// supplier candidates and draft outreach emails.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Kind selects the response schema a backend should enforce.
type Kind string

const (
	KindCandidates Kind = "candidates"
	KindEmail      Kind = "email"
)

// Prompt is a single system+user exchange.
type Prompt struct {
	Kind        Kind
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Generator turns a prompt into a JSON document.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (json.RawMessage, error)
	Name() string
}

// InvalidResponseError reports model output that is not JSON.
type InvalidResponseError struct {
	Raw string
	Err error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid JSON response from model: %v", e.Err)
	}
	return "invalid JSON response from model"
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// APIError is a non-2xx answer from a generation backend.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Body)
}

// StatusCode lets the retry policy classify the failure.
func (e *APIError) StatusCode() int { return e.Status }

// CleanJSON strips markdown code fences and returns the JSON document in
// text. When the whole text does not parse, the first balanced object or
// array segment is tried.
func CleanJSON(text string) (json.RawMessage, error) {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return nil, &InvalidResponseError{Raw: text, Err: errors.New("empty response")}
	}
	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}
	if segment, ok := balancedSegment(cleaned); ok && json.Valid([]byte(segment)) {
		return json.RawMessage(segment), nil
	}
	return nil, &InvalidResponseError{Raw: text}
}

func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if idx := strings.IndexByte(s, '\n'); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// balancedSegment returns the first {...} or [...] run whose brackets
// balance, ignoring brackets inside string literals.
func balancedSegment(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	for start != -1 {
		if end, ok := matchClose(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexAny(s[start+1:], "{[")
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchClose(s string, start int) (int, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Limited caps the number of in-flight calls to a Generator.
type Limited struct {
	next Generator
	sem  *semaphore.Weighted
}

// Limit wraps g so at most n calls run concurrently.
func Limit(g Generator, n int) *Limited {
	if n <= 0 {
		n = 5
	}
	return &Limited{next: g, sem: semaphore.NewWeighted(int64(n))}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Generate(ctx context.Context, p Prompt) (json.RawMessage, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.next.Generate(ctx, p)
}

func truncate(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
