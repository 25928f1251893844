package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/retry"
)

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"suppliers":[]}`, `{"suppliers":[]}`},
		{"fenced with language", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"fenced bare", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", `Here you go: {"a":"x}y"} hope it helps`, `{"a":"x}y"}`},
		{"prose around array", `Result: [1, [2, 3]] done`, `[1, [2, 3]]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CleanJSON(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestCleanJSONRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "no json here", `{"a": [1, 2}`} {
		_, err := CleanJSON(in)
		var invalid *InvalidResponseError
		require.ErrorAs(t, err, &invalid, "input %q", in)
		assert.Equal(t, in, invalid.Raw)
	}
}

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gen, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return gen
}

func TestOpenAIGenerate(t *testing.T) {
	var got chatRequest
	gen := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"suppliers\\\":[]}\\n```" + `"}}]}`))
	})

	raw, err := gen.Generate(context.Background(), Prompt{System: "sys", User: "usr", Temperature: 0.1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"suppliers":[]}`, string(raw))

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Equal(t, "openai:gpt-test", gen.Name())
}

func TestOpenAIErrorsAreClassified(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		gen := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
		})
		_, err := gen.Generate(context.Background(), Prompt{User: "u"})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, tc.status, apiErr.Status)
		assert.Equal(t, "nope", apiErr.Body)
		assert.Equal(t, tc.retryable, retry.IsRetryable(err), "status %d", tc.status)
	}
}

func TestOpenAINoChoices(t *testing.T) {
	gen := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := gen.Generate(context.Background(), Prompt{User: "u"})
	var invalid *InvalidResponseError
	assert.ErrorAs(t, err, &invalid)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

type stubGenerator struct {
	mu       sync.Mutex
	prompts  []Prompt
	response string
	err      error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(ctx context.Context, p Prompt) (json.RawMessage, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if n <= prev || s.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.response), nil
}

func TestLimitCapsConcurrency(t *testing.T) {
	stub := &stubGenerator{response: `{}`, delay: 20 * time.Millisecond}
	limited := Limit(stub, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limited.Generate(context.Background(), Prompt{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, stub.maxSeen.Load(), int32(2))
	assert.Equal(t, "stub", limited.Name())
}

func TestLimitHonoursCancellation(t *testing.T) {
	stub := &stubGenerator{response: `{}`, delay: 100 * time.Millisecond}
	limited := Limit(stub, 1)
	go func() { _, _ = limited.Generate(context.Background(), Prompt{}) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := limited.Generate(ctx, Prompt{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearchPrompt(t *testing.T) {
	q := entity.SearchQuery{ProductDescription: "aluminium die-cast housings", Region: "europe", MinSuppliers: 3, MaxSuppliers: 8}
	p := DefaultPrompts().SearchPrompt(q, 0.1)

	assert.Equal(t, KindCandidates, p.Kind)
	assert.Equal(t, candidateMaxTokens, p.MaxTokens)
	assert.Contains(t, p.User, "Find 3-8 professional suppliers")
	assert.Contains(t, p.User, "**Product:** aluminium die-cast housings")
	assert.Contains(t, p.User, "**Target Quantity:** Not specified")
	assert.Contains(t, p.User, "**Additional Requirements:** None")
	assert.Contains(t, p.User, "Western Europe")
	assert.NotContains(t, p.User, "{{")
}

func TestRegionInstructionsFallsBackToChina(t *testing.T) {
	assert.Equal(t, RegionInstructions("china"), RegionInstructions("atlantis"))
	assert.Contains(t, RegionInstructions(" USA "), "United States")
}

func TestEmailWriter(t *testing.T) {
	stub := &stubGenerator{response: `{"subject":" Inquiry ","body":" We need valves. "}`}
	w := NewEmailWriter(stub, PromptSet{}, 0.3)
	s := entity.Supplier{CompanyName: "Acme Ltd", Email: "sales@acme.com", Country: "Germany", Capabilities: "CNC\nmachining"}
	q := entity.SearchQuery{ProductDescription: "valves"}

	d, err := w.Write(context.Background(), s, q, LanguageForCountry(s.Country))
	require.NoError(t, err)
	assert.Equal(t, Draft{Subject: "Inquiry", Body: "We need valves."}, d)

	require.Len(t, stub.prompts, 1)
	p := stub.prompts[0]
	assert.Equal(t, KindEmail, p.Kind)
	assert.Equal(t, 0.3, p.Temperature)
	assert.Contains(t, p.User, "- Company: Acme Ltd")
	assert.Contains(t, p.User, "- Capabilities: CNC machining")
	assert.Contains(t, p.User, "- Quantity: To discuss")
	assert.Contains(t, p.User, "German")
}

func TestEmailWriterRejectsEmptyBody(t *testing.T) {
	w := NewEmailWriter(&stubGenerator{response: `{"subject":"x","body":""}`}, PromptSet{}, 0.3)
	_, err := w.Write(context.Background(), entity.Supplier{}, entity.SearchQuery{}, "en")
	var invalid *InvalidResponseError
	assert.ErrorAs(t, err, &invalid)

	boom := errors.New("boom")
	w = NewEmailWriter(&stubGenerator{err: boom}, PromptSet{}, 0.3)
	_, err = w.Write(context.Background(), entity.Supplier{}, entity.SearchQuery{}, "en")
	assert.ErrorIs(t, err, boom)
}

func TestEmailWriterReply(t *testing.T) {
	stub := &stubGenerator{response: `{"subject":"Re: MOQ for DN50 valves","body":"Thank you for the price list. Could you share the lead time for 2,000 units?"}`}
	w := NewEmailWriter(stub, PromptSet{}, 0.3)
	s := entity.Supplier{
		CompanyName: "Hengli Valve Co",
		History: []entity.ConversationEvent{
			{Direction: entity.DirectionSystem, Body: "Email queued for sending"},
			{Direction: entity.DirectionOutbound, Subject: "Inquiry regarding DN50 valves", Body: "We are sourcing DN50 ball valves."},
			{Direction: entity.DirectionInbound, Subject: "MOQ for DN50 valves", Body: "Our MOQ is 500 units at USD 4.20."},
		},
	}
	q := entity.SearchQuery{ProductDescription: "stainless steel ball valves DN50"}

	d, err := w.Reply(context.Background(), s, q, "MOQ for DN50 valves")
	require.NoError(t, err)
	assert.Equal(t, "Re: MOQ for DN50 valves", d.Subject)

	require.Len(t, stub.prompts, 1)
	p := stub.prompts[0]
	assert.Equal(t, replyMaxTokens, p.MaxTokens)
	assert.Contains(t, p.System, "continuing an email negotiation")
	assert.Contains(t, p.User, "Product focus: stainless steel ball valves DN50")
	assert.Contains(t, p.User, "Latest supplier message subject: MOQ for DN50 valves")
	assert.Contains(t, p.User, "PROCUREMENT TEAM: We are sourcing DN50 ball valves.\n\nHENGLI VALVE CO: Our MOQ is 500 units at USD 4.20.")
	assert.NotContains(t, p.User, "Email queued for sending")
}

func TestEmailWriterReplyNeedsSubject(t *testing.T) {
	w := NewEmailWriter(&stubGenerator{response: `{"subject":"","body":"Thanks."}`}, PromptSet{}, 0.3)
	_, err := w.Reply(context.Background(), entity.Supplier{}, entity.SearchQuery{}, "Quote")
	var invalid *InvalidResponseError
	assert.ErrorAs(t, err, &invalid)
}

func TestTranscriptWithoutMessages(t *testing.T) {
	assert.Equal(t, "No previous messages yet.", Transcript(entity.Supplier{}))
}

func TestLanguageInstruction(t *testing.T) {
	assert.Equal(t, "en", LanguageForCountry("Narnia"))
	assert.Equal(t, "zh", LanguageForCountry(" china "))
	assert.True(t, strings.HasPrefix(LanguageInstruction("en"), "IMPORTANT: Write the email in ENGLISH"))
	assert.Contains(t, LanguageInstruction("ja"), "Japanese")
}
