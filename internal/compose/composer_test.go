package compose

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/supplier-outreach/internal/entity"
)

func first(int) int { return 0 }

func last(n int) int { return n - 1 }

func TestRender(t *testing.T) {
	out := Render("Hello {{ supplierCompany }}, about {{product}} and {{missing}}", map[string]string{
		"supplierCompany": "Acme Ltd",
		"product":         "valves",
	})
	assert.Equal(t, "Hello Acme Ltd, about valves and {{missing}}", out)
}

func TestSpin(t *testing.T) {
	assert.Equal(t, "Hi there", Spin("{Hi|Hello} there", first))
	assert.Equal(t, "Hello there", Spin("{Hi|Hello} there", last))
	assert.Equal(t, "Good evening", Spin("{Good {morning|evening}|Hey}", func(n int) int {
		if n == 2 {
			return 1
		}
		return 0
	}))
	assert.Equal(t, "plain text", Spin("plain text", first))
}

func sampleSupplier() entity.Supplier {
	return entity.Supplier{
		ID:          "SUP_1_001",
		SearchID:    "SEARCH_1_abc123",
		ThreadID:    "thread_SEARCH_1_abc123_001",
		CompanyName: "Acme Industrial Co., Ltd",
		Email:       "sales@acme-industrial.com",
		Country:     "South Korea",
		Priority:    entity.PriorityHigh,
	}
}

func TestComposeEmail(t *testing.T) {
	c := New(DefaultTemplates(), Identity{FromEmail: "buyer@sourcing.test", FromName: "Procurement Team"}, nil, WithPicker(first))
	q := entity.SearchQuery{ProductDescription: "stainless steel valves"}

	e := c.ComposeEmail("AI subject", "We are looking for {a partner|partners}.", sampleSupplier(), q)

	assert.Equal(t, "Inquiry regarding stainless steel valves", e.Subject)
	parts := strings.Split(e.Body, "\n\n")
	require.Len(t, parts, 4)
	assert.Equal(t, "Dear Acme Industrial Co., Ltd team,", parts[0])
	assert.Equal(t, "We are looking for a partner.", parts[1])
	assert.Equal(t, "Best regards,\nProcurement Team", parts[2])
	assert.Contains(t, parts[3], "If you received it by mistake")
	assert.Equal(t, "AI subject", e.AISubject)
}

func TestComposeEmailWithoutTemplatesKeepsDraft(t *testing.T) {
	c := New(Templates{}, Identity{}, nil, WithPicker(first))
	e := c.ComposeEmail("", "Body only.", sampleSupplier(), entity.SearchQuery{})
	assert.Equal(t, defaultSubject, e.Subject)
	assert.Equal(t, "Body only.", e.Body)
}

func TestComposeEmailUnescapesNewlines(t *testing.T) {
	c := New(Templates{Closing: `Regards\nTeam`}, Identity{}, nil, WithPicker(first))
	e := c.ComposeEmail("s", "b", sampleSupplier(), entity.SearchQuery{})
	assert.Equal(t, "b\n\nRegards\nTeam", e.Body)
}

func TestMessage(t *testing.T) {
	headers := map[string]string{"Precedence": "bulk"}
	c := New(DefaultTemplates(), Identity{FromEmail: "buyer@sourcing.test", FromName: "Procurement Team"}, headers, WithPicker(first))
	s := sampleSupplier()
	e := Email{Subject: "Hello <b>", Body: "Line one\nLine two"}

	msg := c.Message(e, s)

	assert.Equal(t, "sales@acme-industrial.com", msg.To.Email)
	assert.Equal(t, "Acme Industrial Co., Ltd", msg.To.Name)
	assert.Equal(t, "buyer@sourcing.test", msg.ReplyTo.Email, "reply-to falls back to sender")
	assert.Equal(t, []string{"supplier_inquiry", "south_korea"}, msg.Categories)
	assert.Equal(t, map[string]string{
		"supplier_id": "SUP_1_001",
		"search_id":   "SEARCH_1_abc123",
		"thread_id":   "thread_SEARCH_1_abc123_001",
		"campaign":    "supplier_inquiry",
		"priority":    "High",
	}, msg.CustomArgs)
	assert.Equal(t, "bulk", msg.Headers["Precedence"])
	assert.Contains(t, msg.HTML, "<p>Line one</p>")
	assert.Contains(t, msg.HTML, "Hello &lt;b&gt;")

	msg.Headers["Precedence"] = "changed"
	assert.Equal(t, "bulk", headers["Precedence"], "headers are copied per message")
}
