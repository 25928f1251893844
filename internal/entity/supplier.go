package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SupplierStatus tracks a supplier through the outreach lifecycle.
type SupplierStatus string

const (
	StatusPendingOutreach   SupplierStatus = "Pending Outreach"
	StatusEmailQueued       SupplierStatus = "Email Queued"
	StatusEmailSent         SupplierStatus = "Email Sent"
	StatusEmailFailed       SupplierStatus = "Email Failed"
	StatusSupplierResponded SupplierStatus = "Supplier Responded"
)

// Valid reports whether s is one of the known statuses.
func (s SupplierStatus) Valid() bool {
	switch s {
	case StatusPendingOutreach, StatusEmailQueued, StatusEmailSent, StatusEmailFailed, StatusSupplierResponded:
		return true
	}
	return false
}

// Priority is the dispatch tier of a supplier.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityNormal Priority = "Normal"
)

// Rank orders priorities; lower ranks are dispatched first.
func (p Priority) Rank() int {
	if p == PriorityHigh {
		return 0
	}
	return 1
}

// Supplier is a candidate that survived the filter pipeline.
type Supplier struct {
	ID                   string              `json:"id"`
	SearchID             string              `json:"search_id"`
	ThreadID             string              `json:"thread_id"`
	CompanyName          string              `json:"company_name"`
	Email                string              `json:"email"`
	Phone                string              `json:"phone,omitempty"`
	Country              string              `json:"country"`
	City                 string              `json:"city,omitempty"`
	Website              string              `json:"website,omitempty"`
	Capabilities         string              `json:"manufacturing_capabilities,omitempty"`
	ProductionCapacity   string              `json:"production_capacity,omitempty"`
	Certifications       string              `json:"certifications,omitempty"`
	YearsInBusiness      string              `json:"years_in_business,omitempty"`
	PriceRange           string              `json:"estimated_price_range,omitempty"`
	MinimumOrderQuantity string              `json:"minimum_order_quantity,omitempty"`
	Status               SupplierStatus      `json:"status"`
	Priority             Priority            `json:"priority"`
	EmailsSent           int                 `json:"emails_sent"`
	EmailsReceived       int                 `json:"emails_received"`
	LastContact          *time.Time          `json:"last_contact,omitempty"`
	LastResponseAt       *time.Time          `json:"last_response_date,omitempty"`
	Notes                string              `json:"notes,omitempty"`
	History              []ConversationEvent `json:"conversation_history"`
	Metadata             SupplierMetadata    `json:"metadata"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// SupplierMetadata keeps the audit trail produced while filtering.
type SupplierMetadata struct {
	Raw           json.RawMessage     `json:"raw,omitempty"`
	Reachability  *ReachabilityResult `json:"reachability,omitempty"`
	Verification  *VerificationResult `json:"verification,omitempty"`
	OriginalEmail string              `json:"original_email,omitempty"`
	WebsiteSource string              `json:"website_source,omitempty"`
}

// ReachabilityResult is the raw outcome of a website probe.
type ReachabilityResult struct {
	URL        string `json:"url"`
	Accessible bool   `json:"accessible"`
	StatusCode *int   `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// CandidateRecord is one unverified supplier proposal from the generation service.
type CandidateRecord struct {
	CompanyName          string          `json:"company_name"`
	Email                string          `json:"email"`
	Country              string          `json:"country"`
	City                 string          `json:"city"`
	Website              string          `json:"website"`
	Phone                string          `json:"phone"`
	Capabilities         string          `json:"manufacturing_capabilities"`
	ProductionCapacity   string          `json:"production_capacity"`
	Certifications       string          `json:"certifications"`
	YearsInBusiness      string          `json:"years_in_business"`
	PriceRange           string          `json:"estimated_price_range"`
	MinimumOrderQuantity string          `json:"minimum_order_quantity"`
	Raw                  json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts the loose shapes language models tend to emit:
// camelCase aliases, numbers where strings are expected and lists of strings.
func (c *CandidateRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	pick := func(keys ...string) string {
		for _, key := range keys {
			if raw, ok := fields[key]; ok {
				if v := looseString(raw); v != "" {
					return v
				}
			}
		}
		return ""
	}
	*c = CandidateRecord{
		CompanyName:          pick("company_name", "companyName", "name"),
		Email:                pick("email", "contact_email"),
		Country:              pick("country"),
		City:                 pick("city"),
		Website:              pick("website", "url"),
		Phone:                pick("phone", "phone_number"),
		Capabilities:         pick("manufacturing_capabilities", "capabilities"),
		ProductionCapacity:   pick("production_capacity"),
		Certifications:       pick("certifications"),
		YearsInBusiness:      pick("years_in_business", "yearsInBusiness"),
		PriceRange:           pick("estimated_price_range", "price_range"),
		MinimumOrderQuantity: pick("minimum_order_quantity", "moq"),
		Raw:                  append(json.RawMessage(nil), data...),
	}
	return nil
}

func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return collapseSpaces(s)
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			parts := make([]string, 0, len(items))
			for _, item := range items {
				if v := looseString(item); v != "" {
					parts = append(parts, v)
				}
			}
			return strings.Join(parts, ", ")
		}
	case '{':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return strconv.FormatBool(b)
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SupplierPatch describes one update of a supplier row. Zero fields are left
// unchanged; Event is appended to the conversation history.
type SupplierPatch struct {
	Status            SupplierStatus
	Notes             *string
	Event             *ConversationEvent
	IncrementSent     bool
	IncrementReceived bool
	At                time.Time
}

// Apply mutates s according to p.
func (s *Supplier) Apply(p SupplierPatch) {
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	if p.Status != "" {
		s.Status = p.Status
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Event != nil {
		ev := *p.Event
		if ev.Timestamp.IsZero() {
			ev.Timestamp = at
		}
		s.History = append(s.History, ev)
	}
	if p.IncrementSent {
		s.EmailsSent++
		s.LastContact = &at
	}
	if p.IncrementReceived {
		s.EmailsReceived++
		s.LastResponseAt = &at
	}
	s.UpdatedAt = at
}
