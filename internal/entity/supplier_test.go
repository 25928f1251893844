package entity

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCandidateRecordAcceptsLooseShapes(t *testing.T) {
	payload := []byte(`{
		"companyName": "  Acme   Metal Works Ltd ",
		"email": "sales@acme-metal.com",
		"country": "China",
		"website": "acme-metal.com",
		"certifications": ["ISO 9001", "CE", null],
		"years_in_business": 12,
		"moq": "500 pcs"
	}`)

	var c CandidateRecord
	if err := json.Unmarshal(payload, &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.CompanyName != "Acme Metal Works Ltd" {
		t.Fatalf("expected collapsed company name, got %q", c.CompanyName)
	}
	if c.Certifications != "ISO 9001, CE" {
		t.Fatalf("unexpected certifications: %q", c.Certifications)
	}
	if c.YearsInBusiness != "12" {
		t.Fatalf("expected numeric years as string, got %q", c.YearsInBusiness)
	}
	if c.MinimumOrderQuantity != "500 pcs" {
		t.Fatalf("expected moq alias, got %q", c.MinimumOrderQuantity)
	}
	if len(c.Raw) == 0 {
		t.Fatalf("expected raw payload retained")
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityHigh.Rank() >= PriorityNormal.Rank() {
		t.Fatalf("expected high priority to rank before normal")
	}
}

func TestSupplierStatusValid(t *testing.T) {
	if !StatusEmailQueued.Valid() {
		t.Fatalf("expected known status to be valid")
	}
	if SupplierStatus("Archived").Valid() {
		t.Fatalf("expected unknown status to be invalid")
	}
}

func TestSupplierApply(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := Supplier{Status: StatusEmailQueued}
	notes := "delivered"

	s.Apply(SupplierPatch{
		Status:        StatusEmailSent,
		Notes:         &notes,
		Event:         &ConversationEvent{Direction: DirectionOutbound, Subject: "Inquiry"},
		IncrementSent: true,
		At:            at,
	})

	if s.Status != StatusEmailSent || s.Notes != "delivered" {
		t.Fatalf("unexpected supplier: %+v", s)
	}
	if s.EmailsSent != 1 || s.LastContact == nil || !s.LastContact.Equal(at) {
		t.Fatalf("expected send counters updated, got %+v", s)
	}
	if len(s.History) != 1 || !s.History[0].Timestamp.Equal(at) {
		t.Fatalf("expected timestamped history entry, got %+v", s.History)
	}

	s.Apply(SupplierPatch{IncrementReceived: true, At: at.Add(time.Hour)})
	if s.Status != StatusEmailSent || s.EmailsReceived != 1 || len(s.History) != 1 {
		t.Fatalf("expected only receive counters to change, got %+v", s)
	}
}
