package entity

import "time"

// SendStatus is the outcome recorded in the send ledger.
type SendStatus string

const (
	SendQueued SendStatus = "queued"
	SendSent   SendStatus = "sent"
	SendFailed SendStatus = "failed"
)

// SendRecord is one row of the send ledger.
type SendRecord struct {
	SearchID   string     `json:"search_id"`
	SupplierID string     `json:"supplier_id"`
	JobID      string     `json:"job_id"`
	MessageID  string     `json:"message_id,omitempty"`
	Status     SendStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"sent_at"`
}
