package entity

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a search run.
type RunStatus string

const (
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// SearchQuery holds the product parameters of a run.
type SearchQuery struct {
	ProductDescription string `json:"product_description"`
	Quantity           string `json:"quantity,omitempty"`
	TargetPrice        string `json:"target_price,omitempty"`
	Region             string `json:"region,omitempty"`
	Requirements       string `json:"requirements,omitempty"`
	MinSuppliers       int    `json:"min_suppliers"`
	MaxSuppliers       int    `json:"max_suppliers"`
}

// RunMetrics aggregates the outcome of a run.
type RunMetrics struct {
	SuppliersRequested int  `json:"suppliers_requested"`
	CandidatesReceived int  `json:"candidates_received"`
	SchemaValid        int  `json:"schema_valid"`
	Reachable          int  `json:"reachable"`
	SuppliersValidated int  `json:"suppliers_validated"`
	EmailsQueued       int  `json:"emails_queued"`
	EmailsFailed       int  `json:"emails_failed"`
	BelowMinimum       bool `json:"below_minimum"`
	QuotaExhausted     bool `json:"quota_exhausted"`
}

// SearchRun is one invocation of the pipeline.
type SearchRun struct {
	ID            string          `json:"id"`
	Query         SearchQuery     `json:"query"`
	Status        RunStatus       `json:"status"`
	Metrics       RunMetrics      `json:"metrics"`
	FailureReason string          `json:"failure_reason,omitempty"`
	FailureCode   string          `json:"failure_code,omitempty"`
	Diagnostics   json.RawMessage `json:"diagnostics,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// SearchLog is one append-only log line of a run.
type SearchLog struct {
	ID        int64          `json:"id"`
	SearchID  string         `json:"search_id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
