package dispatch

import (
	"time"

	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/mailer"
)

// State is the lifecycle position of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the job will not run again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one queued outbound message.
type Job struct {
	ID                string          `json:"id"`
	SearchID          string          `json:"search_id"`
	SupplierID        string          `json:"supplier_id"`
	Priority          entity.Priority `json:"priority"`
	Message           mailer.Message  `json:"message"`
	State             State           `json:"state"`
	Attempts          int             `json:"attempts"`
	Stalls            int             `json:"stalls"`
	LastError         string          `json:"last_error,omitempty"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	// NotBefore holds the job in the delayed state until that time.
	NotBefore  time.Time  `json:"not_before,omitzero"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	seq uint64
}

// jobHeap orders waiting jobs by priority rank, then by admission order.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	ri, rj := h[i].Priority.Rank(), h[j].Priority.Rank()
	if ri != rj {
		return ri < rj
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}
