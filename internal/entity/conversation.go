package entity

import "time"

// Direction marks who produced a conversation event.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionSystem   Direction = "system"
)

// ConversationEvent is one append-only entry of a supplier's history.
type ConversationEvent struct {
	Direction Direction `json:"direction"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	From      string    `json:"from,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
