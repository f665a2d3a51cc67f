// Package models defines the request/response structures shared between the
// API layer, the session services, and the agent pipeline.
package models

import "time"

// GetOrCreateSessionRequest is the input to SessionService.GetOrCreate.
// SessionID and OwnerID are optional; Country and ServiceType are required.
type GetOrCreateSessionRequest struct {
	SessionID   string
	OwnerID     *int
	Country     string
	ServiceType string
}

// AppendMessageRequest is the input to SessionService.AppendMessage.
type AppendMessageRequest struct {
	SessionID string
	Role      string
	Content   string
	// IdempotencyKey, when set, makes retried appends idempotent: a second
	// append with the same key returns the original message.
	IdempotencyKey string
}

// Turn pairs a user message with the assistant response that followed it.
type Turn struct {
	UserContent      string    `json:"user_content"`
	AssistantContent string    `json:"assistant_content"`
	CreatedAt        time.Time `json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
