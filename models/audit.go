package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog records one AI usage for billing and review
type AuditLog struct {
	ID           uuid.UUID    `json:"id"`
	TenantID     uuid.UUID    `json:"tenant_id"`
	UserID       uuid.UUID    `json:"user_id"`
	CaseID       *uuid.UUID   `json:"case_id,omitempty"`
	DocumentID   *uuid.UUID   `json:"document_id,omitempty"`
	Action       string       `json:"action"`
	Provider     string       `json:"provider"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	CostCents    int          `json:"cost_cents"`
	Metadata     CaseMetadata `json:"metadata"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Product events recorded as MetricsEvent.Name
const (
	EventCaseCreated       = "case_created"
	EventThesesSuggested   = "theses_suggested"
	EventDocumentCreated   = "document_created"
	EventDocumentGenerated = "document_generated"
	EventDocumentExported  = "document_exported"
	EventInlineAction      = "inline_action"
)

// MetricsEvent is a product analytics event
type MetricsEvent struct {
	ID         uuid.UUID    `json:"id"`
	TenantID   uuid.UUID    `json:"tenant_id"`
	UserID     *uuid.UUID   `json:"user_id,omitempty"`
	Name       string       `json:"name"`
	Properties CaseMetadata `json:"properties"`
	CreatedAt  time.Time    `json:"created_at"`
}

// EstimateTokens approximates the token count of text at four characters per token
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
