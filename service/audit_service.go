package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
)

// centsPer1KTokens is a rough blended price used for usage reports
var centsPer1KTokens = map[string]int{
	"openai": 2,
	"gemini": 1,
}

// AuditService records AI usage and product events. Recording is best
// effort: failures are logged and never reach the caller.
type AuditService struct {
	store AuditStore
	log   *logger.Logger
}

// AuditServiceOption is a functional option for AuditService
type AuditServiceOption func(*AuditService)

// AuditWithStore sets the audit store
func AuditWithStore(store AuditStore) AuditServiceOption {
	return func(s *AuditService) { s.store = store }
}

// AuditWithLogger sets the logger
func AuditWithLogger(l *logger.Logger) AuditServiceOption {
	return func(s *AuditService) { s.log = l }
}

// NewAuditService creates a new audit service
func NewAuditService(opts ...AuditServiceOption) *AuditService {
	s := &AuditService{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "AuditService")
	return s
}

// AIUsage describes one AI call worth auditing
type AIUsage struct {
	TenantID   uuid.UUID
	UserID     uuid.UUID
	CaseID     *uuid.UUID
	DocumentID *uuid.UUID
	Action     string
	Provider   string
	Input      string
	Output     string
	Metadata   models.CaseMetadata
}

// LogAI stores an audit row for an AI call with token estimates
func (s *AuditService) LogAI(ctx context.Context, u AIUsage) {
	if s == nil || s.store == nil {
		return
	}
	in, out := models.EstimateTokens(u.Input), models.EstimateTokens(u.Output)
	entry := &models.AuditLog{
		TenantID:     u.TenantID,
		UserID:       u.UserID,
		CaseID:       u.CaseID,
		DocumentID:   u.DocumentID,
		Action:       u.Action,
		Provider:     u.Provider,
		InputTokens:  in,
		OutputTokens: out,
		CostCents:    (in + out) * centsPer1KTokens[u.Provider] / 1000,
		Metadata:     u.Metadata,
	}
	if entry.Metadata == nil {
		entry.Metadata = models.CaseMetadata{}
	}
	if err := s.store.LogAI(ctx, entry); err != nil {
		s.log.Warn("Failed to write AI audit log", "action", u.Action, "error", err)
	}
}

// Track stores a product event
func (s *AuditService) Track(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID, name string, props models.CaseMetadata) {
	if s == nil || s.store == nil {
		return
	}
	if props == nil {
		props = models.CaseMetadata{}
	}
	event := &models.MetricsEvent{TenantID: tenantID, UserID: userID, Name: name, Properties: props}
	if err := s.store.Track(ctx, event); err != nil {
		s.log.Warn("Failed to track event", "event", name, "error", err)
	}
}
