package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/models"
)

// CaseService handles business logic for cases
type CaseService struct {
	caseStore CaseStore
	audit     *AuditService
	now       func() time.Time
}

// CaseServiceOption is a functional option for CaseService
type CaseServiceOption func(*CaseService)

// WithCaseStore sets the case store
func WithCaseStore(store CaseStore) CaseServiceOption {
	return func(s *CaseService) {
		s.caseStore = store
	}
}

// WithCaseAudit sets the audit service used for product events
func WithCaseAudit(audit *AuditService) CaseServiceOption {
	return func(s *CaseService) {
		s.audit = audit
	}
}

// WithCaseClock overrides the clock used by the abandoned-draft sweep
func WithCaseClock(now func() time.Time) CaseServiceOption {
	return func(s *CaseService) {
		s.now = now
	}
}

// NewCaseService creates a new case service
func NewCaseService(opts ...CaseServiceOption) *CaseService {
	s := &CaseService{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errCaseStoreNotSet = errors.New("case repository not set")

// CreateCaseRequest represents a request to create a case
type CreateCaseRequest struct {
	TenantID         uuid.UUID
	OwnerID          uuid.UUID
	ClientName       string `validate:"required,min=2,max=200"`
	CaseType         string `validate:"required,min=1,max=100"`
	TemplateName     *string
	FactsDescription string `validate:"required,min=10"`
	Metadata         models.CaseMetadata
}

// CreateCaseResult represents the result of creating a case
type CreateCaseResult struct {
	Case *models.Case
}

// CreateCase creates a draft case at wizard step 1
func (s *CaseService) CreateCase(ctx context.Context, req CreateCaseRequest) (*CreateCaseResult, error) {
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.CaseType = strings.TrimSpace(req.CaseType)
	req.FactsDescription = strings.TrimSpace(req.FactsDescription)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	c := &models.Case{
		TenantID:         req.TenantID,
		OwnerID:          req.OwnerID,
		ClientName:       req.ClientName,
		CaseType:         req.CaseType,
		TemplateName:     req.TemplateName,
		FactsDescription: req.FactsDescription,
		Status:           models.CaseStatusDraft,
		Metadata:         req.Metadata,
		CurrentStep:      models.StepFacts,
		CompletedSteps:   models.StepSet{},
	}
	if c.Metadata == nil {
		c.Metadata = models.CaseMetadata{}
	}

	if err := s.caseStore.Create(ctx, c); err != nil {
		return nil, err
	}

	owner := req.OwnerID
	s.audit.Track(ctx, req.TenantID, &owner, models.EventCaseCreated, models.CaseMetadata{
		"caseId":   c.ID.String(),
		"caseType": c.CaseType,
	})
	return &CreateCaseResult{Case: c}, nil
}

// GetCaseRequest represents a request to get a case
type GetCaseRequest struct {
	TenantID uuid.UUID
	ID       uuid.UUID
}

// GetCaseResult represents the result of getting a case
type GetCaseResult struct {
	Case *models.Case
}

// GetCase retrieves a case owned by the caller's tenant
func (s *CaseService) GetCase(ctx context.Context, req GetCaseRequest) (*GetCaseResult, error) {
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}

	c, err := s.caseStore.GetByID(ctx, req.TenantID, req.ID)
	if err != nil {
		return nil, err
	}

	return &GetCaseResult{Case: c}, nil
}

// UpdateCaseRequest is a partial update; nil fields are left untouched
type UpdateCaseRequest struct {
	TenantID         uuid.UUID
	ID               uuid.UUID
	ClientName       *string
	CaseType         *string
	TemplateName     *string
	FactsDescription *string
	Status           *models.CaseStatus
	Metadata         models.CaseMetadata
	CurrentStep      *int
	CompleteStep     *int
}

// UpdateCaseResult represents the result of updating a case
type UpdateCaseResult struct {
	Case *models.Case
}

// UpdateCase applies a partial update to a case
func (s *CaseService) UpdateCase(ctx context.Context, req UpdateCaseRequest) (*UpdateCaseResult, error) {
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}

	c, err := s.caseStore.GetByID(ctx, req.TenantID, req.ID)
	if err != nil {
		return nil, err
	}

	if req.ClientName != nil {
		name := strings.TrimSpace(*req.ClientName)
		if len([]rune(name)) < 2 {
			return nil, invalidField("clientName", "Deve ter no mínimo 2 caracteres")
		}
		c.ClientName = name
	}
	if req.CaseType != nil {
		caseType := strings.TrimSpace(*req.CaseType)
		if caseType == "" {
			return nil, invalidField("caseType", "Campo obrigatório")
		}
		c.CaseType = caseType
	}
	if req.TemplateName != nil {
		c.TemplateName = req.TemplateName
	}
	if req.FactsDescription != nil {
		facts := strings.TrimSpace(*req.FactsDescription)
		if len([]rune(facts)) < models.MinFactsLength {
			return nil, invalidField("factsDescription", "Deve ter no mínimo 10 caracteres")
		}
		c.FactsDescription = facts
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, invalidField("status", "Status inválido")
		}
		c.Status = *req.Status
	}
	if req.Metadata != nil {
		if c.Metadata == nil {
			c.Metadata = models.CaseMetadata{}
		}
		for k, v := range req.Metadata {
			c.Metadata[k] = v
		}
	}
	if req.CurrentStep != nil {
		if *req.CurrentStep < models.StepFacts || *req.CurrentStep > models.StepDraft {
			return nil, invalidField("currentStep", "Etapa inválida")
		}
		c.CurrentStep = *req.CurrentStep
	}
	if req.CompleteStep != nil {
		if *req.CompleteStep < models.StepFacts || *req.CompleteStep > models.StepDraft {
			return nil, invalidField("completeStep", "Etapa inválida")
		}
		c.CompletedSteps = c.CompletedSteps.Add(*req.CompleteStep)
	}

	if err := s.caseStore.Update(ctx, c); err != nil {
		return nil, err
	}

	return &UpdateCaseResult{Case: c}, nil
}

// ListCasesRequest represents a request to list cases
type ListCasesRequest struct {
	TenantID uuid.UUID
	OwnerID  *uuid.UUID
	Status   *models.CaseStatus
	Search   string
	Page     Page
}

// ListCasesResult represents the result of listing cases
type ListCasesResult struct {
	Cases      []*models.Case
	Pagination Pagination
}

// ListCases lists a tenant's cases, most recently updated first
func (s *CaseService) ListCases(ctx context.Context, req ListCasesRequest) (*ListCasesResult, error) {
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, invalidField("status", "Status inválido")
	}

	limit, offset, page := req.Page.normalize()
	cases, total, err := s.caseStore.List(ctx, models.CaseFilter{
		TenantID: req.TenantID,
		OwnerID:  req.OwnerID,
		Status:   req.Status,
		Search:   strings.TrimSpace(req.Search),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}
	if cases == nil {
		cases = []*models.Case{}
	}

	return &ListCasesResult{Cases: cases, Pagination: paginate(page, total)}, nil
}

// DeleteCaseRequest represents a request to delete a case
type DeleteCaseRequest struct {
	TenantID uuid.UUID
	ID       uuid.UUID
}

// DeleteCase removes a case with its theses, citations and documents
func (s *CaseService) DeleteCase(ctx context.Context, req DeleteCaseRequest) error {
	if s.caseStore == nil {
		return errCaseStoreNotSet
	}
	return s.caseStore.Delete(ctx, req.TenantID, req.ID)
}

// MarkStepCompleted records step as done and moves the case to next
func (s *CaseService) MarkStepCompleted(ctx context.Context, tenantID, caseID uuid.UUID, step, next int) (*models.Case, error) {
	res, err := s.UpdateCase(ctx, UpdateCaseRequest{
		TenantID:     tenantID,
		ID:           caseID,
		CompleteStep: &step,
		CurrentStep:  &next,
	})
	if err != nil {
		return nil, err
	}
	return res.Case, nil
}

// ArchiveAbandonedDrafts archives draft cases without any document that have
// not been touched for olderThan
func (s *CaseService) ArchiveAbandonedDrafts(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.caseStore == nil {
		return 0, errCaseStoreNotSet
	}
	return s.caseStore.ArchiveAbandonedDrafts(ctx, s.now().Add(-olderThan))
}
