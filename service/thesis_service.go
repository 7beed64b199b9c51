package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/models"
)

// ThesisService suggests, lists and curates the theses of a case
type ThesisService struct {
	caseStore   CaseStore
	thesisStore ThesisStore
	providers   ProviderResolver
	audit       *AuditService
}

// ThesisServiceOption is a functional option for ThesisService
type ThesisServiceOption func(*ThesisService)

// ThesisWithCaseStore sets the case store used for ownership checks
func ThesisWithCaseStore(store CaseStore) ThesisServiceOption {
	return func(s *ThesisService) { s.caseStore = store }
}

// ThesisWithStore sets the thesis store
func ThesisWithStore(store ThesisStore) ThesisServiceOption {
	return func(s *ThesisService) { s.thesisStore = store }
}

// ThesisWithProviders sets the AI provider resolver
func ThesisWithProviders(p ProviderResolver) ThesisServiceOption {
	return func(s *ThesisService) { s.providers = p }
}

// ThesisWithAudit sets the audit service
func ThesisWithAudit(audit *AuditService) ThesisServiceOption {
	return func(s *ThesisService) { s.audit = audit }
}

// NewThesisService creates a new thesis service
func NewThesisService(opts ...ThesisServiceOption) *ThesisService {
	s := &ThesisService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ThesisService) ready() error {
	if s.caseStore == nil {
		return errCaseStoreNotSet
	}
	if s.thesisStore == nil {
		return errors.New("thesis repository not set")
	}
	return nil
}

// SuggestThesesRequest represents a request for AI thesis suggestions
type SuggestThesesRequest struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	CaseID       uuid.UUID
	Provider     string
	DocumentType models.DocumentType
	LegalArea    string
	MaxCount     int
}

// SuggestThesesResult represents the persisted suggestions
type SuggestThesesResult struct {
	Theses   []*models.Thesis
	Provider string
}

// SuggestTheses asks the provider for theses based on the case facts and
// replaces any earlier AI suggestions of the case
func (s *ThesisService) SuggestTheses(ctx context.Context, req SuggestThesesRequest) (*SuggestThesesResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.providers == nil {
		return nil, errors.New("AI provider registry not set")
	}

	c, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID)
	if err != nil {
		return nil, err
	}
	if len([]rune(strings.TrimSpace(c.FactsDescription))) < models.MinFactsLength {
		return nil, invalidField("factsDescription", "Descreva os fatos com pelo menos 10 caracteres")
	}

	provider, err := s.providers.Provider(req.Provider)
	if err != nil {
		return nil, err
	}

	suggestions, err := provider.SuggestTheses(ctx, c.FactsDescription, ai.ThesisOptions{
		DocumentType: req.DocumentType,
		LegalArea:    firstNonBlank(req.LegalArea, c.CaseType),
		MaxCount:     req.MaxCount,
	})
	if err != nil {
		return nil, err
	}

	theses := make([]*models.Thesis, 0, len(suggestions))
	var output strings.Builder
	for _, sug := range suggestions {
		theses = append(theses, &models.Thesis{
			CaseID:       c.ID,
			Category:     sug.Category,
			Title:        sug.Title,
			Content:      sug.Content,
			AIGenerated:  true,
			ReviewStatus: models.ReviewPending,
		})
		output.WriteString(sug.Title)
		output.WriteString(sug.Content)
	}
	if err := s.thesisStore.ReplaceSuggestions(ctx, c.ID, theses); err != nil {
		return nil, fmt.Errorf("store suggested theses: %w", err)
	}

	caseID := c.ID
	s.audit.LogAI(ctx, AIUsage{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		CaseID:   &caseID,
		Action:   "suggest_theses",
		Provider: provider.Name(),
		Input:    c.FactsDescription,
		Output:   output.String(),
		Metadata: models.CaseMetadata{"count": len(theses)},
	})
	user := req.UserID
	s.audit.Track(ctx, req.TenantID, &user, models.EventThesesSuggested, models.CaseMetadata{
		"caseId": caseID.String(),
		"count":  len(theses),
	})

	return &SuggestThesesResult{Theses: theses, Provider: provider.Name()}, nil
}

// ListThesesRequest represents a request to list a case's theses
type ListThesesRequest struct {
	TenantID uuid.UUID
	CaseID   uuid.UUID
}

// ListTheses returns the case's theses in presentation order
func (s *ThesisService) ListTheses(ctx context.Context, req ListThesesRequest) ([]*models.Thesis, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID); err != nil {
		return nil, err
	}
	theses, err := s.thesisStore.ListByCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if theses == nil {
		theses = []*models.Thesis{}
	}
	return theses, nil
}

// CreateThesisRequest represents a manually written thesis
type CreateThesisRequest struct {
	TenantID uuid.UUID
	CaseID   uuid.UUID
	Category models.ThesisCategory
	Title    string `validate:"required,max=300"`
	Content  string `validate:"required"`
}

// CreateThesis appends a lawyer-written thesis to the case
func (s *ThesisService) CreateThesis(ctx context.Context, req CreateThesisRequest) (*models.Thesis, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if !req.Category.Valid() {
		return nil, invalidField("category", "Categoria inválida")
	}
	if _, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID); err != nil {
		return nil, err
	}

	t := &models.Thesis{
		CaseID:       req.CaseID,
		Category:     req.Category,
		Title:        req.Title,
		Content:      req.Content,
		ReviewStatus: models.ReviewApproved,
	}
	if err := s.thesisStore.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SelectThesesRequest replaces the case's selection with ThesisIDs
type SelectThesesRequest struct {
	TenantID  uuid.UUID
	CaseID    uuid.UUID
	ThesisIDs []uuid.UUID
}

// SelectTheses marks exactly the given theses as selected
func (s *ThesisService) SelectTheses(ctx context.Context, req SelectThesesRequest) ([]*models.Thesis, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID); err != nil {
		return nil, err
	}
	ids := req.ThesisIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	if err := s.thesisStore.SetSelected(ctx, req.CaseID, ids); err != nil {
		return nil, err
	}
	return s.thesisStore.ListByCase(ctx, req.CaseID)
}

// ReviewThesisRequest sets a thesis review status
type ReviewThesisRequest struct {
	TenantID uuid.UUID
	CaseID   uuid.UUID
	ThesisID uuid.UUID
	Status   models.ReviewStatus
}

// ReviewThesis records the lawyer's review of a thesis
func (s *ThesisService) ReviewThesis(ctx context.Context, req ReviewThesisRequest) (*models.Thesis, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, invalidField("reviewStatus", "Status de revisão inválido")
	}
	if _, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID); err != nil {
		return nil, err
	}
	return s.thesisStore.UpdateReview(ctx, req.CaseID, req.ThesisID, req.Status)
}

// selectedTheses filters theses down to the selected ones. When ids is
// non-empty it overrides the stored selection flags.
func selectedTheses(theses []*models.Thesis, ids []uuid.UUID) []*models.Thesis {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.Thesis
	for _, t := range theses {
		if (len(ids) > 0 && want[t.ID]) || (len(ids) == 0 && t.Selected) {
			out = append(out, t)
		}
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
