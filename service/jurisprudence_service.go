package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
)

// DefaultSimilarLimit caps vector search results when no limit is given
const DefaultSimilarLimit = 5

// JurisprudenceService searches precedents and manages case citations
type JurisprudenceService struct {
	store     JurisprudenceStore
	caseStore CaseStore
	embedders EmbedderResolver
	embedder  string
	log       *logger.Logger
}

// JurisprudenceServiceOption is a functional option for JurisprudenceService
type JurisprudenceServiceOption func(*JurisprudenceService)

// JurisprudenceWithStore sets the jurisprudence store
func JurisprudenceWithStore(store JurisprudenceStore) JurisprudenceServiceOption {
	return func(s *JurisprudenceService) { s.store = store }
}

// JurisprudenceWithCaseStore sets the case store used for citation ownership checks
func JurisprudenceWithCaseStore(store CaseStore) JurisprudenceServiceOption {
	return func(s *JurisprudenceService) { s.caseStore = store }
}

// JurisprudenceWithEmbedders enables similarity search with the named embedder
func JurisprudenceWithEmbedders(r EmbedderResolver, name string) JurisprudenceServiceOption {
	return func(s *JurisprudenceService) {
		s.embedders = r
		s.embedder = name
	}
}

// JurisprudenceWithLogger sets the logger
func JurisprudenceWithLogger(l *logger.Logger) JurisprudenceServiceOption {
	return func(s *JurisprudenceService) { s.log = l }
}

// NewJurisprudenceService creates a new jurisprudence service
func NewJurisprudenceService(opts ...JurisprudenceServiceOption) *JurisprudenceService {
	s := &JurisprudenceService{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "JurisprudenceService")
	return s
}

var errJurisprudenceStoreNotSet = errors.New("jurisprudence repository not set")

// SearchJurisprudenceRequest is a keyword search with optional filters
type SearchJurisprudenceRequest struct {
	Keywords string
	Tribunal string
	Year     int
	Page     Page
}

// SearchJurisprudenceResult is one page of matches
type SearchJurisprudenceResult struct {
	Results    []*models.Jurisprudence
	Pagination Pagination
}

// Search finds precedents whose summary, text or process number contain the keywords
func (s *JurisprudenceService) Search(ctx context.Context, req SearchJurisprudenceRequest) (*SearchJurisprudenceResult, error) {
	if s.store == nil {
		return nil, errJurisprudenceStoreNotSet
	}
	keywords := strings.TrimSpace(req.Keywords)
	if keywords != "" && len([]rune(keywords)) < 3 {
		return nil, invalidField("keywords", "Busca deve ter no mínimo 3 caracteres")
	}
	if req.Year != 0 && (req.Year < 1900 || req.Year > 2100) {
		return nil, invalidField("year", "Ano inválido")
	}

	limit, offset, page := req.Page.normalize()
	results, total, err := s.store.Search(ctx, models.JurisprudenceFilter{
		Query:    keywords,
		Tribunal: strings.TrimSpace(req.Tribunal),
		Year:     req.Year,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []*models.Jurisprudence{}
	}
	return &SearchJurisprudenceResult{Results: results, Pagination: paginate(page, total)}, nil
}

// Get returns one precedent
func (s *JurisprudenceService) Get(ctx context.Context, id uuid.UUID) (*models.Jurisprudence, error) {
	if s.store == nil {
		return nil, errJurisprudenceStoreNotSet
	}
	return s.store.GetByID(ctx, id)
}

// Tribunals lists the distinct tribunals with ingested precedents
func (s *JurisprudenceService) Tribunals(ctx context.Context) ([]string, error) {
	if s.store == nil {
		return nil, errJurisprudenceStoreNotSet
	}
	tribunals, err := s.store.Tribunals(ctx)
	if err != nil {
		return nil, err
	}
	if tribunals == nil {
		tribunals = []string{}
	}
	return tribunals, nil
}

// SearchSimilar embeds text and returns the closest jurisprudence chunks
func (s *JurisprudenceService) SearchSimilar(ctx context.Context, text, tribunal string, limit int) ([]*models.JurisprudenceChunk, error) {
	if s.store == nil {
		return nil, errJurisprudenceStoreNotSet
	}
	if s.embedders == nil {
		return nil, errors.New("embedder not configured")
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < 3 {
		return nil, invalidField("query", "Busca deve ter no mínimo 3 caracteres")
	}
	if limit <= 0 || limit > MaxPageLimit {
		limit = DefaultSimilarLimit
	}

	embedder, err := s.embedders.Embedder(s.embedder)
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vectors))
	}

	chunks, err := s.store.SearchSimilar(ctx, vectors[0], strings.TrimSpace(tribunal), limit)
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []*models.JurisprudenceChunk{}
	}
	return chunks, nil
}

// AddCitationRequest cites a precedent in a case
type AddCitationRequest struct {
	TenantID        uuid.UUID
	CaseID          uuid.UUID
	JurisprudenceID uuid.UUID
	Excerpt         string
	Position        int
}

// AddCitation links a precedent to a case of the tenant. The excerpt
// defaults to the precedent summary.
func (s *JurisprudenceService) AddCitation(ctx context.Context, req AddCitationRequest) (*models.Citation, error) {
	if s.store == nil {
		return nil, errJurisprudenceStoreNotSet
	}
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}
	if _, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID); err != nil {
		return nil, err
	}
	j, err := s.store.GetByID(ctx, req.JurisprudenceID)
	if err != nil {
		return nil, err
	}

	excerpt := strings.TrimSpace(req.Excerpt)
	if excerpt == "" {
		excerpt = j.Summary
	}
	c := &models.Citation{
		CaseID:          req.CaseID,
		JurisprudenceID: j.ID,
		Tribunal:        j.Tribunal,
		ProcessNumber:   j.ProcessNumber,
		Excerpt:         excerpt,
		Position:        req.Position,
	}
	if err := s.store.AddCitation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCitations returns the citations of a case of the tenant
func (s *JurisprudenceService) ListCitations(ctx context.Context, tenantID, caseID uuid.UUID) ([]*models.Citation, error) {
	if s.store == nil {
		return nil, errJurisprudenceStoreNotSet
	}
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}
	if _, err := s.caseStore.GetByID(ctx, tenantID, caseID); err != nil {
		return nil, err
	}
	citations, err := s.store.ListCitations(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if citations == nil {
		citations = []*models.Citation{}
	}
	return citations, nil
}
