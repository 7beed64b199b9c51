package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
)

// DraftService generates documents from a case, either inline or through
// the generate-document job
type DraftService struct {
	caseStore   CaseStore
	thesisStore ThesisStore
	juris       JurisprudenceStore
	documents   *DocumentService
	providers   ProviderResolver
	embedders   EmbedderResolver
	embedder    string
	jobs        queue.Queue
	jobRecords  JobRecordStore
	audit       *AuditService
	log         *logger.Logger
}

// DraftServiceOption is a functional option for DraftService
type DraftServiceOption func(*DraftService)

// DraftWithCaseStore sets the case store
func DraftWithCaseStore(store CaseStore) DraftServiceOption {
	return func(s *DraftService) { s.caseStore = store }
}

// DraftWithThesisStore sets the thesis store
func DraftWithThesisStore(store ThesisStore) DraftServiceOption {
	return func(s *DraftService) { s.thesisStore = store }
}

// DraftWithJurisprudenceStore sets the jurisprudence store used for citations
func DraftWithJurisprudenceStore(store JurisprudenceStore) DraftServiceOption {
	return func(s *DraftService) { s.juris = store }
}

// DraftWithDocuments sets the document service generated drafts are saved through
func DraftWithDocuments(docs *DocumentService) DraftServiceOption {
	return func(s *DraftService) { s.documents = docs }
}

// DraftWithProviders sets the AI provider resolver
func DraftWithProviders(p ProviderResolver) DraftServiceOption {
	return func(s *DraftService) { s.providers = p }
}

// DraftWithRetrieval enables similar-precedent retrieval when a case has no citations
func DraftWithRetrieval(r EmbedderResolver, name string) DraftServiceOption {
	return func(s *DraftService) {
		s.embedders = r
		s.embedder = name
	}
}

// DraftWithQueue sets the job queue used by EnqueueDraft and GetJobStatus
func DraftWithQueue(q queue.Queue) DraftServiceOption {
	return func(s *DraftService) { s.jobs = q }
}

// DraftWithJobRecords sets the archive consulted for jobs the queue pruned
func DraftWithJobRecords(store JobRecordStore) DraftServiceOption {
	return func(s *DraftService) { s.jobRecords = store }
}

// DraftWithAudit sets the audit service
func DraftWithAudit(audit *AuditService) DraftServiceOption {
	return func(s *DraftService) { s.audit = audit }
}

// DraftWithLogger sets the logger
func DraftWithLogger(l *logger.Logger) DraftServiceOption {
	return func(s *DraftService) { s.log = l }
}

// NewDraftService creates a new draft service
func NewDraftService(opts ...DraftServiceOption) *DraftService {
	s := &DraftService{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "DraftService")
	return s
}

var (
	ErrNoThesesSelected = apperr.Validation("Selecione ao menos uma tese",
		apperr.FieldError{Field: "thesisIds", Message: "Selecione ao menos uma tese"})
	ErrRetrievalFailed = errors.New("failed to retrieve similar precedents")
)

const retrievedCitations = 3

// GenerateDraftRequest represents a request to generate a draft. Empty
// ThesisIDs uses the case's stored selection.
type GenerateDraftRequest struct {
	TenantID         uuid.UUID           `json:"tenantId"`
	UserID           uuid.UUID           `json:"userId"`
	CaseID           uuid.UUID           `json:"caseId"`
	DocumentID       *uuid.UUID          `json:"documentId,omitempty"`
	DocumentType     models.DocumentType `json:"documentType"`
	ThesisIDs        []uuid.UUID         `json:"thesisIds,omitempty"`
	JurisprudenceIDs []uuid.UUID         `json:"jurisprudenceIds,omitempty"`
	Provider         string              `json:"provider,omitempty"`

	// Progress receives milestones 10..100 while generating
	Progress func(int) `json:"-"`
}

// GenerateDraftResult represents a generated and stored draft
type GenerateDraftResult struct {
	Document *models.LegalDocument
	Provider string
}

func (s *DraftService) ready() error {
	switch {
	case s.caseStore == nil:
		return errCaseStoreNotSet
	case s.thesisStore == nil:
		return errors.New("thesis repository not set")
	case s.documents == nil || s.documents.docStore == nil:
		return errors.New("document service not set")
	case s.providers == nil:
		return errors.New("AI provider registry not set")
	}
	return nil
}

// GenerateDraft loads the case, its selected theses and citations, asks the
// provider for a document and stores it. Regenerating over an existing
// document snapshots its previous content.
func (s *DraftService) GenerateDraft(ctx context.Context, req GenerateDraftRequest) (*GenerateDraftResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	progress := req.Progress
	if progress == nil {
		progress = func(int) {}
	}

	c, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID)
	if err != nil {
		return nil, err
	}
	all, err := s.thesisStore.ListByCase(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load theses: %w", err)
	}
	theses := selectedTheses(all, req.ThesisIDs)
	if len(theses) == 0 {
		return nil, ErrNoThesesSelected
	}
	progress(10)

	citations, err := s.citations(ctx, c, req.JurisprudenceIDs)
	if err != nil {
		return nil, err
	}
	progress(30)

	provider, err := s.providers.Provider(req.Provider)
	if err != nil {
		return nil, err
	}
	docType := req.DocumentType
	if !docType.Valid() {
		docType = models.DocumentPetition
	}
	in := ai.GenerateContext{
		Facts:        c.FactsDescription,
		DocumentType: docType,
		ClientName:   c.ClientName,
		CaseType:     c.CaseType,
		Citations:    citations,
	}
	for _, t := range theses {
		in.Theses = append(in.Theses, ai.ThesisInput{Category: t.Category, Title: t.Title, Content: t.Content})
	}
	generated, err := provider.GenerateDocument(ctx, in)
	if err != nil {
		return nil, err
	}
	progress(60)

	targetID := req.DocumentID
	if targetID == nil {
		if latest, err := s.documents.docStore.LatestForCase(ctx, req.TenantID, c.ID); err == nil {
			targetID = &latest.ID
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	doc, err := s.documents.SaveGenerated(ctx, SaveGeneratedRequest{
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		CaseID:       c.ID,
		DocumentID:   targetID,
		DocumentType: docType,
		Generated:    generated,
	})
	if err != nil {
		return nil, fmt.Errorf("save generated document: %w", err)
	}
	progress(90)

	if len(req.ThesisIDs) > 0 {
		ids := make([]uuid.UUID, 0, len(theses))
		for _, t := range theses {
			ids = append(ids, t.ID)
		}
		if err := s.thesisStore.SetSelected(ctx, c.ID, ids); err != nil {
			return nil, fmt.Errorf("mark selected theses: %w", err)
		}
	}
	c.Status = models.CaseStatusEditing
	c.CompletedSteps = c.CompletedSteps.Add(models.StepFacts).Add(models.StepTheses)
	c.CurrentStep = models.StepDraft
	if err := s.caseStore.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("advance case: %w", err)
	}

	caseID, docID := c.ID, doc.ID
	s.audit.LogAI(ctx, AIUsage{
		TenantID:   req.TenantID,
		UserID:     req.UserID,
		CaseID:     &caseID,
		DocumentID: &docID,
		Action:     "generate_document",
		Provider:   provider.Name(),
		Input:      c.FactsDescription,
		Output:     generated.ContentHTML,
		Metadata:   models.CaseMetadata{"theses": len(theses), "citations": len(citations)},
	})
	user := req.UserID
	s.audit.Track(ctx, req.TenantID, &user, models.EventDocumentGenerated, models.CaseMetadata{
		"documentId":   docID.String(),
		"documentType": string(docType),
	})
	progress(100)

	return &GenerateDraftResult{Document: doc, Provider: provider.Name()}, nil
}

// citations collects the case citations plus any explicitly chosen
// precedents. With none, similar precedents are retrieved by the facts.
func (s *DraftService) citations(ctx context.Context, c *models.Case, extra []uuid.UUID) ([]ai.CitationInput, error) {
	if s.juris == nil {
		return nil, nil
	}
	var out []ai.CitationInput
	seen := make(map[uuid.UUID]bool)

	stored, err := s.juris.ListCitations(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load citations: %w", err)
	}
	for _, ct := range stored {
		seen[ct.JurisprudenceID] = true
		out = append(out, ai.CitationInput{Tribunal: ct.Tribunal, ProcessNumber: ct.ProcessNumber, Excerpt: ct.Excerpt})
	}
	for _, id := range extra {
		if seen[id] {
			continue
		}
		j, err := s.juris.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		seen[id] = true
		out = append(out, ai.CitationInput{Tribunal: j.Tribunal, ProcessNumber: j.ProcessNumber, Excerpt: j.Summary})
	}
	if len(out) > 0 || s.embedders == nil {
		return out, nil
	}

	retrieved, err := s.retrieve(ctx, c.FactsDescription)
	if err != nil {
		s.log.Warn("Continuing without retrieved precedents", "case_id", c.ID, "error", err)
		return nil, nil
	}
	return retrieved, nil
}

func (s *DraftService) retrieve(ctx context.Context, facts string) ([]ai.CitationInput, error) {
	embedder, err := s.embedders.Embedder(s.embedder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	vectors, err := embedder.Embed(ctx, []string{facts})
	if err != nil || len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embed facts: %v", ErrRetrievalFailed, err)
	}
	chunks, err := s.juris.SearchSimilar(ctx, vectors[0], "", retrievedCitations)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	var out []ai.CitationInput
	seen := make(map[uuid.UUID]bool)
	for _, ch := range chunks {
		if seen[ch.JurisprudenceID] {
			continue
		}
		j, err := s.juris.GetByID(ctx, ch.JurisprudenceID)
		if err != nil {
			continue
		}
		seen[ch.JurisprudenceID] = true
		out = append(out, ai.CitationInput{Tribunal: j.Tribunal, ProcessNumber: j.ProcessNumber, Excerpt: ch.Content})
	}
	return out, nil
}

// EnqueueDraftRequest queues generation for a case
type EnqueueDraftRequest struct {
	GenerateDraftRequest
	IdempotencyKey string
}

// EnqueueDraftResult is the queued job handle
type EnqueueDraftResult struct {
	JobID  string
	Status models.JobStatus
}

// EnqueueDraft checks the case and queues a generate-document job. It
// returns immediately with the job id.
func (s *DraftService) EnqueueDraft(ctx context.Context, req EnqueueDraftRequest) (*EnqueueDraftResult, error) {
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}
	if s.jobs == nil {
		return nil, errors.New("job queue not set")
	}
	if _, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID); err != nil {
		return nil, err
	}
	if req.DocumentType != "" && !req.DocumentType.Valid() {
		return nil, invalidField("documentType", "Tipo de documento inválido")
	}

	job, err := s.jobs.Enqueue(ctx, queue.KindGenerateDocument, req.GenerateDraftRequest, strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		return nil, err
	}
	return &EnqueueDraftResult{JobID: job.ID, Status: job.Status}, nil
}

// JobStatus is the caller-facing view of a background job
type JobStatus struct {
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	Status     models.JobStatus `json:"status"`
	Progress   int              `json:"progress"`
	Attempts   int              `json:"attempts"`
	Result     json.RawMessage  `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	FinishedAt string           `json:"finishedAt,omitempty"`
}

type tenantPayload struct {
	TenantID uuid.UUID `json:"tenantId"`
}

// GetJobStatus reports a job's progress. Jobs of other tenants and jobs no
// longer known anywhere are NotFound.
func (s *DraftService) GetJobStatus(ctx context.Context, tenantID uuid.UUID, jobID string) (*JobStatus, error) {
	if s.jobs == nil {
		return nil, errors.New("job queue not set")
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err == nil {
		if !ownedBy(job.Payload, tenantID) {
			return nil, apperr.NotFound("job")
		}
		st := &JobStatus{
			ID:       job.ID,
			Kind:     string(job.Kind),
			Status:   job.Status,
			Progress: job.Progress,
			Attempts: job.Attempts,
			Result:   job.Result,
		}
		if job.Status == models.JobStatusFailed {
			st.Error = apperr.Job(string(job.Kind), nil).Message
		}
		if !job.FinishedAt.IsZero() {
			st.FinishedAt = job.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		return st, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) || s.jobRecords == nil {
		return nil, err
	}

	rec, err := s.jobRecords.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(json.RawMessage(rec.Payload), tenantID) {
		return nil, apperr.NotFound("job")
	}
	st := &JobStatus{
		ID:       rec.ID,
		Kind:     rec.Kind,
		Status:   rec.Status,
		Progress: rec.Progress,
		Attempts: rec.Attempts,
		Result:   json.RawMessage(rec.Result),
	}
	if rec.Status == models.JobStatusFailed {
		st.Error = apperr.Job(rec.Kind, nil).Message
	}
	if !rec.FinishedAt.IsZero() {
		st.FinishedAt = rec.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return st, nil
}

func ownedBy(payload json.RawMessage, tenantID uuid.UUID) bool {
	var p tenantPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	return p.TenantID == tenantID
}
