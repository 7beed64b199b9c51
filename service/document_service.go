package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/export"
	"github.com/luantaraschi/petichat-definitive/metrics"
	"github.com/luantaraschi/petichat-definitive/models"
)

// Exporter renders a document to a downloadable artifact
type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Artifact, error)
}

// DocumentService owns the document aggregate. Every content write goes
// through UpdateDocument so the previous content is snapshotted first.
type DocumentService struct {
	caseStore CaseStore
	docStore  DocumentStore
	exporter  Exporter
	audit     *AuditService
}

// DocumentServiceOption is a functional option for DocumentService
type DocumentServiceOption func(*DocumentService)

// DocumentWithCaseStore sets the case store used for ownership checks
func DocumentWithCaseStore(store CaseStore) DocumentServiceOption {
	return func(s *DocumentService) { s.caseStore = store }
}

// DocumentWithStore sets the document store
func DocumentWithStore(store DocumentStore) DocumentServiceOption {
	return func(s *DocumentService) { s.docStore = store }
}

// DocumentWithExporter sets the export collaborator
func DocumentWithExporter(e Exporter) DocumentServiceOption {
	return func(s *DocumentService) { s.exporter = e }
}

// DocumentWithAudit sets the audit service
func DocumentWithAudit(audit *AuditService) DocumentServiceOption {
	return func(s *DocumentService) { s.audit = audit }
}

// NewDocumentService creates a new document service
func NewDocumentService(opts ...DocumentServiceOption) *DocumentService {
	s := &DocumentService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errDocumentStoreNotSet = errors.New("document repository not set")

// CreateDocumentRequest creates an empty document shell bound to a case
type CreateDocumentRequest struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	CaseID       uuid.UUID
	Title        string `validate:"required,max=300"`
	DocumentType models.DocumentType
}

// CreateDocument creates an empty draft document for a case of the tenant
func (s *DocumentService) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*models.LegalDocument, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	if s.caseStore == nil {
		return nil, errCaseStoreNotSet
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.DocumentType == "" {
		req.DocumentType = models.DocumentPetition
	}
	if !req.DocumentType.Valid() {
		return nil, invalidField("documentType", "Tipo de documento inválido")
	}
	if _, err := s.caseStore.GetByID(ctx, req.TenantID, req.CaseID); err != nil {
		return nil, err
	}

	doc := &models.LegalDocument{
		CaseID:       req.CaseID,
		TenantID:     req.TenantID,
		Title:        req.Title,
		DocumentType: req.DocumentType,
		Status:       models.DocumentStatusDraft,
		Sections:     models.DocumentSections{},
		CreatedBy:    req.UserID,
	}
	if err := s.docStore.Create(ctx, doc, nil); err != nil {
		return nil, err
	}

	user := req.UserID
	s.audit.Track(ctx, req.TenantID, &user, models.EventDocumentCreated, models.CaseMetadata{
		"documentId":   doc.ID.String(),
		"documentType": string(doc.DocumentType),
	})
	return doc, nil
}

// GetDocumentResult is a document with its most recent versions
type GetDocumentResult struct {
	Document       *models.LegalDocument
	RecentVersions []*models.DocumentVersion
}

const recentVersions = 10

// GetDocument returns a document of the tenant with its latest versions
func (s *DocumentService) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*GetDocumentResult, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	doc, err := s.docStore.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	versions, _, err := s.docStore.ListVersions(ctx, tenantID, id, recentVersions, 0)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []*models.DocumentVersion{}
	}
	return &GetDocumentResult{Document: doc, RecentVersions: versions}, nil
}

// ListDocumentsRequest represents a request to list documents
type ListDocumentsRequest struct {
	TenantID uuid.UUID
	CaseID   *uuid.UUID
	Status   *models.DocumentStatus
	Page     Page
}

// ListDocumentsResult represents one page of documents
type ListDocumentsResult struct {
	Documents  []*models.LegalDocument
	Pagination Pagination
}

// ListDocuments lists the tenant's documents, most recently updated first
func (s *DocumentService) ListDocuments(ctx context.Context, req ListDocumentsRequest) (*ListDocumentsResult, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, invalidField("status", "Status inválido")
	}
	limit, offset, page := req.Page.normalize()
	docs, total, err := s.docStore.List(ctx, models.DocumentFilter{
		TenantID: req.TenantID,
		CaseID:   req.CaseID,
		Status:   req.Status,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.LegalDocument{}
	}
	return &ListDocumentsResult{Documents: docs, Pagination: paginate(page, total)}, nil
}

// UpdateDocumentRequest is a partial update. Setting ContentHTML or Sections
// is a content write. ExpectedRevision, when set, must match the stored
// revision or the update fails with a conflict.
type UpdateDocumentRequest struct {
	TenantID         uuid.UUID
	UserID           uuid.UUID
	ID               uuid.UUID
	Title            *string
	ContentHTML      *string
	Sections         models.DocumentSections
	Status           *models.DocumentStatus
	ExpectedRevision *int
}

// UpdateDocumentResult carries the updated document and the snapshot of
// the overwritten content, if one was taken
type UpdateDocumentResult struct {
	Document *models.LegalDocument
	Version  *models.DocumentVersion
}

// UpdateDocument applies a partial update. When the content changes and the
// stored content is non-empty, the stored content is snapshotted as a new
// version in the same transaction as the write.
func (s *DocumentService) UpdateDocument(ctx context.Context, req UpdateDocumentRequest) (*UpdateDocumentResult, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, invalidField("title", "Campo obrigatório")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, invalidField("status", "Status inválido")
	}

	contentWrite := req.ContentHTML != nil || req.Sections != nil
	var snapshot *models.DocumentVersion

	doc, err := s.docStore.Mutate(ctx, req.TenantID, req.ID, func(doc *models.LegalDocument) (*models.DocumentVersion, error) {
		if req.ExpectedRevision != nil && *req.ExpectedRevision != doc.Revision {
			return nil, apperr.Conflict(*req.ExpectedRevision, doc.Revision)
		}

		snapshot = nil
		if contentWrite && doc.ContentHTML != "" {
			snapshot = &models.DocumentVersion{
				DocumentID:  doc.ID,
				Revision:    doc.Revision,
				ContentHTML: doc.ContentHTML,
				Sections:    doc.Sections,
				CreatedBy:   req.UserID,
			}
		}

		if req.Title != nil {
			doc.Title = strings.TrimSpace(*req.Title)
		}
		if req.Status != nil {
			doc.Status = *req.Status
		}
		if req.Sections != nil {
			doc.Sections = req.Sections
			doc.ContentHTML = ai.RenderSections(req.Sections)
		}
		if req.ContentHTML != nil {
			doc.ContentHTML = *req.ContentHTML
		}
		doc.Revision++
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		metrics.VersionSnapshotted()
	}
	return &UpdateDocumentResult{Document: doc, Version: snapshot}, nil
}

// UpdateContent replaces the document content. It is the write path shared
// by the HTTP API, editor sessions and the generation job.
func (s *DocumentService) UpdateContent(ctx context.Context, tenantID, userID, id uuid.UUID, content string, expectedRevision *int) (*UpdateDocumentResult, error) {
	return s.UpdateDocument(ctx, UpdateDocumentRequest{
		TenantID:         tenantID,
		UserID:           userID,
		ID:               id,
		ContentHTML:      &content,
		ExpectedRevision: expectedRevision,
	})
}

// CreateVersion snapshots the current content on demand
func (s *DocumentService) CreateVersion(ctx context.Context, tenantID, userID, id uuid.UUID) (*models.DocumentVersion, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	var version *models.DocumentVersion
	_, err := s.docStore.Mutate(ctx, tenantID, id, func(doc *models.LegalDocument) (*models.DocumentVersion, error) {
		version = &models.DocumentVersion{
			DocumentID:  doc.ID,
			Revision:    doc.Revision,
			ContentHTML: doc.ContentHTML,
			Sections:    doc.Sections,
			CreatedBy:   userID,
		}
		return version, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.VersionSnapshotted()
	return version, nil
}

// ListVersionsRequest represents a request for a document's history
type ListVersionsRequest struct {
	TenantID   uuid.UUID
	DocumentID uuid.UUID
	Page       Page
}

// ListVersionsResult represents one page of versions, newest first
type ListVersionsResult struct {
	Versions   []*models.DocumentVersion
	Pagination Pagination
}

// ListVersions returns the document's versions, newest first
func (s *DocumentService) ListVersions(ctx context.Context, req ListVersionsRequest) (*ListVersionsResult, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	if _, err := s.docStore.GetByID(ctx, req.TenantID, req.DocumentID); err != nil {
		return nil, err
	}
	limit, offset, page := req.Page.normalize()
	versions, total, err := s.docStore.ListVersions(ctx, req.TenantID, req.DocumentID, limit, offset)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []*models.DocumentVersion{}
	}
	return &ListVersionsResult{Versions: versions, Pagination: paginate(page, total)}, nil
}

// DeleteDocument removes a document and its history
func (s *DocumentService) DeleteDocument(ctx context.Context, tenantID, id uuid.UUID) error {
	if s.docStore == nil {
		return errDocumentStoreNotSet
	}
	return s.docStore.Delete(ctx, tenantID, id)
}

// ExportDocumentRequest asks for an artifact of a document
type ExportDocumentRequest struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	ID       uuid.UUID
	Format   models.ExportFormat
}

// ExportDocument delegates rendering and storage to the exporter and
// returns the artifact reference
func (s *DocumentService) ExportDocument(ctx context.Context, req ExportDocumentRequest) (*export.Artifact, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	if s.exporter == nil {
		return nil, errors.New("exporter not set")
	}
	if !req.Format.Valid() {
		return nil, invalidField("format", "Formato deve ser pdf, docx ou txt")
	}
	doc, err := s.docStore.GetByID(ctx, req.TenantID, req.ID)
	if err != nil {
		return nil, err
	}

	artifact, err := s.exporter.Export(ctx, export.Request{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Document: doc,
		Format:   req.Format,
	})
	if err != nil {
		return nil, err
	}

	user := req.UserID
	s.audit.Track(ctx, req.TenantID, &user, models.EventDocumentExported, models.CaseMetadata{
		"documentId": doc.ID.String(),
		"format":     string(req.Format),
	})
	return artifact, nil
}

// SaveGeneratedRequest stores AI output for a case
type SaveGeneratedRequest struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	CaseID       uuid.UUID
	DocumentID   *uuid.UUID
	DocumentType models.DocumentType
	Generated    *ai.GeneratedDocument
}

// SaveGenerated writes a generated draft. With a DocumentID the document is
// overwritten through the snapshot rule; otherwise a new document is created
// together with its first version.
func (s *DocumentService) SaveGenerated(ctx context.Context, req SaveGeneratedRequest) (*models.LegalDocument, error) {
	if s.docStore == nil {
		return nil, errDocumentStoreNotSet
	}
	if req.Generated == nil {
		return nil, errors.New("no generated document")
	}
	gen := req.Generated

	if req.DocumentID != nil {
		title := gen.Title
		res, err := s.UpdateDocument(ctx, UpdateDocumentRequest{
			TenantID: req.TenantID,
			UserID:   req.UserID,
			ID:       *req.DocumentID,
			Title:    nonEmptyPtr(title),
			Sections: gen.Sections,
		})
		if err != nil {
			return nil, err
		}
		return res.Document, nil
	}

	docType := req.DocumentType
	if !docType.Valid() {
		docType = models.DocumentPetition
	}
	title := gen.Title
	if strings.TrimSpace(title) == "" {
		title = docType.Label()
	}
	doc := &models.LegalDocument{
		CaseID:       req.CaseID,
		TenantID:     req.TenantID,
		Title:        title,
		DocumentType: docType,
		Status:       models.DocumentStatusDraft,
		Sections:     gen.Sections,
		ContentHTML:  gen.ContentHTML,
		Revision:     1,
		CreatedBy:    req.UserID,
	}
	initial := &models.DocumentVersion{
		Revision:    1,
		ContentHTML: gen.ContentHTML,
		Sections:    gen.Sections,
		CreatedBy:   req.UserID,
	}
	if err := s.docStore.Create(ctx, doc, initial); err != nil {
		return nil, err
	}
	metrics.VersionSnapshotted()
	return doc, nil
}

func nonEmptyPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
