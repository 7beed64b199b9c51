package editor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/service"
)

type memDocs struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*models.LegalDocument
	versions []*models.DocumentVersion
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[uuid.UUID]*models.LegalDocument{}}
}

func (m *memDocs) add(tenantID uuid.UUID, content string) *models.LegalDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := &models.LegalDocument{ID: uuid.New(), CaseID: uuid.New(), TenantID: tenantID, Title: "Petição", ContentHTML: content, Revision: 1}
	m.docs[doc.ID] = doc
	cp := *doc
	return &cp
}

func (m *memDocs) content(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].ContentHTML
}

func (m *memDocs) GetDocument(_ context.Context, tenantID, id uuid.UUID) (*service.GetDocumentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, apperr.NotFound("Documento")
	}
	cp := *doc
	return &service.GetDocumentResult{Document: &cp}, nil
}

func (m *memDocs) UpdateContent(_ context.Context, tenantID, userID, id uuid.UUID, content string, expected *int) (*service.UpdateDocumentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, apperr.NotFound("Documento")
	}
	if expected != nil && *expected != doc.Revision {
		return nil, apperr.Conflict(*expected, doc.Revision)
	}
	var v *models.DocumentVersion
	if doc.ContentHTML != "" {
		v = &models.DocumentVersion{ID: uuid.New(), DocumentID: id, Revision: doc.Revision, ContentHTML: doc.ContentHTML, CreatedBy: userID}
		m.versions = append(m.versions, v)
	}
	doc.ContentHTML = content
	doc.Revision++
	cp := *doc
	return &service.UpdateDocumentResult{Document: &cp, Version: v}, nil
}

type memAudit struct {
	mu     sync.Mutex
	logs   []*models.AuditLog
	events []*models.MetricsEvent
}

func (m *memAudit) LogAI(_ context.Context, l *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *memAudit) Track(_ context.Context, e *models.MetricsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}
