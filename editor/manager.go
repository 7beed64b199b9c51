package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/service"
)

// Manager holds editing sessions bound to stored documents. A session is
// private to the user that opened it; Save commits its buffer through the
// document content update with the revision the session last saw.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*managed
	docs      Documents
	providers service.ProviderResolver
	audit     *service.AuditService
	now       func() time.Time
	log       *logger.Logger
	opts      []SessionOption
}

type managed struct {
	mu       sync.Mutex
	session  *Session
	tenantID uuid.UUID
	userID   uuid.UUID
	doc      *models.LegalDocument
	saved    string
	lastUsed time.Time
}

type ManagerOption func(*Manager)

func ManagerWithAudit(a *service.AuditService) ManagerOption {
	return func(m *Manager) { m.audit = a }
}

func ManagerWithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func ManagerWithLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// ManagerWithSessionOptions applies opts to every opened session
func ManagerWithSessionOptions(opts ...SessionOption) ManagerOption {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

func NewManager(docs Documents, providers service.ProviderResolver, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:  make(map[string]*managed),
		docs:      docs,
		providers: providers,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "EditorManager")
	return m
}

// OpenResult identifies a new editing session
type OpenResult struct {
	SessionID string
	Session   *Session
	Document  *models.LegalDocument
}

// Open loads a document of the tenant into a new session
func (m *Manager) Open(ctx context.Context, tenantID, userID, documentID uuid.UUID) (*OpenResult, error) {
	if m.docs == nil {
		return nil, errors.New("document service not set")
	}
	res, err := m.docs.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	doc := res.Document
	caseID, docID := doc.CaseID, doc.ID

	opts := append([]SessionOption{SessionWithClock(m.now), SessionWithLogger(m.log)}, m.opts...)
	opts = append(opts, SessionOnPreview(func(ctx context.Context, a *PendingAction) {
		m.audit.LogAI(ctx, service.AIUsage{
			TenantID:   tenantID,
			UserID:     userID,
			CaseID:     &caseID,
			DocumentID: &docID,
			Action:     "editor." + string(a.Kind),
			Provider:   a.Provider,
			Input:      a.Original,
			Output:     a.Result,
			Metadata:   models.CaseMetadata{"action": string(a.Kind)},
		})
	}))

	id := uuid.NewString()
	s := NewSession(NewBuffer(doc.ContentHTML), m.providers, opts...)
	m.mu.Lock()
	m.sessions[id] = &managed{
		session:  s,
		tenantID: tenantID,
		userID:   userID,
		doc:      doc,
		saved:    doc.ContentHTML,
		lastUsed: m.now(),
	}
	m.mu.Unlock()
	m.log.Debug("Editor session opened", "session_id", id, "document_id", documentID)
	return &OpenResult{SessionID: id, Session: s, Document: doc}, nil
}

func (m *Manager) lookup(tenantID, userID uuid.UUID, id string) (*managed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.tenantID != tenantID || e.userID != userID {
		return nil, apperr.NotFound("Sessão de edição")
	}
	e.lastUsed = m.now()
	return e, nil
}

// Get returns the caller's session
func (m *Manager) Get(tenantID, userID uuid.UUID, id string) (*Session, error) {
	e, err := m.lookup(tenantID, userID, id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// SaveResult is the stored document after a save. Version is the snapshot
// of the overwritten content; Changed is false when nothing was written.
type SaveResult struct {
	Document *models.LegalDocument
	Version  *models.DocumentVersion
	Changed  bool
}

// Save writes the session buffer to the document. A document changed by
// another writer since the session last saved fails with a conflict.
func (m *Manager) Save(ctx context.Context, tenantID, userID uuid.UUID, id string) (*SaveResult, error) {
	e, err := m.lookup(tenantID, userID, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	content := e.session.Buffer().String()
	if content == e.saved {
		return &SaveResult{Document: e.doc}, nil
	}
	rev := e.doc.Revision
	res, err := m.docs.UpdateContent(ctx, tenantID, userID, e.doc.ID, content, &rev)
	if err != nil {
		return nil, err
	}
	e.doc = res.Document
	e.saved = content
	return &SaveResult{Document: res.Document, Version: res.Version, Changed: true}, nil
}

// Close forgets the caller's session without saving
func (m *Manager) Close(tenantID, userID uuid.UUID, id string) error {
	if _, err := m.lookup(tenantID, userID, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// EvictIdle drops sessions unused for longer than maxIdle
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	n := 0
	for id, e := range m.sessions {
		if e.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.log.Info("Evicted idle editor sessions", "count", n)
	}
	return n
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
