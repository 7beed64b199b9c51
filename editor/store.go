package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/metrics"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/service"
)

// Documents is the document write path used when an action is applied.
// *service.DocumentService implements it.
type Documents interface {
	GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*service.GetDocumentResult, error)
	UpdateContent(ctx context.Context, tenantID, userID, id uuid.UUID, content string, expectedRevision *int) (*service.UpdateDocumentResult, error)
}

var _ Documents = (*service.DocumentService)(nil)

// ActionStore serves the request/apply endpoints. Proposals are kept per
// caller until applied, discarded or expired.
type ActionStore struct {
	mu        sync.Mutex
	actions   map[string]*storedAction
	providers service.ProviderResolver
	docs      Documents
	audit     *service.AuditService
	expiry    time.Duration
	now       func() time.Time
	log       *logger.Logger
}

type storedAction struct {
	*PendingAction
	tenantID uuid.UUID
	userID   uuid.UUID
}

type ActionStoreOption func(*ActionStore)

func StoreWithDocuments(d Documents) ActionStoreOption {
	return func(s *ActionStore) { s.docs = d }
}

func StoreWithAudit(a *service.AuditService) ActionStoreOption {
	return func(s *ActionStore) { s.audit = a }
}

func StoreWithClock(now func() time.Time) ActionStoreOption {
	return func(s *ActionStore) { s.now = now }
}

func StoreWithExpiry(d time.Duration) ActionStoreOption {
	return func(s *ActionStore) {
		if d > 0 {
			s.expiry = d
		}
	}
}

func StoreWithLogger(l *logger.Logger) ActionStoreOption {
	return func(s *ActionStore) { s.log = l }
}

func NewActionStore(providers service.ProviderResolver, opts ...ActionStoreOption) *ActionStore {
	s := &ActionStore{
		actions:   make(map[string]*storedAction),
		providers: providers,
		expiry:    DefaultExpiry,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "ActionStore")
	return s
}

// InlineActionRequest is one inline action on a text selection
type InlineActionRequest struct {
	TenantID         uuid.UUID
	UserID           uuid.UUID
	Kind             ActionKind
	Text             string
	Custom           string
	Provider         string
	CaseID           *uuid.UUID
	ThesisID         *uuid.UUID
	DocumentID       *uuid.UUID
	JurisprudenceIDs []uuid.UUID
}

// Perform runs the action and keeps the proposal for a later apply. The
// document is never touched here.
func (s *ActionStore) Perform(ctx context.Context, req InlineActionRequest) (*PendingAction, error) {
	if err := validateKind(req.Kind); err != nil {
		return nil, err
	}
	if err := validateSelection(req.Text); err != nil {
		return nil, err
	}
	if s.providers == nil {
		return nil, errors.New("AI provider registry not set")
	}
	p, err := s.providers.Provider(req.Provider)
	if err != nil {
		return nil, err
	}
	metrics.InlineAction(string(req.Kind), "requested")
	result, err := p.RewriteText(ctx, req.Kind.rewriteRequest(req.Text, req.Custom, ""))
	if err != nil {
		metrics.InlineAction(string(req.Kind), "failed")
		return nil, err
	}

	now := s.now()
	a := newPending(req.Kind, req.Text, result, p.Name(), now, s.expiry)
	s.mu.Lock()
	s.sweepLocked(now)
	s.actions[a.ID] = &storedAction{PendingAction: a, tenantID: req.TenantID, userID: req.UserID}
	s.mu.Unlock()
	metrics.InlineAction(string(req.Kind), "previewed")

	meta := models.CaseMetadata{
		"action":       string(req.Kind),
		"inputLength":  len(req.Text),
		"outputLength": len(result),
	}
	if req.ThesisID != nil {
		meta["thesisId"] = req.ThesisID.String()
	}
	if len(req.JurisprudenceIDs) > 0 {
		meta["jurisprudenceIds"] = len(req.JurisprudenceIDs)
	}
	s.audit.LogAI(ctx, service.AIUsage{
		TenantID:   req.TenantID,
		UserID:     req.UserID,
		CaseID:     req.CaseID,
		DocumentID: req.DocumentID,
		Action:     "editor." + string(req.Kind),
		Provider:   p.Name(),
		Input:      req.Text,
		Output:     result,
		Metadata:   meta,
	})
	user := req.UserID
	s.audit.Track(ctx, req.TenantID, &user, models.EventInlineAction, models.CaseMetadata{"action": string(req.Kind)})

	return a.snapshot(), nil
}

// ApplyRequest writes a stored action over [From, To) of a document
type ApplyRequest struct {
	TenantID         uuid.UUID
	UserID           uuid.UUID
	ActionID         string
	DocumentID       uuid.UUID
	From             int
	To               int
	ExpectedRevision *int
}

// lookup returns the caller's action; remove also drops it
func (s *ActionStore) lookup(tenantID, userID uuid.UUID, id string, remove bool) (*storedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok || a.tenantID != tenantID || a.userID != userID {
		return nil, apperr.NotFound("Ação")
	}
	if remove {
		delete(s.actions, id)
	}
	return a, nil
}

func (s *ActionStore) remove(id string) {
	s.mu.Lock()
	delete(s.actions, id)
	s.mu.Unlock()
}

// Apply replaces the selection with the action result through the document
// content update, so the previous content is versioned. The text at the
// given offsets must still equal the original selection. The action stays
// stored until it is applied or expires.
func (s *ActionStore) Apply(ctx context.Context, req ApplyRequest) (*service.UpdateDocumentResult, error) {
	if s.docs == nil {
		return nil, errors.New("document service not set")
	}
	a, err := s.lookup(req.TenantID, req.UserID, req.ActionID, false)
	if err != nil {
		return nil, err
	}
	if a.Expired(s.now()) {
		s.remove(a.ID)
		metrics.InlineAction(string(a.Kind), "expired")
		return nil, apperr.StaleAction(a.ID)
	}

	doc, err := s.docs.GetDocument(ctx, req.TenantID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	buf := NewBuffer(doc.Document.ContentHTML)
	rng, err := buf.Track(req.From, req.To)
	if err != nil {
		return nil, apperr.Validation("Seleção inválida", apperr.FieldError{Field: "position", Message: "Posição fora do documento"})
	}
	if rng.Text() != a.Original {
		return nil, ErrSelectionChanged
	}
	if err := buf.Replace(rng, a.Result); err != nil {
		return nil, err
	}

	expected := req.ExpectedRevision
	if expected == nil {
		rev := doc.Document.Revision
		expected = &rev
	}
	res, err := s.docs.UpdateContent(ctx, req.TenantID, req.UserID, req.DocumentID, buf.String(), expected)
	if err != nil {
		return nil, err
	}
	s.remove(a.ID)
	metrics.InlineAction(string(a.Kind), "applied")
	s.log.Debug("Inline action applied", "action_id", a.ID, "document_id", req.DocumentID, "revision", res.Document.Revision)
	return res, nil
}

// Discard drops a stored action
func (s *ActionStore) Discard(tenantID, userID uuid.UUID, actionID string) error {
	a, err := s.lookup(tenantID, userID, actionID, true)
	if err != nil {
		return err
	}
	metrics.InlineAction(string(a.Kind), "discarded")
	return nil
}

// Sweep drops expired actions and returns how many were removed
func (s *ActionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *ActionStore) sweepLocked(now time.Time) int {
	n := 0
	for id, a := range s.actions {
		if a.Expired(now) {
			delete(s.actions, id)
			n++
		}
	}
	return n
}

func (s *ActionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}
