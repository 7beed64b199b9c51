package wizard

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/service"
)

// jurisprudencePageSize is how many precedents a search loads
const jurisprudencePageSize = 10

// ErrWrongStep is returned by step actions called outside their step
var ErrWrongStep = apperr.Validation("Ação indisponível nesta etapa")

// State is a snapshot of a session. Selections are sorted id lists.
type State struct {
	Step                     int                     `json:"step"`
	CaseID                   *uuid.UUID              `json:"caseId"`
	ClientName               string                  `json:"clientName"`
	CaseType                 string                  `json:"caseType"`
	Facts                    string                  `json:"factsDescription"`
	DocumentType             models.DocumentType     `json:"documentType"`
	TemplateName             string                  `json:"templateName"`
	Theses                   []*models.Thesis        `json:"theses"`
	SelectedThesisIDs        []uuid.UUID             `json:"selectedThesisIds"`
	Jurisprudence            []*models.Jurisprudence `json:"jurisprudences"`
	SelectedJurisprudenceIDs []uuid.UUID             `json:"selectedJurisprudenceIds"`
	DocumentID               *uuid.UUID              `json:"documentId"`
	DocumentContent          string                  `json:"documentContent"`
	LoadingTheses            bool                    `json:"isLoadingTheses"`
	LoadingJurisprudence     bool                    `json:"isLoadingJurisprudences"`
	Generating               bool                    `json:"isGenerating"`
	Error                    string                  `json:"error,omitempty"`
}

type state struct {
	State
	selectedTheses map[uuid.UUID]struct{}
	selectedJuris  map[uuid.UUID]struct{}
}

func initialState(docType models.DocumentType, template string) state {
	return state{
		State: State{
			Step:         models.StepFacts,
			DocumentType: docType,
			TemplateName: template,
		},
		selectedTheses: make(map[uuid.UUID]struct{}),
		selectedJuris:  make(map[uuid.UUID]struct{}),
	}
}

// Session is one user's pass through the wizard. Fetches triggered by step
// entry run in the background; Wait blocks until they settle. Reset drops
// the results of fetches started before it.
type Session struct {
	tenantID uuid.UUID
	userID   uuid.UUID
	backend  Backend
	provider string
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitMu sync.Mutex
	mu       sync.Mutex
	st       state
	initial  func() state
	epoch    int
}

type Option func(*Session)

// WithProvider selects the AI provider for suggestions and generation
func WithProvider(name string) Option {
	return func(s *Session) { s.provider = name }
}

// WithTemplate sets the document type and template the session starts with
func WithTemplate(docType models.DocumentType, name string) Option {
	return func(s *Session) {
		if !docType.Valid() {
			docType = models.DocumentPetition
		}
		s.initial = func() state { return initialState(docType, name) }
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

func NewSession(tenantID, userID uuid.UUID, backend Backend, opts ...Option) *Session {
	s := &Session{
		tenantID: tenantID,
		userID:   userID,
		backend:  backend,
		log:      logger.Nop(),
		initial:  func() state { return initialState(models.DocumentPetition, "") },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.st = s.initial()
	return s
}

// State returns a snapshot of the session
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	out := s.st.State
	out.Theses = slices.Clone(s.st.Theses)
	out.Jurisprudence = slices.Clone(s.st.Jurisprudence)
	out.SelectedThesisIDs = sortedIDs(s.st.selectedTheses)
	out.SelectedJurisprudenceIDs = sortedIDs(s.st.selectedJuris)
	return out
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// FactsInput is the step 1 form
type FactsInput struct {
	ClientName   string
	CaseType     string
	Facts        string
	TemplateName *string
	Metadata     models.CaseMetadata
}

// SubmitFacts creates the case, or updates it when the user came back to
// step 1, and advances to step 2. Changed facts clear the thesis candidates
// so they are suggested again.
func (s *Session) SubmitFacts(ctx context.Context, in FactsInput) (State, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.Lock()
	if s.st.Step != models.StepFacts {
		s.mu.Unlock()
		return State{}, ErrWrongStep
	}
	caseID, epoch, prevFacts := s.st.CaseID, s.epoch, s.st.Facts
	if in.TemplateName == nil && s.st.TemplateName != "" {
		name := s.st.TemplateName
		in.TemplateName = &name
	}
	s.mu.Unlock()

	if s.backend.Cases == nil {
		return State{}, errors.New("case service not set")
	}
	var c *models.Case
	if caseID == nil {
		res, err := s.backend.Cases.CreateCase(ctx, service.CreateCaseRequest{
			TenantID:         s.tenantID,
			OwnerID:          s.userID,
			ClientName:       in.ClientName,
			CaseType:         in.CaseType,
			TemplateName:     in.TemplateName,
			FactsDescription: in.Facts,
			Metadata:         in.Metadata,
		})
		if err != nil {
			return State{}, err
		}
		c = res.Case
	} else {
		res, err := s.backend.Cases.UpdateCase(ctx, service.UpdateCaseRequest{
			TenantID:         s.tenantID,
			ID:               *caseID,
			ClientName:       &in.ClientName,
			CaseType:         &in.CaseType,
			FactsDescription: &in.Facts,
			Metadata:         in.Metadata,
		})
		if err != nil {
			return State{}, err
		}
		c = res.Case
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		s.log.Info("Dropping case submitted before reset", "case_id", c.ID)
		return s.snapshotLocked(), nil
	}
	id := c.ID
	s.st.CaseID = &id
	s.st.ClientName = c.ClientName
	s.st.CaseType = c.CaseType
	s.st.Facts = c.FactsDescription
	if caseID != nil && prevFacts != c.FactsDescription && !s.st.LoadingTheses {
		s.st.Theses = nil
		s.st.selectedTheses = make(map[uuid.UUID]struct{})
	}
	s.st.Error = ""
	s.advanceLocked()
	return s.snapshotLocked(), nil
}

// Advance moves to the next step: 1 to 2, and 2 to 3 only while at least
// one candidate thesis is selected. It reports whether the step changed.
func (s *Session) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked()
}

func (s *Session) advanceLocked() bool {
	switch s.st.Step {
	case models.StepFacts:
		s.st.Step = models.StepTheses
		s.enterThesesLocked()
		return true
	case models.StepTheses:
		if len(s.selectedThesesLocked()) == 0 {
			return false
		}
		s.st.Step = models.StepDraft
		s.enterDraftLocked()
		return true
	}
	return false
}

// Retreat moves back one step; it is a no-op at step 1
func (s *Session) Retreat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Step <= models.StepFacts {
		return false
	}
	s.st.Step--
	if s.st.Step == models.StepTheses {
		s.enterThesesLocked()
	}
	return true
}

// selectedThesesLocked returns selected ids present in the candidate list,
// in candidate order
func (s *Session) selectedThesesLocked() []uuid.UUID {
	var out []uuid.UUID
	for _, t := range s.st.Theses {
		if _, ok := s.st.selectedTheses[t.ID]; ok {
			out = append(out, t.ID)
		}
	}
	return out
}

func (s *Session) selectedJurisprudenceLocked() []uuid.UUID {
	var out []uuid.UUID
	for _, j := range s.st.Jurisprudence {
		if _, ok := s.st.selectedJuris[j.ID]; ok {
			out = append(out, j.ID)
		}
	}
	return out
}

// ToggleThesis adds id to the selection or removes it
func (s *Session) ToggleThesis(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	toggle(s.st.selectedTheses, id)
}

// ToggleJurisprudence adds id to the selection or removes it
func (s *Session) ToggleJurisprudence(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	toggle(s.st.selectedJuris, id)
}

func toggle(set map[uuid.UUID]struct{}, id uuid.UUID) {
	if _, ok := set[id]; ok {
		delete(set, id)
		return
	}
	set[id] = struct{}{}
}

// enterThesesLocked starts a suggestion fetch when there are no candidates
// and none is loading
func (s *Session) enterThesesLocked() {
	if s.st.CaseID == nil || len(s.st.Theses) > 0 || s.st.LoadingTheses {
		return
	}
	s.fetchThesesLocked()
}

// RefreshTheses asks for new suggestions, replacing the candidates. It is a
// no-op while a fetch is in flight or outside step 2.
func (s *Session) RefreshTheses() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Step != models.StepTheses || s.st.CaseID == nil || s.st.LoadingTheses {
		return false
	}
	s.fetchThesesLocked()
	return true
}

func (s *Session) fetchThesesLocked() {
	if s.backend.Theses == nil {
		return
	}
	s.st.LoadingTheses = true
	req := service.SuggestThesesRequest{
		TenantID:     s.tenantID,
		UserID:       s.userID,
		CaseID:       *s.st.CaseID,
		Provider:     s.provider,
		DocumentType: s.st.DocumentType,
	}
	s.spawnLocked("suggest_theses", func(ctx context.Context) (func(), error) {
		res, err := s.backend.Theses.SuggestTheses(ctx, req)
		if err != nil {
			return func() { s.st.LoadingTheses = false }, err
		}
		return func() {
			s.st.LoadingTheses = false
			s.st.Theses = res.Theses
		}, nil
	})
}

// enterDraftLocked starts generation when no document is bound yet
func (s *Session) enterDraftLocked() {
	if s.st.CaseID == nil || s.st.DocumentID != nil || s.st.Generating || s.backend.Drafts == nil {
		return
	}
	s.st.Generating = true
	req := service.GenerateDraftRequest{
		TenantID:         s.tenantID,
		UserID:           s.userID,
		CaseID:           *s.st.CaseID,
		DocumentType:     s.st.DocumentType,
		ThesisIDs:        s.selectedThesesLocked(),
		JurisprudenceIDs: s.selectedJurisprudenceLocked(),
		Provider:         s.provider,
	}
	s.spawnLocked("generate_document", func(ctx context.Context) (func(), error) {
		res, err := s.backend.Drafts.GenerateDraft(ctx, req)
		if err != nil {
			return func() { s.st.Generating = false }, err
		}
		return func() {
			s.st.Generating = false
			id := res.Document.ID
			s.st.DocumentID = &id
			s.st.DocumentContent = res.Document.ContentHTML
		}, nil
	})
}

// SearchJurisprudence loads precedents matching keywords in the background.
// It is a no-op for blank keywords or while a search is in flight.
func (s *Session) SearchJurisprudence(keywords string) bool {
	keywords = strings.TrimSpace(keywords)
	s.mu.Lock()
	defer s.mu.Unlock()
	if keywords == "" || s.st.LoadingJurisprudence || s.backend.Jurisprudence == nil {
		return false
	}
	s.st.LoadingJurisprudence = true
	req := service.SearchJurisprudenceRequest{Keywords: keywords, Page: service.Page{Page: 1, Limit: jurisprudencePageSize}}
	s.spawnLocked("search_jurisprudence", func(ctx context.Context) (func(), error) {
		res, err := s.backend.Jurisprudence.Search(ctx, req)
		if err != nil {
			return func() { s.st.LoadingJurisprudence = false }, err
		}
		return func() {
			s.st.LoadingJurisprudence = false
			s.st.Jurisprudence = res.Results
		}, nil
	})
	return true
}

// spawnLocked runs fetch in the background and applies its result under the
// lock unless the session was reset meanwhile
func (s *Session) spawnLocked(op string, fetch func(ctx context.Context) (func(), error)) {
	epoch := s.epoch
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		apply, err := fetch(s.ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if epoch != s.epoch {
			s.log.Debug("Dropping stale wizard result", "operation", op)
			return
		}
		apply()
		if err != nil {
			s.log.Warn("Wizard fetch failed", "operation", op, "error", err)
			s.st.Error = apperr.From(err).Message
			return
		}
		s.st.Error = ""
	}()
}

// SetDocumentContent replaces the local draft content
func (s *Session) SetDocumentContent(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.DocumentContent = content
}

// SaveDocument stores the local draft content and marks the document completed
func (s *Session) SaveDocument(ctx context.Context) (*service.UpdateDocumentResult, error) {
	s.mu.Lock()
	if s.st.DocumentID == nil {
		s.mu.Unlock()
		return nil, ErrWrongStep
	}
	id, content := *s.st.DocumentID, s.st.DocumentContent
	s.mu.Unlock()

	if s.backend.Documents == nil {
		return nil, errors.New("document service not set")
	}
	status := models.DocumentStatusCompleted
	return s.backend.Documents.UpdateDocument(ctx, service.UpdateDocumentRequest{
		TenantID:    s.tenantID,
		UserID:      s.userID,
		ID:          id,
		ContentHTML: &content,
		Status:      &status,
	})
}

// Reset returns the session to its initial state. Case and document rows
// already created are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.st = s.initial()
}

// Wait blocks until background fetches have finished
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels background fetches
func (s *Session) Close() {
	s.cancel()
}
