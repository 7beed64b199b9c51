package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

type flakyProvider struct {
	ai.MockProvider
	failures int
}

func (p *flakyProvider) GenerateDocument(ctx context.Context, in ai.GenerateContext) (*ai.GeneratedDocument, error) {
	if p.failures > 0 {
		p.failures--
		return nil, apperr.Provider("mock", errors.New("upstream timeout"))
	}
	return p.MockProvider.GenerateDocument(ctx, in)
}

type draftFixture struct {
	*docFixture
	theses *fakeTheses
	thesis *ThesisService
	draft  *DraftService
}

func newDraftFixture(t *testing.T, providerOpts ...ai.RegistryOption) *draftFixture {
	t.Helper()
	f := &draftFixture{docFixture: newDocFixture(t), theses: &fakeTheses{}}
	registry := ai.NewRegistry(ai.Settings{DefaultProvider: ai.ProviderMock}, providerOpts...)
	audit := NewAuditService(AuditWithStore(f.audit))
	f.thesis = NewThesisService(
		ThesisWithCaseStore(f.cases),
		ThesisWithStore(f.theses),
		ThesisWithProviders(registry),
		ThesisWithAudit(audit),
	)
	f.draft = NewDraftService(
		DraftWithCaseStore(f.cases),
		DraftWithThesisStore(f.theses),
		DraftWithDocuments(f.svc),
		DraftWithProviders(registry),
		DraftWithAudit(audit),
	)
	return f
}

func TestSuggestThesesPersistsSuggestions(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()

	res, err := f.thesis.SuggestTheses(ctx, SuggestThesesRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID})
	require.NoError(t, err)
	require.NotEmpty(t, res.Theses)
	for i, th := range res.Theses {
		assert.Contains(t, []models.ThesisCategory{models.ThesisPreliminary, models.ThesisMerits}, th.Category)
		assert.True(t, th.AIGenerated)
		assert.Equal(t, i, th.OrderIndex)
	}
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "suggest_theses", f.audit.logs[0].Action)
	assert.Equal(t, ai.ProviderMock, f.audit.logs[0].Provider)

	again, err := f.thesis.SuggestTheses(ctx, SuggestThesesRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID, MaxCount: 2})
	require.NoError(t, err)
	assert.Len(t, again.Theses, 2)
	listed, err := f.thesis.ListTheses(ctx, ListThesesRequest{TenantID: f.tenant, CaseID: f.kase.ID})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestSuggestThesesForeignTenant(t *testing.T) {
	f := newDraftFixture(t)
	_, err := f.thesis.SuggestTheses(context.Background(), SuggestThesesRequest{TenantID: uuid.New(), CaseID: f.kase.ID})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGenerateDraftRequiresSelectedThesis(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()
	_, err := f.thesis.SuggestTheses(ctx, SuggestThesesRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID})
	require.NoError(t, err)

	_, err = f.draft.GenerateDraft(ctx, GenerateDraftRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestGenerateDraftFromSelectedThesis(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()
	sug, err := f.thesis.SuggestTheses(ctx, SuggestThesesRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID})
	require.NoError(t, err)
	chosen := sug.Theses[2]

	var progress []int
	res, err := f.draft.GenerateDraft(ctx, GenerateDraftRequest{
		TenantID:  f.tenant,
		UserID:    f.user,
		CaseID:    f.kase.ID,
		ThesisIDs: []uuid.UUID{chosen.ID},
		Progress:  func(p int) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	doc := res.Document
	assert.Contains(t, doc.Title, "Maria Souza")
	assert.NotEmpty(t, doc.Sections)
	assert.Equal(t, ai.RenderSections(doc.Sections), doc.ContentHTML)
	assert.Contains(t, doc.ContentHTML, chosen.Title)
	assert.Equal(t, []int{10, 30, 60, 90, 100}, progress)

	versions := f.docs.versionsOf(doc.ID)
	require.Len(t, versions, 1)
	assert.Equal(t, doc.ContentHTML, versions[0].ContentHTML)

	kase, err := f.cases.GetByID(ctx, f.tenant, f.kase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusEditing, kase.Status)
	assert.Equal(t, models.StepDraft, kase.CurrentStep)
	assert.True(t, kase.CompletedSteps.Has(models.StepTheses))

	theses, err := f.theses.ListByCase(ctx, f.kase.ID)
	require.NoError(t, err)
	for _, th := range theses {
		assert.Equal(t, th.ID == chosen.ID, th.Selected)
	}
	assert.Contains(t, f.audit.eventNames(), models.EventDocumentGenerated)
}

func TestGenerateDraftRetryAddsVersionWithoutTouchingHistory(t *testing.T) {
	flaky := &flakyProvider{failures: 1}
	f := newDraftFixture(t, ai.RegistryWithProvider(flaky))
	ctx := context.Background()
	sug, err := f.thesis.SuggestTheses(ctx, SuggestThesesRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID})
	require.NoError(t, err)
	req := GenerateDraftRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID, ThesisIDs: []uuid.UUID{sug.Theses[0].ID}}

	_, err = f.draft.GenerateDraft(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrProvider))
	assert.Equal(t, 0, f.docs.countForCase(f.kase.ID))

	first, err := f.draft.GenerateDraft(ctx, req)
	require.NoError(t, err)
	before := f.docs.versionsOf(first.Document.ID)
	require.Len(t, before, 1)

	second, err := f.draft.GenerateDraft(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, 1, f.docs.countForCase(f.kase.ID))

	after := f.docs.versionsOf(first.Document.ID)
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, first.Document.ContentHTML, after[1].ContentHTML)
	assert.Greater(t, second.Document.Revision, first.Document.Revision)
}

func TestGenerateDraftIncludesExplicitCitations(t *testing.T) {
	f := newDraftFixture(t)
	juris := newFakeJuris()
	f.draft = NewDraftService(
		DraftWithCaseStore(f.cases),
		DraftWithThesisStore(f.theses),
		DraftWithJurisprudenceStore(juris),
		DraftWithDocuments(f.svc),
		DraftWithProviders(ai.NewRegistry(ai.Settings{DefaultProvider: ai.ProviderMock})),
	)
	ctx := context.Background()
	j := &models.Jurisprudence{Tribunal: "STJ", ProcessNumber: "REsp 1.234.567/SP", Summary: "Dano material comprovado."}
	_, err := juris.InsertIfAbsent(ctx, j)
	require.NoError(t, err)
	sug, err := f.thesis.SuggestTheses(ctx, SuggestThesesRequest{TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID})
	require.NoError(t, err)

	res, err := f.draft.GenerateDraft(ctx, GenerateDraftRequest{
		TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID,
		ThesisIDs:        []uuid.UUID{sug.Theses[0].ID},
		JurisprudenceIDs: []uuid.UUID{j.ID},
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.Document.ContentHTML, "REsp 1.234.567/SP"))
}
