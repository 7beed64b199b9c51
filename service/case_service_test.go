package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

func newCaseService(cases *fakeCases, audit *fakeAudit) *CaseService {
	return NewCaseService(
		WithCaseStore(cases),
		WithCaseAudit(NewAuditService(AuditWithStore(audit))),
	)
}

func TestCreateCaseValidatesInput(t *testing.T) {
	svc := newCaseService(newFakeCases(), &fakeAudit{})

	_, err := svc.CreateCase(context.Background(), CreateCaseRequest{
		TenantID: uuid.New(), OwnerID: uuid.New(),
		ClientName: "M", CaseType: "civil", FactsDescription: "curto",
	})
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	fields := map[string]bool{}
	for _, fe := range appErr.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["clientName"])
	assert.True(t, fields["factsDescription"])
}

func TestCreateCaseStartsAsDraftAtFirstStep(t *testing.T) {
	audit := &fakeAudit{}
	svc := newCaseService(newFakeCases(), audit)

	res, err := svc.CreateCase(context.Background(), CreateCaseRequest{
		TenantID: uuid.New(), OwnerID: uuid.New(),
		ClientName: "  Maria Souza ", CaseType: "civil",
		FactsDescription: "cliente sofreu dano material de R$500",
	})
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", res.Case.ClientName)
	assert.Equal(t, models.CaseStatusDraft, res.Case.Status)
	assert.Equal(t, models.StepFacts, res.Case.CurrentStep)
	assert.Empty(t, res.Case.CompletedSteps)
	assert.Equal(t, []string{models.EventCaseCreated}, audit.eventNames())
}

func TestCaseTenantIsolation(t *testing.T) {
	cases := newFakeCases()
	svc := newCaseService(cases, &fakeAudit{})
	ctx := context.Background()
	t1, t2 := uuid.New(), uuid.New()

	res, err := svc.CreateCase(ctx, CreateCaseRequest{
		TenantID: t1, OwnerID: uuid.New(), ClientName: "Maria Souza", CaseType: "civil",
		FactsDescription: "cliente sofreu dano material de R$500",
	})
	require.NoError(t, err)
	id := res.Case.ID

	_, err = svc.GetCase(ctx, GetCaseRequest{TenantID: t2, ID: id})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	name := "Outro Cliente"
	_, err = svc.UpdateCase(ctx, UpdateCaseRequest{TenantID: t2, ID: id, ClientName: &name})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = svc.DeleteCase(ctx, DeleteCaseRequest{TenantID: t2, ID: id})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	list, err := svc.ListCases(ctx, ListCasesRequest{TenantID: t2})
	require.NoError(t, err)
	assert.Empty(t, list.Cases)

	got, err := svc.GetCase(ctx, GetCaseRequest{TenantID: t1, ID: id})
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", got.Case.ClientName)
}

func TestUpdateCaseIsPartial(t *testing.T) {
	svc := newCaseService(newFakeCases(), &fakeAudit{})
	ctx := context.Background()
	tenant := uuid.New()
	res, err := svc.CreateCase(ctx, CreateCaseRequest{
		TenantID: tenant, OwnerID: uuid.New(), ClientName: "Maria Souza", CaseType: "civil",
		FactsDescription: "cliente sofreu dano material de R$500",
		Metadata:         models.CaseMetadata{"vara": "1ª Vara Cível"},
	})
	require.NoError(t, err)

	status := models.CaseStatusActive
	step := models.StepTheses
	done := models.StepFacts
	upd, err := svc.UpdateCase(ctx, UpdateCaseRequest{
		TenantID: tenant, ID: res.Case.ID,
		Status: &status, CurrentStep: &step, CompleteStep: &done,
		Metadata: models.CaseMetadata{"comarca": "São Paulo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", upd.Case.ClientName)
	assert.Equal(t, models.CaseStatusActive, upd.Case.Status)
	assert.Equal(t, models.StepTheses, upd.Case.CurrentStep)
	assert.True(t, upd.Case.CompletedSteps.Has(models.StepFacts))
	assert.Equal(t, "1ª Vara Cível", upd.Case.Metadata["vara"])
	assert.Equal(t, "São Paulo", upd.Case.Metadata["comarca"])

	bad := 4
	_, err = svc.UpdateCase(ctx, UpdateCaseRequest{TenantID: tenant, ID: res.Case.ID, CurrentStep: &bad})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	short := "curto"
	_, err = svc.UpdateCase(ctx, UpdateCaseRequest{TenantID: tenant, ID: res.Case.ID, FactsDescription: &short})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestListCasesPagination(t *testing.T) {
	svc := newCaseService(newFakeCases(), &fakeAudit{})
	ctx := context.Background()
	tenant := uuid.New()
	for _, name := range []string{"Ana", "Bruno", "Carla"} {
		_, err := svc.CreateCase(ctx, CreateCaseRequest{
			TenantID: tenant, OwnerID: uuid.New(), ClientName: name, CaseType: "civil",
			FactsDescription: "fatos relevantes do caso",
		})
		require.NoError(t, err)
	}

	res, err := svc.ListCases(ctx, ListCasesRequest{TenantID: tenant, Page: Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	require.Len(t, res.Cases, 1)
	assert.Equal(t, "Carla", res.Cases[0].ClientName)
	assert.Equal(t, Pagination{Page: 2, Limit: 2, Total: 3, TotalPages: 2}, res.Pagination)
}

func TestPageNormalize(t *testing.T) {
	limit, offset, p := Page{}.normalize()
	assert.Equal(t, DefaultPageLimit, limit)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 1, p.Page)

	limit, offset, _ = Page{Page: 3, Limit: 500}.normalize()
	assert.Equal(t, MaxPageLimit, limit)
	assert.Equal(t, 200, offset)
}

func TestArchiveAbandonedDrafts(t *testing.T) {
	cases := newFakeCases()
	docs := newFakeDocuments()
	cases.docs = docs
	now := time.Now()
	svc := NewCaseService(WithCaseStore(cases), WithCaseClock(func() time.Time { return now.Add(48 * time.Hour) }))
	ctx := context.Background()
	tenant := uuid.New()

	abandoned := &models.Case{TenantID: tenant, ClientName: "A", Status: models.CaseStatusDraft}
	withDoc := &models.Case{TenantID: tenant, ClientName: "B", Status: models.CaseStatusDraft}
	require.NoError(t, cases.Create(ctx, abandoned))
	require.NoError(t, cases.Create(ctx, withDoc))
	require.NoError(t, docs.Create(ctx, &models.LegalDocument{TenantID: tenant, CaseID: withDoc.ID}, nil))

	n, err := svc.ArchiveAbandonedDrafts(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := cases.GetByID(ctx, tenant, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusArchived, got.Status)
}
