package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/export"
	"github.com/luantaraschi/petichat-definitive/models"
)

type docFixture struct {
	cases  *fakeCases
	docs   *fakeDocuments
	audit  *fakeAudit
	svc    *DocumentService
	tenant uuid.UUID
	user   uuid.UUID
	kase   *models.Case
}

func newDocFixture(t *testing.T, opts ...DocumentServiceOption) *docFixture {
	t.Helper()
	f := &docFixture{
		cases:  newFakeCases(),
		docs:   newFakeDocuments(),
		audit:  &fakeAudit{},
		tenant: uuid.New(),
		user:   uuid.New(),
	}
	f.cases.docs = f.docs
	f.kase = &models.Case{TenantID: f.tenant, OwnerID: f.user, ClientName: "Maria Souza", CaseType: "civil",
		FactsDescription: "cliente sofreu dano material de R$500", Status: models.CaseStatusDraft}
	require.NoError(t, f.cases.Create(context.Background(), f.kase))

	base := []DocumentServiceOption{
		DocumentWithCaseStore(f.cases),
		DocumentWithStore(f.docs),
		DocumentWithAudit(NewAuditService(AuditWithStore(f.audit))),
	}
	f.svc = NewDocumentService(append(base, opts...)...)
	return f
}

func (f *docFixture) newDoc(t *testing.T) *models.LegalDocument {
	t.Helper()
	doc, err := f.svc.CreateDocument(context.Background(), CreateDocumentRequest{
		TenantID: f.tenant, UserID: f.user, CaseID: f.kase.ID, Title: "Petição Inicial",
	})
	require.NoError(t, err)
	return doc
}

func strPtr(s string) *string { return &s }

func TestCreateDocumentStartsEmpty(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)

	assert.Equal(t, models.DocumentPetition, doc.DocumentType)
	assert.Equal(t, models.DocumentStatusDraft, doc.Status)
	assert.Empty(t, doc.ContentHTML)
	assert.Empty(t, f.docs.versionsOf(doc.ID))
	assert.Contains(t, f.audit.eventNames(), models.EventDocumentCreated)
}

func TestCreateDocumentRejectsForeignCase(t *testing.T) {
	f := newDocFixture(t)
	_, err := f.svc.CreateDocument(context.Background(), CreateDocumentRequest{
		TenantID: uuid.New(), UserID: f.user, CaseID: f.kase.ID, Title: "Petição",
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUpdateContentOfEmptyDocumentTakesNoSnapshot(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)

	res, err := f.svc.UpdateContent(context.Background(), f.tenant, f.user, doc.ID, "<p>primeira versão</p>", nil)
	require.NoError(t, err)

	assert.Nil(t, res.Version)
	assert.Equal(t, "<p>primeira versão</p>", res.Document.ContentHTML)
	assert.Empty(t, f.docs.versionsOf(doc.ID))
}

func TestUpdateContentSnapshotsPreviousContent(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)
	ctx := context.Background()

	_, err := f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, "<p>A</p>", nil)
	require.NoError(t, err)
	res, err := f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, "<p>B</p>", nil)
	require.NoError(t, err)

	versions := f.docs.versionsOf(doc.ID)
	require.Len(t, versions, 1)
	assert.Equal(t, "<p>A</p>", versions[0].ContentHTML)
	assert.Equal(t, f.user, versions[0].CreatedBy)
	require.NotNil(t, res.Version)
	assert.Equal(t, "<p>B</p>", res.Document.ContentHTML)

	_, err = f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, "<p>C</p>", nil)
	require.NoError(t, err)
	versions = f.docs.versionsOf(doc.ID)
	require.Len(t, versions, 2)
	assert.Equal(t, "<p>B</p>", versions[1].ContentHTML)
}

func TestTitleOnlyUpdateTakesNoSnapshot(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)
	ctx := context.Background()
	_, err := f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, "<p>A</p>", nil)
	require.NoError(t, err)

	res, err := f.svc.UpdateDocument(ctx, UpdateDocumentRequest{
		TenantID: f.tenant, UserID: f.user, ID: doc.ID, Title: strPtr("Contestação"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Contestação", res.Document.Title)
	assert.Equal(t, "<p>A</p>", res.Document.ContentHTML)
	assert.Empty(t, f.docs.versionsOf(doc.ID))
}

func TestUpdateSectionsRendersContent(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)

	res, err := f.svc.UpdateDocument(context.Background(), UpdateDocumentRequest{
		TenantID: f.tenant, UserID: f.user, ID: doc.ID,
		Sections: models.DocumentSections{{Type: "facts", Title: "Dos Fatos", Content: "<p>x</p>", Order: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "<section><h2>Dos Fatos</h2><p>x</p></section>", res.Document.ContentHTML)
}

func TestUpdateWithStaleRevisionConflicts(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)
	ctx := context.Background()

	first, err := f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, "<p>A</p>", &doc.Revision)
	require.NoError(t, err)
	assert.Equal(t, doc.Revision+1, first.Document.Revision)

	stale := doc.Revision
	_, err = f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, "<p>B</p>", &stale)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	got, err := f.svc.GetDocument(ctx, f.tenant, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>A</p>", got.Document.ContentHTML)
	assert.Empty(t, f.docs.versionsOf(doc.ID))
}

func TestDocumentTenantIsolation(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)
	ctx := context.Background()
	other := uuid.New()

	_, err := f.svc.GetDocument(ctx, other, doc.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.UpdateContent(ctx, other, f.user, doc.ID, "<p>x</p>", nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.ListVersions(ctx, ListVersionsRequest{TenantID: other, DocumentID: doc.ID})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = f.svc.DeleteDocument(ctx, other, doc.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	got, err := f.svc.GetDocument(ctx, f.tenant, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Document.ContentHTML)
}

func TestListVersionsNewestFirstPaginated(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)
	ctx := context.Background()
	for _, c := range []string{"<p>1</p>", "<p>2</p>", "<p>3</p>", "<p>4</p>"} {
		_, err := f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, c, nil)
		require.NoError(t, err)
	}

	res, err := f.svc.ListVersions(ctx, ListVersionsRequest{TenantID: f.tenant, DocumentID: doc.ID, Page: Page{Page: 1, Limit: 2}})
	require.NoError(t, err)
	require.Len(t, res.Versions, 2)
	assert.Equal(t, "<p>3</p>", res.Versions[0].ContentHTML)
	assert.Equal(t, "<p>2</p>", res.Versions[1].ContentHTML)
	assert.Equal(t, Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, res.Pagination)

	res, err = f.svc.ListVersions(ctx, ListVersionsRequest{TenantID: f.tenant, DocumentID: doc.ID, Page: Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	require.Len(t, res.Versions, 1)
	assert.Equal(t, "<p>1</p>", res.Versions[0].ContentHTML)
}

func TestCreateVersionSnapshotsCurrentContent(t *testing.T) {
	f := newDocFixture(t)
	doc := f.newDoc(t)
	ctx := context.Background()
	_, err := f.svc.UpdateContent(ctx, f.tenant, f.user, doc.ID, "<p>atual</p>", nil)
	require.NoError(t, err)

	v, err := f.svc.CreateVersion(ctx, f.tenant, f.user, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>atual</p>", v.ContentHTML)
	assert.Len(t, f.docs.versionsOf(doc.ID), 1)
}

type stubExporter struct {
	got export.Request
}

func (s *stubExporter) Export(_ context.Context, req export.Request) (*export.Artifact, error) {
	s.got = req
	return &export.Artifact{Name: "peticao.pdf", Location: "/files/peticao.pdf"}, nil
}

func TestExportDelegatesToExporter(t *testing.T) {
	exp := &stubExporter{}
	f := newDocFixture(t, DocumentWithExporter(exp))
	doc := f.newDoc(t)

	art, err := f.svc.ExportDocument(context.Background(), ExportDocumentRequest{
		TenantID: f.tenant, UserID: f.user, ID: doc.ID, Format: models.ExportPDF,
	})
	require.NoError(t, err)
	assert.Equal(t, "peticao.pdf", art.Name)
	assert.Equal(t, doc.ID, exp.got.Document.ID)
	assert.Equal(t, models.ExportPDF, exp.got.Format)
	assert.Contains(t, f.audit.eventNames(), models.EventDocumentExported)

	_, err = f.svc.ExportDocument(context.Background(), ExportDocumentRequest{
		TenantID: f.tenant, UserID: f.user, ID: doc.ID, Format: "odt",
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
