package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/models"
)

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) Upload(_ context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	key := "exports/" + fileID.String() + "_" + filename
	m.objects[key] = raw
	return key, nil
}

func (m *memStorage) Download(_ context.Context, path string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[path])), nil
}

func (m *memStorage) Delete(_ context.Context, path string) error {
	delete(m.objects, path)
	return nil
}

func (m *memStorage) Locate(_ context.Context, path string) (string, error) {
	return "/api/files/" + path, nil
}

type memFiles struct {
	files []*models.File
	err   error
}

func (m *memFiles) Create(_ context.Context, f *models.File) error {
	if m.err != nil {
		return m.err
	}
	m.files = append(m.files, f)
	return nil
}

const sampleHTML = `<section><h2>Dos Fatos</h2><p>O autor &amp; a ré <strong>celebraram</strong> contrato.</p><script>alert(1)</script></section>` +
	`<section><h2>Dos Pedidos</h2><p>Requer a procedência.<br>Termos em que pede deferimento.</p></section>`

func sampleDoc() *models.LegalDocument {
	return &models.LegalDocument{ID: uuid.New(), Title: "Petição Inicial - Maria Souza", ContentHTML: sampleHTML}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 5, 4, 13, 2, 1, 0, time.UTC)
	assert.Equal(t, "Petição_Inicial_-_Maria_Souza_20260504-130201.pdf", FileName("Petição Inicial - Maria Souza", models.ExportPDF, at))
	assert.Equal(t, "documento_20260504-130201.txt", FileName("  ***  ", models.ExportTXT, at))
}

func TestTextRenderer(t *testing.T) {
	out, err := TextRenderer{}.Render(context.Background(), "Petição Inicial", sampleHTML)
	require.NoError(t, err)
	text := string(out)
	assert.True(t, strings.HasPrefix(text, "PETIÇÃO INICIAL\n\nDOS FATOS\n\nO autor & a ré celebraram contrato."))
	assert.Contains(t, text, "Requer a procedência.\nTermos em que pede deferimento.")
	assert.NotContains(t, text, "<")
}

func TestTextRendererWithoutBlocks(t *testing.T) {
	out, err := TextRenderer{}.Render(context.Background(), "", "primeiro parágrafo\n\nsegundo")
	require.NoError(t, err)
	assert.Equal(t, "primeiro parágrafo\n\nsegundo\n", string(out))
}

func TestDOCXRenderer(t *testing.T) {
	out, err := DOCXRenderer{}.Render(context.Background(), "Petição", sampleHTML)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	require.Contains(t, names, "[Content_Types].xml")
	require.Contains(t, names, "word/document.xml")

	rc, err := names["word/document.xml"].Open()
	require.NoError(t, err)
	defer rc.Close()
	xmlDoc, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(xmlDoc), "Dos Fatos")
	assert.Contains(t, string(xmlDoc), "O autor &amp; a ré celebraram contrato.")
	assert.NotContains(t, string(xmlDoc), "alert")
}

func TestExportStoresAndRecordsArtifact(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{}}
	files := &memFiles{}
	at := time.Date(2026, 5, 4, 13, 2, 1, 0, time.UTC)
	e := New(store, "", WithFiles(files), WithClock(func() time.Time { return at }))
	tenant, user := uuid.New(), uuid.New()
	doc := sampleDoc()

	art, err := e.Export(context.Background(), Request{TenantID: tenant, UserID: user, Document: doc, Format: models.ExportTXT})
	require.NoError(t, err)
	assert.Equal(t, "Petição_Inicial_-_Maria_Souza_20260504-130201.txt", art.Name)
	assert.True(t, strings.HasPrefix(art.Location, "/api/files/exports/"))
	assert.Equal(t, "text/plain; charset=utf-8", art.MimeType)

	require.Len(t, files.files, 1)
	rec := files.files[0]
	assert.Equal(t, tenant, rec.TenantID)
	assert.Equal(t, doc.ID, *rec.DocumentID)
	assert.Equal(t, art.FileID, rec.ID)
	assert.Equal(t, art.Size, rec.Size)
	assert.Len(t, store.objects, 1)
}

func TestExportRemovesObjectWhenRecordFails(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{}}
	e := New(store, "", WithFiles(&memFiles{err: errors.New("db down")}))

	_, err := e.Export(context.Background(), Request{Document: sampleDoc(), Format: models.ExportDOCX})
	assert.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestPDFRendererSmoke(t *testing.T) {
	chromePath := os.Getenv("CHROME_PATH")
	if chromePath == "" {
		t.Skip("Skipping PDF generation test: CHROME_PATH not set")
	}
	pdf, err := NewPDFRenderer(chromePath).Render(context.Background(), "Petição", sampleHTML)
	require.NoError(t, err)
	assert.Contains(t, string(pdf[:5]), "%PDF-")
}
