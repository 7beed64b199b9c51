package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/service"
)

type stubDrafts struct {
	got service.GenerateDraftRequest
	err error
}

func (s *stubDrafts) GenerateDraft(_ context.Context, req service.GenerateDraftRequest) (*service.GenerateDraftResult, error) {
	s.got = req
	for _, p := range []int{10, 30, 60, 90, 100} {
		req.Progress(p)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &service.GenerateDraftResult{
		Document: &models.LegalDocument{ID: uuid.New(), Title: "Petição Inicial - Maria Souza", Revision: 1},
		Provider: ai.ProviderMock,
	}, nil
}

func TestGenerateHandlerForwardsProgress(t *testing.T) {
	drafts := &stubDrafts{}
	h := NewGenerateHandler(drafts)
	tenant, caseID := uuid.New(), uuid.New()
	jc, progress := newJobContext(t, queue.KindGenerateDocument, service.GenerateDraftRequest{TenantID: tenant, CaseID: caseID}, 0)

	out, err := h.Run(jc)
	require.NoError(t, err)
	res := out.(GenerateResult)
	assert.True(t, res.Success)
	assert.Equal(t, "Petição Inicial - Maria Souza", res.Title)
	assert.Equal(t, tenant, drafts.got.TenantID)
	assert.Equal(t, caseID, drafts.got.CaseID)
	assert.Equal(t, []int{10, 30, 60, 90, 100}, progress.all())
}

func TestGenerateHandlerRetryNeverRewindsProgress(t *testing.T) {
	drafts := &stubDrafts{err: apperr.Provider("mock", errors.New("timeout"))}
	h := NewGenerateHandler(drafts)
	jc, progress := newJobContext(t, queue.KindGenerateDocument, service.GenerateDraftRequest{CaseID: uuid.New()}, 60)

	_, err := h.Run(jc)
	assert.True(t, errors.Is(err, apperr.ErrProvider))
	assert.Equal(t, []int{90, 100}, progress.all())
}

const jsonDataset = `[
  {"tribunal":"STJ","numero":"REsp 1.234.567/SP","dataJulgamento":"2023-05-15","relator":"Min. Fulano de Tal","ementa":"CIVIL. RESPONSABILIDADE CIVIL. DANOS MORAIS.","inteiroTeor":"Trata-se de recurso especial. O dano moral restou configurado."},
  {"tribunal":"STJ","numero":"REsp 987.654/RJ","dataJulgamento":"10/03/2023","ementa":"PROCESSUAL CIVIL. RECURSO ESPECIAL. DANOS MATERIAIS."},
  {"tribunal":"STJ","numero":"REsp 555.555/MG","ementa":""}
]`

func TestIngestStoresNewDecisionsAndQueuesEmbeddings(t *testing.T) {
	store := newMemChunks()
	existing := &models.Jurisprudence{Tribunal: "STJ", ProcessNumber: "REsp 987.654/RJ", Summary: "x"}
	_, err := store.InsertIfAbsent(context.Background(), existing)
	require.NoError(t, err)

	sources, err := ParseSources([]byte("sources:\n  - name: stj\n    tribunal: STJ\n    url: https://dados.stj.jus.br/acordaos.json\n"))
	require.NoError(t, err)
	enq := &recordingEnqueuer{}
	h := NewIngestHandler(store, sources,
		IngestWithFetcher(mapFetcher{"https://dados.stj.jus.br/acordaos.json": []byte(jsonDataset)}),
		IngestWithEnqueuer(enq),
	)
	jc, progress := newJobContext(t, queue.KindIngestJurisprudence, IngestPayload{Source: "STJ"}, 0)

	out, err := h.Run(jc)
	require.NoError(t, err)
	res := out.(IngestResult)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.IngestedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, 2, res.ChunkCount)

	seen := progress.all()
	assert.True(t, sortedInts(seen))
	assert.Equal(t, 100, seen[len(seen)-1])

	require.Len(t, enq.jobs, 1)
	assert.Equal(t, queue.KindGenerateEmbeddings, enq.jobs[0].kind)
	payload := enq.jobs[0].payload.(EmbeddingsPayload)
	assert.Len(t, payload.ChunkIDs, 2)
	assert.Equal(t, "embed:"+payload.JurisprudenceID.String(), enq.jobs[0].key)

	stored := store.decisions["STJ|REsp 1.234.567/SP"]
	require.NotNil(t, stored)
	require.NotNil(t, stored.DecisionDate)
	assert.Equal(t, 2023, stored.DecisionDate.Year())
	assert.Equal(t, "stj", stored.Source)
}

func TestIngestRerunSkipsEverything(t *testing.T) {
	store := newMemChunks()
	fetcher := mapFetcher{"/data/stj.json": []byte(jsonDataset)}
	h := NewIngestHandler(store, nil, IngestWithFetcher(fetcher))

	for i, wantIngested := range []int{2, 0} {
		jc, _ := newJobContext(t, queue.KindIngestJurisprudence, IngestPayload{Source: "manual", DatasetURL: "/data/stj.json"}, 0)
		out, err := h.Run(jc)
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, wantIngested, out.(IngestResult).IngestedCount)
	}
}

func TestIngestRetryAfterStoreFailureKeepsChunks(t *testing.T) {
	store := newMemChunks()
	store.failures = 1
	h := NewIngestHandler(store, nil, IngestWithFetcher(mapFetcher{"/data/stj.json": []byte(jsonDataset)}))
	payload := IngestPayload{Source: "manual", DatasetURL: "/data/stj.json"}

	jc, _ := newJobContext(t, queue.KindIngestJurisprudence, payload, 0)
	_, err := h.Run(jc)
	require.Error(t, err)
	assert.Empty(t, store.decisions)

	jc, _ = newJobContext(t, queue.KindIngestJurisprudence, payload, 10)
	out, err := h.Run(jc)
	require.NoError(t, err)
	res := out.(IngestResult)
	assert.Equal(t, 2, res.IngestedCount)
	assert.Equal(t, 0, res.SkippedCount)
	assert.Equal(t, 2, store.chunksOf("STJ|REsp 1.234.567/SP"))
	assert.Equal(t, 1, store.chunksOf("STJ|REsp 987.654/RJ"))
}

func TestIngestLeavesChunksPendingWhenQueueIsDown(t *testing.T) {
	store := newMemChunks()
	enq := &recordingEnqueuer{err: errors.New("redis unavailable")}
	h := NewIngestHandler(store, nil,
		IngestWithFetcher(mapFetcher{"/data/stj.json": []byte(jsonDataset)}),
		IngestWithEnqueuer(enq),
	)
	jc, _ := newJobContext(t, queue.KindIngestJurisprudence, IngestPayload{Source: "manual", DatasetURL: "/data/stj.json"}, 0)

	out, err := h.Run(jc)
	require.NoError(t, err)
	res := out.(IngestResult)
	assert.True(t, res.EmbeddingsDeferred)
	assert.Equal(t, 3, res.ChunkCount)

	pending, err := store.PendingChunks(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestIngestUnknownSource(t *testing.T) {
	h := NewIngestHandler(newMemChunks(), nil)
	jc, _ := newJobContext(t, queue.KindIngestJurisprudence, IngestPayload{Source: "tjzz"}, 0)
	_, err := h.Run(jc)
	assert.Error(t, err)
}

func TestParseDatasetCSVAndXLSX(t *testing.T) {
	csvRaw := "tribunal,numero,dataJulgamento,ementa\nTJSP,AC 1000,2024-02-01,\"Apelação. Dano material, comprovado.\"\n,,,\n"
	recs, err := ParseDataset([]byte(csvRaw), FormatCSV, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Apelação. Dano material, comprovado.", recs[0].Ementa)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"numero", "ementa", "tribunal"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"RE 42", "Tema de repercussão geral.", "STF"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, err = ParseDataset(buf.Bytes(), FormatXLSX, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	j, err := recs[0].Jurisprudence("", "planilha")
	require.NoError(t, err)
	assert.Equal(t, "STF", j.Tribunal)
	assert.Equal(t, "RE 42", j.ProcessNumber)
}

func TestParseSourcesRejectsBadEntries(t *testing.T) {
	_, err := ParseSources([]byte("sources:\n  - name: a\n    url: x.json\n  - name: A\n    url: y.json\n"))
	assert.Error(t, err)
	_, err = ParseSources([]byte("sources:\n  - name: a\n    url: x.pdf\n    format: pdf\n"))
	assert.Error(t, err)

	s, err := ParseSources([]byte("sources:\n  - name: tjsp\n    url: https://x/y.xlsx?download=1\n"))
	require.NoError(t, err)
	src, ok := s.Lookup("TJSP")
	require.True(t, ok)
	assert.Equal(t, FormatXLSX, src.Format)
}

func seedChunks(t *testing.T, store *memChunks, texts ...string) []uuid.UUID {
	t.Helper()
	j := &models.Jurisprudence{Tribunal: "STJ", ProcessNumber: uuid.NewString(), Summary: "s"}
	_, err := store.InsertIfAbsent(context.Background(), j)
	require.NoError(t, err)
	var chunks []*models.JurisprudenceChunk
	for i, text := range texts {
		chunks = append(chunks, &models.JurisprudenceChunk{JurisprudenceID: j.ID, Position: i, ChunkType: models.ChunkSummary, Content: text})
	}
	require.NoError(t, store.UpsertChunks(context.Background(), chunks))
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

func TestEmbeddingsStoresVectors(t *testing.T) {
	store := newMemChunks()
	ids := seedChunks(t, store, "dano moral", "prescrição trienal", "responsabilidade objetiva")
	registry := ai.NewRegistry(ai.Settings{DefaultProvider: ai.ProviderMock})
	h := NewEmbeddingsHandler(store, registry, ai.ProviderMock, EmbeddingsWithRateLimit(1000))
	jc, progress := newJobContext(t, queue.KindGenerateEmbeddings, EmbeddingsPayload{ChunkIDs: ids}, 0)

	out, err := h.Run(jc)
	require.NoError(t, err)
	res := out.(EmbeddingsResult)
	assert.Equal(t, 3, res.ProcessedChunks)
	assert.Equal(t, 0, res.FailedChunks)
	assert.Equal(t, 3, store.embedded())

	seen := progress.all()
	assert.Equal(t, 10, seen[0])
	assert.Equal(t, 100, seen[len(seen)-1])
	assert.True(t, sortedInts(seen))
}

func TestEmbeddingsCountsFailuresAndBackfills(t *testing.T) {
	store := newMemChunks()
	seedChunks(t, store, "ok um", "falha", "ok dois")
	h := NewEmbeddingsHandler(store, staticEmbedders{flakyEmbedder{failOn: map[string]bool{"falha": true}}}, "",
		EmbeddingsWithRateLimit(1000), EmbeddingsWithParallelism(1))
	jc, _ := newJobContext(t, queue.KindGenerateEmbeddings, EmbeddingsPayload{}, 0)

	out, err := h.Run(jc)
	require.NoError(t, err)
	res := out.(EmbeddingsResult)
	assert.Equal(t, 2, res.ProcessedChunks)
	assert.Equal(t, 1, res.FailedChunks)

	all := NewEmbeddingsHandler(store, staticEmbedders{flakyEmbedder{failOn: map[string]bool{"falha": true}}}, "",
		EmbeddingsWithRateLimit(1000))
	jc, _ = newJobContext(t, queue.KindGenerateEmbeddings, EmbeddingsPayload{}, 0)
	_, err = all.Run(jc)
	assert.Error(t, err)
}

func TestArchiveHookSavesRecord(t *testing.T) {
	archive := &memArchive{}
	hook := ArchiveHook(archive, nil)
	job := &queue.Job{ID: "j1", Kind: queue.KindGenerateDocument, Status: models.JobStatusFailed, Attempts: 3, LastError: "boom"}

	hook(context.Background(), job)
	require.Len(t, archive.records, 1)
	assert.Equal(t, "j1", archive.records[0].ID)
	assert.Equal(t, models.JobStatusFailed, archive.records[0].Status)
	require.NotNil(t, archive.records[0].LastError)
	assert.Equal(t, "boom", *archive.records[0].LastError)
}

func TestRegisterSkipsNilAndRejectsDuplicates(t *testing.T) {
	r := queue.NewRegistry()
	require.NoError(t, Register(r, NewGenerateHandler(&stubDrafts{}), nil))
	assert.Error(t, Register(r, NewGenerateHandler(&stubDrafts{})))
	assert.Equal(t, []queue.Kind{queue.KindGenerateDocument}, r.Kinds())
}
