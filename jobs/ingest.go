package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
)

const (
	chunkSize    = 1000
	chunkOverlap = 150
)

var decisionSeparators = []string{"\n\n", "\n", ". ", "; ", " ", ""}

// IngestPayload asks for one dataset to be loaded. DatasetURL overrides the
// location configured for Source; TenantID scopes status queries.
type IngestPayload struct {
	Source     string     `json:"source"`
	DatasetURL string     `json:"datasetUrl,omitempty"`
	TenantID   *uuid.UUID `json:"tenantId,omitempty"`
}

// IngestResult is stored on a completed ingestion job
type IngestResult struct {
	Success       bool      `json:"success"`
	Source        string    `json:"source"`
	IngestedCount int       `json:"ingestedCount"`
	SkippedCount  int       `json:"skippedCount"`
	ErrorCount    int       `json:"errorCount"`
	ChunkCount    int       `json:"chunkCount"`
	CompletedAt   time.Time `json:"completedAt"`
	// EmbeddingsDeferred is set when the new chunks wait for a backfill
	EmbeddingsDeferred bool `json:"embeddingsDeferred,omitempty"`
}

// IngestHandler downloads a tribunal dataset, stores decisions not seen
// before, chunks their text and queues embedding jobs for the new chunks
type IngestHandler struct {
	store    ChunkStore
	sources  *Sources
	fetcher  Fetcher
	enqueuer queue.Enqueuer
	splitter textsplitter.TextSplitter
	now      func() time.Time
}

type IngestOption func(*IngestHandler)

// IngestWithFetcher replaces the dataset fetcher
func IngestWithFetcher(f Fetcher) IngestOption {
	return func(h *IngestHandler) { h.fetcher = f }
}

// IngestWithEnqueuer queues embedding jobs for stored chunks
func IngestWithEnqueuer(e queue.Enqueuer) IngestOption {
	return func(h *IngestHandler) { h.enqueuer = e }
}

func NewIngestHandler(store ChunkStore, sources *Sources, opts ...IngestOption) *IngestHandler {
	h := &IngestHandler{
		store:   store,
		sources: sources,
		fetcher: HTTPFetcher{},
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(decisionSeparators),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IngestHandler) Kind() queue.Kind { return queue.KindIngestJurisprudence }

func (h *IngestHandler) resolve(p IngestPayload) (Source, error) {
	src, ok := h.sources.Lookup(p.Source)
	if !ok {
		if p.DatasetURL == "" {
			return Source{}, fmt.Errorf("unknown ingest source %q", p.Source)
		}
		src = Source{Name: strings.ToLower(strings.TrimSpace(p.Source)), Format: formatFromPath(p.DatasetURL)}
	}
	if p.DatasetURL != "" {
		src.URL = p.DatasetURL
	}
	if src.URL == "" {
		return Source{}, fmt.Errorf("ingest source %q has no dataset location", src.Name)
	}
	return src, nil
}

func (h *IngestHandler) Run(jc *queue.Context) (any, error) {
	if h.store == nil {
		return nil, errors.New("jurisprudence repository not set")
	}
	var p IngestPayload
	if err := jc.Decode(&p); err != nil {
		return nil, err
	}
	src, err := h.resolve(p)
	if err != nil {
		return nil, err
	}
	ctx := jc.Context()
	log := jc.Log.With("source", src.Name)

	raw, err := h.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	jc.Progress(10)

	records, err := ParseDataset(raw, src.Format, src.Sheet)
	if err != nil {
		return nil, err
	}
	log.Info("Dataset parsed", "records", len(records))
	jc.Progress(30)

	res := IngestResult{Source: src.Name}
	var pending []*models.JurisprudenceChunk
	for i, rec := range records {
		j, err := rec.Jurisprudence(src.Tribunal, src.Name)
		if err != nil {
			log.Warn("Skipping invalid record", "index", i, "error", err)
			res.ErrorCount++
			continue
		}
		chunks, err := h.chunk(j)
		if err != nil {
			log.Warn("Chunking failed", "process_number", j.ProcessNumber, "error", err)
			res.ErrorCount++
			continue
		}
		inserted, err := h.store.InsertWithChunks(ctx, j, chunks)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", j.DedupKey(), err)
		}
		if !inserted {
			res.SkippedCount++
			continue
		}
		res.IngestedCount++
		pending = append(pending, chunks...)
		jc.Progress(30 + 30*(i+1)/len(records))
	}
	jc.Progress(60)

	res.ChunkCount = len(pending)
	if err := h.enqueueEmbeddings(jc, pending, p.TenantID); err != nil {
		// Stored chunks stay pending and are picked up by the next backfill
		log.Warn("Embedding jobs not queued", "error", err)
		res.EmbeddingsDeferred = true
	}
	jc.Progress(90)

	log.Info("Ingestion finished", "ingested", res.IngestedCount, "skipped", res.SkippedCount, "errors", res.ErrorCount)
	res.Success = true
	res.CompletedAt = h.now().UTC()
	jc.Progress(100)
	return res, nil
}

// chunk splits the summary and full text of a decision
func (h *IngestHandler) chunk(j *models.Jurisprudence) ([]*models.JurisprudenceChunk, error) {
	var out []*models.JurisprudenceChunk
	add := func(kind models.ChunkType, text string) error {
		parts, err := h.splitter.SplitText(text)
		if err != nil {
			return err
		}
		pos := 0
		for _, part := range parts {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			out = append(out, &models.JurisprudenceChunk{
				JurisprudenceID: j.ID,
				Position:        pos,
				ChunkType:       kind,
				Content:         part,
			})
			pos++
		}
		return nil
	}
	if err := add(models.ChunkSummary, j.Summary); err != nil {
		return nil, err
	}
	if j.FullText != nil {
		if err := add(models.ChunkFullText, *j.FullText); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// enqueueEmbeddings queues one embedding job per decision
func (h *IngestHandler) enqueueEmbeddings(jc *queue.Context, chunks []*models.JurisprudenceChunk, tenant *uuid.UUID) error {
	if h.enqueuer == nil || len(chunks) == 0 {
		return nil
	}
	byDecision := make(map[uuid.UUID][]uuid.UUID)
	var order []uuid.UUID
	for _, c := range chunks {
		if _, seen := byDecision[c.JurisprudenceID]; !seen {
			order = append(order, c.JurisprudenceID)
		}
		byDecision[c.JurisprudenceID] = append(byDecision[c.JurisprudenceID], c.ID)
	}
	for _, id := range order {
		payload := EmbeddingsPayload{JurisprudenceID: id, ChunkIDs: byDecision[id], TenantID: tenant}
		if _, err := h.enqueuer.Enqueue(jc.Context(), queue.KindGenerateEmbeddings, payload, "embed:"+id.String()); err != nil {
			return fmt.Errorf("enqueue embeddings for %s: %w", id, err)
		}
	}
	return nil
}
