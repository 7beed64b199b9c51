package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
)

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) report(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) all() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func newJobContext(t *testing.T, kind queue.Kind, payload any, startProgress int) (*queue.Context, *progressLog) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	job := &queue.Job{ID: uuid.NewString(), Kind: kind, Payload: raw, Progress: startProgress}
	log := &progressLog{}
	return queue.NewContext(context.Background(), job, nil, log.report), log
}

type memChunks struct {
	mu        sync.Mutex
	decisions map[string]*models.Jurisprudence
	chunks    map[uuid.UUID]*models.JurisprudenceChunk
	order     []uuid.UUID
	// failures makes the next n writes fail before touching anything
	failures int
}

func newMemChunks() *memChunks {
	return &memChunks{decisions: map[string]*models.Jurisprudence{}, chunks: map[uuid.UUID]*models.JurisprudenceChunk{}}
}

func (m *memChunks) InsertIfAbsent(_ context.Context, j *models.Jurisprudence) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.decisions[j.DedupKey()]; ok {
		return false, nil
	}
	j.ID = uuid.New()
	cp := *j
	m.decisions[j.DedupKey()] = &cp
	return true, nil
}

func (m *memChunks) InsertWithChunks(_ context.Context, j *models.Jurisprudence, chunks []*models.JurisprudenceChunk) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return false, errors.New("connection reset")
	}
	if _, ok := m.decisions[j.DedupKey()]; ok {
		return false, nil
	}
	j.ID = uuid.New()
	cp := *j
	m.decisions[j.DedupKey()] = &cp
	for _, c := range chunks {
		c.ID = uuid.New()
		c.JurisprudenceID = j.ID
		cc := *c
		m.chunks[c.ID] = &cc
		m.order = append(m.order, c.ID)
	}
	return true, nil
}

func (m *memChunks) chunksOf(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[key]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range m.chunks {
		if c.JurisprudenceID == d.ID {
			n++
		}
	}
	return n
}

func (m *memChunks) UpsertChunks(_ context.Context, chunks []*models.JurisprudenceChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		c.ID = uuid.New()
		cp := *c
		m.chunks[c.ID] = &cp
		m.order = append(m.order, c.ID)
	}
	return nil
}

func (m *memChunks) GetChunks(_ context.Context, ids []uuid.UUID) ([]*models.JurisprudenceChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JurisprudenceChunk
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memChunks) PendingChunks(_ context.Context, limit int) ([]*models.JurisprudenceChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JurisprudenceChunk
	for _, id := range m.order {
		c := m.chunks[id]
		if c.Embedding == nil && len(out) < limit {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memChunks) SetEmbedding(_ context.Context, chunkID uuid.UUID, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[chunkID]
	if !ok {
		return errors.New("no such chunk")
	}
	c.Embedding = embedding
	return nil
}

func (m *memChunks) embedded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.chunks {
		if len(c.Embedding) == models.EmbeddingDimensions {
			n++
		}
	}
	return n
}

type enqueued struct {
	kind    queue.Kind
	payload any
	key     string
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, kind queue.Kind, payload any, key string) (*queue.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.jobs = append(r.jobs, enqueued{kind: kind, payload: payload, key: key})
	return &queue.Job{ID: uuid.NewString(), Kind: kind, Status: models.JobStatusWaiting}, nil
}

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	raw, ok := m[location]
	if !ok {
		return nil, errors.New("not found: " + location)
	}
	return raw, nil
}

// flakyEmbedder fails for texts listed in failOn
type flakyEmbedder struct {
	failOn map[string]bool
}

func (f flakyEmbedder) Name() string { return "flaky" }

func (f flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if f.failOn[t] {
			return nil, errors.New("quota exceeded")
		}
	}
	return ai.MockEmbedder{}.Embed(ctx, texts)
}

type staticEmbedders struct {
	e ai.Embedder
}

func (s staticEmbedders) Embedder(string) (ai.Embedder, error) { return s.e, nil }

type memArchive struct {
	mu      sync.Mutex
	records []*models.JobRecord
}

func (m *memArchive) Save(_ context.Context, rec *models.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func sortedInts(v []int) bool {
	return sort.IntsAreSorted(v)
}
