package jobs

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luantaraschi/petichat-definitive/metrics"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/service"
)

// DefaultBackfillBatch is how many pending chunks a job without explicit
// chunk ids embeds
const DefaultBackfillBatch = 200

// EmbeddingsPayload lists the chunks to embed. Without ChunkIDs the job
// picks up chunks that still have no embedding.
type EmbeddingsPayload struct {
	JurisprudenceID uuid.UUID   `json:"jurisprudenceId,omitempty"`
	ChunkIDs        []uuid.UUID `json:"chunkIds,omitempty"`
	TenantID        *uuid.UUID  `json:"tenantId,omitempty"`
}

// EmbeddingsResult is stored on a completed embedding job
type EmbeddingsResult struct {
	Success         bool      `json:"success"`
	JurisprudenceID uuid.UUID `json:"jurisprudenceId,omitempty"`
	ProcessedChunks int       `json:"processedChunks"`
	FailedChunks    int       `json:"failedChunks"`
	CompletedAt     time.Time `json:"completedAt"`
}

// EmbeddingsHandler embeds chunk text and stores the vectors. Provider
// calls are rate limited and fanned out over a small pool.
type EmbeddingsHandler struct {
	store     ChunkStore
	embedders service.EmbedderResolver
	provider  string
	limiter   *rate.Limiter
	parallel  int
	batch     int
	now       func() time.Time
}

type EmbeddingsOption func(*EmbeddingsHandler)

// EmbeddingsWithRateLimit caps provider calls per second
func EmbeddingsWithRateLimit(perSecond float64) EmbeddingsOption {
	return func(h *EmbeddingsHandler) {
		if perSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// EmbeddingsWithParallelism sets how many chunks are embedded at once
func EmbeddingsWithParallelism(n int) EmbeddingsOption {
	return func(h *EmbeddingsHandler) {
		if n > 0 {
			h.parallel = n
		}
	}
}

// EmbeddingsWithBackfillBatch sets the pending-chunk batch size
func EmbeddingsWithBackfillBatch(n int) EmbeddingsOption {
	return func(h *EmbeddingsHandler) {
		if n > 0 {
			h.batch = n
		}
	}
}

func NewEmbeddingsHandler(store ChunkStore, embedders service.EmbedderResolver, provider string, opts ...EmbeddingsOption) *EmbeddingsHandler {
	h := &EmbeddingsHandler{
		store:     store,
		embedders: embedders,
		provider:  provider,
		limiter:   rate.NewLimiter(rate.Limit(5), 1),
		parallel:  4,
		batch:     DefaultBackfillBatch,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *EmbeddingsHandler) Kind() queue.Kind { return queue.KindGenerateEmbeddings }

func (h *EmbeddingsHandler) Run(jc *queue.Context) (any, error) {
	if h.store == nil || h.embedders == nil {
		return nil, errors.New("embedding handler not configured")
	}
	var p EmbeddingsPayload
	if err := jc.Decode(&p); err != nil {
		return nil, err
	}
	ctx := jc.Context()

	var chunks []*models.JurisprudenceChunk
	var err error
	if len(p.ChunkIDs) > 0 {
		chunks, err = h.store.GetChunks(ctx, p.ChunkIDs)
	} else {
		chunks, err = h.store.PendingChunks(ctx, h.batch)
	}
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	embedder, err := h.embedders.Embedder(h.provider)
	if err != nil {
		return nil, err
	}
	jc.Progress(10)

	var done, failed atomic.Int64
	total := len(chunks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallel)
	for _, c := range chunks {
		g.Go(func() error {
			if err := h.limiter.Wait(gctx); err != nil {
				return err
			}
			vecs, err := embedder.Embed(gctx, []string{c.Content})
			if err == nil && len(vecs) != 1 {
				err = fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
			}
			if err == nil {
				err = h.store.SetEmbedding(gctx, c.ID, vecs[0])
			}
			if err != nil {
				failed.Add(1)
				metrics.ChunkEmbedded(false)
				jc.Log.Warn("Chunk embedding failed", "chunk_id", c.ID, "error", err)
			} else {
				metrics.ChunkEmbedded(true)
			}
			n := done.Add(1)
			jc.Progress(10 + int(90*n)/total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := EmbeddingsResult{
		JurisprudenceID: p.JurisprudenceID,
		ProcessedChunks: total - int(failed.Load()),
		FailedChunks:    int(failed.Load()),
		CompletedAt:     h.now().UTC(),
	}
	if total > 0 && res.ProcessedChunks == 0 {
		return nil, fmt.Errorf("all %d chunks failed to embed", total)
	}
	res.Success = true
	return res, nil
}
