// Package jobs holds the queue handlers of the background pipeline:
// document generation, jurisprudence ingestion and chunk embedding.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/service"
)

// DraftGenerator is satisfied by *service.DraftService
type DraftGenerator interface {
	GenerateDraft(ctx context.Context, req service.GenerateDraftRequest) (*service.GenerateDraftResult, error)
}

// ChunkStore is the slice of the jurisprudence repository the ingestion and
// embedding handlers use
type ChunkStore interface {
	InsertWithChunks(ctx context.Context, j *models.Jurisprudence, chunks []*models.JurisprudenceChunk) (bool, error)
	GetChunks(ctx context.Context, ids []uuid.UUID) ([]*models.JurisprudenceChunk, error)
	PendingChunks(ctx context.Context, limit int) ([]*models.JurisprudenceChunk, error)
	SetEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error
}

// JobArchive keeps finished jobs after the queue prunes them
type JobArchive interface {
	Save(ctx context.Context, job *models.JobRecord) error
}

// Register adds every non-nil handler to the registry
func Register(r *queue.Registry, handlers ...queue.Handler) error {
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if err := r.Register(h); err != nil {
			return fmt.Errorf("register %s: %w", h.Kind(), err)
		}
	}
	return nil
}

// ArchiveHook copies jobs reaching a terminal state into the archive.
// Failures are logged; the queue state is already final.
func ArchiveHook(store JobArchive, log *logger.Logger) queue.Hook {
	if log == nil {
		log = logger.Nop()
	}
	return func(ctx context.Context, job *queue.Job) {
		if err := store.Save(ctx, job.Record()); err != nil {
			log.Error("Failed to archive job", "job_id", job.ID, "kind", job.Kind, "status", job.Status, "error", err)
		}
	}
}
