package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/repository"
)

// The store interfaces below are satisfied by the pgx repositories in
// package repository. Services depend on them so tests can use fakes.

type CaseStore interface {
	Create(ctx context.Context, c *models.Case) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Case, error)
	Update(ctx context.Context, c *models.Case) error
	List(ctx context.Context, f models.CaseFilter) ([]*models.Case, int, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ArchiveAbandonedDrafts(ctx context.Context, before time.Time) (int64, error)
}

type ThesisStore interface {
	ReplaceSuggestions(ctx context.Context, caseID uuid.UUID, theses []*models.Thesis) error
	Create(ctx context.Context, t *models.Thesis) error
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Thesis, error)
	SetSelected(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) error
	UpdateReview(ctx context.Context, caseID, id uuid.UUID, status models.ReviewStatus) (*models.Thesis, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *models.LegalDocument, initial *models.DocumentVersion) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.LegalDocument, error)
	LatestForCase(ctx context.Context, tenantID, caseID uuid.UUID) (*models.LegalDocument, error)
	List(ctx context.Context, f models.DocumentFilter) ([]*models.LegalDocument, int, error)
	Mutate(ctx context.Context, tenantID, id uuid.UUID, fn repository.DocumentMutation) (*models.LegalDocument, error)
	ListVersions(ctx context.Context, tenantID, documentID uuid.UUID, limit, offset int) ([]*models.DocumentVersion, int, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

type JurisprudenceStore interface {
	InsertIfAbsent(ctx context.Context, j *models.Jurisprudence) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Jurisprudence, error)
	Search(ctx context.Context, f models.JurisprudenceFilter) ([]*models.Jurisprudence, int, error)
	Tribunals(ctx context.Context) ([]string, error)
	UpsertChunks(ctx context.Context, chunks []*models.JurisprudenceChunk) error
	GetChunks(ctx context.Context, ids []uuid.UUID) ([]*models.JurisprudenceChunk, error)
	PendingChunks(ctx context.Context, limit int) ([]*models.JurisprudenceChunk, error)
	SetEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error
	SearchSimilar(ctx context.Context, embedding []float32, tribunal string, limit int) ([]*models.JurisprudenceChunk, error)
	AddCitation(ctx context.Context, c *models.Citation) error
	ListCitations(ctx context.Context, caseID uuid.UUID) ([]*models.Citation, error)
}

type AuditStore interface {
	LogAI(ctx context.Context, l *models.AuditLog) error
	Track(ctx context.Context, e *models.MetricsEvent) error
}

type AuthStore interface {
	Signup(ctx context.Context, tenant *models.Tenant, user *models.User) (*models.Membership, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	PrimaryMembership(ctx context.Context, userID uuid.UUID) (*models.Membership, error)
}

type JobRecordStore interface {
	Save(ctx context.Context, job *models.JobRecord) error
	GetByID(ctx context.Context, id string) (*models.JobRecord, error)
}

// ProviderResolver returns an AI provider by name; empty selects the default.
// *ai.Registry implements it.
type ProviderResolver interface {
	Provider(name string) (ai.Provider, error)
}

// EmbedderResolver returns an embedding backend by provider name
type EmbedderResolver interface {
	Embedder(name string) (ai.Embedder, error)
}

var (
	_ ProviderResolver   = (*ai.Registry)(nil)
	_ EmbedderResolver   = (*ai.Registry)(nil)
	_ CaseStore          = (*repository.CaseRepository)(nil)
	_ ThesisStore        = (*repository.ThesisRepository)(nil)
	_ DocumentStore      = (*repository.DocumentRepository)(nil)
	_ JurisprudenceStore = (*repository.JurisprudenceRepository)(nil)
	_ AuditStore         = (*repository.AuditRepository)(nil)
	_ AuthStore          = (*repository.AuthRepository)(nil)
	_ JobRecordStore     = (*repository.JobRecordRepository)(nil)
)
