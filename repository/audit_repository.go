package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/models"
)

// AuditRepository stores AI usage logs and product metrics events
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// LogAI inserts an AI usage row
func (r *AuditRepository) LogAI(ctx context.Context, l *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			tenant_id, user_id, case_id, document_id, action, provider,
			input_tokens, output_tokens, cost_cents, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	return r.db.QueryRow(
		ctx, query,
		l.TenantID,
		l.UserID,
		l.CaseID,
		l.DocumentID,
		l.Action,
		l.Provider,
		l.InputTokens,
		l.OutputTokens,
		l.CostCents,
		l.Metadata,
	).Scan(&l.ID, &l.CreatedAt)
}

// Track inserts a product metrics event
func (r *AuditRepository) Track(ctx context.Context, e *models.MetricsEvent) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO metrics_events (tenant_id, user_id, name, properties)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.TenantID, e.UserID, e.Name, e.Properties,
	).Scan(&e.ID, &e.CreatedAt)
}

// UsageSince sums token usage of a tenant since a point in time
func (r *AuditRepository) UsageSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (inputTokens, outputTokens int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM audit_logs WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since,
	).Scan(&inputTokens, &outputTokens)
	return inputTokens, outputTokens, err
}
