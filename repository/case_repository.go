package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

// CaseRepository handles database operations for cases.
// Every read and write is filtered by tenant.
type CaseRepository struct {
	db *pgxpool.Pool
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

const caseColumns = `id, tenant_id, owner_id, client_name, case_type, template_name,
	facts_description, status, metadata, current_step, completed_steps,
	created_at, updated_at`

func scanCase(row pgx.Row) (*models.Case, error) {
	c := &models.Case{}
	var steps []int32
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.OwnerID,
		&c.ClientName,
		&c.CaseType,
		&c.TemplateName,
		&c.FactsDescription,
		&c.Status,
		&c.Metadata,
		&c.CurrentStep,
		&steps,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.CompletedSteps = models.StepSet(toInts(steps))
	return c, nil
}

// Create inserts a case
func (r *CaseRepository) Create(ctx context.Context, c *models.Case) error {
	query := `
		INSERT INTO cases (
			tenant_id, owner_id, client_name, case_type, template_name,
			facts_description, status, metadata, current_step, completed_steps
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		c.TenantID,
		c.OwnerID,
		c.ClientName,
		c.CaseType,
		c.TemplateName,
		c.FactsDescription,
		c.Status,
		c.Metadata,
		c.CurrentStep,
		toInt32s(c.CompletedSteps),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID retrieves a case owned by tenantID
func (r *CaseRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1 AND tenant_id = $2`
	c, err := scanCase(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		return nil, notFound(err, "case")
	}
	return c, nil
}

// Update writes all mutable fields of a case
func (r *CaseRepository) Update(ctx context.Context, c *models.Case) error {
	query := `
		UPDATE cases SET
			client_name = $3,
			case_type = $4,
			template_name = $5,
			facts_description = $6,
			status = $7,
			metadata = $8,
			current_step = $9,
			completed_steps = $10,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`

	err := r.db.QueryRow(
		ctx, query,
		c.ID,
		c.TenantID,
		c.ClientName,
		c.CaseType,
		c.TemplateName,
		c.FactsDescription,
		c.Status,
		c.Metadata,
		c.CurrentStep,
		toInt32s(c.CompletedSteps),
	).Scan(&c.UpdatedAt)
	return notFound(err, "case")
}

// List returns one page of cases and the total matching count
func (r *CaseRepository) List(ctx context.Context, f models.CaseFilter) ([]*models.Case, int, error) {
	b := &queryBuilder{}
	b.add("tenant_id = ?", f.TenantID)
	if f.OwnerID != nil {
		b.add("owner_id = ?", *f.OwnerID)
	}
	if f.Status != nil {
		b.add("status = ?", *f.Status)
	}
	if f.Search != "" {
		b.add("client_name ILIKE ?", "%"+f.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cases`+b.clause(), b.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + caseColumns + ` FROM cases` + b.clause() + ` ORDER BY updated_at DESC`
	query += b.page(f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		cases = append(cases, c)
	}
	return cases, total, rows.Err()
}

// Delete removes a case and, through cascades, its theses, citations and documents
func (r *CaseRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cases WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("case")
	}
	return nil
}

// ArchiveAbandonedDrafts archives draft cases untouched since before that never
// produced a document, returning how many were archived
func (r *CaseRepository) ArchiveAbandonedDrafts(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE cases SET status = $1, updated_at = NOW()
		WHERE status = $2
			AND updated_at < $3
			AND NOT EXISTS (SELECT 1 FROM legal_documents d WHERE d.case_id = cases.id)`

	tag, err := r.db.Exec(ctx, query, models.CaseStatusArchived, models.CaseStatusDraft, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
