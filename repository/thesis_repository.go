package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/models"
)

// ThesisRepository handles database operations for theses.
// Callers check case ownership before touching a case's theses.
type ThesisRepository struct {
	db *pgxpool.Pool
}

// NewThesisRepository creates a new thesis repository
func NewThesisRepository(db *pgxpool.Pool) *ThesisRepository {
	return &ThesisRepository{db: db}
}

const thesisColumns = `id, case_id, category, title, content, selected, order_index,
	ai_generated, review_status, created_at, updated_at`

func scanThesis(row pgx.Row) (*models.Thesis, error) {
	t := &models.Thesis{}
	err := row.Scan(
		&t.ID,
		&t.CaseID,
		&t.Category,
		&t.Title,
		&t.Content,
		&t.Selected,
		&t.OrderIndex,
		&t.AIGenerated,
		&t.ReviewStatus,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

func insertThesis(ctx context.Context, db DBTX, t *models.Thesis) error {
	query := `
		INSERT INTO theses (
			case_id, category, title, content, selected, order_index, ai_generated, review_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return db.QueryRow(
		ctx, query,
		t.CaseID,
		t.Category,
		t.Title,
		t.Content,
		t.Selected,
		t.OrderIndex,
		t.AIGenerated,
		t.ReviewStatus,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// ReplaceSuggestions drops the case's AI-generated theses and inserts the new
// ones after any manually written theses, in a single transaction
func (r *ThesisRepository) ReplaceSuggestions(ctx context.Context, caseID uuid.UUID, theses []*models.Thesis) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM theses WHERE case_id = $1 AND ai_generated`, caseID); err != nil {
			return err
		}
		var next int
		err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(order_index) + 1, 0) FROM theses WHERE case_id = $1`, caseID).Scan(&next)
		if err != nil {
			return err
		}
		for i, t := range theses {
			t.CaseID = caseID
			t.OrderIndex = next + i
			if err := insertThesis(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Create appends a thesis at the end of the case's order
func (r *ThesisRepository) Create(ctx context.Context, t *models.Thesis) error {
	query := `
		INSERT INTO theses (
			case_id, category, title, content, selected, order_index, ai_generated, review_status
		) VALUES (
			$1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(order_index) + 1, 0) FROM theses WHERE case_id = $1),
			$6, $7
		)
		RETURNING id, order_index, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		t.CaseID,
		t.Category,
		t.Title,
		t.Content,
		t.Selected,
		t.AIGenerated,
		t.ReviewStatus,
	).Scan(&t.ID, &t.OrderIndex, &t.CreatedAt, &t.UpdatedAt)
}

// ListByCase returns the case's theses in order
func (r *ThesisRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Thesis, error) {
	rows, err := r.db.Query(ctx, `SELECT `+thesisColumns+` FROM theses WHERE case_id = $1 ORDER BY order_index`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var theses []*models.Thesis
	for rows.Next() {
		t, err := scanThesis(rows)
		if err != nil {
			return nil, err
		}
		theses = append(theses, t)
	}
	return theses, rows.Err()
}

// SetSelected marks exactly ids as selected within the case
func (r *ThesisRepository) SetSelected(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) error {
	query := `
		UPDATE theses SET
			selected = (id = ANY($2)),
			updated_at = NOW()
		WHERE case_id = $1`

	_, err := r.db.Exec(ctx, query, caseID, ids)
	return err
}

// UpdateReview sets the review status of one thesis
func (r *ThesisRepository) UpdateReview(ctx context.Context, caseID, id uuid.UUID, status models.ReviewStatus) (*models.Thesis, error) {
	query := `
		UPDATE theses SET review_status = $3, updated_at = NOW()
		WHERE id = $1 AND case_id = $2
		RETURNING ` + thesisColumns

	t, err := scanThesis(r.db.QueryRow(ctx, query, id, caseID, status))
	if err != nil {
		return nil, notFound(err, "thesis")
	}
	return t, nil
}
