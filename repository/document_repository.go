package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

// DocumentMutation edits a locked document in place. A non-nil version is
// stored in the same transaction as the document write.
type DocumentMutation func(doc *models.LegalDocument) (*models.DocumentVersion, error)

// DocumentRepository handles legal documents and their version history
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, case_id, tenant_id, title, document_type, status, sections,
	content_html, revision, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.LegalDocument, error) {
	d := &models.LegalDocument{}
	err := row.Scan(
		&d.ID,
		&d.CaseID,
		&d.TenantID,
		&d.Title,
		&d.DocumentType,
		&d.Status,
		&d.Sections,
		&d.ContentHTML,
		&d.Revision,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}

func insertVersion(ctx context.Context, db DBTX, v *models.DocumentVersion) error {
	query := `
		INSERT INTO document_versions (document_id, revision, content_html, sections, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return db.QueryRow(ctx, query, v.DocumentID, v.Revision, v.ContentHTML, v.Sections, v.CreatedBy).
		Scan(&v.ID, &v.CreatedAt)
}

// Create inserts a document and, when initial is non-nil, its first version
// in one transaction
func (r *DocumentRepository) Create(ctx context.Context, doc *models.LegalDocument, initial *models.DocumentVersion) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO legal_documents (
				case_id, tenant_id, title, document_type, status, sections,
				content_html, revision, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRow(
			ctx, query,
			doc.CaseID,
			doc.TenantID,
			doc.Title,
			doc.DocumentType,
			doc.Status,
			doc.Sections,
			doc.ContentHTML,
			doc.Revision,
			doc.CreatedBy,
		).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return err
		}
		if initial == nil {
			return nil
		}
		initial.DocumentID = doc.ID
		return insertVersion(ctx, tx, initial)
	})
}

// GetByID retrieves a document owned by tenantID
func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.LegalDocument, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM legal_documents WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFound(err, "document")
	}
	return d, nil
}

// LatestForCase returns the most recently created document of a case
func (r *DocumentRepository) LatestForCase(ctx context.Context, tenantID, caseID uuid.UUID) (*models.LegalDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM legal_documents
		WHERE case_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	d, err := scanDocument(r.db.QueryRow(ctx, query, caseID, tenantID))
	if err != nil {
		return nil, notFound(err, "document")
	}
	return d, nil
}

// List returns one page of documents and the total matching count
func (r *DocumentRepository) List(ctx context.Context, f models.DocumentFilter) ([]*models.LegalDocument, int, error) {
	b := &queryBuilder{}
	b.add("tenant_id = ?", f.TenantID)
	if f.CaseID != nil {
		b.add("case_id = ?", *f.CaseID)
	}
	if f.Status != nil {
		b.add("status = ?", *f.Status)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM legal_documents`+b.clause(), b.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + documentColumns + ` FROM legal_documents` + b.clause() + ` ORDER BY updated_at DESC`
	query += b.page(f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []*models.LegalDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

// Mutate locks the document row, applies fn and persists the result together
// with the version fn returns, if any
func (r *DocumentRepository) Mutate(ctx context.Context, tenantID, id uuid.UUID, fn DocumentMutation) (*models.LegalDocument, error) {
	var out *models.LegalDocument
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		doc, err := scanDocument(tx.QueryRow(ctx,
			`SELECT `+documentColumns+` FROM legal_documents WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, id, tenantID))
		if err != nil {
			return notFound(err, "document")
		}

		version, err := fn(doc)
		if err != nil {
			return err
		}
		if version != nil {
			version.DocumentID = doc.ID
			if err := insertVersion(ctx, tx, version); err != nil {
				return err
			}
		}

		query := `
			UPDATE legal_documents SET
				title = $3,
				document_type = $4,
				status = $5,
				sections = $6,
				content_html = $7,
				revision = $8,
				updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2
			RETURNING updated_at`

		err = tx.QueryRow(
			ctx, query,
			doc.ID,
			doc.TenantID,
			doc.Title,
			doc.DocumentType,
			doc.Status,
			doc.Sections,
			doc.ContentHTML,
			doc.Revision,
		).Scan(&doc.UpdatedAt)
		if err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListVersions returns a page of versions, newest first, and the total count
func (r *DocumentRepository) ListVersions(ctx context.Context, tenantID, documentID uuid.UUID, limit, offset int) ([]*models.DocumentVersion, int, error) {
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM document_versions v
		JOIN legal_documents d ON d.id = v.document_id
		WHERE v.document_id = $1 AND d.tenant_id = $2`, documentID, tenantID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT v.id, v.document_id, v.revision, v.content_html, v.sections, v.created_by, v.created_at
		FROM document_versions v
		JOIN legal_documents d ON d.id = v.document_id
		WHERE v.document_id = $1 AND d.tenant_id = $2
		ORDER BY v.created_at DESC, v.revision DESC
		LIMIT $3 OFFSET $4`, documentID, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var versions []*models.DocumentVersion
	for rows.Next() {
		v := &models.DocumentVersion{}
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Revision, &v.ContentHTML, &v.Sections, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, 0, err
		}
		versions = append(versions, v)
	}
	return versions, total, rows.Err()
}

// Delete removes a document; its versions go with it
func (r *DocumentRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM legal_documents WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document")
	}
	return nil
}
