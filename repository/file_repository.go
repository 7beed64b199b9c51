package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

// FileRepository handles exported file records
type FileRepository struct {
	db *pgxpool.Pool
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *pgxpool.Pool) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, tenant_id, user_id, document_id, format, filename, mime_type, size, storage_path, created_at`

func scanFile(row pgx.Row) (*models.File, error) {
	f := &models.File{}
	err := row.Scan(
		&f.ID,
		&f.TenantID,
		&f.UserID,
		&f.DocumentID,
		&f.Format,
		&f.Filename,
		&f.MimeType,
		&f.Size,
		&f.StoragePath,
		&f.CreatedAt,
	)
	return f, err
}

// Create records a stored file. The id is chosen by the caller because the
// storage key is derived from it before the row exists.
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (
			id, tenant_id, user_id, document_id, format, filename, mime_type, size, storage_path
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	return r.db.QueryRow(
		ctx, query,
		file.ID,
		file.TenantID,
		file.UserID,
		file.DocumentID,
		file.Format,
		file.Filename,
		file.MimeType,
		file.Size,
		file.StoragePath,
	).Scan(&file.CreatedAt)
}

// GetByID retrieves a file owned by tenantID
func (r *FileRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFound(err, "file")
	}
	return f, nil
}

// GetByStoragePath resolves a storage key back to its record
func (r *FileRepository) GetByStoragePath(ctx context.Context, tenantID uuid.UUID, path string) (*models.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE storage_path = $1 AND tenant_id = $2`, path, tenantID))
	if err != nil {
		return nil, notFound(err, "file")
	}
	return f, nil
}

// ListByDocument retrieves all exports of a document, newest first
func (r *FileRepository) ListByDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE document_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, documentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Delete deletes a file record
func (r *FileRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("file")
	}
	return nil
}
