package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/models"
)

// JurisprudenceRepository handles precedents, their chunks and citations.
// Precedents are global: they are not scoped by tenant.
type JurisprudenceRepository struct {
	db *pgxpool.Pool
}

// NewJurisprudenceRepository creates a new jurisprudence repository
func NewJurisprudenceRepository(db *pgxpool.Pool) *JurisprudenceRepository {
	return &JurisprudenceRepository{db: db}
}

const jurisprudenceColumns = `id, tribunal, process_number, decision_date, rapporteur,
	judging_body, summary, full_text, source, external_link, created_at`

func scanJurisprudence(row pgx.Row) (*models.Jurisprudence, error) {
	j := &models.Jurisprudence{}
	err := row.Scan(
		&j.ID,
		&j.Tribunal,
		&j.ProcessNumber,
		&j.DecisionDate,
		&j.Rapporteur,
		&j.JudgingBody,
		&j.Summary,
		&j.FullText,
		&j.Source,
		&j.ExternalLink,
		&j.CreatedAt,
	)
	return j, err
}

const insertJurisprudenceQuery = `
	INSERT INTO jurisprudence (
		tribunal, process_number, decision_date, rapporteur, judging_body,
		summary, full_text, source, external_link
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (tribunal, process_number) DO NOTHING
	RETURNING id, created_at`

const upsertChunkQuery = `
	INSERT INTO jurisprudence_chunks (jurisprudence_id, position, chunk_type, content)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (jurisprudence_id, chunk_type, position) DO UPDATE SET
		content = EXCLUDED.content,
		embedding = CASE WHEN jurisprudence_chunks.content = EXCLUDED.content
			THEN jurisprudence_chunks.embedding ELSE NULL END,
		embedded_at = CASE WHEN jurisprudence_chunks.content = EXCLUDED.content
			THEN jurisprudence_chunks.embedded_at ELSE NULL END
	RETURNING id`

// InsertIfAbsent stores j unless a record with the same tribunal and process
// number exists. It reports whether a row was inserted.
func (r *JurisprudenceRepository) InsertIfAbsent(ctx context.Context, j *models.Jurisprudence) (bool, error) {
	return insertJurisprudence(ctx, r.db, j)
}

// InsertWithChunks stores j and its chunks in one transaction, so a decision
// is never visible without its chunks. Nothing is written when a record with
// the same tribunal and process number exists.
func (r *JurisprudenceRepository) InsertWithChunks(ctx context.Context, j *models.Jurisprudence, chunks []*models.JurisprudenceChunk) (bool, error) {
	var inserted bool
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		if inserted, err = insertJurisprudence(ctx, tx, j); err != nil || !inserted {
			return err
		}
		for _, c := range chunks {
			c.JurisprudenceID = j.ID
			if err := tx.QueryRow(ctx, upsertChunkQuery, c.JurisprudenceID, c.Position, c.ChunkType, c.Content).Scan(&c.ID); err != nil {
				return fmt.Errorf("failed to store chunk %d: %w", c.Position, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertJurisprudence(ctx context.Context, db queryRower, j *models.Jurisprudence) (bool, error) {
	err := db.QueryRow(
		ctx, insertJurisprudenceQuery,
		j.Tribunal,
		j.ProcessNumber,
		j.DecisionDate,
		j.Rapporteur,
		j.JudgingBody,
		j.Summary,
		j.FullText,
		j.Source,
		j.ExternalLink,
	).Scan(&j.ID, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves one precedent
func (r *JurisprudenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Jurisprudence, error) {
	j, err := scanJurisprudence(r.db.QueryRow(ctx, `SELECT `+jurisprudenceColumns+` FROM jurisprudence WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "jurisprudence")
	}
	return j, nil
}

// Search runs a keyword search with optional tribunal and year filters
func (r *JurisprudenceRepository) Search(ctx context.Context, f models.JurisprudenceFilter) ([]*models.Jurisprudence, int, error) {
	b := &queryBuilder{}
	if f.Query != "" {
		b.add("(summary ILIKE ? OR full_text ILIKE ? OR process_number ILIKE ?)", "%"+f.Query+"%")
	}
	if f.Tribunal != "" {
		b.add("tribunal = ?", f.Tribunal)
	}
	if f.Year > 0 {
		b.add("EXTRACT(YEAR FROM decision_date) = ?", f.Year)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM jurisprudence`+b.clause(), b.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + jurisprudenceColumns + ` FROM jurisprudence` + b.clause() +
		` ORDER BY decision_date DESC NULLS LAST, created_at DESC`
	query += b.page(f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*models.Jurisprudence
	for rows.Next() {
		j, err := scanJurisprudence(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

// Tribunals lists the distinct tribunals present
func (r *JurisprudenceRepository) Tribunals(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tribunal FROM jurisprudence ORDER BY tribunal`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertChunks stores the chunks of one precedent. Re-ingesting the same
// position replaces its content and clears the stale embedding.
func (r *JurisprudenceRepository) UpsertChunks(ctx context.Context, chunks []*models.JurisprudenceChunk) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, c := range chunks {
			if err := tx.QueryRow(ctx, upsertChunkQuery, c.JurisprudenceID, c.Position, c.ChunkType, c.Content).Scan(&c.ID); err != nil {
				return fmt.Errorf("failed to store chunk %d: %w", c.Position, err)
			}
		}
		return nil
	})
}

// GetChunks loads chunks by id, skipping ids that no longer exist
func (r *JurisprudenceRepository) GetChunks(ctx context.Context, ids []uuid.UUID) ([]*models.JurisprudenceChunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, jurisprudence_id, position, chunk_type, content, embedded_at
		FROM jurisprudence_chunks
		WHERE id = ANY($1)
		ORDER BY jurisprudence_id, chunk_type, position`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// PendingChunks returns chunks that have no embedding yet
func (r *JurisprudenceRepository) PendingChunks(ctx context.Context, limit int) ([]*models.JurisprudenceChunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, jurisprudence_id, position, chunk_type, content, embedded_at
		FROM jurisprudence_chunks
		WHERE embedding IS NULL
		ORDER BY jurisprudence_id, chunk_type, position
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]*models.JurisprudenceChunk, error) {
	var out []*models.JurisprudenceChunk
	for rows.Next() {
		c := &models.JurisprudenceChunk{}
		if err := rows.Scan(&c.ID, &c.JurisprudenceID, &c.Position, &c.ChunkType, &c.Content, &c.EmbeddedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetEmbedding stores the vector for one chunk; rewriting it is harmless
func (r *JurisprudenceRepository) SetEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error {
	if len(embedding) != models.EmbeddingDimensions {
		return fmt.Errorf("embedding must be %d dimensions, got %d", models.EmbeddingDimensions, len(embedding))
	}
	_, err := r.db.Exec(ctx, `
		UPDATE jurisprudence_chunks SET embedding = $2::vector, embedded_at = $3
		WHERE id = $1`, chunkID, formatVector(embedding), time.Now())
	return err
}

// SearchSimilar returns the chunks closest to embedding by cosine distance
func (r *JurisprudenceRepository) SearchSimilar(ctx context.Context, embedding []float32, tribunal string, limit int) ([]*models.JurisprudenceChunk, error) {
	if len(embedding) != models.EmbeddingDimensions {
		return nil, fmt.Errorf("embedding must be %d dimensions, got %d", models.EmbeddingDimensions, len(embedding))
	}

	query := `
		SELECT c.id, c.jurisprudence_id, c.position, c.chunk_type, c.content, c.embedded_at,
			c.embedding <=> $1::vector AS distance
		FROM jurisprudence_chunks c
		JOIN jurisprudence j ON j.id = c.jurisprudence_id
		WHERE c.embedding IS NOT NULL
			AND ($2::text = '' OR j.tribunal = $2)
		ORDER BY c.embedding <=> $1::vector
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, formatVector(embedding), tribunal, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jurisprudence chunks: %w", err)
	}
	defer rows.Close()

	var out []*models.JurisprudenceChunk
	for rows.Next() {
		c := &models.JurisprudenceChunk{}
		if err := rows.Scan(&c.ID, &c.JurisprudenceID, &c.Position, &c.ChunkType, &c.Content, &c.EmbeddedAt, &c.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan jurisprudence chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jurisprudence chunks: %w", err)
	}
	return out, nil
}

// AddCitation links a precedent to a case; citing it again updates the excerpt
func (r *JurisprudenceRepository) AddCitation(ctx context.Context, c *models.Citation) error {
	query := `
		INSERT INTO citations (case_id, jurisprudence_id, excerpt, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id, jurisprudence_id) DO UPDATE SET
			excerpt = EXCLUDED.excerpt,
			position = EXCLUDED.position
		RETURNING id, created_at`

	return r.db.QueryRow(ctx, query, c.CaseID, c.JurisprudenceID, c.Excerpt, c.Position).Scan(&c.ID, &c.CreatedAt)
}

// ListCitations returns a case's citations with the cited tribunal and number
func (r *JurisprudenceRepository) ListCitations(ctx context.Context, caseID uuid.UUID) ([]*models.Citation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.case_id, c.jurisprudence_id, j.tribunal, j.process_number,
			c.excerpt, c.position, c.created_at
		FROM citations c
		JOIN jurisprudence j ON j.id = c.jurisprudence_id
		WHERE c.case_id = $1
		ORDER BY c.position`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Citation
	for rows.Next() {
		c := &models.Citation{}
		if err := rows.Scan(&c.ID, &c.CaseID, &c.JurisprudenceID, &c.Tribunal, &c.ProcessNumber, &c.Excerpt, &c.Position, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
