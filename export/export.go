// Package export renders documents to PDF, DOCX or plain text, stores the
// artifact and records it as a tenant file.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/storage"
)

// Request asks for one document in one format
type Request struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Document *models.LegalDocument
	Format   models.ExportFormat
}

// Artifact references a stored export
type Artifact struct {
	FileID   uuid.UUID `json:"fileId"`
	Name     string    `json:"name"`
	Location string    `json:"location"`
	MimeType string    `json:"mimeType"`
	Size     int64     `json:"size"`
}

// Renderer turns sanitized document HTML into file bytes
type Renderer interface {
	Render(ctx context.Context, title, body string) ([]byte, error)
}

// FileStore records stored artifacts
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
}

// Exporter renders, uploads and records document exports
type Exporter struct {
	storage   storage.Storage
	files     FileStore
	renderers map[models.ExportFormat]Renderer
	policy    *bluemonday.Policy
	now       func() time.Time
	log       *logger.Logger
}

type Option func(*Exporter)

// WithFiles records each artifact through store
func WithFiles(store FileStore) Option {
	return func(e *Exporter) { e.files = store }
}

// WithRenderer replaces the renderer of a format
func WithRenderer(format models.ExportFormat, r Renderer) Option {
	return func(e *Exporter) { e.renderers[format] = r }
}

// WithClock overrides the clock used in file names
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(e *Exporter) { e.log = l }
}

// New creates an exporter writing to store. PDF uses headless Chrome at
// chromePath, or the default browser lookup when empty.
func New(store storage.Storage, chromePath string, opts ...Option) *Exporter {
	e := &Exporter{
		storage: store,
		renderers: map[models.ExportFormat]Renderer{
			models.ExportPDF:  NewPDFRenderer(chromePath),
			models.ExportDOCX: DOCXRenderer{},
			models.ExportTXT:  TextRenderer{},
		},
		policy: bluemonday.UGCPolicy(),
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "Exporter")
	return e
}

// Export renders req.Document and stores the artifact
func (e *Exporter) Export(ctx context.Context, req Request) (*Artifact, error) {
	if e.storage == nil {
		return nil, errors.New("storage not set")
	}
	if req.Document == nil {
		return nil, errors.New("no document to export")
	}
	r, ok := e.renderers[req.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q", req.Format)
	}

	doc := req.Document
	body := e.policy.Sanitize(doc.ContentHTML)
	data, err := r.Render(ctx, doc.Title, body)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", req.Format, err)
	}

	fileID := uuid.New()
	name := FileName(doc.Title, req.Format, e.now())
	path, err := e.storage.Upload(ctx, fileID, name, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}

	mime := storage.ContentType(name)
	if e.files != nil {
		docID := doc.ID
		rec := &models.File{
			ID:          fileID,
			TenantID:    req.TenantID,
			UserID:      req.UserID,
			DocumentID:  &docID,
			Format:      req.Format,
			Filename:    name,
			MimeType:    mime,
			Size:        int64(len(data)),
			StoragePath: path,
		}
		if err := e.files.Create(ctx, rec); err != nil {
			if derr := e.storage.Delete(ctx, path); derr != nil {
				e.log.Warn("Failed to remove orphaned export", "path", path, "error", derr)
			}
			return nil, fmt.Errorf("record export: %w", err)
		}
	}

	location, err := e.storage.Locate(ctx, path)
	if err != nil {
		return nil, err
	}
	e.log.Info("Document exported", "document_id", doc.ID, "format", req.Format, "size", len(data))
	return &Artifact{FileID: fileID, Name: name, Location: location, MimeType: mime, Size: int64(len(data))}, nil
}

// FileName builds "<title_with_underscores>_<timestamp>.<format>"
func FileName(title string, format models.ExportFormat, at time.Time) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	base := strings.TrimSuffix(b.String(), "_")
	if base == "" {
		base = "documento"
	}
	return fmt.Sprintf("%s_%s.%s", base, at.UTC().Format("20060102-150405"), format)
}
