package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/storage"
)

// FileStore looks up recorded export artifacts
type FileStore interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.File, error)
	GetByStoragePath(ctx context.Context, tenantID uuid.UUID, path string) (*models.File, error)
	ListByDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*models.File, error)
}

// FileHandler streams export artifacts of the caller's tenant
type FileHandler struct {
	files   FileStore
	storage storage.Storage
}

func NewFileHandler(files FileStore, store storage.Storage) *FileHandler {
	return &FileHandler{files: files, storage: store}
}

// GetFile handles GET /api/files/*path. The path is either a file id or
// the storage path returned in an export location.
func (h *FileHandler) GetFile(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("path"), "/")
	tenantID, _ := principal(c)

	var (
		file *models.File
		err  error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		file, err = h.files.GetByID(c.Request.Context(), tenantID, id)
	} else {
		file, err = h.files.GetByStoragePath(c.Request.Context(), tenantID, ref)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	reader, err := h.storage.Download(c.Request.Context(), file.StoragePath)
	if err != nil {
		respondError(c, fmt.Errorf("download %s: %w", file.StoragePath, err))
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, reader, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.Filename),
	})
}

// ListDocumentFiles handles GET /api/documents/:id/files
func (h *FileHandler) ListDocumentFiles(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	files, err := h.files.ListByDocument(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, files)
}
