package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/service"
)

// DocumentHandler serves documents, their versions and exports
type DocumentHandler struct {
	docs *service.DocumentService
}

func NewDocumentHandler(docs *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type createDocumentBody struct {
	CaseID       string              `json:"caseId" binding:"required"`
	Title        string              `json:"title" binding:"required"`
	DocumentType models.DocumentType `json:"documentType"`
}

// CreateDocument handles POST /api/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var body createDocumentBody
	if !bindJSON(c, &body) {
		return
	}
	caseID, err := optionalUUID("caseId", &body.CaseID)
	if err != nil {
		respondError(c, err)
		return
	}
	tenantID, userID := principal(c)
	doc, err := h.docs.CreateDocument(c.Request.Context(), service.CreateDocumentRequest{
		TenantID:     tenantID,
		UserID:       userID,
		CaseID:       *caseID,
		Title:        body.Title,
		DocumentType: body.DocumentType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, doc)
}

// ListDocuments handles GET /api/documents?caseId=&status=&page=&limit=
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	tenantID, _ := principal(c)
	req := service.ListDocumentsRequest{TenantID: tenantID, Page: pageQuery(c)}
	if raw := c.Query("caseId"); raw != "" {
		caseID, err := optionalUUID("caseId", &raw)
		if err != nil {
			respondError(c, err)
			return
		}
		req.CaseID = caseID
	}
	if s := c.Query("status"); s != "" {
		status := models.DocumentStatus(s)
		req.Status = &status
	}
	res, err := h.docs.ListDocuments(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       res.Documents,
		"pagination": res.Pagination,
	})
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	res, err := h.docs.GetDocument(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"document":       res.Document,
		"recentVersions": res.RecentVersions,
	})
}

// UpdateDocumentBody carries the fields to change. With expectedRevision
// the write fails with CONFLICT when the document moved on.
type UpdateDocumentBody struct {
	Title            *string                 `json:"title"`
	ContentHTML      *string                 `json:"contentHtml"`
	Sections         models.DocumentSections `json:"sections"`
	Status           *models.DocumentStatus  `json:"status"`
	ExpectedRevision *int                    `json:"expectedRevision"`
}

// UpdateDocument handles PATCH /api/documents/:id
func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body UpdateDocumentBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, userID := principal(c)
	res, err := h.docs.UpdateDocument(c.Request.Context(), service.UpdateDocumentRequest{
		TenantID:         tenantID,
		UserID:           userID,
		ID:               id,
		Title:            body.Title,
		ContentHTML:      body.ContentHTML,
		Sections:         body.Sections,
		Status:           body.Status,
		ExpectedRevision: body.ExpectedRevision,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"document": res.Document, "version": res.Version})
}

// DeleteDocument handles DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	if err := h.docs.DeleteDocument(c.Request.Context(), tenantID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListVersions handles GET /api/documents/:id/versions, newest first
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	res, err := h.docs.ListVersions(c.Request.Context(), service.ListVersionsRequest{TenantID: tenantID, DocumentID: id, Page: pageQuery(c)})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       res.Versions,
		"pagination": res.Pagination,
	})
}

// CreateVersion handles POST /api/documents/:id/versions
func (h *DocumentHandler) CreateVersion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, userID := principal(c)
	v, err := h.docs.CreateVersion(c.Request.Context(), tenantID, userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, v)
}

type exportBody struct {
	Format models.ExportFormat `json:"format" binding:"required"`
}

// ExportDocument handles POST /api/documents/:id/export
func (h *DocumentHandler) ExportDocument(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body exportBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, userID := principal(c)
	artifact, err := h.docs.ExportDocument(c.Request.Context(), service.ExportDocumentRequest{
		TenantID: tenantID,
		UserID:   userID,
		ID:       id,
		Format:   body.Format,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, artifact)
}
