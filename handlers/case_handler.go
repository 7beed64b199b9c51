package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/service"
)

// CaseHandler handles HTTP requests for cases, their theses, citations and
// draft generation
type CaseHandler struct {
	cases         *service.CaseService
	theses        *service.ThesisService
	drafts        *service.DraftService
	jurisprudence *service.JurisprudenceService
}

func NewCaseHandler(cases *service.CaseService, theses *service.ThesisService, drafts *service.DraftService, jurisprudence *service.JurisprudenceService) *CaseHandler {
	return &CaseHandler{
		cases:         cases,
		theses:        theses,
		drafts:        drafts,
		jurisprudence: jurisprudence,
	}
}

// CreateCaseBody is the request body for creating a case
type CreateCaseBody struct {
	ClientName       string              `json:"clientName" binding:"required"`
	CaseType         string              `json:"caseType" binding:"required"`
	TemplateName     *string             `json:"templateName"`
	FactsDescription string              `json:"factsDescription" binding:"required"`
	Metadata         models.CaseMetadata `json:"metadata"`
}

// CreateCase handles POST /api/cases
func (h *CaseHandler) CreateCase(c *gin.Context) {
	var body CreateCaseBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, userID := principal(c)
	res, err := h.cases.CreateCase(c.Request.Context(), service.CreateCaseRequest{
		TenantID:         tenantID,
		OwnerID:          userID,
		ClientName:       body.ClientName,
		CaseType:         body.CaseType,
		TemplateName:     body.TemplateName,
		FactsDescription: body.FactsDescription,
		Metadata:         body.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, res.Case)
}

// ListCases handles GET /api/cases?status=&search=&mine=&page=&limit=
func (h *CaseHandler) ListCases(c *gin.Context) {
	tenantID, userID := principal(c)
	req := service.ListCasesRequest{
		TenantID: tenantID,
		Search:   c.Query("search"),
		Page:     pageQuery(c),
	}
	if s := c.Query("status"); s != "" {
		status := models.CaseStatus(s)
		req.Status = &status
	}
	if c.Query("mine") == "true" {
		req.OwnerID = &userID
	}
	res, err := h.cases.ListCases(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       res.Cases,
		"pagination": res.Pagination,
	})
}

// GetCase handles GET /api/cases/:id
func (h *CaseHandler) GetCase(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	res, err := h.cases.GetCase(c.Request.Context(), service.GetCaseRequest{TenantID: tenantID, ID: id})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, res.Case)
}

// UpdateCaseBody carries the fields to change; absent fields are kept
type UpdateCaseBody struct {
	ClientName       *string             `json:"clientName"`
	CaseType         *string             `json:"caseType"`
	TemplateName     *string             `json:"templateName"`
	FactsDescription *string             `json:"factsDescription"`
	Status           *models.CaseStatus  `json:"status"`
	Metadata         models.CaseMetadata `json:"metadata"`
	CurrentStep      *int                `json:"currentStep"`
	CompleteStep     *int                `json:"completeStep"`
}

// UpdateCase handles PATCH /api/cases/:id
func (h *CaseHandler) UpdateCase(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body UpdateCaseBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, _ := principal(c)
	res, err := h.cases.UpdateCase(c.Request.Context(), service.UpdateCaseRequest{
		TenantID:         tenantID,
		ID:               id,
		ClientName:       body.ClientName,
		CaseType:         body.CaseType,
		TemplateName:     body.TemplateName,
		FactsDescription: body.FactsDescription,
		Status:           body.Status,
		Metadata:         body.Metadata,
		CurrentStep:      body.CurrentStep,
		CompleteStep:     body.CompleteStep,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, res.Case)
}

// DeleteCase handles DELETE /api/cases/:id
func (h *CaseHandler) DeleteCase(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	if err := h.cases.DeleteCase(c.Request.Context(), service.DeleteCaseRequest{TenantID: tenantID, ID: id}); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListTheses handles GET /api/cases/:id/theses
func (h *CaseHandler) ListTheses(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	theses, err := h.theses.ListTheses(c.Request.Context(), service.ListThesesRequest{TenantID: tenantID, CaseID: id})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, theses)
}

type suggestThesesBody struct {
	Provider     string              `json:"provider"`
	DocumentType models.DocumentType `json:"documentType"`
	LegalArea    string              `json:"legalArea"`
	MaxCount     int                 `json:"maxCount" binding:"omitempty,min=1,max=20"`
}

// SuggestTheses handles POST /api/cases/:id/theses/suggest. Earlier
// suggestions of the case are replaced.
func (h *CaseHandler) SuggestTheses(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body suggestThesesBody
	if c.Request.ContentLength != 0 && !bindJSON(c, &body) {
		return
	}
	tenantID, userID := principal(c)
	res, err := h.theses.SuggestTheses(c.Request.Context(), service.SuggestThesesRequest{
		TenantID:     tenantID,
		UserID:       userID,
		CaseID:       id,
		Provider:     body.Provider,
		DocumentType: body.DocumentType,
		LegalArea:    body.LegalArea,
		MaxCount:     body.MaxCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"theses": res.Theses, "provider": res.Provider})
}

type createThesisBody struct {
	Category models.ThesisCategory `json:"category" binding:"required"`
	Title    string                `json:"title" binding:"required"`
	Content  string                `json:"content" binding:"required"`
}

// CreateThesis handles POST /api/cases/:id/theses
func (h *CaseHandler) CreateThesis(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body createThesisBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, _ := principal(c)
	t, err := h.theses.CreateThesis(c.Request.Context(), service.CreateThesisRequest{
		TenantID: tenantID,
		CaseID:   id,
		Category: body.Category,
		Title:    body.Title,
		Content:  body.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, t)
}

type selectThesesBody struct {
	ThesisIDs []string `json:"thesisIds"`
}

// SelectTheses handles PUT /api/cases/:id/theses/selection
func (h *CaseHandler) SelectTheses(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body selectThesesBody
	if !bindJSON(c, &body) {
		return
	}
	ids, err := parseUUIDs("thesisIds", body.ThesisIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	tenantID, _ := principal(c)
	theses, err := h.theses.SelectTheses(c.Request.Context(), service.SelectThesesRequest{TenantID: tenantID, CaseID: id, ThesisIDs: ids})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, theses)
}

type reviewThesisBody struct {
	Status models.ReviewStatus `json:"status" binding:"required"`
}

// ReviewThesis handles PATCH /api/cases/:id/theses/:thesisId/review
func (h *CaseHandler) ReviewThesis(c *gin.Context) {
	caseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	thesisID, ok := uuidParam(c, "thesisId")
	if !ok {
		return
	}
	var body reviewThesisBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, _ := principal(c)
	t, err := h.theses.ReviewThesis(c.Request.Context(), service.ReviewThesisRequest{
		TenantID: tenantID,
		CaseID:   caseID,
		ThesisID: thesisID,
		Status:   body.Status,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, t)
}

// GenerateDraftBody selects what goes into the generated document
type GenerateDraftBody struct {
	DocumentID       *string             `json:"documentId"`
	DocumentType     models.DocumentType `json:"documentType"`
	ThesisIDs        []string            `json:"thesisIds"`
	JurisprudenceIDs []string            `json:"jurisprudenceIds"`
	Provider         string              `json:"provider"`
}

func (b GenerateDraftBody) request(tenantID, userID, caseID uuid.UUID) (service.GenerateDraftRequest, error) {
	req := service.GenerateDraftRequest{
		TenantID:     tenantID,
		UserID:       userID,
		CaseID:       caseID,
		DocumentType: b.DocumentType,
		Provider:     b.Provider,
	}
	var err error
	if req.DocumentID, err = optionalUUID("documentId", b.DocumentID); err != nil {
		return req, err
	}
	if req.ThesisIDs, err = parseUUIDs("thesisIds", b.ThesisIDs); err != nil {
		return req, err
	}
	if req.JurisprudenceIDs, err = parseUUIDs("jurisprudenceIds", b.JurisprudenceIDs); err != nil {
		return req, err
	}
	return req, nil
}

// GenerateDraft handles POST /api/cases/:id/generate. The draft is produced
// by a background job; the response carries the job id to poll at
// /api/jobs/:id. With ?mode=sync the draft is generated within the request.
func (h *CaseHandler) GenerateDraft(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body GenerateDraftBody
	if c.Request.ContentLength != 0 && !bindJSON(c, &body) {
		return
	}
	tenantID, userID := principal(c)
	req, err := body.request(tenantID, userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("mode") == "sync" {
		res, err := h.drafts.GenerateDraft(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"document": res.Document, "provider": res.Provider})
		return
	}

	res, err := h.drafts.EnqueueDraft(c.Request.Context(), service.EnqueueDraftRequest{
		GenerateDraftRequest: req,
		IdempotencyKey:       c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusAccepted, gin.H{
		"jobId":   res.JobID,
		"status":  res.Status,
		"message": "Geração iniciada. Consulte /api/jobs/" + res.JobID + " para acompanhar.",
	})
}

// GetJobStatus handles GET /api/jobs/:id
func (h *CaseHandler) GetJobStatus(c *gin.Context) {
	tenantID, _ := principal(c)
	st, err := h.drafts.GetJobStatus(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, st)
}

type addCitationBody struct {
	JurisprudenceID string `json:"jurisprudenceId" binding:"required"`
	Excerpt         string `json:"excerpt"`
	Position        int    `json:"position"`
}

// AddCitation handles POST /api/cases/:id/citations
func (h *CaseHandler) AddCitation(c *gin.Context) {
	caseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body addCitationBody
	if !bindJSON(c, &body) {
		return
	}
	jurisID, err := optionalUUID("jurisprudenceId", &body.JurisprudenceID)
	if err != nil {
		respondError(c, err)
		return
	}
	tenantID, _ := principal(c)
	citation, err := h.jurisprudence.AddCitation(c.Request.Context(), service.AddCitationRequest{
		TenantID:        tenantID,
		CaseID:          caseID,
		JurisprudenceID: *jurisID,
		Excerpt:         body.Excerpt,
		Position:        body.Position,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, citation)
}

// ListCitations handles GET /api/cases/:id/citations
func (h *CaseHandler) ListCitations(c *gin.Context) {
	caseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tenantID, _ := principal(c)
	citations, err := h.jurisprudence.ListCitations(c.Request.Context(), tenantID, caseID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, citations)
}
