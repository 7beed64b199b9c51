package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/jobs"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/service"
)

// JurisprudenceHandler serves precedent search and ingestion requests
type JurisprudenceHandler struct {
	jurisprudence *service.JurisprudenceService
	jobs          queue.Enqueuer
}

func NewJurisprudenceHandler(jurisprudence *service.JurisprudenceService, jobs queue.Enqueuer) *JurisprudenceHandler {
	return &JurisprudenceHandler{jurisprudence: jurisprudence, jobs: jobs}
}

// Search handles GET /api/jurisprudence?q=&tribunal=&year=&page=&limit=
func (h *JurisprudenceHandler) Search(c *gin.Context) {
	year := 0
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperr.Validation("", apperr.FieldError{Field: "year", Message: "Ano inválido"}))
			return
		}
		year = y
	}
	res, err := h.jurisprudence.Search(c.Request.Context(), service.SearchJurisprudenceRequest{
		Keywords: c.Query("q"),
		Tribunal: c.Query("tribunal"),
		Year:     year,
		Page:     pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       res.Results,
		"pagination": res.Pagination,
	})
}

// Similar handles GET /api/jurisprudence/similar?q=&tribunal=&limit=
func (h *JurisprudenceHandler) Similar(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	chunks, err := h.jurisprudence.SearchSimilar(c.Request.Context(), c.Query("q"), c.Query("tribunal"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, chunks)
}

// Tribunals handles GET /api/jurisprudence/tribunals
func (h *JurisprudenceHandler) Tribunals(c *gin.Context) {
	tribunals, err := h.jurisprudence.Tribunals(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, tribunals)
}

// Get handles GET /api/jurisprudence/:id
func (h *JurisprudenceHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	j, err := h.jurisprudence.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, j)
}

type ingestBody struct {
	Source     string `json:"source" binding:"required"`
	DatasetURL string `json:"datasetUrl"`
}

// Ingest handles POST /api/jurisprudence/ingest. Only firm owners and
// admins may queue ingestion.
func (h *JurisprudenceHandler) Ingest(c *gin.Context) {
	v, _ := c.Get(claimsKey)
	if claims := v.(*service.Claims); claims.Role != models.RoleOwner && claims.Role != models.RoleAdmin {
		respondError(c, apperr.Unauthorized(errors.New("ingestion requires owner or admin role")))
		return
	}
	var body ingestBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, _ := principal(c)
	job, err := h.jobs.Enqueue(c.Request.Context(), queue.KindIngestJurisprudence, jobs.IngestPayload{
		Source:     strings.TrimSpace(body.Source),
		DatasetURL: body.DatasetURL,
		TenantID:   &tenantID,
	}, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusAccepted, gin.H{"jobId": job.ID, "status": job.Status})
}
