package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/wizard"
)

// WizardHandler drives server-held wizard sessions. Every response carries
// the session state; background fetches are reflected by the loading flags,
// or awaited with ?wait=true.
type WizardHandler struct {
	sessions *wizard.Manager
}

func NewWizardHandler(sessions *wizard.Manager) *WizardHandler {
	return &WizardHandler{sessions: sessions}
}

type startWizardBody struct {
	DocumentType models.DocumentType `json:"documentType"`
	TemplateName string              `json:"templateName"`
	Provider     string              `json:"provider"`
}

// Start handles POST /api/wizard/sessions
func (h *WizardHandler) Start(c *gin.Context) {
	var body startWizardBody
	if c.Request.ContentLength != 0 && !bindJSON(c, &body) {
		return
	}
	tenantID, userID := principal(c)
	opts := []wizard.Option{wizard.WithTemplate(body.DocumentType, body.TemplateName)}
	if body.Provider != "" {
		opts = append(opts, wizard.WithProvider(body.Provider))
	}
	id, s := h.sessions.Start(tenantID, userID, opts...)
	respondOK(c, http.StatusCreated, gin.H{"sessionId": id, "state": s.State()})
}

func (h *WizardHandler) session(c *gin.Context) (*wizard.Session, bool) {
	tenantID, userID := principal(c)
	s, err := h.sessions.Get(tenantID, userID, c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *WizardHandler) respondState(c *gin.Context, s *wizard.Session, changed bool) {
	if c.Query("wait") == "true" {
		s.Wait()
	}
	respondOK(c, http.StatusOK, gin.H{"sessionId": c.Param("sessionId"), "changed": changed, "state": s.State()})
}

// State handles GET /api/wizard/sessions/:sessionId
func (h *WizardHandler) State(c *gin.Context) {
	if s, ok := h.session(c); ok {
		h.respondState(c, s, false)
	}
}

type factsBody struct {
	ClientName       string              `json:"clientName" binding:"required"`
	CaseType         string              `json:"caseType" binding:"required"`
	FactsDescription string              `json:"factsDescription" binding:"required"`
	TemplateName     *string             `json:"templateName"`
	Metadata         models.CaseMetadata `json:"metadata"`
}

// SubmitFacts handles POST /api/wizard/sessions/:sessionId/facts
func (h *WizardHandler) SubmitFacts(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body factsBody
	if !bindJSON(c, &body) {
		return
	}
	if _, err := s.SubmitFacts(c.Request.Context(), wizard.FactsInput{
		ClientName:   body.ClientName,
		CaseType:     body.CaseType,
		Facts:        body.FactsDescription,
		TemplateName: body.TemplateName,
		Metadata:     body.Metadata,
	}); err != nil {
		respondError(c, err)
		return
	}
	h.respondState(c, s, true)
}

// Advance handles POST /api/wizard/sessions/:sessionId/advance
func (h *WizardHandler) Advance(c *gin.Context) {
	if s, ok := h.session(c); ok {
		h.respondState(c, s, s.Advance())
	}
}

// Retreat handles POST /api/wizard/sessions/:sessionId/retreat
func (h *WizardHandler) Retreat(c *gin.Context) {
	if s, ok := h.session(c); ok {
		h.respondState(c, s, s.Retreat())
	}
}

// ToggleThesis handles POST /api/wizard/sessions/:sessionId/theses/:thesisId/toggle
func (h *WizardHandler) ToggleThesis(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "thesisId")
	if !ok {
		return
	}
	s.ToggleThesis(id)
	h.respondState(c, s, true)
}

// ToggleJurisprudence handles POST /api/wizard/sessions/:sessionId/jurisprudence/:jurisprudenceId/toggle
func (h *WizardHandler) ToggleJurisprudence(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "jurisprudenceId")
	if !ok {
		return
	}
	s.ToggleJurisprudence(id)
	h.respondState(c, s, true)
}

// RefreshTheses handles POST /api/wizard/sessions/:sessionId/theses/refresh
func (h *WizardHandler) RefreshTheses(c *gin.Context) {
	if s, ok := h.session(c); ok {
		h.respondState(c, s, s.RefreshTheses())
	}
}

type searchBody struct {
	Keywords string `json:"keywords" binding:"required"`
}

// SearchJurisprudence handles POST /api/wizard/sessions/:sessionId/jurisprudence/search
func (h *WizardHandler) SearchJurisprudence(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body searchBody
	if !bindJSON(c, &body) {
		return
	}
	h.respondState(c, s, s.SearchJurisprudence(body.Keywords))
}

type contentBody struct {
	Content string `json:"content"`
}

// SetContent handles PUT /api/wizard/sessions/:sessionId/content
func (h *WizardHandler) SetContent(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body contentBody
	if !bindJSON(c, &body) {
		return
	}
	s.SetDocumentContent(body.Content)
	h.respondState(c, s, true)
}

// Save handles POST /api/wizard/sessions/:sessionId/save
func (h *WizardHandler) Save(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.SaveDocument(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"document": res.Document, "version": res.Version})
}

// Reset handles POST /api/wizard/sessions/:sessionId/reset
func (h *WizardHandler) Reset(c *gin.Context) {
	if s, ok := h.session(c); ok {
		s.Reset()
		h.respondState(c, s, true)
	}
}

// End handles DELETE /api/wizard/sessions/:sessionId
func (h *WizardHandler) End(c *gin.Context) {
	tenantID, userID := principal(c)
	if err := h.sessions.End(tenantID, userID, c.Param("sessionId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
